package charlm

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

const (
	// UnknownSymbol is stored at index 0 of every Vocabulary.
	UnknownSymbol = "<unknown>"
	// EndSymbol is stored at index 1 of every Vocabulary.
	EndSymbol = "<end>"

	UnknownIndex = 0
	EndIndex     = 1
)

// unknownRune stands in for a predicted UnknownSymbol inside decoded text.
// It is never added to a vocabulary, so it encodes back to UnknownIndex.
const unknownRune = '\uFFFD'

// Vocabulary is an ordered, duplicate free symbol table. Index 0 and 1 hold the
// sentinels, corpus characters follow in order of first appearance.
type Vocabulary struct {
	toID   map[rune]int
	toWord []string
}

// BuildVocabulary creates a vocabulary from a corpus (character-level).
// Line endings are not symbols.
func BuildVocabulary(corpus string) *Vocabulary {
	v := &Vocabulary{
		toID:   make(map[rune]int),
		toWord: []string{UnknownSymbol, EndSymbol},
	}
	for _, r := range corpus {
		if r == '\n' || r == '\r' {
			continue
		}
		if _, exists := v.toID[r]; exists {
			continue
		}
		v.toID[r] = len(v.toWord)
		v.toWord = append(v.toWord, string(r))
	}
	return v
}

// Size returns the number of symbols including both sentinels.
func (v *Vocabulary) Size() int {
	return len(v.toWord)
}

// Index returns the index of r, or UnknownIndex when r is not in the vocabulary.
func (v *Vocabulary) Index(r rune) int {
	if id, exists := v.toID[r]; exists {
		return id
	}
	return UnknownIndex
}

// Symbol returns the symbol stored at id. Out of range ids resolve to UnknownSymbol.
func (v *Vocabulary) Symbol(id int) string {
	if id < 0 || id >= len(v.toWord) {
		return UnknownSymbol
	}
	return v.toWord[id]
}

// Symbols returns a copy of the symbol table in index order.
func (v *Vocabulary) Symbols() []string {
	return append([]string(nil), v.toWord...)
}

func (v *Vocabulary) String() string {
	return strings.Join(v.toWord, ", ")
}

// PrepareCorpus drops carriage returns and, if normalize is set, rewrites the
// text in Unicode NFC so composed and decomposed input share symbols.
func PrepareCorpus(text string, normalize bool) string {
	text = strings.ReplaceAll(text, "\r", "")
	if normalize {
		text = norm.NFC.String(text)
	}
	return text
}

// SplitLines splits prepared corpus text into lines.
func SplitLines(text string) []string {
	return strings.Split(text, "\n")
}

// SequenceLength is the length in runes of the longest line.
func SequenceLength(lines []string) (int, error) {
	longest := 0
	for _, line := range lines {
		if n := len([]rune(line)); n > longest {
			longest = n
		}
	}
	if longest == 0 {
		return 0, errors.Wrap(ErrConfiguration, "corpus has no non-empty line")
	}
	return longest, nil
}
