package charlm

import "github.com/pkg/errors"

// Sequence is a fixed length list of vocabulary indices.
type Sequence []int

// Encode maps context to exactly length indices. Characters missing from the
// vocabulary become UnknownIndex and positions after the context are filled
// with EndIndex.
func Encode(context string, v *Vocabulary, length int) (Sequence, error) {
	runes := []rune(context)
	if len(runes) > length {
		return nil, errors.Wrapf(ErrEncoding, "context has %d symbols, sequence length is %d", len(runes), length)
	}
	seq := make(Sequence, length)
	for i, r := range runes {
		seq[i] = v.Index(r)
	}
	for i := len(runes); i < length; i++ {
		seq[i] = EndIndex
	}
	return seq, nil
}

// Equal reports whether two sequences hold the same indices.
func (s Sequence) Equal(o Sequence) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}
