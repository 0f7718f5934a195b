package charlm

import (
	"fmt"
	"strings"
)

// Pair is one supervised example: the encoded prefix and the index of the
// symbol that follows it.
type Pair struct {
	Context Sequence
	Target  int
}

// Dataset holds training pairs in generation order.
type Dataset []Pair

// BuildDataset expands every non-empty line into one pair per prefix length
// 0..n-1 (target: next character) plus a final pair of the full line with
// target EndIndex. All contexts share length.
func BuildDataset(lines []string, v *Vocabulary, length int) (Dataset, error) {
	var ds Dataset
	for _, line := range lines {
		if line == "" {
			continue
		}
		pairs, err := linePairs(line, v, length)
		if err != nil {
			return nil, err
		}
		ds = append(ds, pairs...)
	}
	return ds, nil
}

func linePairs(line string, v *Vocabulary, length int) ([]Pair, error) {
	runes := []rune(line)
	out := make([]Pair, 0, len(runes)+1)
	for i := 0; i <= len(runes); i++ {
		ctx, err := Encode(string(runes[:i]), v, length)
		if err != nil {
			return nil, err
		}
		target := EndIndex
		if i < len(runes) {
			target = v.Index(runes[i])
		}
		out = append(out, Pair{Context: ctx, Target: target})
	}
	return out, nil
}

// Dump renders the dataset one pair per line as "context -> target" using
// symbols from v.
func (ds Dataset) Dump(v *Vocabulary) string {
	var b strings.Builder
	for _, p := range ds {
		fmt.Fprintf(&b, "%v -> %d (%s)\n", []int(p.Context), p.Target, v.Symbol(p.Target))
	}
	return b.String()
}
