package model

import (
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"

	"tinycharlm/pkg/charlm"
)

// Snapshot is an inference-only copy of TinyLM weights. It is safe for
// concurrent use.
type Snapshot struct {
	length, vocab, emb int

	embed, w1, b1, w2, b2 *mat.Dense

	cache *lru.Cache
}

func (m *TinyLM) snapshot(cacheSize int) (*Snapshot, error) {
	p := m.params
	s := &Snapshot{
		length: m.cfg.SequenceLength,
		vocab:  m.cfg.VocabSize,
		emb:    m.cfg.EmbeddingSize,
		embed:  toMat(p.Embed),
		w1:     toMat(p.W1),
		b1:     toMat(p.B1),
		w2:     toMat(p.W2),
		b2:     toMat(p.B2),
	}
	if cacheSize > 0 {
		cache, err := lru.New(cacheSize)
		if err != nil {
			return nil, errors.Wrap(err, "prediction cache")
		}
		s.cache = cache
	}
	return s, nil
}

func toMat(t *tensor.Dense) *mat.Dense {
	shape := t.Shape()
	data := append([]float64(nil), t.Data().([]float64)...)
	return mat.NewDense(shape[0], shape[1], data)
}

// PredictNext returns the softmax distribution over the vocabulary for seq.
func (s *Snapshot) PredictNext(seq charlm.Sequence) ([]float64, error) {
	if len(seq) != s.length {
		return nil, errors.Wrapf(charlm.ErrEncoding, "sequence has %d indices, model expects %d", len(seq), s.length)
	}
	var key string
	if s.cache != nil {
		key = fmt.Sprint([]int(seq))
		if dist, ok := s.cache.Get(key); ok {
			return append([]float64(nil), dist.([]float64)...), nil
		}
	}

	x := make([]float64, s.length*s.emb)
	for pos, id := range seq {
		if id < 0 || id >= s.vocab {
			return nil, errors.Errorf("index %d outside vocabulary of %d", id, s.vocab)
		}
		copy(x[pos*s.emb:(pos+1)*s.emb], s.embed.RawRowView(id))
	}
	in := mat.NewDense(1, len(x), x)

	var h mat.Dense
	h.Mul(in, s.w1)
	h.Add(&h, s.b1)
	h.Apply(func(_, _ int, v float64) float64 { return math.Max(v, 0) }, &h)

	var logits mat.Dense
	logits.Mul(&h, s.w2)
	logits.Add(&logits, s.b2)
	dist := softmax(logits.RawRowView(0))

	if s.cache != nil {
		s.cache.Add(key, append([]float64(nil), dist...))
	}
	return dist, nil
}

func softmax(logits []float64) []float64 {
	maxv := floats.Max(logits)
	out := make([]float64, len(logits))
	for i, v := range logits {
		out[i] = math.Exp(v - maxv)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}
