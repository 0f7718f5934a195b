package model

import (
	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"tinycharlm/pkg/charlm"
)

// Config describes a TinyLM: an embedding of every context position,
// flattened, followed by a relu hidden layer and a softmax over the vocabulary.
type Config struct {
	SequenceLength int
	VocabSize      int
	HiddenSize     int
	EmbeddingSize  int
	DropProb       float64
	LearnRate      float64
	// CacheSize bounds the predictions memoized per snapshot. Zero disables it.
	CacheSize int
}

func DefaultConfig() Config {
	return Config{
		HiddenSize:    32,
		EmbeddingSize: 4,
		DropProb:      0.2,
		LearnRate:     0.01,
		CacheSize:     1024,
	}
}

func (c Config) validate() error {
	switch {
	case c.SequenceLength <= 0:
		return errors.Wrapf(charlm.ErrConfiguration, "sequence length must be positive, got %d", c.SequenceLength)
	case c.VocabSize <= charlm.EndIndex+1:
		return errors.Wrapf(charlm.ErrConfiguration, "vocabulary of %d symbols has no corpus symbol", c.VocabSize)
	case c.HiddenSize <= 0:
		return errors.Wrapf(charlm.ErrConfiguration, "hidden layer size must be a positive integer, got %d", c.HiddenSize)
	case c.EmbeddingSize <= 0:
		return errors.Wrapf(charlm.ErrConfiguration, "embedding size must be positive, got %d", c.EmbeddingSize)
	case c.DropProb < 0 || c.DropProb >= 1:
		return errors.Wrapf(charlm.ErrConfiguration, "dropout probability must be in [0, 1), got %g", c.DropProb)
	case c.LearnRate <= 0:
		return errors.Wrapf(charlm.ErrConfiguration, "learn rate must be positive, got %g", c.LearnRate)
	}
	return nil
}

// Params are the trainable weights of a TinyLM.
type Params struct {
	Embed *tensor.Dense // [vocab x emb]
	W1    *tensor.Dense // [len*emb x hidden]
	B1    *tensor.Dense // [1 x hidden]
	W2    *tensor.Dense // [hidden x vocab]
	B2    *tensor.Dense // [1 x vocab]
}

func NewParams(c Config) *Params {
	return &Params{
		Embed: glorot(c.VocabSize, c.EmbeddingSize),
		W1:    glorot(c.SequenceLength*c.EmbeddingSize, c.HiddenSize),
		B1:    zeros(1, c.HiddenSize),
		W2:    glorot(c.HiddenSize, c.VocabSize),
		B2:    zeros(1, c.VocabSize),
	}
}

func glorot(rows, cols int) *tensor.Dense {
	return tensor.New(
		tensor.WithShape(rows, cols),
		tensor.WithBacking(gorgonia.GlorotU(1.0)(tensor.Float64, rows, cols)),
	)
}

func zeros(rows, cols int) *tensor.Dense {
	return tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(rows, cols))
}

// TinyLM is a charlm.Model trained with gorgonia.
type TinyLM struct {
	cfg    Config
	params *Params
}

// New returns an untrained TinyLM.
func New(cfg Config) (*TinyLM, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &TinyLM{cfg: cfg, params: NewParams(cfg)}, nil
}

// Factory adapts base to charlm.ModelFactory; the session decides sequence
// length, vocabulary size and hidden size.
func Factory(base Config) charlm.ModelFactory {
	return func(mc charlm.ModelConfig) (charlm.Model, error) {
		cfg := base
		cfg.SequenceLength = mc.SequenceLength
		cfg.VocabSize = mc.VocabSize
		cfg.HiddenSize = mc.HiddenSize
		return New(cfg)
	}
}

func (m *TinyLM) Config() Config { return m.cfg }

// ParamCount returns the number of trainable weights.
func (m *TinyLM) ParamCount() int {
	c := m.cfg
	return c.VocabSize*c.EmbeddingSize +
		c.SequenceLength*c.EmbeddingSize*c.HiddenSize + c.HiddenSize +
		c.HiddenSize*c.VocabSize + c.VocabSize
}

// PredictNext scores seq against the current weights. It must not be called
// while Fit is running; use a Snapshot for that.
func (m *TinyLM) PredictNext(seq charlm.Sequence) ([]float64, error) {
	s, err := m.snapshot(0)
	if err != nil {
		return nil, err
	}
	return s.PredictNext(seq)
}

// Snapshot copies the current weights into an immutable predictor.
func (m *TinyLM) Snapshot() (charlm.Predictor, error) {
	return m.snapshot(m.cfg.CacheSize)
}
