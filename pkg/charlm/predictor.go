package charlm

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Predictor scores every vocabulary index as the successor of an encoded context.
type Predictor interface {
	PredictNext(seq Sequence) ([]float64, error)
}

// Metrics are reported once per training epoch.
type Metrics struct {
	Loss     float64
	Accuracy float64
}

// StopSignal asks a running Fit to end after the current epoch.
type StopSignal struct {
	stop atomic.Bool
}

func (s *StopSignal) Set() { s.stop.Store(true) }

func (s *StopSignal) IsSet() bool { return s != nil && s.stop.Load() }

// FitOptions control one call to Model.Fit.
type FitOptions struct {
	EpochLimit int
	// TargetAccuracy ends training once an epoch reaches it. Zero disables it.
	TargetAccuracy float64
	OnEpochEnd     func(epoch int, m Metrics)
	Stop           *StopSignal
}

// Model is a trainable Predictor. Snapshot returns an immutable Predictor over
// the current weights, unaffected by later Fit calls.
type Model interface {
	Predictor
	Fit(ctx context.Context, ds Dataset, opts FitOptions) error
	Snapshot() (Predictor, error)
}

// ModelConfig describes the model a ModelFactory should build.
type ModelConfig struct {
	SequenceLength int
	VocabSize      int
	HiddenSize     int
}

type ModelFactory func(cfg ModelConfig) (Model, error)

// Argmax returns the index of the highest score, the lowest index on ties.
func Argmax(scores []float64) int {
	return floats.MaxIdx(scores)
}

// PredictSymbol encodes context, queries p and returns the best scoring index.
func PredictSymbol(p Predictor, v *Vocabulary, length int, context string) (int, error) {
	seq, err := Encode(context, v, length)
	if err != nil {
		return 0, err
	}
	dist, err := p.PredictNext(seq)
	if err != nil {
		return 0, errors.Wrap(err, "predict next symbol")
	}
	if len(dist) != v.Size() {
		return 0, errors.Errorf("predictor returned %d scores for a vocabulary of %d", len(dist), v.Size())
	}
	return Argmax(dist), nil
}
