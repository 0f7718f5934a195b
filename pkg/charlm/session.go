package charlm

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Session is an immutable snapshot of one committed training run. Decoders
// read everything they need from a single Session.
type Session struct {
	Vocabulary     *Vocabulary
	SequenceLength int
	Predictor      Predictor
}

// PrepareSession builds the vocabulary and sequence length for corpus text.
func PrepareSession(corpus string) (*Vocabulary, int, error) {
	corpus = PrepareCorpus(corpus, false)
	length, err := SequenceLength(SplitLines(corpus))
	if err != nil {
		return nil, 0, err
	}
	return BuildVocabulary(corpus), length, nil
}

// TrainerConfig holds the settings applied to every training run.
type TrainerConfig struct {
	EpochLimit     int
	TargetAccuracy float64
	Normalize      bool
	// OnEpochEnd, if set, observes every epoch after it is logged.
	OnEpochEnd func(epoch int, m Metrics)
}

// Trainer orchestrates vocabulary build, dataset build, fitting and decoding.
// At most one Train call runs at a time; Complete may run concurrently with it
// and always sees the last committed Session.
type Trainer struct {
	newModel ModelFactory
	cfg      TrainerConfig
	logger   *log.Logger

	current atomic.Pointer[Session]
	running atomic.Bool
	stop    atomic.Pointer[StopSignal]

	// guarded by running
	model       Model
	modelCorpus string
	modelHidden int
}

// NewTrainer returns a Trainer that creates models with newModel. A nil logger
// discards output.
func NewTrainer(newModel ModelFactory, cfg TrainerConfig, logger *log.Logger) *Trainer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Trainer{newModel: newModel, cfg: cfg, logger: logger}
}

// Train runs one full training session on corpus. On success the new Session
// becomes current; on any failure the previous Session stays current.
func (t *Trainer) Train(ctx context.Context, corpus string, hiddenSize int) (*Session, error) {
	if !t.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer t.running.Store(false)

	stop := &StopSignal{}
	t.stop.Store(stop)
	defer t.stop.Store(nil)

	if t.cfg.EpochLimit <= 0 {
		return nil, errors.Wrapf(ErrConfiguration, "epoch limit must be positive, got %d", t.cfg.EpochLimit)
	}
	if hiddenSize <= 0 {
		return nil, errors.Wrapf(ErrConfiguration, "hidden layer size must be a positive integer, got %d", hiddenSize)
	}
	text := PrepareCorpus(corpus, t.cfg.Normalize)
	vocab, length, err := PrepareSession(text)
	if err != nil {
		return nil, err
	}
	t.logger.Printf("vocabulary built: %s", vocab)
	t.logger.Printf("sequence length: %d", length)

	model := t.model
	if model == nil || t.modelCorpus != text || t.modelHidden != hiddenSize {
		model, err = t.newModel(ModelConfig{
			SequenceLength: length,
			VocabSize:      vocab.Size(),
			HiddenSize:     hiddenSize,
		})
		if err != nil {
			return nil, errors.Wrap(err, "create model")
		}
		t.logger.Printf("new model created (hidden=%d)", hiddenSize)
	}

	ds, err := BuildDataset(SplitLines(text), vocab, length)
	if err != nil {
		return nil, err
	}
	t.logger.Printf("dataset built: %d pairs", len(ds))

	probe := vocab.Symbol(EndIndex + 1)
	t.logProbe(ctx, "before training", probe, model, vocab, length)

	err = model.Fit(ctx, ds, FitOptions{
		EpochLimit:     t.cfg.EpochLimit,
		TargetAccuracy: t.cfg.TargetAccuracy,
		Stop:           stop,
		OnEpochEnd: func(epoch int, m Metrics) {
			if !stop.IsSet() {
				t.logger.Printf("[epoch=%d loss=%.6f accuracy=%.4f]", epoch, m.Loss, m.Accuracy)
			}
			if t.cfg.OnEpochEnd != nil {
				t.cfg.OnEpochEnd(epoch, m)
			}
		},
	})
	if err != nil {
		return nil, tag(ErrTraining, err)
	}
	if stop.IsSet() {
		t.logger.Printf("training stopped on request")
	} else {
		t.logger.Printf("training finished")
	}

	snap, err := model.Snapshot()
	if err != nil {
		return nil, tag(ErrTraining, err)
	}
	t.model, t.modelCorpus, t.modelHidden = model, text, hiddenSize

	s := &Session{Vocabulary: vocab, SequenceLength: length, Predictor: snap}
	t.logProbe(ctx, "after training", probe, snap, vocab, length)
	t.current.Store(s)
	return s, nil
}

func (t *Trainer) logProbe(ctx context.Context, when, seed string, p Predictor, v *Vocabulary, length int) {
	out, err := Decode(ctx, seed, p, v, length)
	if err != nil {
		t.logger.Printf("probe %s failed: %v", when, err)
		return
	}
	t.logger.Printf("probe %s: %q -> %q", when, seed, out)
}

// Stop asks the in-flight training run to end after its current epoch. It
// reports whether a run was in flight.
func (t *Trainer) Stop() bool {
	s := t.stop.Load()
	if s == nil {
		return false
	}
	s.Set()
	return true
}

// Running reports whether a training run is in flight.
func (t *Trainer) Running() bool { return t.running.Load() }

// Session returns the last committed session, or nil.
func (t *Trainer) Session() *Session { return t.current.Load() }

// Complete extends seed with the predictor of the current session.
func (t *Trainer) Complete(ctx context.Context, seed string) (string, error) {
	s := t.current.Load()
	if s == nil {
		return "", ErrNoSession
	}
	seed = PrepareCorpus(seed, t.cfg.Normalize)
	return Decode(ctx, seed, s.Predictor, s.Vocabulary, s.SequenceLength)
}

// DefaultCorpus returns the addition facts x+y=z for x, y in 1..3, leaving out
// 1+3 and 3+1 so completions of those prompts show what the model inferred.
func DefaultCorpus() string {
	var b strings.Builder
	for x := 1; x < 4; x++ {
		for y := 1; y < 4; y++ {
			if (x == 1 && y == 3) || (x == 3 && y == 1) {
				continue
			}
			fmt.Fprintf(&b, "%d+%d=%d\n", x, y, x+y)
		}
	}
	return b.String()
}
