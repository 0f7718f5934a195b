package model

import (
	"context"
	"errors"
	"math"
	"testing"

	"tinycharlm/pkg/charlm"
)

func testConfig(length, vocab int) Config {
	cfg := DefaultConfig()
	cfg.SequenceLength = length
	cfg.VocabSize = vocab
	cfg.HiddenSize = 16
	cfg.DropProb = 0
	return cfg
}

func session(t *testing.T, corpus string) (*charlm.Vocabulary, int, charlm.Dataset) {
	t.Helper()
	v, length, err := charlm.PrepareSession(corpus)
	if err != nil {
		t.Fatal(err)
	}
	ds, err := charlm.BuildDataset(charlm.SplitLines(corpus), v, length)
	if err != nil {
		t.Fatal(err)
	}
	return v, length, ds
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero length", func(c *Config) { c.SequenceLength = 0 }},
		{"sentinels only", func(c *Config) { c.VocabSize = 2 }},
		{"zero hidden", func(c *Config) { c.HiddenSize = 0 }},
		{"negative hidden", func(c *Config) { c.HiddenSize = -3 }},
		{"zero embedding", func(c *Config) { c.EmbeddingSize = 0 }},
		{"dropout one", func(c *Config) { c.DropProb = 1 }},
		{"zero learn rate", func(c *Config) { c.LearnRate = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(3, 5)
			tt.mutate(&cfg)
			if _, err := New(cfg); !errors.Is(err, charlm.ErrConfiguration) {
				t.Errorf("err = %v, want ErrConfiguration", err)
			}
		})
	}
	if _, err := New(testConfig(3, 5)); err != nil {
		t.Errorf("valid config: %v", err)
	}
}

func TestFactory(t *testing.T) {
	f := Factory(DefaultConfig())
	m, err := f(charlm.ModelConfig{SequenceLength: 5, VocabSize: 7, HiddenSize: 8})
	if err != nil {
		t.Fatal(err)
	}
	lm := m.(*TinyLM)
	cfg := lm.Config()
	if cfg.SequenceLength != 5 || cfg.VocabSize != 7 || cfg.HiddenSize != 8 || cfg.EmbeddingSize != 4 {
		t.Errorf("config = %+v", cfg)
	}
	want := 7*4 + 5*4*8 + 8 + 8*7 + 7
	if lm.ParamCount() != want {
		t.Errorf("ParamCount = %d, want %d", lm.ParamCount(), want)
	}
	if _, err := f(charlm.ModelConfig{SequenceLength: 5, VocabSize: 7, HiddenSize: 0}); !errors.Is(err, charlm.ErrConfiguration) {
		t.Errorf("hidden 0 err = %v", err)
	}
}

func TestSnapshotDistribution(t *testing.T) {
	m, err := New(testConfig(4, 6))
	if err != nil {
		t.Fatal(err)
	}
	snap, err := m.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	seq := charlm.Sequence{2, 3, 1, 1}
	dist, err := snap.PredictNext(seq)
	if err != nil {
		t.Fatal(err)
	}
	if len(dist) != 6 {
		t.Fatalf("len(dist) = %d", len(dist))
	}
	var sum float64
	for _, p := range dist {
		if p < 0 {
			t.Errorf("negative probability %g", p)
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("sum = %g", sum)
	}

	dist[0] = 42
	again, _ := snap.PredictNext(seq)
	if again[0] == 42 {
		t.Error("cached distribution shared with caller")
	}
	direct, _ := m.PredictNext(seq)
	for i := range direct {
		if math.Abs(direct[i]-again[i]) > 1e-12 {
			t.Fatalf("model and snapshot disagree at %d: %g vs %g", i, direct[i], again[i])
		}
	}

	if _, err := snap.PredictNext(charlm.Sequence{2, 3}); !errors.Is(err, charlm.ErrEncoding) {
		t.Errorf("short sequence err = %v", err)
	}
	if _, err := snap.PredictNext(charlm.Sequence{2, 3, 9, 1}); err == nil {
		t.Error("expected error for index outside vocabulary")
	}
}

func TestFitLearnsCorpus(t *testing.T) {
	v, length, ds := session(t, "ab\nab")
	m, err := New(testConfig(length, v.Size()))
	if err != nil {
		t.Fatal(err)
	}
	before, _ := m.Snapshot()
	probe := charlm.Sequence{2, 1}
	beforeDist, _ := before.PredictNext(probe)

	var history []charlm.Metrics
	err = m.Fit(context.Background(), ds, charlm.FitOptions{
		EpochLimit:     2000,
		TargetAccuracy: 1,
		OnEpochEnd:     func(_ int, mt charlm.Metrics) { history = append(history, mt) },
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(history) == 0 {
		t.Fatal("no epochs reported")
	}
	last := history[len(history)-1]
	if last.Accuracy != 1 {
		t.Fatalf("accuracy = %g after %d epochs", last.Accuracy, len(history))
	}
	if last.Loss >= history[0].Loss {
		t.Errorf("loss did not decrease: %g -> %g", history[0].Loss, last.Loss)
	}

	afterBefore, _ := before.PredictNext(probe)
	for i := range beforeDist {
		if beforeDist[i] != afterBefore[i] {
			t.Fatal("snapshot changed by a later Fit")
		}
	}

	snap, err := m.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	out, err := charlm.Decode(context.Background(), "", snap, v, length)
	if err != nil {
		t.Fatal(err)
	}
	if out != "ab" {
		t.Errorf("Decode = %q, want %q", out, "ab")
	}
}

func TestFitPredictsEveryPair(t *testing.T) {
	v, length, ds := session(t, "abcd")
	m, err := New(testConfig(length, v.Size()))
	if err != nil {
		t.Fatal(err)
	}
	var first, last charlm.Metrics
	err = m.Fit(context.Background(), ds, charlm.FitOptions{
		EpochLimit:     2000,
		TargetAccuracy: 1,
		OnEpochEnd: func(epoch int, mt charlm.Metrics) {
			if epoch == 0 {
				first = mt
			}
			last = mt
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if last.Loss >= first.Loss {
		t.Errorf("loss did not decrease: %g -> %g", first.Loss, last.Loss)
	}

	snap, err := m.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range ds {
		dist, err := snap.PredictNext(p.Context)
		if err != nil {
			t.Fatal(err)
		}
		if got := charlm.Argmax(dist); got != p.Target {
			t.Errorf("pair %d: predicted %d, want %d", i, got, p.Target)
		}
	}
}

func TestFitWithDropout(t *testing.T) {
	v, length, ds := session(t, "ab\nab")
	cfg := DefaultConfig()
	cfg.SequenceLength = length
	cfg.VocabSize = v.Size()
	if cfg.DropProb <= 0 {
		t.Fatalf("default dropout = %g, want it enabled", cfg.DropProb)
	}
	m, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	var history []charlm.Metrics
	err = m.Fit(context.Background(), ds, charlm.FitOptions{
		EpochLimit:     3000,
		TargetAccuracy: 1,
		OnEpochEnd:     func(_ int, mt charlm.Metrics) { history = append(history, mt) },
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(history) == 0 {
		t.Fatal("no epochs reported")
	}
	if first, last := history[0], history[len(history)-1]; last.Loss >= first.Loss {
		t.Errorf("loss did not decrease: %g -> %g", first.Loss, last.Loss)
	}

	snap, err := m.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	out, err := charlm.Decode(context.Background(), "", snap, v, length)
	if err != nil {
		t.Fatal(err)
	}
	if out != "ab" {
		t.Errorf("Decode = %q, want %q", out, "ab")
	}
}

func TestFitStopAndCancel(t *testing.T) {
	v, length, ds := session(t, "abc")
	m, err := New(testConfig(length, v.Size()))
	if err != nil {
		t.Fatal(err)
	}

	stop := &charlm.StopSignal{}
	epochs := 0
	err = m.Fit(context.Background(), ds, charlm.FitOptions{
		EpochLimit: 100,
		Stop:       stop,
		OnEpochEnd: func(epoch int, _ charlm.Metrics) {
			epochs++
			if epoch == 4 {
				stop.Set()
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if epochs != 5 {
		t.Errorf("epochs = %d, want 5", epochs)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Fit(ctx, ds, charlm.FitOptions{EpochLimit: 10}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestFitRejectsBadDataset(t *testing.T) {
	m, err := New(testConfig(3, 5))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	opts := charlm.FitOptions{EpochLimit: 1}
	bad := []charlm.Dataset{
		nil,
		{{Context: charlm.Sequence{2, 1}, Target: 3}},
		{{Context: charlm.Sequence{2, 1, 1}, Target: 5}},
		{{Context: charlm.Sequence{2, -1, 1}, Target: 3}},
	}
	for i, ds := range bad {
		if err := m.Fit(ctx, ds, opts); err == nil {
			t.Errorf("dataset %d: expected error", i)
		}
	}
}

func TestTrainerWithTinyLM(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DropProb = 0
	tr := charlm.NewTrainer(Factory(cfg), charlm.TrainerConfig{EpochLimit: 3000, TargetAccuracy: 1}, nil)
	s, err := tr.Train(context.Background(), "xy\nxy\n", 8)
	if err != nil {
		t.Fatal(err)
	}
	if s.SequenceLength != 2 {
		t.Errorf("SequenceLength = %d", s.SequenceLength)
	}
	out, err := tr.Complete(context.Background(), "x")
	if err != nil {
		t.Fatal(err)
	}
	if out != "xy" {
		t.Errorf("Complete = %q, want %q", out, "xy")
	}
}
