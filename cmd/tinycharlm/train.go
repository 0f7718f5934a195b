package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"

	"tinycharlm/pkg/charlm"
	"tinycharlm/pkg/config"
	"tinycharlm/pkg/model"
)

type EpochMetrics struct {
	Epoch    int     `json:"epoch"`
	Loss     float64 `json:"loss"`
	Accuracy float64 `json:"accuracy"`
}

type Metrics struct {
	Epochs []EpochMetrics `json:"epochs"`
}

// train runs one training session, stopping early on the first Ctrl-C.
func train(cfg *config.Config) (*charlm.Trainer, error) {
	corpus, err := cfg.LoadCorpus()
	if err != nil {
		return nil, err
	}

	var metrics Metrics
	trainer := charlm.NewTrainer(model.Factory(cfg.ModelBase()), charlm.TrainerConfig{
		EpochLimit:     cfg.Training.Epochs,
		TargetAccuracy: cfg.Training.TargetAccuracy,
		Normalize:      cfg.Normalize,
		OnEpochEnd: func(epoch int, m charlm.Metrics) {
			metrics.Epochs = append(metrics.Epochs, EpochMetrics{Epoch: epoch, Loss: m.Loss, Accuracy: m.Accuracy})
		},
	}, log.New(os.Stdout, "   ", log.Ltime))

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	done := make(chan struct{})
	relayed := make(chan struct{})
	go func() {
		defer close(relayed)
		relayInterrupts(sigs, done, trainer, os.Exit)
	}()
	defer func() {
		signal.Stop(sigs)
		close(done)
		<-relayed
	}()

	fmt.Printf("📚 Corpus: %d characters\n", len(corpus))
	fmt.Printf("🏋️  Training (hidden=%d, epoch limit %d)...\n", cfg.Model.HiddenSize, cfg.Training.Epochs)
	s, err := trainer.Train(context.Background(), corpus, cfg.Model.HiddenSize)
	if err != nil {
		return nil, err
	}
	fmt.Printf("✅ Training complete: %d symbols, sequence length %d, %d epochs\n",
		s.Vocabulary.Size(), s.SequenceLength, len(metrics.Epochs))

	if path := cfg.Training.MetricsPath; path != "" {
		if err := saveJSON(path, metrics); err != nil {
			fmt.Printf("   Warning: Failed to save metrics: %v\n", err)
		} else {
			fmt.Printf("📊 Metrics saved to: %s\n", path)
		}
	}
	return trainer, nil
}

type stopper interface {
	Stop() bool
}

// relayInterrupts turns each signal into a cooperative stop of the running
// training, exiting with 130 when nothing is running. It returns once done is
// closed.
func relayInterrupts(sigs <-chan os.Signal, done <-chan struct{}, s stopper, exit func(code int)) {
	for {
		select {
		case <-done:
			return
		case <-sigs:
			if s.Stop() {
				fmt.Println("\n⏹  Stopping after the current epoch...")
				continue
			}
			exit(130)
		}
	}
}

func runTrain(args []string) error {
	cfg, err := newFlags("train").load(args)
	if err != nil {
		return err
	}
	trainer, err := train(cfg)
	if err != nil {
		return err
	}

	fmt.Println("💬 Type text to complete, one prompt per line:")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out, err := trainer.Complete(context.Background(), scanner.Text())
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		fmt.Println(out)
	}
	return errors.Wrap(scanner.Err(), "read stdin")
}

func runDemo(args []string) error {
	cfg, err := newFlags("demo").load(args)
	if err != nil {
		return err
	}
	trainer, err := train(cfg)
	if err != nil {
		return err
	}

	corpus, err := cfg.LoadCorpus()
	if err != nil {
		return err
	}
	prompts := []string{"1+3", "3+1"}
	if cfg.Corpus != "" {
		prompts = nil
	}
	for _, line := range charlm.SplitLines(charlm.PrepareCorpus(corpus, cfg.Normalize)) {
		if i := strings.IndexRune(line, '='); i >= 0 {
			prompts = append(prompts, line[:i+1])
		} else if r := []rune(line); len(r) > 1 {
			prompts = append(prompts, string(r[:len(r)/2]))
		}
	}

	fmt.Println("\n🎯 Completions:")
	for _, prompt := range prompts {
		out, err := trainer.Complete(context.Background(), prompt)
		if err != nil {
			return err
		}
		fmt.Printf("   %q → %q\n", prompt, out)
	}
	return nil
}

func saveJSON(path string, data interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
