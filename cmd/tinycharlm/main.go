package main

import (
	"flag"
	"fmt"
	"os"

	"tinycharlm/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch command := os.Args[1]; command {
	case "train":
		err = runTrain(os.Args[2:])
	case "demo":
		err = runDemo(os.Args[2:])
	case "vocab":
		err = runVocab(os.Args[2:])
	case "dataset":
		err = runDataset(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("tinycharlm - character-level next-symbol predictor")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  tinycharlm train [--corpus FILE] [options]   train, then complete each stdin line")
	fmt.Println("  tinycharlm demo [options]                    train on the addition corpus and probe it")
	fmt.Println("  tinycharlm vocab [--corpus FILE]             print vocabulary and sequence length")
	fmt.Println("  tinycharlm dataset [--corpus FILE]           print every training pair")
	fmt.Println()
	fmt.Println("Without --corpus the built-in addition corpus is used.")
}

// flags are shared by every command. Values set on the command line override
// the config file.
type flags struct {
	fs         *flag.FlagSet
	configPath string
	corpus     string
	hidden     int
	epochs     int
	metrics    string
	normalize  bool
}

func newFlags(name string) *flags {
	f := &flags{fs: flag.NewFlagSet(name, flag.ExitOnError)}
	f.fs.StringVar(&f.configPath, "config", "", "Path to YAML config file")
	f.fs.StringVar(&f.corpus, "corpus", "", "Path to training corpus, one example per line")
	f.fs.IntVar(&f.hidden, "hidden", 0, "Hidden layer size")
	f.fs.IntVar(&f.epochs, "epochs", 0, "Epoch limit")
	f.fs.StringVar(&f.metrics, "metrics", "", "Write per-epoch metrics JSON to this file")
	f.fs.BoolVar(&f.normalize, "normalize", false, "Normalize text to Unicode NFC")
	return f
}

func (f *flags) load(args []string) (*config.Config, error) {
	if err := f.fs.Parse(args); err != nil {
		return nil, err
	}
	cfg := config.DefaultConfig()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return nil, err
		}
	}
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "corpus":
			cfg.Corpus = f.corpus
		case "hidden":
			cfg.Model.HiddenSize = f.hidden
		case "epochs":
			cfg.Training.Epochs = f.epochs
		case "metrics":
			cfg.Training.MetricsPath = f.metrics
		case "normalize":
			cfg.Normalize = f.normalize
		}
	})
	return cfg, cfg.Validate()
}
