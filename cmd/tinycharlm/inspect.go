package main

import (
	"fmt"

	"tinycharlm/pkg/charlm"
)

func prepare(name string, args []string) (*charlm.Vocabulary, int, []string, error) {
	cfg, err := newFlags(name).load(args)
	if err != nil {
		return nil, 0, nil, err
	}
	corpus, err := cfg.LoadCorpus()
	if err != nil {
		return nil, 0, nil, err
	}
	text := charlm.PrepareCorpus(corpus, cfg.Normalize)
	v, length, err := charlm.PrepareSession(text)
	if err != nil {
		return nil, 0, nil, err
	}
	return v, length, charlm.SplitLines(text), nil
}

func runVocab(args []string) error {
	v, length, _, err := prepare("vocab", args)
	if err != nil {
		return err
	}
	fmt.Printf("Vocabulary size: %d\n", v.Size())
	fmt.Printf("Sequence length: %d\n", length)
	for i, sym := range v.Symbols() {
		fmt.Printf("  %d -> %q\n", i, sym)
	}
	return nil
}

func runDataset(args []string) error {
	v, length, lines, err := prepare("dataset", args)
	if err != nil {
		return err
	}
	ds, err := charlm.BuildDataset(lines, v, length)
	if err != nil {
		return err
	}
	fmt.Printf("Training pairs: %d\n", len(ds))
	fmt.Print(ds.Dump(v))
	return nil
}
