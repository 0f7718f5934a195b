package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"tinycharlm/pkg/charlm"
	"tinycharlm/pkg/model"
)

// Config holds the settings of one tinycharlm run.
type Config struct {
	// Corpus is the path of the training text. Empty selects the built-in
	// addition corpus.
	Corpus    string `yaml:"corpus"`
	Normalize bool   `yaml:"normalize"`

	Model    ModelConfig    `yaml:"model"`
	Training TrainingConfig `yaml:"training"`
}

type ModelConfig struct {
	HiddenSize    int     `yaml:"hidden_size"`
	EmbeddingSize int     `yaml:"embedding_size"`
	DropProb      float64 `yaml:"dropout"`
	LearnRate     float64 `yaml:"learn_rate"`
	CacheSize     int     `yaml:"cache_size"`
}

type TrainingConfig struct {
	Epochs         int     `yaml:"epochs"`
	TargetAccuracy float64 `yaml:"target_accuracy"`
	// MetricsPath, if set, receives per-epoch loss and accuracy as JSON.
	MetricsPath string `yaml:"metrics_path"`
}

func DefaultConfig() *Config {
	m := model.DefaultConfig()
	return &Config{
		Model: ModelConfig{
			HiddenSize:    m.HiddenSize,
			EmbeddingSize: m.EmbeddingSize,
			DropProb:      m.DropProb,
			LearnRate:     m.LearnRate,
			CacheSize:     m.CacheSize,
		},
		Training: TrainingConfig{
			Epochs:         100000,
			TargetAccuracy: 1,
		},
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default value.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(charlm.ErrConfiguration, "parse config %s: %v", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate reports the first unusable setting as charlm.ErrConfiguration.
func (c *Config) Validate() error {
	switch {
	case c.Model.HiddenSize <= 0:
		return errors.Wrapf(charlm.ErrConfiguration, "hidden_size must be a positive integer, got %d", c.Model.HiddenSize)
	case c.Model.EmbeddingSize <= 0:
		return errors.Wrapf(charlm.ErrConfiguration, "embedding_size must be positive, got %d", c.Model.EmbeddingSize)
	case c.Model.DropProb < 0 || c.Model.DropProb >= 1:
		return errors.Wrapf(charlm.ErrConfiguration, "dropout must be in [0, 1), got %g", c.Model.DropProb)
	case c.Model.LearnRate <= 0:
		return errors.Wrapf(charlm.ErrConfiguration, "learn_rate must be positive, got %g", c.Model.LearnRate)
	case c.Model.CacheSize < 0:
		return errors.Wrapf(charlm.ErrConfiguration, "cache_size must not be negative, got %d", c.Model.CacheSize)
	case c.Training.Epochs <= 0:
		return errors.Wrapf(charlm.ErrConfiguration, "epochs must be positive, got %d", c.Training.Epochs)
	case c.Training.TargetAccuracy < 0 || c.Training.TargetAccuracy > 1:
		return errors.Wrapf(charlm.ErrConfiguration, "target_accuracy must be in [0, 1], got %g", c.Training.TargetAccuracy)
	}
	return nil
}

// ModelBase returns the model settings not decided by a training session.
func (c *Config) ModelBase() model.Config {
	return model.Config{
		HiddenSize:    c.Model.HiddenSize,
		EmbeddingSize: c.Model.EmbeddingSize,
		DropProb:      c.Model.DropProb,
		LearnRate:     c.Model.LearnRate,
		CacheSize:     c.Model.CacheSize,
	}
}

// LoadCorpus returns the corpus text named by c.Corpus, or the built-in corpus.
func (c *Config) LoadCorpus() (string, error) {
	if c.Corpus == "" {
		return charlm.DefaultCorpus(), nil
	}
	data, err := os.ReadFile(c.Corpus)
	if err != nil {
		return "", errors.Wrapf(err, "read corpus %s", c.Corpus)
	}
	return string(data), nil
}
