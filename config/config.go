// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package config holds the settings of a training run.
//
// Settings come from Default, optionally overlaid by a YAML file:
//
//	model:
//	  input_size: 784
//	  output_size: 10
//	  hidden_layers: [512, 256, 128]
//	train:
//	  epochs: 5
//	  optimizer: sgd
//	  learning_rate: 0.01
//	data:
//	  synthetic: true
//	checkpoint:
//	  path: mnist.ckpt
//
// Fields not present in the file keep their default values. Unknown fields
// are rejected.
package config

import (
	"io"
	"os"

	"github.com/born-ml/feedforward/model"
	"github.com/born-ml/feedforward/train"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is a complete training run configuration.
type Config struct {
	Model      model.Descriptor `yaml:"model"`
	Train      train.Config     `yaml:"train"`
	Data       DataConfig       `yaml:"data"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
}

// DataConfig selects the training data.
type DataConfig struct {
	Dir             string  `yaml:"dir"`              // Directory with MNIST IDX files
	Synthetic       bool    `yaml:"synthetic"`        // Use generated data instead of Dir
	MaxSamples      int     `yaml:"max_samples"`      // 0 loads everything
	ValidationSplit float64 `yaml:"validation_split"` // Fraction held out for validation, 0 disables
}

// CheckpointConfig controls where and when checkpoints are written.
type CheckpointConfig struct {
	Path       string `yaml:"path"`
	EveryEpoch bool   `yaml:"every_epoch"` // Save after each epoch, not only at the end
}

// Default returns the MNIST classifier setup: 784 -> [512, 256, 128] -> 10
// trained with Adam.
func Default() Config {
	return Config{
		Model: model.Descriptor{
			InputSize:    784,
			OutputSize:   10,
			HiddenLayers: []int{512, 256, 128},
		},
		Train: train.DefaultConfig(),
		Data: DataConfig{
			Dir:             "./data",
			ValidationSplit: 0.1,
		},
		Checkpoint: CheckpointConfig{
			Path: "mnist.ckpt",
		},
	}
}

// Load reads the YAML file at path over Default and validates the result.
func Load(path string) (Config, error) {
	//nolint:gosec // G304: configuration path comes from the command line
	file, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to open config")
	}
	defer func() { _ = file.Close() }()

	cfg, err := Parse(file)
	if err != nil {
		return Config{}, errors.WithMessagef(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML from r over Default and validates the result.
// Empty input yields the defaults.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrap(err, "failed to parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return err
	}
	if err := c.Train.Validate(); err != nil {
		return err
	}
	if c.Data.ValidationSplit < 0 || c.Data.ValidationSplit >= 1 {
		return errors.Errorf("validation split must be in [0, 1), got %g", c.Data.ValidationSplit)
	}
	if c.Data.MaxSamples < 0 {
		return errors.Errorf("max samples must not be negative, got %d", c.Data.MaxSamples)
	}
	if !c.Data.Synthetic && c.Data.Dir == "" {
		return errors.New("data dir is required unless synthetic data is used")
	}
	if c.Checkpoint.Path == "" {
		return errors.New("checkpoint path is required")
	}
	return nil
}

// Marshal renders c as YAML.
func (c Config) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(c)
	return out, errors.Wrap(err, "failed to marshal config")
}
