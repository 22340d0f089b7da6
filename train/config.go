// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train

import (
	"github.com/pkg/errors"
)

// Optimizer names accepted by Config.
const (
	OptimizerSGD  = "sgd"
	OptimizerAdam = "adam"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid training configuration")

// Config holds training hyperparameters.
type Config struct {
	Epochs       int     `yaml:"epochs"`
	BatchSize    int     `yaml:"batch_size"`
	Optimizer    string  `yaml:"optimizer"`     // "sgd" or "adam"
	LearningRate float64 `yaml:"learning_rate"`
	Momentum     float64 `yaml:"momentum"`      // SGD only
	Seed         int64   `yaml:"seed"`          // Shuffle seed
	Progress     bool    `yaml:"progress"`      // Show a progress bar per epoch
}

// DefaultConfig returns Adam with learning rate 0.001, 2 epochs of batch 64.
func DefaultConfig() Config {
	return Config{
		Epochs:       2,
		BatchSize:    64,
		Optimizer:    OptimizerAdam,
		LearningRate: 0.001,
		Momentum:     0.9,
		Seed:         42,
	}
}

// Validate reports the first invalid field, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	switch {
	case c.Epochs <= 0:
		return errors.Wrapf(ErrInvalidConfig, "epochs must be positive, got %d", c.Epochs)
	case c.BatchSize <= 0:
		return errors.Wrapf(ErrInvalidConfig, "batch size must be positive, got %d", c.BatchSize)
	case c.LearningRate <= 0:
		return errors.Wrapf(ErrInvalidConfig, "learning rate must be positive, got %g", c.LearningRate)
	case c.Momentum < 0 || c.Momentum >= 1:
		return errors.Wrapf(ErrInvalidConfig, "momentum must be in [0, 1), got %g", c.Momentum)
	case c.Optimizer != OptimizerSGD && c.Optimizer != OptimizerAdam:
		return errors.Wrapf(ErrInvalidConfig, "unknown optimizer %q (want %q or %q)",
			c.Optimizer, OptimizerSGD, OptimizerAdam)
	}
	return nil
}
