// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train

import (
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"
)

// NewOptimizer creates the optimizer cfg names over params.
func NewOptimizer[B tensor.Backend](params []*nn.Parameter[B], cfg Config, backend B) (optim.Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Optimizer {
	case OptimizerSGD:
		return optim.NewSGD(params, optim.SGDConfig{
			LR:       float32(cfg.LearningRate),
			Momentum: float32(cfg.Momentum),
		}, backend), nil
	default:
		return optim.NewAdam(params, optim.AdamConfig{
			LR:    float32(cfg.LearningRate),
			Betas: [2]float32{0.9, 0.999},
			Eps:   1e-8,
		}, backend), nil
	}
}
