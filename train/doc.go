// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package train fits a model.Network on batched classification data.
//
// A training step follows the standard sequence:
//
//	optimizer.ZeroGrad()                // clear gradients, once per step
//	logits := net.Forward(inputs)       // recorded on the autodiff tape
//	loss := backend.CrossEntropy(...)   // scalar mean loss
//	grads := tape.Backward(one, backend)
//	optimizer.Step(grads)
//	tape.Clear()
//
// Data comes from a Dataset, which yields batches until io.EOF ends the
// epoch:
//
//	ds, _ := train.NewSliceDataset("mnist", features, labels, 784, 64, true, 42)
//	trainer, _ := train.NewTrainer(net, backend, train.DefaultConfig())
//	history, err := trainer.Fit(ctx, ds, nil, nil)
package train
