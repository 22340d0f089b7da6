// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package checkpoint persists feed-forward classifiers.
//
// A checkpoint record couples the architecture (model.Descriptor) with a
// parameter snapshot, so a model can be rebuilt from the record alone:
//
//	// Save after training
//	rec, err := checkpoint.SaveModel("mnist.ckpt", desc, net,
//	    checkpoint.WithTraining(checkpoint.TrainingInfo{Epoch: 2, Loss: 0.08}))
//
//	// Later, possibly in another process
//	net, rec, err := checkpoint.Reconstruct("mnist.ckpt", cpu.New())
//	if errors.Is(err, checkpoint.ErrNotFound) {
//	    // ...
//	}
//
// Operations:
//   - Save / SaveModel: validate, encode, and publish a record atomically
//   - Load: decode a record, never returning a partial one
//   - Rebuild: build a fresh network from a descriptor
//   - Apply: copy a snapshot into a live module, all or nothing
//   - Reconstruct: Load, Rebuild and Apply in one call
//
// Apply never mutates a module unless the whole snapshot matches its
// slots; the returned *MismatchError lists every offending key.
//
// The package keeps no state between calls. Concurrent writers to the same
// path are not coordinated.
package checkpoint
