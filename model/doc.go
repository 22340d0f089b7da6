// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package model describes and builds fully connected classifiers.
//
// A Descriptor holds everything needed to recreate the shape of a network:
// the input width, the output width and the ordered hidden widths. Build turns
// a Descriptor into a live Network whose layers are born nn.Linear modules,
// ready to be trained or to receive parameters from a checkpoint.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	desc := model.Descriptor{InputSize: 784, OutputSize: 10, HiddenLayers: []int{512, 256, 128}}
//	net, err := model.Build(desc, backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logits := net.Forward(images) // [batch, 10]
package model
