// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Network is a fully connected classifier built from a Descriptor.
//
// Architecture:
//   - Hidden layers: Linear followed by ReLU, in descriptor order
//   - Output: Linear producing raw logits (softmax is left to the loss)
//
// Network implements nn.Module, so born optimizers and losses work on it
// directly.
type Network[B tensor.Backend] struct {
	desc   Descriptor
	hidden []*nn.Linear[B]
	relu   *nn.ReLU[B]
	output *nn.Linear[B]
}

// Compile-time check that Network is a born module.
var _ nn.Module[tensor.Backend] = (*Network[tensor.Backend])(nil)

// Build creates a fresh network whose layer shapes derive only from desc.
//
// Weights use born's Xavier initialization and biases start at zero; load a
// checkpoint with checkpoint.Apply to replace them.
func Build[B tensor.Backend](desc Descriptor, backend B) (*Network[B], error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	desc = desc.Clone()

	specs := desc.layers()
	hidden := make([]*nn.Linear[B], 0, len(desc.HiddenLayers))
	for _, s := range specs[:len(specs)-1] {
		hidden = append(hidden, nn.NewLinear[B](s.in, s.out, backend))
	}
	last := specs[len(specs)-1]

	return &Network[B]{
		desc:   desc,
		hidden: hidden,
		relu:   nn.NewReLU[B](),
		output: nn.NewLinear[B](last.in, last.out, backend),
	}, nil
}

// Descriptor returns a copy of the architecture the network was built from.
func (n *Network[B]) Descriptor() Descriptor {
	return n.desc.Clone()
}

// Forward computes logits with shape [batch, OutputSize].
//
// Input must be [batch, InputSize] or a single sample [InputSize].
// Panics on any other shape, like born's own layers do.
func (n *Network[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	switch {
	case len(shape) == 1 && shape[0] == n.desc.InputSize:
		input = input.Reshape(1, n.desc.InputSize)
	case len(shape) == 2 && shape[1] == n.desc.InputSize:
	default:
		panic(fmt.Sprintf("Network.Forward: input must have shape [batch, %d] or [%d], got %v",
			n.desc.InputSize, n.desc.InputSize, shape))
	}

	x := input
	for _, layer := range n.hidden {
		x = n.relu.Forward(layer.Forward(x))
	}
	return n.output.Forward(x)
}

// Predict runs Forward and reports framework panics as errors.
func (n *Network[B]) Predict(input *tensor.Tensor[float32, B]) (logits *tensor.Tensor[float32, B], err error) {
	exception := exceptions.Try(func() {
		logits = n.Forward(input)
	})
	if exception == nil {
		return logits, nil
	}
	if e, ok := exception.(error); ok {
		return nil, errors.Wrap(e, "forward pass failed")
	}
	return nil, errors.Errorf("forward pass failed: %v", exception)
}

// Parameters returns all trainable parameters in connectivity order.
func (n *Network[B]) Parameters() []*nn.Parameter[B] {
	params := make([]*nn.Parameter[B], 0, 2*(len(n.hidden)+1))
	for _, layer := range n.hidden {
		params = append(params, layer.Parameters()...)
	}
	return append(params, n.output.Parameters()...)
}

// NumParameters returns the number of scalar parameters.
func (n *Network[B]) NumParameters() int {
	total := 0
	for _, p := range n.Parameters() {
		total += p.Tensor().NumElements()
	}
	return total
}

// StateDict maps parameter keys to the live parameter tensors.
//
// Keys are "hidden_layers.<i>.weight", "hidden_layers.<i>.bias",
// "output.weight" and "output.bias". The returned tensors share memory with
// the network.
func (n *Network[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor, 2*(len(n.hidden)+1))
	for i, layer := range n.hidden {
		for name, raw := range layer.StateDict() {
			stateDict[HiddenKey(i)+"."+name] = raw
		}
	}
	for name, raw := range n.output.StateDict() {
		stateDict[OutputPrefix+"."+name] = raw
	}
	return stateDict
}

// LoadStateDict loads parameters layer by layer using born's Linear loader.
//
// It stops at the first failing layer and may leave earlier layers updated;
// use checkpoint.Apply for all-or-nothing loading with full diagnostics.
func (n *Network[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	layers := make(map[string]*nn.Linear[B], len(n.hidden)+1)
	for i, layer := range n.hidden {
		layers[HiddenKey(i)] = layer
	}
	layers[OutputPrefix] = n.output

	grouped := make(map[string]map[string]*tensor.RawTensor, len(layers))
	for key, raw := range stateDict {
		dot := strings.LastIndexByte(key, '.')
		if dot < 0 {
			return errors.Errorf("unexpected parameter key %q", key)
		}
		prefix, name := key[:dot], key[dot+1:]
		if _, ok := layers[prefix]; !ok {
			return errors.Errorf("unexpected parameter key %q", key)
		}
		if grouped[prefix] == nil {
			grouped[prefix] = make(map[string]*tensor.RawTensor, 2)
		}
		grouped[prefix][name] = raw
	}

	prefixes := make([]string, 0, len(layers))
	for prefix := range layers {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	for _, prefix := range prefixes {
		if err := layers[prefix].LoadStateDict(grouped[prefix]); err != nil {
			return errors.Wrapf(err, "failed to load layer %s", prefix)
		}
	}
	return nil
}
