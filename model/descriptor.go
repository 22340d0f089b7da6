// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/born/tensor"
	"github.com/pkg/errors"
)

// Parameter key prefixes used in state dictionaries and checkpoint records.
const (
	HiddenPrefix = "hidden_layers"
	OutputPrefix = "output"
)

// Parameter kinds within a layer.
const (
	WeightName = "weight"
	BiasName   = "bias"
)

// ErrInvalidDescriptor is returned when a Descriptor cannot describe a network.
var ErrInvalidDescriptor = errors.New("invalid model descriptor")

// Descriptor is the architecture metadata of a fully connected classifier.
//
// Connectivity follows HiddenLayers order:
// input -> hidden[0] -> hidden[1] -> ... -> output.
type Descriptor struct {
	InputSize    int   `json:"input_size"    yaml:"input_size"`
	OutputSize   int   `json:"output_size"   yaml:"output_size"`
	HiddenLayers []int `json:"hidden_layers" yaml:"hidden_layers"`
}

// Validate checks that every width is positive.
func (d Descriptor) Validate() error {
	if d.InputSize <= 0 {
		return errors.Wrapf(ErrInvalidDescriptor, "input size must be positive, got %d", d.InputSize)
	}
	if d.OutputSize <= 0 {
		return errors.Wrapf(ErrInvalidDescriptor, "output size must be positive, got %d", d.OutputSize)
	}
	for i, w := range d.HiddenLayers {
		if w <= 0 {
			return errors.Wrapf(ErrInvalidDescriptor, "hidden layer %d width must be positive, got %d", i, w)
		}
	}
	return nil
}

// Clone returns a copy that shares no memory with d.
func (d Descriptor) Clone() Descriptor {
	c := d
	if d.HiddenLayers != nil {
		c.HiddenLayers = append([]int{}, d.HiddenLayers...)
	}
	return c
}

// Equal reports whether two descriptors describe the same architecture.
// A nil and an empty hidden list are equal.
func (d Descriptor) Equal(other Descriptor) bool {
	if d.InputSize != other.InputSize || d.OutputSize != other.OutputSize {
		return false
	}
	if len(d.HiddenLayers) != len(other.HiddenLayers) {
		return false
	}
	for i := range d.HiddenLayers {
		if d.HiddenLayers[i] != other.HiddenLayers[i] {
			return false
		}
	}
	return true
}

// String renders the layer widths, e.g. "784-512-256-128-10".
func (d Descriptor) String() string {
	parts := make([]string, 0, len(d.HiddenLayers)+2)
	parts = append(parts, strconv.Itoa(d.InputSize))
	for _, w := range d.HiddenLayers {
		parts = append(parts, strconv.Itoa(w))
	}
	parts = append(parts, strconv.Itoa(d.OutputSize))
	return strings.Join(parts, "-")
}

// layerSpec is one Linear layer implied by a descriptor.
type layerSpec struct {
	prefix string
	in     int
	out    int
}

func (d Descriptor) layers() []layerSpec {
	specs := make([]layerSpec, 0, len(d.HiddenLayers)+1)
	prev := d.InputSize
	for i, w := range d.HiddenLayers {
		specs = append(specs, layerSpec{prefix: HiddenKey(i), in: prev, out: w})
		prev = w
	}
	specs = append(specs, layerSpec{prefix: OutputPrefix, in: prev, out: d.OutputSize})
	return specs
}

// HiddenKey returns the key prefix of hidden layer i, e.g. "hidden_layers.0".
func HiddenKey(i int) string {
	return fmt.Sprintf("%s.%d", HiddenPrefix, i)
}

// ParameterKeys returns every parameter key in connectivity order,
// weight before bias for each layer.
func (d Descriptor) ParameterKeys() []string {
	specs := d.layers()
	keys := make([]string, 0, 2*len(specs))
	for _, s := range specs {
		keys = append(keys, s.prefix+"."+WeightName, s.prefix+"."+BiasName)
	}
	return keys
}

// ParameterShapes returns the expected shape of every parameter key.
// A weight connecting width A to width B has shape (B, A); its bias has shape (B).
func (d Descriptor) ParameterShapes() map[string]tensor.Shape {
	specs := d.layers()
	shapes := make(map[string]tensor.Shape, 2*len(specs))
	for _, s := range specs {
		shapes[s.prefix+"."+WeightName] = tensor.Shape{s.out, s.in}
		shapes[s.prefix+"."+BiasName] = tensor.Shape{s.out}
	}
	return shapes
}

// NumParameters returns the number of scalar parameters the network holds.
func (d Descriptor) NumParameters() int {
	n := 0
	for _, s := range d.layers() {
		n += s.out*s.in + s.out
	}
	return n
}
