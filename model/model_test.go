package model

import (
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Backend = *autodiff.Backend[*cpu.Backend]

func newBackend() Backend {
	return autodiff.New(cpu.New())
}

func TestDescriptorValidate(t *testing.T) {
	valid := []Descriptor{
		{InputSize: 784, OutputSize: 10, HiddenLayers: []int{512, 256, 128}},
		{InputSize: 4, OutputSize: 2},
		{InputSize: 1, OutputSize: 1, HiddenLayers: []int{}},
	}
	for _, d := range valid {
		assert.NoError(t, d.Validate(), d.String())
	}

	invalid := []Descriptor{
		{InputSize: 0, OutputSize: 10},
		{InputSize: 784, OutputSize: -1},
		{InputSize: 784, OutputSize: 10, HiddenLayers: []int{512, 0, 128}},
	}
	for _, d := range invalid {
		err := d.Validate()
		require.Error(t, err, d.String())
		assert.True(t, errors.Is(err, ErrInvalidDescriptor))
	}
}

func TestDescriptorParameterShapes(t *testing.T) {
	d := Descriptor{InputSize: 784, OutputSize: 10, HiddenLayers: []int{512, 256, 128}}

	assert.Equal(t, []string{
		"hidden_layers.0.weight", "hidden_layers.0.bias",
		"hidden_layers.1.weight", "hidden_layers.1.bias",
		"hidden_layers.2.weight", "hidden_layers.2.bias",
		"output.weight", "output.bias",
	}, d.ParameterKeys())

	shapes := d.ParameterShapes()
	require.Len(t, shapes, 8)
	assert.Equal(t, tensor.Shape{512, 784}, shapes["hidden_layers.0.weight"])
	assert.Equal(t, tensor.Shape{512}, shapes["hidden_layers.0.bias"])
	assert.Equal(t, tensor.Shape{256, 512}, shapes["hidden_layers.1.weight"])
	assert.Equal(t, tensor.Shape{128, 256}, shapes["hidden_layers.2.weight"])
	assert.Equal(t, tensor.Shape{10, 128}, shapes["output.weight"])
	assert.Equal(t, tensor.Shape{10}, shapes["output.bias"])

	assert.Equal(t, 784*512+512+512*256+256+256*128+128+128*10+10, d.NumParameters())
	assert.Equal(t, "784-512-256-128-10", d.String())
}

func TestDescriptorWithoutHiddenLayers(t *testing.T) {
	d := Descriptor{InputSize: 3, OutputSize: 2}
	assert.Equal(t, []string{"output.weight", "output.bias"}, d.ParameterKeys())
	assert.Equal(t, tensor.Shape{2, 3}, d.ParameterShapes()["output.weight"])
}

func TestDescriptorCloneAndEqual(t *testing.T) {
	d := Descriptor{InputSize: 8, OutputSize: 2, HiddenLayers: []int{4}}
	c := d.Clone()
	c.HiddenLayers[0] = 5
	assert.Equal(t, 4, d.HiddenLayers[0])
	assert.False(t, d.Equal(c))

	assert.True(t, Descriptor{InputSize: 1, OutputSize: 1}.Equal(Descriptor{InputSize: 1, OutputSize: 1, HiddenLayers: []int{}}))
}

func TestBuildShapes(t *testing.T) {
	backend := newBackend()
	d := Descriptor{InputSize: 6, OutputSize: 3, HiddenLayers: []int{5, 4}}

	net, err := Build(d, backend)
	require.NoError(t, err)

	stateDict := net.StateDict()
	expected := d.ParameterShapes()
	require.Len(t, stateDict, len(expected))
	for key, shape := range expected {
		raw, ok := stateDict[key]
		require.True(t, ok, key)
		assert.True(t, raw.Shape().Equal(shape), "%s: expected %v, got %v", key, shape, raw.Shape())
	}

	assert.Len(t, net.Parameters(), 6)
	assert.Equal(t, d.NumParameters(), net.NumParameters())
	assert.True(t, net.Descriptor().Equal(d))
}

func TestBuildRejectsInvalidDescriptor(t *testing.T) {
	_, err := Build(Descriptor{InputSize: 10, OutputSize: 0}, newBackend())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidDescriptor))
}

func TestBuildDoesNotAliasDescriptor(t *testing.T) {
	hidden := []int{4}
	net, err := Build(Descriptor{InputSize: 2, OutputSize: 2, HiddenLayers: hidden}, newBackend())
	require.NoError(t, err)
	hidden[0] = 99
	assert.Equal(t, []int{4}, net.Descriptor().HiddenLayers)
}

func TestForwardZeroInput(t *testing.T) {
	backend := newBackend()
	d := Descriptor{InputSize: 784, OutputSize: 10, HiddenLayers: []int{512, 256, 128}}
	net, err := Build(d, backend)
	require.NoError(t, err)

	x := tensor.Zeros[float32](tensor.Shape{784}, backend)
	logits, err := net.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 10}, logits.Shape())

	// Biases start at zero, so a zero input yields zero logits.
	for _, v := range logits.Data() {
		assert.Equal(t, float32(0), v)
	}
}

func TestForwardBatch(t *testing.T) {
	backend := newBackend()
	net, err := Build(Descriptor{InputSize: 4, OutputSize: 3, HiddenLayers: []int{8}}, backend)
	require.NoError(t, err)

	x := tensor.Ones[float32](tensor.Shape{5, 4}, backend)
	logits := net.Forward(x)
	assert.Equal(t, tensor.Shape{5, 3}, logits.Shape())
}

func TestPredictWrongWidth(t *testing.T) {
	backend := newBackend()
	net, err := Build(Descriptor{InputSize: 4, OutputSize: 3}, backend)
	require.NoError(t, err)

	_, err = net.Predict(tensor.Zeros[float32](tensor.Shape{2, 7}, backend))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forward pass failed")
}

func TestLoadStateDict(t *testing.T) {
	backend := newBackend()
	d := Descriptor{InputSize: 3, OutputSize: 2, HiddenLayers: []int{4}}
	src, err := Build(d, backend)
	require.NoError(t, err)
	dst, err := Build(d, backend)
	require.NoError(t, err)

	require.NoError(t, dst.LoadStateDict(src.StateDict()))
	got := dst.StateDict()
	for key, raw := range src.StateDict() {
		assert.Equal(t, raw.AsFloat32(), got[key].AsFloat32(), key)
	}

	err = dst.LoadStateDict(map[string]*tensor.RawTensor{"bogus": src.StateDict()["output.bias"]})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}
