package train

import (
	"bytes"
	"context"
	"math/rand/v2"
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/feedforward/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Backend = *autodiff.Backend[*cpu.Backend]

// blobs returns n two-feature samples: class 0 around (-1, -1), class 1
// around (1, 1).
func blobs(n int, seed uint64) ([]float32, []int32) {
	rng := rand.New(rand.NewPCG(seed, 0))
	features := make([]float32, 0, 2*n)
	labels := make([]int32, 0, n)
	for i := range n {
		class := int32(i % 2)
		center := float32(2*class - 1)
		features = append(features,
			center+0.3*float32(rng.NormFloat64()),
			center+0.3*float32(rng.NormFloat64()))
		labels = append(labels, class)
	}
	return features, labels
}

func newTrainer(t *testing.T, cfg Config) (*Trainer[*cpu.Backend], *model.Network[Backend]) {
	t.Helper()
	backend := autodiff.New(cpu.New())
	net, err := model.Build(model.Descriptor{InputSize: 2, OutputSize: 2, HiddenLayers: []int{8}}, backend)
	require.NoError(t, err)
	trainer, err := NewTrainer(net, backend, cfg)
	require.NoError(t, err)
	return trainer, net
}

func blobsDataset(t *testing.T, name string, n int, seed uint64, batchSize int) *SliceDataset {
	t.Helper()
	features, labels := blobs(n, seed)
	ds, err := NewSliceDataset(name, features, labels, 2, batchSize, true, int64(seed))
	require.NoError(t, err)
	return ds
}

func paramsCopy(net *model.Network[Backend]) map[string][]float32 {
	out := make(map[string][]float32)
	for key, raw := range net.StateDict() {
		out[key] = append([]float32(nil), raw.AsFloat32()...)
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"epochs", func(c *Config) { c.Epochs = 0 }},
		{"batch size", func(c *Config) { c.BatchSize = -1 }},
		{"learning rate", func(c *Config) { c.LearningRate = 0 }},
		{"momentum", func(c *Config) { c.Momentum = 1 }},
		{"optimizer", func(c *Config) { c.Optimizer = "rmsprop" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestNewOptimizer(t *testing.T) {
	backend := autodiff.New(cpu.New())
	net, err := model.Build(model.Descriptor{InputSize: 2, OutputSize: 2}, backend)
	require.NoError(t, err)

	for _, name := range []string{OptimizerSGD, OptimizerAdam} {
		cfg := DefaultConfig()
		cfg.Optimizer = name
		cfg.LearningRate = 0.05
		opt, err := NewOptimizer(net.Parameters(), cfg, backend)
		require.NoError(t, err, name)
		assert.InDelta(t, 0.05, opt.GetLR(), 1e-7)
	}

	cfg := DefaultConfig()
	cfg.Optimizer = "lbfgs"
	_, err = NewOptimizer(net.Parameters(), cfg, backend)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestStepUpdatesParameters(t *testing.T) {
	for _, name := range []string{OptimizerSGD, OptimizerAdam} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Optimizer = name
			cfg.LearningRate = 0.1
			trainer, net := newTrainer(t, cfg)
			before := paramsCopy(net)

			features, labels := blobs(8, 1)
			loss, err := trainer.Step(Batch{Inputs: features, Labels: labels, Size: 8})
			require.NoError(t, err)
			assert.Greater(t, loss, float32(0))
			assert.Equal(t, int64(1), trainer.GlobalStep())
			assert.NotEqual(t, before["output.weight"], paramsCopy(net)["output.weight"])
		})
	}
}

func TestStepRejectsBadBatch(t *testing.T) {
	trainer, net := newTrainer(t, DefaultConfig())
	before := paramsCopy(net)

	tests := []struct {
		name  string
		batch Batch
	}{
		{"empty", Batch{}},
		{"short inputs", Batch{Inputs: []float32{1, 2, 3}, Labels: []int32{0, 1}, Size: 2}},
		{"label count", Batch{Inputs: []float32{1, 2, 3, 4}, Labels: []int32{0}, Size: 2}},
		{"label range", Batch{Inputs: []float32{1, 2}, Labels: []int32{2}, Size: 1}},
		{"negative label", Batch{Inputs: []float32{1, 2}, Labels: []int32{-1}, Size: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := trainer.Step(tt.batch)
			assert.Error(t, err)
		})
	}
	assert.Equal(t, before, paramsCopy(net))
	assert.Zero(t, trainer.GlobalStep())
}

func TestFitLearnsSeparableData(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Epochs = 30
	cfg.BatchSize = 10
	cfg.LearningRate = 0.01
	cfg.Progress = true
	trainer, _ := newTrainer(t, cfg)
	var progress bytes.Buffer
	trainer.SetProgressWriter(&progress)

	trainDS := blobsDataset(t, "blobs", 100, 1, cfg.BatchSize)
	valDS := blobsDataset(t, "blobs-val", 40, 2, cfg.BatchSize)

	var seen []int
	history, err := trainer.Fit(context.Background(), trainDS, valDS, func(s EpochStats) error {
		seen = append(seen, s.Epoch)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, history, cfg.Epochs)
	assert.Len(t, seen, cfg.Epochs)
	assert.Equal(t, 1, seen[0])
	assert.Equal(t, cfg.Epochs, trainer.Epoch())
	assert.Equal(t, int64(cfg.Epochs*10), trainer.GlobalStep())

	first, last := history[0], history[len(history)-1]
	assert.Equal(t, 100, first.Samples)
	assert.Equal(t, 10, first.Steps)
	assert.Less(t, last.Loss, first.Loss)
	assert.True(t, last.HasValidation)
	assert.Greater(t, last.ValAccuracy, float32(0.8))
	assert.NotEmpty(t, progress.String())
}

func TestFitStopsOnCallbackError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Epochs = 5
	trainer, _ := newTrainer(t, cfg)
	stop := errors.New("stop")

	history, err := trainer.Fit(context.Background(), blobsDataset(t, "blobs", 20, 1, 10), nil,
		func(s EpochStats) error {
			if s.Epoch == 2 {
				return stop
			}
			return nil
		})
	assert.Equal(t, stop, err)
	assert.Len(t, history, 2)
	assert.False(t, history[0].HasValidation)
}

func TestRunEpochCanceled(t *testing.T) {
	trainer, net := newTrainer(t, DefaultConfig())
	before := paramsCopy(net)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := trainer.RunEpoch(ctx, blobsDataset(t, "blobs", 20, 1, 10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, stats.Steps)
	assert.Zero(t, trainer.Epoch())
	assert.Equal(t, before, paramsCopy(net))
}

func TestRunEpochEmptyDataset(t *testing.T) {
	trainer, _ := newTrainer(t, DefaultConfig())
	ds, err := NewSliceDataset("empty", nil, nil, 2, 4, false, 0)
	require.NoError(t, err)
	_, err = trainer.RunEpoch(context.Background(), ds)
	assert.True(t, errors.Is(err, ErrEmptyDataset))

	_, _, err = trainer.Evaluate(ds)
	assert.True(t, errors.Is(err, ErrEmptyDataset))
}

func TestEvaluateDoesNotTrain(t *testing.T) {
	trainer, net := newTrainer(t, DefaultConfig())
	before := paramsCopy(net)

	loss, acc, err := trainer.Evaluate(blobsDataset(t, "blobs", 30, 4, 7))
	require.NoError(t, err)
	assert.Greater(t, loss, float32(0))
	assert.GreaterOrEqual(t, acc, float32(0))
	assert.LessOrEqual(t, acc, float32(1))
	assert.Equal(t, before, paramsCopy(net))
	assert.Zero(t, trainer.GlobalStep())
}

func TestArgmax(t *testing.T) {
	assert.Equal(t, 0, Argmax([]float32{1}))
	assert.Equal(t, 2, Argmax([]float32{0.1, -3, 7, 2}))
	assert.Equal(t, 1, Argmax([]float32{0, 5, 5}), "first maximum wins")
}

func TestPanicErrorKeepsIdentity(t *testing.T) {
	cause := errors.New("shape mismatch in matmul")
	err := panicError(cause, "training step 3 failed")
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "training step 3 failed: shape mismatch in matmul", err.Error())

	err = panicError("index out of range", "evaluation on blobs failed")
	assert.Equal(t, "evaluation on blobs failed: index out of range", err.Error())
}
