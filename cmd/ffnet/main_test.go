package main

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/feedforward/checkpoint"
	"github.com/born-ml/feedforward/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWidths(t *testing.T) {
	widths, err := parseWidths("512, 256,128")
	require.NoError(t, err)
	assert.Equal(t, []int{512, 256, 128}, widths)

	widths, err = parseWidths("")
	require.NoError(t, err)
	assert.Empty(t, widths)

	_, err = parseWidths("512,xl")
	assert.Error(t, err)
}

func TestTrainInspectPredictExport(t *testing.T) {
	dir := t.TempDir()
	ckpt := filepath.Join(dir, "synthetic.ckpt")

	require.NoError(t, runTrain([]string{
		"-synthetic", "-samples", "60", "-hidden", "16", "-epochs", "2", "-batch", "20",
		"-progress=false", "-every-epoch", "-out", ckpt,
	}))

	rec, err := checkpoint.Load(ckpt)
	require.NoError(t, err)
	assert.True(t, rec.Descriptor.Equal(model.Descriptor{InputSize: 784, OutputSize: 10, HiddenLayers: []int{16}}))
	require.NotNil(t, rec.Training)
	assert.Equal(t, 2, rec.Training.Epoch)
	assert.Equal(t, "synthetic", rec.Metadata["dataset"])

	require.NoError(t, runInspect([]string{ckpt}))
	require.NoError(t, runPredict([]string{ckpt}))
	require.NoError(t, runPredict([]string{"-synthetic", "-samples", "30", ckpt}))

	out := filepath.Join(dir, "model.safetensors")
	require.NoError(t, runExport([]string{ckpt, out}))
	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	headerSize := binary.LittleEndian.Uint64(raw[:8])
	assert.Equal(t, 8+int(headerSize)+4*rec.Parameters.NumValues(), len(raw))
}

func TestCommandsReportMissingCheckpoint(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.ckpt")
	assert.True(t, errors.Is(runInspect([]string{missing}), checkpoint.ErrNotFound))
	assert.True(t, errors.Is(runPredict([]string{missing}), checkpoint.ErrNotFound))
	assert.True(t, errors.Is(runExport([]string{missing, missing + ".st"}), checkpoint.ErrNotFound))
}

func TestOrderedKeys(t *testing.T) {
	rec := &checkpoint.Record{
		Descriptor: model.Descriptor{InputSize: 2, OutputSize: 1, HiddenLayers: []int{3}},
		Parameters: checkpoint.Snapshot{"zzz.extra": {}, "aaa.extra": {}},
	}
	assert.Equal(t, []string{
		"hidden_layers.0.weight", "hidden_layers.0.bias", "output.weight", "output.bias",
		"aaa.extra", "zzz.extra",
	}, orderedKeys(rec))
}
