package train

import (
	"io"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequence returns n samples of width 2 where sample i is (i, -i) with label i.
func sequence(n int) ([]float32, []int32) {
	features := make([]float32, 0, 2*n)
	labels := make([]int32, 0, n)
	for i := range n {
		features = append(features, float32(i), float32(-i))
		labels = append(labels, int32(i))
	}
	return features, labels
}

func drain(t *testing.T, ds Dataset) []Batch {
	t.Helper()
	var batches []Batch
	for {
		b, err := ds.Yield()
		if err == io.EOF {
			return batches
		}
		require.NoError(t, err)
		batches = append(batches, b)
	}
}

func labelsOf(batches []Batch) []int32 {
	var labels []int32
	for _, b := range batches {
		labels = append(labels, b.Labels...)
	}
	return labels
}

func TestSliceDatasetBatching(t *testing.T) {
	features, labels := sequence(7)
	ds, err := NewSliceDataset("seq", features, labels, 2, 3, false, 0)
	require.NoError(t, err)
	assert.Equal(t, "seq", ds.Name())
	assert.Equal(t, 3, ds.NumBatches())
	assert.Equal(t, 7, ds.Len())

	batches := drain(t, ds)
	require.Len(t, batches, 3)
	assert.Equal(t, 3, batches[0].Size)
	assert.Equal(t, 1, batches[2].Size, "last batch holds the remainder")
	assert.Equal(t, []float32{0, 0, 1, -1, 2, -2}, batches[0].Inputs)
	assert.Equal(t, []int32{6}, batches[2].Labels)
	assert.Equal(t, []float32{6, -6}, batches[2].Inputs)

	_, err = ds.Yield()
	assert.Equal(t, io.EOF, err, "EOF repeats until Reset")

	ds.Reset()
	assert.Equal(t, labels, labelsOf(drain(t, ds)))
}

func TestSliceDatasetShuffle(t *testing.T) {
	features, labels := sequence(50)
	ds, err := NewSliceDataset("seq", features, labels, 2, 8, true, 7)
	require.NoError(t, err)

	first := labelsOf(drain(t, ds))
	ds.Reset()
	second := labelsOf(drain(t, ds))
	assert.NotEqual(t, first, second, "each epoch gets a new order")

	sorted := append([]int32{}, second...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	assert.Equal(t, labels, sorted, "every sample appears exactly once")

	// Features travel with their labels.
	ds.Reset()
	for _, b := range drain(t, ds) {
		for i, label := range b.Labels {
			assert.Equal(t, float32(label), b.Inputs[2*i])
		}
	}

	same, err := NewSliceDataset("seq", features, labels, 2, 8, true, 7)
	require.NoError(t, err)
	assert.Equal(t, first, labelsOf(drain(t, same)), "seed and epoch determine the order")
}

func TestSliceDatasetDoesNotModifyInput(t *testing.T) {
	features, labels := sequence(10)
	wantFeatures := append([]float32{}, features...)
	wantLabels := append([]int32{}, labels...)

	ds, err := NewSliceDataset("seq", features, labels, 2, 4, true, 1)
	require.NoError(t, err)
	for _, b := range drain(t, ds) {
		b.Inputs[0] = 999
	}
	assert.Equal(t, wantFeatures, features)
	assert.Equal(t, wantLabels, labels)
}

func TestNewSliceDatasetErrors(t *testing.T) {
	features, labels := sequence(4)
	_, err := NewSliceDataset("bad", features, labels, 3, 2, false, 0)
	assert.Error(t, err)
	_, err = NewSliceDataset("bad", features, labels, 0, 2, false, 0)
	assert.Error(t, err)
	_, err = NewSliceDataset("bad", features, labels, 2, 0, false, 0)
	assert.Error(t, err)
}

func TestSliceDatasetSplit(t *testing.T) {
	features, labels := sequence(10)
	ds, err := NewSliceDataset("seq", features, labels, 2, 4, true, 3)
	require.NoError(t, err)

	trainDS, valDS, err := ds.Split(0.2)
	require.NoError(t, err)
	assert.Equal(t, 8, trainDS.Len())
	assert.Equal(t, 2, valDS.Len())
	assert.Equal(t, "seq-val", valDS.Name())
	assert.Equal(t, []int32{8, 9}, labelsOf(drain(t, valDS)))

	_, _, err = ds.Split(0)
	assert.Error(t, err)
	_, _, err = ds.Split(0.01)
	assert.Error(t, err, "fraction too small to hold out a sample")
}
