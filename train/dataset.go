// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train

import (
	"io"
	"math/rand/v2"

	"github.com/pkg/errors"
)

// Batch is one mini-batch of flattened samples.
type Batch struct {
	Inputs []float32 // [Size * featureSize], row-major
	Labels []int32   // [Size], class indices
	Size   int
}

// Dataset yields batches for one epoch at a time.
type Dataset interface {
	// Name identifies the dataset in logs.
	Name() string

	// Reset restarts the dataset from the beginning. Can be called after
	// io.EOF is reached, to start another epoch.
	Reset()

	// Yield returns the next batch, or io.EOF at the end of the epoch.
	// The returned slices are owned by the caller.
	Yield() (Batch, error)
}

// Sized is implemented by datasets that know how many batches an epoch has.
type Sized interface {
	NumBatches() int
}

// SliceDataset serves batches from in-memory samples.
//
// When shuffling, the order of every epoch is a deterministic function of
// the seed and the epoch number.
type SliceDataset struct {
	name        string
	features    []float32
	labels      []int32
	featureSize int
	batchSize   int
	shuffle     bool
	seed        int64

	epoch int
	order []int
	pos   int
}

// Compile-time check.
var _ Dataset = (*SliceDataset)(nil)

// NewSliceDataset creates a dataset over len(labels) samples stored
// row-major in features.
//
// The slices are retained but never modified.
func NewSliceDataset(name string, features []float32, labels []int32, featureSize, batchSize int,
	shuffle bool, seed int64) (*SliceDataset, error) {
	if featureSize <= 0 {
		return nil, errors.Errorf("dataset %s: feature size must be positive, got %d", name, featureSize)
	}
	if batchSize <= 0 {
		return nil, errors.Errorf("dataset %s: batch size must be positive, got %d", name, batchSize)
	}
	if len(features) != len(labels)*featureSize {
		return nil, errors.Errorf("dataset %s: %d labels need %d feature values, got %d",
			name, len(labels), len(labels)*featureSize, len(features))
	}
	ds := &SliceDataset{
		name:        name,
		features:    features,
		labels:      labels,
		featureSize: featureSize,
		batchSize:   batchSize,
		shuffle:     shuffle,
		seed:        seed,
		order:       make([]int, len(labels)),
	}
	ds.arrange()
	return ds, nil
}

// Name implements Dataset.
func (ds *SliceDataset) Name() string { return ds.name }

// Len returns the number of samples.
func (ds *SliceDataset) Len() int { return len(ds.labels) }

// FeatureSize returns the number of values per sample.
func (ds *SliceDataset) FeatureSize() int { return ds.featureSize }

// NumBatches implements Sized.
func (ds *SliceDataset) NumBatches() int {
	return (len(ds.labels) + ds.batchSize - 1) / ds.batchSize
}

// Reset implements Dataset. With shuffling enabled every call starts a
// new epoch with a new order.
func (ds *SliceDataset) Reset() {
	ds.epoch++
	ds.arrange()
}

func (ds *SliceDataset) arrange() {
	for i := range ds.order {
		ds.order[i] = i
	}
	if ds.shuffle {
		//nolint:gosec // G404: shuffling training data does not need a cryptographic source
		rng := rand.New(rand.NewPCG(uint64(ds.seed), uint64(ds.epoch)))
		rng.Shuffle(len(ds.order), func(i, j int) {
			ds.order[i], ds.order[j] = ds.order[j], ds.order[i]
		})
	}
	ds.pos = 0
}

// Yield implements Dataset. The last batch of an epoch may be smaller.
func (ds *SliceDataset) Yield() (Batch, error) {
	if ds.pos >= len(ds.order) {
		return Batch{}, io.EOF
	}
	end := min(ds.pos+ds.batchSize, len(ds.order))
	size := end - ds.pos

	batch := Batch{
		Inputs: make([]float32, 0, size*ds.featureSize),
		Labels: make([]int32, 0, size),
		Size:   size,
	}
	for _, idx := range ds.order[ds.pos:end] {
		batch.Inputs = append(batch.Inputs, ds.features[idx*ds.featureSize:(idx+1)*ds.featureSize]...)
		batch.Labels = append(batch.Labels, ds.labels[idx])
	}
	ds.pos = end
	return batch, nil
}

// Split divides the samples into a training part and a held-out part of
// about valFraction of the samples, taken from the end. The held-out part is
// never shuffled.
func (ds *SliceDataset) Split(valFraction float64) (trainDS, valDS *SliceDataset, err error) {
	if valFraction <= 0 || valFraction >= 1 {
		return nil, nil, errors.Errorf("dataset %s: validation fraction must be in (0, 1), got %g", ds.name, valFraction)
	}
	n := len(ds.labels)
	numVal := int(float64(n) * valFraction)
	if numVal == 0 || numVal == n {
		return nil, nil, errors.Errorf("dataset %s: cannot split %d samples with fraction %g", ds.name, n, valFraction)
	}
	cut := n - numVal
	trainDS, err = NewSliceDataset(ds.name+"-train", ds.features[:cut*ds.featureSize], ds.labels[:cut],
		ds.featureSize, ds.batchSize, ds.shuffle, ds.seed)
	if err != nil {
		return nil, nil, err
	}
	valDS, err = NewSliceDataset(ds.name+"-val", ds.features[cut*ds.featureSize:], ds.labels[cut:],
		ds.featureSize, ds.batchSize, false, ds.seed)
	if err != nil {
		return nil, nil, err
	}
	return trainDS, valDS, nil
}
