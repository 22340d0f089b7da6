// Package mnist loads MNIST digits from IDX files and generates synthetic
// digit-like data.
package mnist

import (
	"compress/gzip"
	"io"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/born-ml/feedforward/train"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Dimensions of an MNIST sample.
const (
	Rows        = 28
	Cols        = 28
	FeatureSize = Rows * Cols
	NumClasses  = 10
)

// Split selects the MNIST file set.
type Split string

// Available splits.
const (
	TrainSplit Split = "train" // 60,000 samples
	TestSplit  Split = "t10k"  // 10,000 samples
)

// Data holds flattened samples with pixels normalized to [0, 1].
type Data struct {
	Features    []float32 // [Len() * FeatureSize], row-major
	Labels      []int32
	FeatureSize int
}

// Len returns the number of samples.
func (d *Data) Len() int { return len(d.Labels) }

// Dataset serves d in batches; see train.NewSliceDataset.
func (d *Data) Dataset(name string, batchSize int, shuffle bool, seed int64) (*train.SliceDataset, error) {
	return train.NewSliceDataset(name, d.Features, d.Labels, d.FeatureSize, batchSize, shuffle, seed)
}

// Load reads the split from dir.
//
// Expected files in dir, optionally gzip-compressed with a ".gz" suffix:
//   - train-images-idx3-ubyte, train-labels-idx1-ubyte
//   - t10k-images-idx3-ubyte, t10k-labels-idx1-ubyte
//
// When maxSamples > 0 at most that many samples are loaded. Missing files
// yield an error matching fs.ErrNotExist.
func Load(dir string, split Split, maxSamples int) (*Data, error) {
	if split != TrainSplit && split != TestSplit {
		return nil, errors.Errorf("unknown MNIST split %q", split)
	}

	var images *Images
	err := withFile(filepath.Join(dir, string(split)+"-images-idx3-ubyte"), func(r io.Reader) (err error) {
		images, err = ReadImages(r, maxSamples)
		return err
	})
	if err != nil {
		return nil, err
	}

	var labels []byte
	err = withFile(filepath.Join(dir, string(split)+"-labels-idx1-ubyte"), func(r io.Reader) (err error) {
		labels, err = ReadLabels(r, maxSamples)
		return err
	})
	if err != nil {
		return nil, err
	}

	if images.Count != len(labels) {
		return nil, errors.Errorf("image count (%d) != label count (%d)", images.Count, len(labels))
	}

	featureSize := images.Rows * images.Cols
	data := &Data{
		Features:    make([]float32, len(images.Pixels)),
		Labels:      make([]int32, len(labels)),
		FeatureSize: featureSize,
	}
	for i, p := range images.Pixels {
		data.Features[i] = float32(p) / 255.0
	}
	for i, l := range labels {
		if l >= NumClasses {
			return nil, errors.Errorf("label %d of sample %d is not a digit", l, i)
		}
		data.Labels[i] = int32(l)
	}
	klog.V(1).Infof("loaded %d MNIST %s samples from %s", data.Len(), split, dir)
	return data, nil
}

// withFile opens path, or path+".gz" when only the compressed file exists,
// and passes the decompressed content to read.
func withFile(path string, read func(io.Reader) error) error {
	//nolint:gosec // G304: data directory comes from user input
	file, err := os.Open(path)
	compressed := false
	if errors.Is(err, fs.ErrNotExist) {
		//nolint:gosec // G304: data directory comes from user input
		file, err = os.Open(path + ".gz")
		compressed = true
	}
	if err != nil {
		return errors.Wrapf(err, "failed to open MNIST file %s", path)
	}
	defer func() { _ = file.Close() }()

	var r io.Reader = file
	if compressed {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return errors.Wrapf(err, "failed to decompress %s.gz", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	return errors.WithMessagef(read(r), "file %s", path)
}

// Synthetic generates n digit-like samples with labels cycling through 0-9.
//
// Each class brightens its own band of rows, on top of uniform noise, so the
// classes are separable by a small network. The result depends only on n and
// seed.
func Synthetic(n int, seed int64) *Data {
	//nolint:gosec // G404: synthetic data does not need a cryptographic source
	rng := rand.New(rand.NewPCG(uint64(seed), 0x6d6e697374))
	data := &Data{
		Features:    make([]float32, n*FeatureSize),
		Labels:      make([]int32, n),
		FeatureSize: FeatureSize,
	}
	for i := range n {
		digit := i % NumClasses
		data.Labels[i] = int32(digit)
		image := data.Features[i*FeatureSize : (i+1)*FeatureSize]
		for j := range image {
			image[j] = 0.2 * rng.Float32()
		}

		startRow := digit * 2 // 0, 2, 4, ..., 18
		for row := startRow; row < startRow+8 && row < Rows; row++ {
			for col := 5; col < 23; col++ {
				image[row*Cols+col] = 0.8 + 0.2*rng.Float32()
			}
		}
	}
	return data
}
