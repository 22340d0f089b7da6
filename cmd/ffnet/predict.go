package main

import (
	"fmt"
	"io"

	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"github.com/born-ml/feedforward/checkpoint"
	"github.com/born-ml/feedforward/internal/mnist"
	"github.com/born-ml/feedforward/model"
	"github.com/born-ml/feedforward/train"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

func runPredict(args []string) error {
	fs := newFlagSet("predict", "<checkpoint>")
	var (
		dataDir    = fs.String("data", "", "Evaluate on the MNIST test split in this directory")
		synthetic  = fs.Bool("synthetic", false, "Evaluate on synthetic data")
		maxSamples = fs.Int("samples", 0, "Max samples to evaluate (0 = all)")
		batchSize  = fs.Int("batch", 256, "Evaluation batch size")
		seed       = fs.Int64("seed", 7, "Seed of the synthetic data")
	)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected exactly one checkpoint path")
	}

	backend := cpu.New()
	net, rec, err := checkpoint.Reconstruct(fs.Arg(0), backend)
	if err != nil {
		return err
	}
	klog.V(1).Infof("checkpoint %s: %s, saved %s", fs.Arg(0), rec.Descriptor, rec.CreatedAt)

	if *dataDir == "" && !*synthetic {
		return probe(net, backend)
	}

	var data *mnist.Data
	if *synthetic {
		n := *maxSamples
		if n == 0 {
			n = 1000
		}
		data = mnist.Synthetic(n, *seed)
	} else {
		data, err = mnist.Load(*dataDir, mnist.TestSplit, *maxSamples)
		if err != nil {
			return err
		}
	}
	if data.FeatureSize != rec.Descriptor.InputSize {
		return errors.Errorf("data has %d features per sample but the model expects %d",
			data.FeatureSize, rec.Descriptor.InputSize)
	}
	name := "mnist-test"
	if *synthetic {
		name = "synthetic"
	}
	ds, err := data.Dataset(name, *batchSize, false, 0)
	if err != nil {
		return err
	}
	correct, total, err := evaluate(net, backend, ds)
	if err != nil {
		return err
	}
	fmt.Printf("Accuracy on %d %s samples: %.2f%%\n", total, ds.Name(), 100*float64(correct)/float64(total))
	return nil
}

// probe runs a single all-zero sample through net and prints the logits.
func probe(net *model.Network[*cpu.Backend], backend *cpu.Backend) error {
	desc := net.Descriptor()
	logits, err := net.Predict(tensor.Zeros[float32](tensor.Shape{desc.InputSize}, backend))
	if err != nil {
		return err
	}
	values := logits.Data()
	fmt.Printf("Zero-input probe on %s: %d outputs, argmax %d\n", desc, len(values), train.Argmax(values))
	for i, v := range values {
		fmt.Printf("  [%d] %+.6f\n", i, v)
	}
	return nil
}

// evaluate counts correct predictions without the autodiff tape.
func evaluate(net *model.Network[*cpu.Backend], backend *cpu.Backend, ds train.Dataset) (correct, total int, err error) {
	outputSize := net.Descriptor().OutputSize
	inputSize := net.Descriptor().InputSize
	ds.Reset()
	for {
		batch, err := ds.Yield()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, 0, err
		}
		inputs := must.M1(tensor.FromSlice(batch.Inputs, tensor.Shape{batch.Size, inputSize}, backend))
		logits, err := net.Predict(inputs)
		if err != nil {
			return 0, 0, err
		}
		values := logits.Data()
		for i, label := range batch.Labels {
			if train.Argmax(values[i*outputSize:(i+1)*outputSize]) == int(label) {
				correct++
			}
		}
		total += batch.Size
	}
	if total == 0 {
		return 0, 0, errors.Wrapf(train.ErrEmptyDataset, "dataset %s", ds.Name())
	}
	return correct, total, nil
}
