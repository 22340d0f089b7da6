// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"
	"github.com/born-ml/feedforward/model"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// ErrEmptyDataset is returned when an epoch or evaluation yields no batch.
var ErrEmptyDataset = errors.New("dataset yielded no batches")

// EpochStats summarizes one training epoch.
type EpochStats struct {
	Epoch    int     // 1-based
	Steps    int     // Optimizer steps taken
	Samples  int     // Samples seen
	Loss     float32 // Sample-weighted mean training loss
	Accuracy float32 // Training accuracy at the time each batch was seen

	HasValidation bool
	ValLoss       float32
	ValAccuracy   float32

	Duration time.Duration
}

// String renders the stats on one line.
func (s EpochStats) String() string {
	msg := fmt.Sprintf("epoch %d: loss=%.4f acc=%.2f%% (%d steps, %s)",
		s.Epoch, s.Loss, 100*s.Accuracy, s.Steps, s.Duration.Round(time.Millisecond))
	if s.HasValidation {
		msg += fmt.Sprintf(" val_loss=%.4f val_acc=%.2f%%", s.ValLoss, 100*s.ValAccuracy)
	}
	return msg
}

// Trainer runs optimizer steps on a network built over an autodiff backend.
type Trainer[B tensor.Backend] struct {
	net       *model.Network[*autodiff.Backend[B]]
	backend   *autodiff.Backend[B]
	optimizer optim.Optimizer
	cfg       Config

	epoch       int
	globalStep  int64
	progressOut io.Writer
}

// NewTrainer creates a trainer for net with the optimizer cfg names.
func NewTrainer[B tensor.Backend](net *model.Network[*autodiff.Backend[B]], backend *autodiff.Backend[B],
	cfg Config) (*Trainer[B], error) {
	optimizer, err := NewOptimizer(net.Parameters(), cfg, backend)
	if err != nil {
		return nil, err
	}
	return &Trainer[B]{
		net:         net,
		backend:     backend,
		optimizer:   optimizer,
		cfg:         cfg,
		progressOut: os.Stderr,
	}, nil
}

// SetProgressWriter redirects the progress bar, which goes to os.Stderr
// by default.
func (t *Trainer[B]) SetProgressWriter(w io.Writer) {
	t.progressOut = w
}

// Config returns the trainer configuration.
func (t *Trainer[B]) Config() Config { return t.cfg }

// Epoch returns the number of completed epochs.
func (t *Trainer[B]) Epoch() int { return t.epoch }

// GlobalStep returns the number of optimizer steps taken so far.
func (t *Trainer[B]) GlobalStep() int64 { return t.globalStep }

// tensors converts a batch into input and label tensors, checking its
// consistency with the network.
func (t *Trainer[B]) tensors(batch Batch) (*tensor.Tensor[float32, *autodiff.Backend[B]], *tensor.Tensor[int32, *autodiff.Backend[B]], error) {
	desc := t.net.Descriptor()
	if batch.Size <= 0 {
		return nil, nil, errors.Errorf("batch size must be positive, got %d", batch.Size)
	}
	if len(batch.Inputs) != batch.Size*desc.InputSize {
		return nil, nil, errors.Errorf("batch of %d samples needs %d input values, got %d",
			batch.Size, batch.Size*desc.InputSize, len(batch.Inputs))
	}
	if len(batch.Labels) != batch.Size {
		return nil, nil, errors.Errorf("batch of %d samples has %d labels", batch.Size, len(batch.Labels))
	}
	for i, label := range batch.Labels {
		if label < 0 || int(label) >= desc.OutputSize {
			return nil, nil, errors.Errorf("label %d of sample %d is outside [0, %d)", label, i, desc.OutputSize)
		}
	}

	inputs, err := tensor.FromSlice(batch.Inputs, tensor.Shape{batch.Size, desc.InputSize}, t.backend)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create input tensor")
	}
	labels, err := tensor.FromSlice(batch.Labels, tensor.Shape{batch.Size}, t.backend)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create label tensor")
	}
	return inputs, labels, nil
}

// Step performs one optimizer update on batch and returns the batch loss.
func (t *Trainer[B]) Step(batch Batch) (float32, error) {
	loss, _, err := t.step(batch)
	return loss, err
}

// step returns the loss and the number of correctly classified samples.
func (t *Trainer[B]) step(batch Batch) (lossValue float32, correct int, err error) {
	inputs, labels, err := t.tensors(batch)
	if err != nil {
		return 0, 0, err
	}

	tape := t.backend.Tape()
	t.optimizer.ZeroGrad()
	tape.StartRecording()
	defer tape.Clear()

	exception := exceptions.Try(func() {
		logits := t.net.Forward(inputs)
		lossRaw := t.backend.CrossEntropy(logits.Raw(), labels.Raw())
		lossValue = lossRaw.AsFloat32()[0]
		correct = countCorrect(logits.Data(), batch.Labels, t.net.Descriptor().OutputSize)

		outputGrad, err := tensor.NewRaw(lossRaw.Shape(), lossRaw.DType(), t.backend.Device())
		if err != nil {
			panic(errors.Wrap(err, "failed to allocate output gradient"))
		}
		outputGrad.AsFloat32()[0] = 1.0

		grads := tape.Backward(outputGrad, t.backend)
		t.optimizer.Step(grads)
	})
	if exception != nil {
		return 0, 0, panicError(exception, fmt.Sprintf("training step %d failed", t.globalStep))
	}
	t.globalStep++
	if math.IsNaN(float64(lossValue)) || math.IsInf(float64(lossValue), 0) {
		klog.Warningf("training step %d: non-finite loss %v", t.globalStep, lossValue)
	}
	klog.V(2).Infof("step %d: loss=%.4f", t.globalStep, lossValue)
	return lossValue, correct, nil
}

// RunEpoch resets ds and takes one step per batch until io.EOF.
//
// The context is checked between steps; on cancellation the stats so far
// are returned with the context error.
func (t *Trainer[B]) RunEpoch(ctx context.Context, ds Dataset) (EpochStats, error) {
	start := time.Now()
	stats := EpochStats{Epoch: t.epoch + 1}
	ds.Reset()

	bar := t.newProgressBar(ds, stats.Epoch)
	defer func() {
		if bar != nil {
			_ = bar.Finish()
			_, _ = fmt.Fprintln(t.progressOut)
		}
	}()

	var totalLoss float64
	var totalCorrect int
	for {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return stats, errors.Wrapf(err, "epoch %d interrupted after %d steps", stats.Epoch, stats.Steps)
		}
		batch, err := ds.Yield()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, errors.WithMessagef(err, "dataset %s", ds.Name())
		}

		loss, correct, err := t.step(batch)
		if err != nil {
			return stats, err
		}
		stats.Steps++
		stats.Samples += batch.Size
		totalLoss += float64(loss) * float64(batch.Size)
		totalCorrect += correct

		if bar != nil {
			bar.Describe(fmt.Sprintf("Epoch %d [loss=%.4f]", stats.Epoch, loss))
			_ = bar.Add(1)
		}
	}
	if stats.Steps == 0 {
		return stats, errors.Wrapf(ErrEmptyDataset, "dataset %s", ds.Name())
	}

	stats.Loss = float32(totalLoss / float64(stats.Samples))
	stats.Accuracy = float32(totalCorrect) / float32(stats.Samples)
	stats.Duration = time.Since(start)
	t.epoch++
	return stats, nil
}

func (t *Trainer[B]) newProgressBar(ds Dataset, epoch int) *progressbar.ProgressBar {
	if !t.cfg.Progress {
		return nil
	}
	total := -1
	if sized, ok := ds.(Sized); ok {
		total = sized.NumBatches()
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(fmt.Sprintf("Epoch %d", epoch)),
		progressbar.OptionSetWriter(t.progressOut),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("steps"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
	)
}

// Fit trains for cfg.Epochs epochs, evaluating on val after each one when
// val is not nil.
//
// onEpoch, when not nil, is called after every epoch; an error from it
// stops training and is returned.
func (t *Trainer[B]) Fit(ctx context.Context, trainDS, val Dataset, onEpoch func(EpochStats) error) ([]EpochStats, error) {
	history := make([]EpochStats, 0, t.cfg.Epochs)
	for range t.cfg.Epochs {
		stats, err := t.RunEpoch(ctx, trainDS)
		if err != nil {
			return history, err
		}
		if val != nil {
			stats.ValLoss, stats.ValAccuracy, err = t.Evaluate(val)
			if err != nil {
				return history, err
			}
			stats.HasValidation = true
		}
		history = append(history, stats)
		klog.Infof("%s: %s", trainDS.Name(), stats)

		if onEpoch != nil {
			if err := onEpoch(stats); err != nil {
				return history, err
			}
		}
	}
	return history, nil
}

// Evaluate computes the sample-weighted mean loss and the accuracy on ds
// without recording gradients or updating parameters.
func (t *Trainer[B]) Evaluate(ds Dataset) (loss, accuracy float32, err error) {
	tape := t.backend.Tape()
	wasRecording := tape.IsRecording()
	tape.StopRecording()
	defer func() {
		if wasRecording {
			tape.StartRecording()
		}
	}()

	ds.Reset()
	outputSize := t.net.Descriptor().OutputSize
	var totalLoss float64
	var samples, correct int
	for {
		batch, err := ds.Yield()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, 0, errors.WithMessagef(err, "dataset %s", ds.Name())
		}
		inputs, labels, err := t.tensors(batch)
		if err != nil {
			return 0, 0, err
		}

		var batchLoss float32
		exception := exceptions.Try(func() {
			logits := t.net.Forward(inputs)
			batchLoss = t.backend.CrossEntropy(logits.Raw(), labels.Raw()).AsFloat32()[0]
			correct += countCorrect(logits.Data(), batch.Labels, outputSize)
		})
		if exception != nil {
			return 0, 0, panicError(exception, fmt.Sprintf("evaluation on %s failed", ds.Name()))
		}
		totalLoss += float64(batchLoss) * float64(batch.Size)
		samples += batch.Size
	}
	if samples == 0 {
		return 0, 0, errors.Wrapf(ErrEmptyDataset, "dataset %s", ds.Name())
	}
	return float32(totalLoss / float64(samples)), float32(correct) / float32(samples), nil
}

// panicError turns a recovered panic into an error, keeping the identity of
// panics that carry one.
func panicError(exception any, msg string) error {
	if e, ok := exception.(error); ok {
		return errors.Wrap(e, msg)
	}
	return errors.Errorf("%s: %v", msg, exception)
}

// countCorrect counts rows of logits whose argmax equals the label.
func countCorrect(logits []float32, labels []int32, numClasses int) int {
	correct := 0
	for i, label := range labels {
		row := logits[i*numClasses : (i+1)*numClasses]
		if int32(Argmax(row)) == label {
			correct++
		}
	}
	return correct
}

// Argmax returns the index of the largest value, the first one on ties.
func Argmax(values []float32) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
