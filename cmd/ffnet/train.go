package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/feedforward/checkpoint"
	"github.com/born-ml/feedforward/config"
	"github.com/born-ml/feedforward/internal/mnist"
	"github.com/born-ml/feedforward/model"
	"github.com/born-ml/feedforward/train"
	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// defaultSyntheticSamples is used with -synthetic when -samples is not set.
const defaultSyntheticSamples = 2000

func runTrain(args []string) error {
	fs := newFlagSet("train", "")
	var (
		configPath  = fs.String("config", "", "YAML configuration file; flags override its values")
		hidden      = fs.String("hidden", "", "Comma-separated hidden layer widths, e.g. 512,256,128 (empty string for none)")
		epochs      = fs.Int("epochs", 0, "Number of training epochs")
		batchSize   = fs.Int("batch", 0, "Batch size")
		optimizer   = fs.String("optimizer", "", "Optimizer: sgd or adam")
		lr          = fs.Float64("lr", 0, "Learning rate")
		momentum    = fs.Float64("momentum", 0, "SGD momentum")
		seed        = fs.Int64("seed", 0, "Shuffle seed")
		dataDir     = fs.String("data", "", "Directory containing MNIST IDX files")
		synthetic   = fs.Bool("synthetic", false, "Use synthetic data (for testing without MNIST files)")
		maxSamples  = fs.Int("samples", 0, "Max samples to load (0 = all)")
		valSplit    = fs.Float64("val", 0, "Fraction of samples held out for validation")
		out         = fs.String("out", "", "Checkpoint path")
		everyEpoch  = fs.Bool("every-epoch", false, "Save a checkpoint after every epoch")
		progress    = fs.Bool("progress", true, "Show a progress bar")
		printConfig = fs.Bool("print-config", false, "Print the effective configuration and exit")
	)
	must.M(fs.Parse(args))

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}

	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "hidden":
			widths, err := parseWidths(*hidden)
			if err != nil {
				flagErr = err
			}
			cfg.Model.HiddenLayers = widths
		case "epochs":
			cfg.Train.Epochs = *epochs
		case "batch":
			cfg.Train.BatchSize = *batchSize
		case "optimizer":
			cfg.Train.Optimizer = *optimizer
		case "lr":
			cfg.Train.LearningRate = *lr
		case "momentum":
			cfg.Train.Momentum = *momentum
		case "seed":
			cfg.Train.Seed = *seed
		case "data":
			cfg.Data.Dir = *dataDir
		case "synthetic":
			cfg.Data.Synthetic = *synthetic
		case "samples":
			cfg.Data.MaxSamples = *maxSamples
		case "val":
			cfg.Data.ValidationSplit = *valSplit
		case "out":
			cfg.Checkpoint.Path = *out
		case "every-epoch":
			cfg.Checkpoint.EveryEpoch = *everyEpoch
		}
	})
	if flagErr != nil {
		return flagErr
	}
	cfg.Train.Progress = *progress
	if err := cfg.Validate(); err != nil {
		return err
	}
	if *printConfig {
		fmt.Print(string(must.M1(cfg.Marshal())))
		return nil
	}

	data, err := loadData(cfg.Data, cfg.Train.Seed)
	if err != nil {
		return err
	}
	if data.FeatureSize != cfg.Model.InputSize {
		return errors.Errorf("data has %d features per sample but the model expects %d",
			data.FeatureSize, cfg.Model.InputSize)
	}
	trainDS, err := data.Dataset("mnist", cfg.Train.BatchSize, true, cfg.Train.Seed)
	if err != nil {
		return err
	}
	var valDS train.Dataset
	if cfg.Data.ValidationSplit > 0 {
		var held *train.SliceDataset
		if trainDS, held, err = trainDS.Split(cfg.Data.ValidationSplit); err != nil {
			return err
		}
		valDS = held
	}

	backend := autodiff.New(cpu.New())
	net, err := model.Build(cfg.Model, backend)
	if err != nil {
		return err
	}
	trainer, err := train.NewTrainer(net, backend, cfg.Train)
	if err != nil {
		return err
	}
	klog.Infof("Training %s (%s parameters) on %d samples with %s, lr=%g",
		cfg.Model, humanize.Comma(int64(net.NumParameters())), trainDS.Len(), cfg.Train.Optimizer, cfg.Train.LearningRate)

	save := func(stats train.EpochStats) error {
		rec, err := checkpoint.SaveModel(cfg.Checkpoint.Path, cfg.Model, net,
			checkpoint.WithTraining(checkpoint.TrainingInfo{
				Epoch:        stats.Epoch,
				Step:         trainer.GlobalStep(),
				Loss:         float64(stats.Loss),
				Optimizer:    cfg.Train.Optimizer,
				LearningRate: cfg.Train.LearningRate,
			}),
			checkpoint.WithMetadata(map[string]string{
				"dataset":  datasetName(cfg.Data),
				"accuracy": strconv.FormatFloat(float64(stats.Accuracy), 'f', 4, 32),
			}))
		if err != nil {
			return errors.WithMessagef(err, "epoch %d", stats.Epoch)
		}
		klog.Infof("Saved checkpoint %s (epoch %d, id %s)", cfg.Checkpoint.Path, stats.Epoch, rec.ID)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var onEpoch func(train.EpochStats) error
	if cfg.Checkpoint.EveryEpoch {
		onEpoch = save
	}
	history, err := trainer.Fit(ctx, trainDS, valDS, onEpoch)
	if err != nil {
		return err
	}
	if !cfg.Checkpoint.EveryEpoch {
		if err := save(history[len(history)-1]); err != nil {
			return err
		}
	}

	final := history[len(history)-1]
	fmt.Printf("Trained %s for %d epochs (%s steps): loss=%.4f acc=%.2f%%",
		cfg.Model, len(history), humanize.Comma(trainer.GlobalStep()), final.Loss, 100*final.Accuracy)
	if final.HasValidation {
		fmt.Printf(" val_acc=%.2f%%", 100*final.ValAccuracy)
	}
	fmt.Printf("\nCheckpoint: %s\n", cfg.Checkpoint.Path)
	return nil
}

func loadData(cfg config.DataConfig, seed int64) (*mnist.Data, error) {
	if cfg.Synthetic {
		n := cfg.MaxSamples
		if n == 0 {
			n = defaultSyntheticSamples
		}
		return mnist.Synthetic(n, seed), nil
	}
	data, err := mnist.Load(cfg.Dir, mnist.TrainSplit, cfg.MaxSamples)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.WithMessage(err, "MNIST files not found; download them into the data "+
			"directory or run with -synthetic")
	}
	return data, err
}

func datasetName(cfg config.DataConfig) string {
	if cfg.Synthetic {
		return "synthetic"
	}
	return "mnist"
}

// parseWidths parses "512,256,128". The empty string means no hidden layers.
func parseWidths(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []int{}, nil
	}
	parts := strings.Split(s, ",")
	widths := make([]int, len(parts))
	for i, part := range parts {
		w, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, errors.Errorf("invalid hidden layer width %q", part)
		}
		widths[i] = w
	}
	return widths, nil
}
