package main

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/born-ml/feedforward/checkpoint"
	"github.com/born-ml/feedforward/internal/format"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

func runExport(args []string) error {
	fs := newFlagSet("export", "<checkpoint> <out.safetensors>")
	_ = fs.Parse(args)
	if fs.NArg() != 2 {
		fs.Usage()
		return errors.New("expected a checkpoint path and an output path")
	}
	src, dst := fs.Arg(0), fs.Arg(1)

	rec, err := checkpoint.Load(src)
	if err != nil {
		return err
	}
	if err := rec.Parameters.Check(rec.Descriptor.ParameterShapes()); err != nil {
		return errors.WithMessagef(err, "refusing to export %s", src)
	}

	hidden, err := json.Marshal(rec.Descriptor.HiddenLayers)
	if err != nil {
		return errors.Wrap(err, "failed to encode hidden layers")
	}
	metadata := map[string]string{
		"format":        "pt",
		"architecture":  rec.Descriptor.String(),
		"input_size":    strconv.Itoa(rec.Descriptor.InputSize),
		"output_size":   strconv.Itoa(rec.Descriptor.OutputSize),
		"hidden_layers": string(hidden),
		"checkpoint_id": rec.ID,
	}

	err = format.WriteAtomic(dst, func(w io.Writer) error {
		return errors.WithMessagef(format.WriteSafeTensors(w, rec.Parameters, metadata), "failed to export %s", dst)
	})
	if err != nil {
		return err
	}
	klog.Infof("Exported %d parameter arrays from %s to %s", len(rec.Parameters), src, dst)
	return nil
}
