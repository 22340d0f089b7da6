package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/born-ml/feedforward/checkpoint"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

func runInspect(args []string) error {
	fs := newFlagSet("inspect", "<checkpoint>")
	showParams := fs.Bool("params", true, "List the parameter arrays")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected exactly one checkpoint path")
	}
	path := fs.Arg(0)

	rec, err := checkpoint.Load(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", path)
	}

	fmt.Println(titleStyle.Render("Summary"))
	summary := newTable(nil, lipgloss.Right, lipgloss.Left)
	summary.add(false, "checkpoint", path)
	summary.add(false, "id", rec.ID)
	summary.add(false, "created", fmt.Sprintf("%s (%s)", rec.CreatedAt.Format(time.RFC3339), humanize.Time(rec.CreatedAt)))
	summary.add(false, "architecture", rec.Descriptor.String())
	summary.add(false, "# parameters", humanize.Comma(int64(rec.Parameters.NumValues())))
	summary.add(false, "file size", humanize.Bytes(uint64(info.Size())))
	if rec.Training != nil {
		summary.add(false, "epoch", humanize.Comma(int64(rec.Training.Epoch)))
		summary.add(false, "step", humanize.Comma(rec.Training.Step))
		summary.add(false, "loss", fmt.Sprintf("%.4f", rec.Training.Loss))
		summary.add(false, "optimizer", fmt.Sprintf("%s (lr=%g)", rec.Training.Optimizer, rec.Training.LearningRate))
	}
	keys := make([]string, 0, len(rec.Metadata))
	for k := range rec.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		summary.add(false, "metadata."+k, rec.Metadata[k])
	}
	fmt.Println(summary.Render())

	var mismatch *checkpoint.MismatchError
	checkErr := rec.Parameters.Check(rec.Descriptor.ParameterShapes())
	if checkErr != nil && !errors.As(checkErr, &mismatch) {
		return checkErr
	}
	bad := make(map[string]checkpoint.Mismatch)
	if mismatch != nil {
		for _, m := range mismatch.Mismatches {
			bad[m.Key] = m
		}
	}

	if *showParams {
		fmt.Println(titleStyle.Render("Parameters"))
		params := newTable([]string{"Key", "Shape", "Size", "Bytes", "Status"},
			lipgloss.Left, lipgloss.Right, lipgloss.Right, lipgloss.Right, lipgloss.Left)
		expected := rec.Descriptor.ParameterShapes()
		for _, key := range orderedKeys(rec) {
			m, isBad := bad[key]
			status := "ok"
			if isBad {
				status = m.Kind.String()
			}
			arr, present := rec.Parameters[key]
			if !present {
				params.add(true, key, shapeString(expected[key]), "-", "-", status)
				continue
			}
			params.add(isBad, key, shapeString(arr.Shape),
				humanize.Comma(int64(len(arr.Values))), humanize.Bytes(uint64(4*len(arr.Values))), status)
		}
		fmt.Println(params.Render())
	}

	if mismatch != nil {
		return errors.Errorf("checkpoint does not match its own architecture: %v", mismatch)
	}
	return nil
}

// orderedKeys lists the descriptor's keys in connectivity order, followed by
// any extra keys of the record in sorted order.
func orderedKeys(rec *checkpoint.Record) []string {
	keys := rec.Descriptor.ParameterKeys()
	known := make(map[string]bool, len(keys))
	for _, k := range keys {
		known[k] = true
	}
	for _, k := range rec.Parameters.Keys() {
		if !known[k] {
			keys = append(keys, k)
		}
	}
	return keys
}
