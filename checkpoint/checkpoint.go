// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package checkpoint

import (
	"time"

	"github.com/born-ml/born/tensor"
	"github.com/born-ml/feedforward/internal/format"
	"github.com/born-ml/feedforward/model"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// TrainingInfo describes the training state at a save point.
// It is informational and ignored when rebuilding.
type TrainingInfo = format.TrainingMeta

// Record is the persisted unit: architecture plus parameters, with optional
// bookkeeping.
type Record struct {
	Descriptor model.Descriptor
	Parameters Snapshot
	Training   *TrainingInfo     // Optional
	Metadata   map[string]string // Optional free-form metadata
	ID         string            // Assigned at save when empty
	CreatedAt  time.Time         // Assigned at save when zero
}

// Option configures a record built by SaveModel.
type Option func(*Record)

// WithTraining attaches training information.
func WithTraining(info TrainingInfo) Option {
	return func(r *Record) {
		r.Training = &info
	}
}

// WithMetadata attaches a copy of metadata.
func WithMetadata(metadata map[string]string) Option {
	return func(r *Record) {
		if len(metadata) == 0 {
			return
		}
		if r.Metadata == nil {
			r.Metadata = make(map[string]string, len(metadata))
		}
		for k, v := range metadata {
			r.Metadata[k] = v
		}
	}
}

// WithID fixes the record ID instead of generating one.
func WithID(id string) Option {
	return func(r *Record) {
		r.ID = id
	}
}

// WithCreatedAt fixes the record timestamp instead of using the current time.
func WithCreatedAt(t time.Time) Option {
	return func(r *Record) {
		r.CreatedAt = t
	}
}

// Save validates rec and writes it to path, replacing any previous record.
//
// The snapshot must hold exactly the keys and shapes rec.Descriptor implies;
// otherwise a *MismatchError is returned and nothing is written. The write
// goes to a temporary file in the destination directory that is synced and
// renamed over path, so readers see either the old or the new record. I/O
// errors keep their os error identity for errors.Is. rec is not modified.
func Save(path string, rec *Record) error {
	if rec == nil {
		return errors.New("checkpoint.Save: nil record")
	}
	if err := rec.Descriptor.Validate(); err != nil {
		return errors.WithMessagef(err, "failed to save checkpoint %s", path)
	}
	if err := rec.Parameters.Check(rec.Descriptor.ParameterShapes()); err != nil {
		return err
	}

	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return format.WriteFile(path, &format.Record{
		ID:         id,
		CreatedAt:  createdAt.UTC(),
		Descriptor: rec.Descriptor.Clone(),
		Parameters: rec.Parameters,
		Training:   rec.Training,
		Metadata:   rec.Metadata,
	})
}

// SaveModel captures the parameters of module and saves them with desc.
//
// The returned record carries the assigned ID and timestamp.
func SaveModel(path string, desc model.Descriptor, module Module, opts ...Option) (*Record, error) {
	rec := &Record{
		Descriptor: desc.Clone(),
		Parameters: Capture(module),
	}
	for _, opt := range opts {
		opt(rec)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := Save(path, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Load reads the record at path.
//
// Errors: ErrNotFound when path does not exist, ErrCorruptFormat when the
// bytes are not a well-formed record, ErrVersionMismatch when the record
// uses another format version. Load never returns a partial record, and it
// does not check the parameters against the descriptor; Apply does.
func Load(path string) (*Record, error) {
	fr, err := format.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &Record{
		Descriptor: fr.Descriptor,
		Parameters: fr.Parameters,
		Training:   fr.Training,
		Metadata:   fr.Metadata,
		ID:         fr.ID,
		CreatedAt:  fr.CreatedAt,
	}, nil
}

// Rebuild creates a freshly initialised network whose slots derive only
// from desc.
func Rebuild[B tensor.Backend](desc model.Descriptor, backend B) (*model.Network[B], error) {
	return model.Build(desc, backend)
}

// Apply copies snap into the live parameters of module.
//
// The whole snapshot is validated against the module's slots before the
// first value is written: on any error no slot has been touched. Unknown,
// missing and mis-shaped keys are all reported in one *MismatchError.
// snap is not modified and is not retained.
func Apply(module Module, snap Snapshot) error {
	stateDict := module.StateDict()
	shapes, err := liveShapes(stateDict)
	if err != nil {
		return err
	}
	if err := snap.Check(shapes); err != nil {
		return err
	}
	for key, raw := range stateDict {
		copy(raw.AsFloat32(), snap[key].Values)
	}
	klog.V(2).Infof("applied %d parameter arrays (%d values)", len(snap), snap.NumValues())
	return nil
}

// Reconstruct loads the record at path and returns an equivalent live
// network built on backend, together with the record.
//
// The first failing step's error is returned unchanged.
func Reconstruct[B tensor.Backend](path string, backend B) (*model.Network[B], *Record, error) {
	rec, err := Load(path)
	if err != nil {
		return nil, nil, err
	}
	net, err := Rebuild(rec.Descriptor, backend)
	if err != nil {
		return nil, nil, err
	}
	if err := Apply(net, rec.Parameters); err != nil {
		return nil, nil, err
	}
	klog.V(1).Infof("reconstructed %s from %s (%d parameters)", rec.Descriptor, path, net.NumParameters())
	return net, rec, nil
}
