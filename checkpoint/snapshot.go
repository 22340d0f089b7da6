// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package checkpoint

import (
	"sort"

	"github.com/born-ml/born/tensor"
	"github.com/born-ml/feedforward/internal/format"
	"github.com/pkg/errors"
)

// Array is a dense row-major float32 parameter array.
type Array = format.Array

// Module is the part of born's nn.Module a checkpoint needs. Every
// nn.Module satisfies it.
type Module interface {
	StateDict() map[string]*tensor.RawTensor
}

// Snapshot maps parameter keys to detached copies of their values.
//
// A snapshot never aliases live module memory.
type Snapshot map[string]Array

// Capture deep-copies the current parameters of module.
//
// Later optimizer steps on module do not affect the returned snapshot.
// Panics if a parameter is not float32, which born's layers never produce.
func Capture(module Module) Snapshot {
	stateDict := module.StateDict()
	snap := make(Snapshot, len(stateDict))
	for key, raw := range stateDict {
		snap[key] = Array{
			Shape:  raw.Shape().Clone(),
			Values: append([]float32(nil), raw.AsFloat32()...),
		}
	}
	return snap
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	c := make(Snapshot, len(s))
	for key, arr := range s {
		c[key] = arr.Clone()
	}
	return c
}

// Keys returns the snapshot keys in sorted order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether both snapshots hold the same keys with bit-identical
// arrays.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for key, arr := range s {
		o, ok := other[key]
		if !ok || !arr.Equal(o) {
			return false
		}
	}
	return true
}

// NumValues returns the total number of scalars in the snapshot.
func (s Snapshot) NumValues() int {
	n := 0
	for _, arr := range s {
		n += len(arr.Values)
	}
	return n
}

// Check compares s against the expected slot shapes and returns a
// *MismatchError covering every offending key, or nil.
func (s Snapshot) Check(expected map[string]tensor.Shape) error {
	var mismatches []Mismatch
	for key, want := range expected {
		arr, ok := s[key]
		switch {
		case !ok:
			mismatches = append(mismatches, Mismatch{Key: key, Kind: MissingKey, Expected: want.Clone()})
		case !arr.Shape.Equal(want):
			mismatches = append(mismatches, Mismatch{
				Key: key, Kind: ShapeMismatch, Expected: want.Clone(), Actual: arr.Shape.Clone(),
			})
		default:
			if err := arr.Validate(); err != nil {
				mismatches = append(mismatches, Mismatch{
					Key: key, Kind: ShapeMismatch, Expected: want.Clone(), Actual: arr.Shape.Clone(),
					Detail: err.Error(),
				})
			}
		}
	}
	for key, arr := range s {
		if _, ok := expected[key]; !ok {
			mismatches = append(mismatches, Mismatch{Key: key, Kind: UnknownKey, Actual: arr.Shape.Clone()})
		}
	}
	if len(mismatches) == 0 {
		return nil
	}
	sort.Slice(mismatches, func(i, j int) bool {
		return mismatches[i].Key < mismatches[j].Key
	})
	return &MismatchError{Mismatches: mismatches}
}

// liveShapes returns the slot shapes of a state dict, rejecting slots
// Apply cannot write.
func liveShapes(stateDict map[string]*tensor.RawTensor) (map[string]tensor.Shape, error) {
	shapes := make(map[string]tensor.Shape, len(stateDict))
	for key, raw := range stateDict {
		if raw.DType() != tensor.Float32 {
			return nil, errors.Errorf("parameter %s has dtype %v, only float32 slots can be loaded", key, raw.DType())
		}
		shapes[key] = raw.Shape()
	}
	return shapes, nil
}
