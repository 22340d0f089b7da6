// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package checkpoint

import (
	"fmt"
	"strings"

	"github.com/born-ml/born/tensor"
	"github.com/born-ml/feedforward/internal/format"
	"github.com/pkg/errors"
)

// Load errors. They are returned wrapped with the offending path, so compare
// them with errors.Is.
var (
	ErrNotFound        = format.ErrNotFound
	ErrCorruptFormat   = format.ErrCorrupt
	ErrVersionMismatch = format.ErrVersionMismatch
)

// Mismatch errors. A *MismatchError matches each kind it contains.
var (
	ErrShapeMismatch = errors.New("parameter shape mismatch")
	ErrUnknownKey    = errors.New("unknown parameter key")
	ErrMissingKey    = errors.New("missing parameter key")
)

// MismatchKind classifies one offending parameter key.
type MismatchKind int

// Mismatch kinds.
const (
	ShapeMismatch MismatchKind = iota // Key present on both sides with different shapes
	UnknownKey                        // Key in the snapshot but not in the target
	MissingKey                        // Key in the target but not in the snapshot
)

// String returns the kind name.
func (k MismatchKind) String() string {
	switch k {
	case ShapeMismatch:
		return "shape"
	case UnknownKey:
		return "unknown"
	case MissingKey:
		return "missing"
	default:
		return fmt.Sprintf("MismatchKind(%d)", int(k))
	}
}

func (k MismatchKind) sentinel() error {
	switch k {
	case UnknownKey:
		return ErrUnknownKey
	case MissingKey:
		return ErrMissingKey
	default:
		return ErrShapeMismatch
	}
}

// Mismatch describes one key that prevents a snapshot from being applied.
//
// Expected is the shape the target requires (nil for UnknownKey), Actual is
// the shape found in the snapshot (nil for MissingKey).
type Mismatch struct {
	Key      string
	Kind     MismatchKind
	Expected tensor.Shape
	Actual   tensor.Shape
	Detail   string // Set when shapes agree but the values do not fill them
}

func (m Mismatch) String() string {
	switch m.Kind {
	case UnknownKey:
		return fmt.Sprintf("%s: unknown key (shape %v)", m.Key, m.Actual)
	case MissingKey:
		return fmt.Sprintf("%s: missing (expected shape %v)", m.Key, m.Expected)
	}
	if m.Detail != "" {
		return fmt.Sprintf("%s: %s", m.Key, m.Detail)
	}
	return fmt.Sprintf("%s: expected shape %v, got %v", m.Key, m.Expected, m.Actual)
}

// MismatchError reports every key of a snapshot that disagrees with its
// target, sorted by key.
type MismatchError struct {
	Mismatches []Mismatch
}

// Error implements the error interface.
func (e *MismatchError) Error() string {
	parts := make([]string, len(e.Mismatches))
	for i, m := range e.Mismatches {
		parts[i] = m.String()
	}
	return fmt.Sprintf("%d parameter mismatches: %s", len(e.Mismatches), strings.Join(parts, "; "))
}

// Is reports whether e contains a mismatch of the kind target stands for.
func (e *MismatchError) Is(target error) bool {
	for _, m := range e.Mismatches {
		if m.Kind.sentinel() == target {
			return true
		}
	}
	return false
}

// Keys returns the offending keys in sorted order.
func (e *MismatchError) Keys() []string {
	keys := make([]string, len(e.Mismatches))
	for i, m := range e.Mismatches {
		keys[i] = m.Key
	}
	return keys
}
