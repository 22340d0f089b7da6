package format

import (
	"fmt"

	"github.com/pkg/errors"
)

// Common errors.
var (
	ErrNotFound        = errors.New("checkpoint not found")
	ErrCorrupt         = errors.New("corrupt checkpoint record")
	ErrVersionMismatch = errors.New("unsupported checkpoint format version")
)

// ValidationError provides detailed information about a malformed header.
//
// Every ValidationError is an ErrCorrupt.
type ValidationError struct {
	Type    string // Type of error (e.g., "offset_overlap", "out_of_bounds")
	Tensor  string // Primary parameter name involved
	Tensor2 string // Secondary parameter name (for overlap errors)
	Details string // Additional details
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Tensor2 != "" {
		return fmt.Sprintf("%s: parameters %q and %q: %s", e.Type, e.Tensor, e.Tensor2, e.Details)
	}
	if e.Tensor != "" {
		return fmt.Sprintf("%s: parameter %q: %s", e.Type, e.Tensor, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Details)
}

// Unwrap makes errors.Is(err, ErrCorrupt) hold.
func (e *ValidationError) Unwrap() error {
	return ErrCorrupt
}

func corruptf(format string, args ...any) error {
	return errors.Wrapf(ErrCorrupt, format, args...)
}
