package format

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Validation limits for resource protection.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB - maximum header size
	MaxTensorCount   = 100_000           // Maximum number of parameters in a record
	MaxTensorNameLen = 4096              // Maximum parameter name length
)

// ValidateTensorOffsets checks that the parameter regions tile
// [0, dataSize) exactly: no region is out of bounds, none overlap, and no
// bytes are left between or after them.
func ValidateTensorOffsets(tensors []TensorMeta, dataSize int64) error {
	sorted := make([]TensorMeta, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	var end int64
	for i, t := range sorted {
		if t.Offset < 0 || t.Size < 0 {
			return &ValidationError{
				Type:    "negative_offset",
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset=%d, size=%d (negative values not allowed)", t.Offset, t.Size),
			}
		}

		if t.Offset+t.Size > dataSize {
			return &ValidationError{
				Type:    "out_of_bounds",
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset %d + size %d > data_size %d", t.Offset, t.Size, dataSize),
			}
		}

		if t.Offset > end {
			return &ValidationError{
				Type:    "gap",
				Tensor:  t.Name,
				Details: fmt.Sprintf("bytes [%d-%d] before it belong to no parameter", end, t.Offset),
			}
		}
		end = t.Offset + t.Size

		if i < len(sorted)-1 {
			next := sorted[i+1]
			if t.Offset+t.Size > next.Offset {
				return &ValidationError{
					Type:    "offset_overlap",
					Tensor:  t.Name,
					Tensor2: next.Name,
					Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
						t.Offset, t.Offset+t.Size, next.Offset, next.Offset+next.Size),
				}
			}
		}
	}

	if end != dataSize {
		return &ValidationError{
			Type:    "data_size_mismatch",
			Details: fmt.Sprintf("parameters cover %d bytes, data_size is %d", end, dataSize),
		}
	}
	return nil
}

// ValidateTensorName rejects empty, oversized and path-like parameter names.
func ValidateTensorName(name string) error {
	if name == "" {
		return &ValidationError{Type: "invalid_name", Details: "empty parameter name"}
	}
	if len(name) > MaxTensorNameLen {
		return &ValidationError{
			Type:    "name_too_long",
			Tensor:  name,
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen),
		}
	}
	if strings.Contains(name, "..") {
		return &ValidationError{Type: "invalid_name", Tensor: name, Details: "contains '..'"}
	}
	if strings.ContainsAny(name, "/\\") {
		return &ValidationError{Type: "invalid_name", Tensor: name, Details: "contains path separator (/ or \\)"}
	}
	if strings.Contains(name, "\x00") {
		return &ValidationError{Type: "invalid_name", Tensor: name, Details: "contains null byte"}
	}
	return nil
}

// ValidateTensorMeta checks one parameter entry on its own.
func ValidateTensorMeta(t TensorMeta) error {
	if err := ValidateTensorName(t.Name); err != nil {
		return err
	}
	elemSize := dtypeSize(t.DType)
	if elemSize == 0 {
		return &ValidationError{Type: "unsupported_dtype", Tensor: t.Name, Details: fmt.Sprintf("dtype %q", t.DType)}
	}
	numElements := int64(1)
	for i, dim := range t.Shape {
		if dim <= 0 {
			return &ValidationError{
				Type:    "invalid_shape",
				Tensor:  t.Name,
				Details: fmt.Sprintf("dimension %d is %d (must be > 0)", i, dim),
			}
		}
		if numElements > math.MaxInt64/int64(elemSize)/int64(dim) {
			return &ValidationError{
				Type:    "invalid_shape",
				Tensor:  t.Name,
				Details: fmt.Sprintf("shape %v overflows the addressable size", t.Shape),
			}
		}
		numElements *= int64(dim)
	}
	if want := numElements * int64(elemSize); t.Size != want {
		return &ValidationError{
			Type:    "size_mismatch",
			Tensor:  t.Name,
			Details: fmt.Sprintf("shape %v of %s needs %d bytes, header says %d", t.Shape, t.DType, want, t.Size),
		}
	}
	return nil
}

// ValidateHeader performs comprehensive header validation against the data section size.
func ValidateHeader(h *Header, dataSize int64) error {
	if h.InputSize == nil {
		return &ValidationError{Type: "missing_field", Details: "input_size"}
	}
	if h.OutputSize == nil {
		return &ValidationError{Type: "missing_field", Details: "output_size"}
	}
	if h.HiddenLayers == nil {
		return &ValidationError{Type: "missing_field", Details: "hidden_layers"}
	}
	if h.Parameters == nil {
		return &ValidationError{Type: "missing_field", Details: "parameters"}
	}

	if len(h.Parameters) > MaxTensorCount {
		return &ValidationError{
			Type:    "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(h.Parameters), MaxTensorCount),
		}
	}

	seen := make(map[string]bool, len(h.Parameters))
	for _, t := range h.Parameters {
		if err := ValidateTensorMeta(t); err != nil {
			return err
		}
		if seen[t.Name] {
			return &ValidationError{Type: "duplicate_name", Tensor: t.Name, Details: "parameter listed twice"}
		}
		seen[t.Name] = true
	}

	return ValidateTensorOffsets(h.Parameters, dataSize)
}
