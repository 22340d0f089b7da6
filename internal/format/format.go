package format

import (
	"math"
	"time"

	"github.com/born-ml/born/tensor"
	"github.com/born-ml/feedforward/model"
	"github.com/pkg/errors"
)

// Format constants.
const (
	MagicBytes       = "FFNC"
	FormatVersion    = 1    // Only supported version
	HeaderAlignment  = 64   // Align parameter data to 64 bytes
	FixedHeaderSize  = 64   // Fixed header size (0x40 bytes)
	ChecksumSize     = 32   // SHA-256 checksum size (32 bytes)
	ChecksumOffset   = 0x20 // Checksum offset in the fixed header
	headerSizeOffset = 0x10
	dataSizeOffset   = 0x18
)

// Data type string constants for serialization.
const (
	DTypeFloat32 = "float32"
	DTypeFloat16 = "float16"
)

// Flags for the fixed header.
const (
	FlagHasTraining uint32 = 1 << 0 // bit 0: training info included
	FlagHasMetadata uint32 = 1 << 1 // bit 1: custom metadata included
)

// Array is a dense row-major parameter array.
type Array struct {
	Shape  tensor.Shape
	Values []float32
}

// Clone returns a deep copy of a.
func (a Array) Clone() Array {
	return Array{
		Shape:  a.Shape.Clone(),
		Values: append([]float32(nil), a.Values...),
	}
}

// Validate checks that the shape is valid and that Values fills it exactly.
func (a Array) Validate() error {
	if err := a.Shape.Validate(); err != nil {
		return err
	}
	if len(a.Values) != a.Shape.NumElements() {
		return errors.Errorf("shape %v needs %d values, got %d", a.Shape, a.Shape.NumElements(), len(a.Values))
	}
	return nil
}

// Equal reports whether a and b have the same shape and bit-identical values.
func (a Array) Equal(b Array) bool {
	if !a.Shape.Equal(b.Shape) || len(a.Values) != len(b.Values) {
		return false
	}
	for i := range a.Values {
		if math.Float32bits(a.Values[i]) != math.Float32bits(b.Values[i]) {
			return false
		}
	}
	return true
}

// TrainingMeta contains training state at the time a record was saved.
type TrainingMeta struct {
	Epoch        int     `json:"epoch"`         // Training epoch number
	Step         int64   `json:"step"`          // Training step number
	Loss         float64 `json:"loss"`          // Loss value at checkpoint
	Optimizer    string  `json:"optimizer"`     // Optimizer type ("sgd", "adam")
	LearningRate float64 `json:"learning_rate"` // Optimizer learning rate
}

// Record is the decoded content of a checkpoint file.
type Record struct {
	ID         string
	CreatedAt  time.Time
	Descriptor model.Descriptor
	Parameters map[string]Array
	Training   *TrainingMeta
	Metadata   map[string]string
}

// Header represents the JSON header of a record.
//
// Architecture fields are pointers so the reader can tell a missing field
// from a zero one.
type Header struct {
	FormatVersion int               `json:"format_version"`
	ID            string            `json:"id"`
	CreatedAt     time.Time         `json:"created_at"`
	InputSize     *int              `json:"input_size"`
	OutputSize    *int              `json:"output_size"`
	HiddenLayers  *[]int            `json:"hidden_layers"`
	Parameters    []TensorMeta      `json:"parameters"`
	Training      *TrainingMeta     `json:"training,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// TensorMeta describes a parameter array in the data section.
type TensorMeta struct {
	Name   string `json:"name"`   // Parameter key (e.g., "hidden_layers.0.weight")
	DType  string `json:"dtype"`  // Data type ("float32" or "float16")
	Shape  []int  `json:"shape"`  // Array shape
	Offset int64  `json:"offset"` // Bytes from start of the data section
	Size   int64  `json:"size"`   // Size in bytes
}

// dtypeSize returns the element size of a serialized dtype, or 0 if unsupported.
func dtypeSize(dtype string) int {
	switch dtype {
	case DTypeFloat32:
		return 4
	case DTypeFloat16:
		return 2
	default:
		return 0
	}
}

// paddingFor returns the zero padding after a header of headerSize bytes.
func paddingFor(headerSize int64) int64 {
	currentPos := int64(FixedHeaderSize) + headerSize
	return (HeaderAlignment - (currentPos % HeaderAlignment)) % HeaderAlignment
}
