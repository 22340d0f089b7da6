package format

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// FileMode is the permission of published checkpoint files.
const FileMode os.FileMode = 0o644

// Encode writes rec to w.
//
// Parameters are laid out in sorted name order, so encoding the same record
// twice yields the same bytes.
func Encode(w io.Writer, rec *Record) error {
	if rec == nil {
		return errors.New("nil record")
	}

	names := make([]string, 0, len(rec.Parameters))
	for name := range rec.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > MaxTensorCount {
		return errors.Errorf("too many parameters: got %d, max %d", len(names), MaxTensorCount)
	}

	hidden := append([]int{}, rec.Descriptor.HiddenLayers...)
	inputSize, outputSize := rec.Descriptor.InputSize, rec.Descriptor.OutputSize
	header := Header{
		FormatVersion: FormatVersion,
		ID:            rec.ID,
		CreatedAt:     rec.CreatedAt,
		InputSize:     &inputSize,
		OutputSize:    &outputSize,
		HiddenLayers:  &hidden,
		Parameters:    make([]TensorMeta, 0, len(names)),
		Training:      rec.Training,
		Metadata:      rec.Metadata,
	}

	// Calculate parameter offsets
	var currentOffset int64
	for _, name := range names {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		arr := rec.Parameters[name]
		if err := arr.Validate(); err != nil {
			return errors.Wrapf(err, "parameter %s", name)
		}
		size := int64(len(arr.Values) * dtypeSize(DTypeFloat32))
		header.Parameters = append(header.Parameters, TensorMeta{
			Name:   name,
			DType:  DTypeFloat32,
			Shape:  append([]int{}, arr.Shape...),
			Offset: currentOffset,
			Size:   size,
		})
		currentOffset += size
	}

	// Collect parameter data to compute the checksum
	data := make([]byte, currentOffset)
	for i, name := range names {
		offset := header.Parameters[i].Offset
		for j, v := range rec.Parameters[name].Values {
			binary.LittleEndian.PutUint32(data[offset+int64(4*j):], math.Float32bits(v))
		}
	}
	checksum := ComputeChecksum(data)

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "failed to marshal header")
	}
	headerSize := uint64(len(headerJSON))

	fixedHeader := make([]byte, FixedHeaderSize)
	copy(fixedHeader[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixedHeader[4:8], uint32(FormatVersion))
	flags := uint32(0)
	if rec.Training != nil {
		flags |= FlagHasTraining
	}
	if len(rec.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	binary.LittleEndian.PutUint32(fixedHeader[8:12], flags)
	binary.LittleEndian.PutUint64(fixedHeader[headerSizeOffset:headerSizeOffset+8], headerSize)
	binary.LittleEndian.PutUint64(fixedHeader[dataSizeOffset:dataSizeOffset+8], uint64(len(data)))
	copy(fixedHeader[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	if _, err := w.Write(fixedHeader); err != nil {
		return errors.Wrap(err, "failed to write fixed header")
	}
	if _, err := w.Write(headerJSON); err != nil {
		return errors.Wrap(err, "failed to write header JSON")
	}
	//nolint:gosec // G115: header size is bounded by MaxHeaderSize
	if padding := paddingFor(int64(headerSize)); padding > 0 {
		if _, err := w.Write(make([]byte, padding)); err != nil {
			return errors.Wrap(err, "failed to write padding")
		}
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "failed to write parameter data")
	}
	return nil
}

// WriteFile encodes rec and publishes it at path atomically.
//
// On failure any previous file at path is left untouched.
func WriteFile(path string, rec *Record) error {
	err := WriteAtomic(path, func(w io.Writer) error {
		return errors.WithMessagef(Encode(w, rec), "failed to encode %s", path)
	})
	if err != nil {
		return err
	}
	klog.V(1).Infof("wrote checkpoint %s (%d parameters)", path, len(rec.Parameters))
	return nil
}

// WriteAtomic publishes what write produces at path.
//
// The content goes to a temporary file in the destination directory, which
// is synced and renamed over path. On failure the temporary file is removed
// and nothing appears at path.
func WriteAtomic(path string, write func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "failed to create temporary file for %s", path)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			if removeErr := os.Remove(tmpName); removeErr != nil && !os.IsNotExist(removeErr) {
				klog.Warningf("failed to remove temporary file %s: %v", tmpName, removeErr)
			}
		}
	}()

	buffered := bufio.NewWriter(tmp)
	if err = write(buffered); err != nil {
		return err
	}
	if err = buffered.Flush(); err != nil {
		return errors.Wrapf(err, "failed to write %s", tmpName)
	}
	if err = tmp.Sync(); err != nil {
		return errors.Wrapf(err, "failed to sync %s", tmpName)
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", tmpName)
	}
	if err = os.Chmod(tmpName, FileMode); err != nil {
		return errors.Wrapf(err, "failed to chmod %s", tmpName)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "failed to move %s into place", path)
	}
	return nil
}
