package format

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"io/fs"
	"math"
	"os"

	"github.com/born-ml/born/tensor"
	"github.com/born-ml/feedforward/model"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

// ReadFile reads and decodes the record at path.
//
// A missing file yields ErrNotFound. Other open or read failures are
// returned as I/O errors.
func ReadFile(path string) (*Record, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(ErrNotFound, "%s", path)
		}
		return nil, errors.Wrapf(err, "failed to open checkpoint %s", path)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat checkpoint %s", path)
	}
	rec, err := decode(bufio.NewReader(file), info.Size())
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to read checkpoint %s", path)
	}
	klog.V(1).Infof("read checkpoint %s (%s, %d parameters)", path, rec.Descriptor, len(rec.Parameters))
	return rec, nil
}

// Decode reads one complete record from r.
//
// Either a fully populated record or an error is returned. Trailing bytes
// after the data section are rejected.
func Decode(r io.Reader) (*Record, error) {
	return decode(r, -1)
}

// decode reads a record; when size is not negative it is the total number
// of bytes r holds, and the sizes declared in the fixed header must add up
// to it.
func decode(r io.Reader, size int64) (*Record, error) {
	fixedHeader := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r, fixedHeader); err != nil {
		return nil, readErr(err, "fixed header")
	}
	if string(fixedHeader[0:4]) != MagicBytes {
		return nil, corruptf("invalid magic bytes %q", fixedHeader[0:4])
	}
	if version := binary.LittleEndian.Uint32(fixedHeader[4:8]); version != FormatVersion {
		return nil, errors.Wrapf(ErrVersionMismatch, "got version %d, expected %d", version, FormatVersion)
	}

	headerSize := binary.LittleEndian.Uint64(fixedHeader[headerSizeOffset : headerSizeOffset+8])
	dataSize := binary.LittleEndian.Uint64(fixedHeader[dataSizeOffset : dataSizeOffset+8])
	var stored [ChecksumSize]byte
	copy(stored[:], fixedHeader[ChecksumOffset:ChecksumOffset+ChecksumSize])

	if headerSize > MaxHeaderSize {
		return nil, corruptf("header size %d exceeds maximum %d", headerSize, MaxHeaderSize)
	}
	if dataSize > math.MaxInt32*4 {
		return nil, corruptf("data size %d is not plausible", dataSize)
	}
	//nolint:gosec // G115: both sizes are bounded above
	declared := int64(FixedHeaderSize) + int64(headerSize) + paddingFor(int64(headerSize)) + int64(dataSize)
	if size >= 0 && declared != size {
		return nil, corruptf("record declares %d bytes, file has %d", declared, size)
	}

	headerBytes, err := readExactly(r, headerSize, "header JSON")
	if err != nil {
		return nil, err
	}
	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, corruptf("failed to parse header JSON: %v", err)
	}
	if header.FormatVersion == 0 {
		return nil, &ValidationError{Type: "missing_field", Details: "format_version"}
	}
	if header.FormatVersion != FormatVersion {
		return nil, errors.Wrapf(ErrVersionMismatch, "header declares version %d, expected %d",
			header.FormatVersion, FormatVersion)
	}

	//nolint:gosec // G115: header size is bounded by MaxHeaderSize
	if padding := paddingFor(int64(headerSize)); padding > 0 {
		if _, err := io.CopyN(io.Discard, r, padding); err != nil {
			return nil, readErr(err, "padding")
		}
	}

	//nolint:gosec // G115: data size is bounded above
	if err := ValidateHeader(&header, int64(dataSize)); err != nil {
		return nil, err
	}

	data, err := readExactly(r, dataSize, "parameter data")
	if err != nil {
		return nil, err
	}
	if err := ValidateChecksum(ComputeChecksum(data), stored); err != nil {
		return nil, err
	}
	var extra [1]byte
	if n, _ := r.Read(extra[:]); n > 0 {
		return nil, corruptf("unexpected bytes after parameter data")
	}

	return recordFromHeader(&header, data)
}

func recordFromHeader(header *Header, data []byte) (*Record, error) {
	desc := model.Descriptor{
		InputSize:    *header.InputSize,
		OutputSize:   *header.OutputSize,
		HiddenLayers: append([]int{}, (*header.HiddenLayers)...),
	}
	if err := desc.Validate(); err != nil {
		return nil, corruptf("%v", err)
	}

	params := make(map[string]Array, len(header.Parameters))
	for _, meta := range header.Parameters {
		region := data[meta.Offset : meta.Offset+meta.Size]
		params[meta.Name] = Array{
			Shape:  tensor.Shape(append([]int{}, meta.Shape...)),
			Values: decodeValues(meta.DType, region),
		}
	}

	return &Record{
		ID:         header.ID,
		CreatedAt:  header.CreatedAt,
		Descriptor: desc,
		Parameters: params,
		Training:   header.Training,
		Metadata:   header.Metadata,
	}, nil
}

// decodeValues converts a validated little-endian region into float32 values.
func decodeValues(dtype string, region []byte) []float32 {
	switch dtype {
	case DTypeFloat16:
		values := make([]float32, len(region)/2)
		for i := range values {
			values[i] = float16.Frombits(binary.LittleEndian.Uint16(region[2*i:])).Float32()
		}
		return values
	default:
		values := make([]float32, len(region)/4)
		for i := range values {
			values[i] = math.Float32frombits(binary.LittleEndian.Uint32(region[4*i:]))
		}
		return values
	}
}

// readExactly reads n bytes from r. The buffer grows with the bytes
// actually read, so a size taken from a corrupt header cannot force a large
// allocation.
func readExactly(r io.Reader, n uint64, what string) ([]byte, error) {
	//nolint:gosec // G115: callers bound n well below MaxInt64
	buf, err := io.ReadAll(io.LimitReader(r, int64(n)))
	if err != nil {
		return nil, readErr(err, what)
	}
	if uint64(len(buf)) != n {
		return nil, readErr(io.ErrUnexpectedEOF, what)
	}
	return buf, nil
}

// readErr classifies a short read as corruption and passes other errors through.
func readErr(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return corruptf("truncated record: failed to read %s", what)
	}
	return errors.Wrapf(err, "failed to read %s", what)
}
