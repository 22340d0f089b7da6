package mnist

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// IDX magic numbers.
const (
	imagesMagic = 2051 // 0x00000803
	labelsMagic = 2049 // 0x00000801
)

// maxPixels bounds the allocation a header can request.
const maxPixels uint64 = 1 << 31

// Images is the content of an IDX image file.
type Images struct {
	Count  int
	Rows   int
	Cols   int
	Pixels []byte // Count*Rows*Cols bytes, 0-255, row-major
}

// ReadImages reads an IDX image file.
//
// IDX file format for images:
//
//	magic number: 0x00000803 (2051)
//	number of images: 4 bytes
//	number of rows: 4 bytes (28)
//	number of cols: 4 bytes (28)
//	pixel data: unsigned bytes (0-255)
//
// All integers are big-endian. When maxSamples > 0 at most that many images
// are read.
func ReadImages(r io.Reader, maxSamples int) (*Images, error) {
	var header [4]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, errors.Wrap(err, "failed to read image header")
	}
	if header[0] != imagesMagic {
		return nil, errors.Errorf("invalid magic number: got %d, want %d", header[0], imagesMagic)
	}
	count, rows, cols := int(header[1]), int(header[2]), int(header[3])
	if rows == 0 || cols == 0 {
		return nil, errors.Errorf("invalid image size %dx%d", rows, cols)
	}
	if maxSamples > 0 && count > maxSamples {
		count = maxSamples
	}
	if uint64(count)*uint64(rows)*uint64(cols) > maxPixels {
		return nil, errors.Errorf("%d images of %dx%d exceed the supported size", count, rows, cols)
	}

	images := &Images{Count: count, Rows: rows, Cols: cols, Pixels: make([]byte, count*rows*cols)}
	if _, err := io.ReadFull(r, images.Pixels); err != nil {
		return nil, errors.Wrapf(err, "failed to read %d images", count)
	}
	return images, nil
}

// ReadLabels reads an IDX label file.
//
// IDX file format for labels:
//
//	magic number: 0x00000801 (2049)
//	number of labels: 4 bytes
//	label data: unsigned bytes (0-9)
func ReadLabels(r io.Reader, maxSamples int) ([]byte, error) {
	var header [2]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, errors.Wrap(err, "failed to read label header")
	}
	if header[0] != labelsMagic {
		return nil, errors.Errorf("invalid magic number: got %d, want %d", header[0], labelsMagic)
	}
	count := int(header[1])
	if maxSamples > 0 && count > maxSamples {
		count = maxSamples
	}
	if uint64(count) > maxPixels {
		return nil, errors.Errorf("%d labels exceed the supported size", count)
	}

	labels := make([]byte, count)
	if _, err := io.ReadFull(r, labels); err != nil {
		return nil, errors.Wrapf(err, "failed to read %d labels", count)
	}
	return labels, nil
}
