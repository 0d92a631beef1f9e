package safetensors

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/goccy/go-json"
	"github.com/x448/float16"
)

// TensorSpec declares one tensor of the file being written.
type TensorSpec struct {
	Name  string
	DType string
	Shape []int
}

// Writer streams tensors to w in the order they were declared to NewWriter.
type Writer struct {
	w     io.Writer
	specs []TensorSpec
	next  int
	buf   []byte
}

// NewWriter validates specs and writes the header. Tensor data must follow via
// WriteTensor or WriteRaw, one call per spec, in declaration order.
func NewWriter(w io.Writer, specs []TensorSpec, metadata map[string]string) (*Writer, error) {
	header := make(map[string]any, len(specs)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}

	var offset int64
	for _, s := range specs {
		if s.Name == "" || s.Name == metadataKey {
			return nil, fmt.Errorf("invalid tensor name %q", s.Name)
		}
		if _, dup := header[s.Name]; dup {
			return nil, fmt.Errorf("duplicate tensor %q", s.Name)
		}
		size, err := StorageSize(s.DType)
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", s.Name, err)
		}
		n, err := NumElements(s.Shape)
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", s.Name, err)
		}
		end := offset + int64(n*size)
		shape := s.Shape
		if shape == nil {
			shape = []int{}
		}
		header[s.Name] = tensorHeader{DType: s.DType, Shape: shape, DataOffsets: []int64{offset, end}}
		offset = end
	}

	hb, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	// Pad so tensor data starts on an 8-byte boundary.
	if rem := (8 + len(hb)) % 8; rem != 0 {
		hb = append(hb, bytes.Repeat([]byte{' '}, 8-rem)...)
	}

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(hb)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return nil, err
	}
	if _, err := w.Write(hb); err != nil {
		return nil, err
	}
	return &Writer{w: w, specs: specs}, nil
}

// WriteTensor encodes data as the next declared tensor, which must have a float dtype.
func (tw *Writer) WriteTensor(name string, data []float32) error {
	spec, err := tw.expect(name)
	if err != nil {
		return err
	}
	if !IsFloat(spec.DType) {
		return fmt.Errorf("tensor %s: %w %q for float data", name, ErrUnsupportedDType, spec.DType)
	}
	n, _ := NumElements(spec.Shape)
	if len(data) != n {
		return fmt.Errorf("tensor %s: got %d elements, shape %v wants %d", name, len(data), spec.Shape, n)
	}

	tw.buf, _ = EncodeF32(tw.buf[:0], spec.DType, data)
	return tw.write(name, tw.buf)
}

// WriteRaw copies raw as the next declared tensor. raw must already be in the
// declared dtype's little-endian layout.
func (tw *Writer) WriteRaw(name string, raw []byte) error {
	spec, err := tw.expect(name)
	if err != nil {
		return err
	}
	size, _ := StorageSize(spec.DType)
	n, _ := NumElements(spec.Shape)
	if len(raw) != n*size {
		return fmt.Errorf("tensor %s: got %d bytes, %s shape %v wants %d", name, len(raw), spec.DType, spec.Shape, n*size)
	}
	return tw.write(name, raw)
}

func (tw *Writer) expect(name string) (TensorSpec, error) {
	if tw.next >= len(tw.specs) {
		return TensorSpec{}, fmt.Errorf("tensor %s: all %d declared tensors already written", name, len(tw.specs))
	}
	spec := tw.specs[tw.next]
	if spec.Name != name {
		return TensorSpec{}, fmt.Errorf("tensor %s written out of order, expected %s", name, spec.Name)
	}
	return spec, nil
}

func (tw *Writer) write(name string, b []byte) error {
	if _, err := tw.w.Write(b); err != nil {
		return fmt.Errorf("write tensor %s: %w", name, err)
	}
	tw.next++
	return nil
}

// Close reports an error when declared tensors were never written.
func (tw *Writer) Close() error {
	if tw.next != len(tw.specs) {
		return fmt.Errorf("safetensors: %d of %d tensors written", tw.next, len(tw.specs))
	}
	return nil
}

// EncodeF32 appends data to dst in the little-endian layout of a float dtype.
func EncodeF32(dst []byte, dtype string, data []float32) ([]byte, error) {
	switch dtype {
	case "F32":
		for _, v := range data {
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
		}
	case "F16":
		for _, v := range data {
			dst = binary.LittleEndian.AppendUint16(dst, float16.Fromfloat32(v).Bits())
		}
	case "BF16":
		for _, v := range data {
			dst = binary.LittleEndian.AppendUint16(dst, f32ToBF16(v))
		}
	default:
		return dst, fmt.Errorf("%w %q", ErrUnsupportedDType, dtype)
	}
	return dst, nil
}
