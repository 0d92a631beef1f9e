package host

import (
	"fmt"
	"slices"

	"github.com/samcharles93/blockmerge/internal/safetensors"
)

// Info describes a stored tensor.
type Info struct {
	DType string
	Shape []int
}

// Source is read-only tensor storage backing a Model.
type Source interface {
	Names() []string
	Info(name string) (Info, bool)
	// ReadF32 returns a fresh slice the caller may modify.
	ReadF32(name string) ([]float32, error)
	// ReadRaw returns the stored bytes in the tensor's own dtype. The slice
	// may alias the source and must not be modified.
	ReadRaw(name string) ([]byte, error)
}

// Tensor is a materialised parameter. Raw, when set, holds the stored bytes
// of a tensor whose dtype has no float32 form.
type Tensor struct {
	DType string
	Shape []int
	Data  []float32
	Raw   []byte
}

// Checkpoint serves tensors from a safetensors file.
type Checkpoint struct {
	file *safetensors.File
}

// OpenCheckpoint opens path. Close it once every Model built on it is done.
func OpenCheckpoint(path string) (*Checkpoint, error) {
	f, err := safetensors.Open(path)
	if err != nil {
		return nil, err
	}
	return &Checkpoint{file: f}, nil
}

func (c *Checkpoint) Path() string                { return c.file.Path }
func (c *Checkpoint) Metadata() map[string]string { return c.file.Metadata }
func (c *Checkpoint) Names() []string             { return c.file.Names() }
func (c *Checkpoint) Close() error                { return c.file.Close() }

func (c *Checkpoint) Info(name string) (Info, bool) {
	t, ok := c.file.Tensor(name)
	if !ok {
		return Info{}, false
	}
	return Info{DType: t.DType, Shape: t.Shape}, true
}

func (c *Checkpoint) ReadF32(name string) ([]float32, error) {
	data, _, err := c.file.ReadTensorF32(name)
	return data, err
}

func (c *Checkpoint) ReadRaw(name string) ([]byte, error) {
	raw, _, err := c.file.ReadTensor(name)
	return raw, err
}

// MemorySource keeps tensors in memory.
type MemorySource map[string]Tensor

func (m MemorySource) Names() []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

func (m MemorySource) Info(name string) (Info, bool) {
	t, ok := m[name]
	if !ok {
		return Info{}, false
	}
	return Info{DType: t.DType, Shape: t.Shape}, true
}

func (m MemorySource) ReadF32(name string) ([]float32, error) {
	t, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", safetensors.ErrTensorNotFound, name)
	}
	if t.Data == nil && t.Raw != nil {
		return nil, fmt.Errorf("tensor %s: %w %q", name, safetensors.ErrUnsupportedDType, t.DType)
	}
	return slices.Clone(t.Data), nil
}

func (m MemorySource) ReadRaw(name string) ([]byte, error) {
	t, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", safetensors.ErrTensorNotFound, name)
	}
	if t.Raw != nil {
		return t.Raw, nil
	}
	return safetensors.EncodeF32(nil, t.DType, t.Data)
}
