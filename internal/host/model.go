// Package host is a small model runtime that satisfies merge.Model over
// tensor sources. Patches are recorded on Apply and evaluated lazily, one
// tensor at a time, when the model is read or saved.
package host

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/samcharles93/blockmerge/internal/logger"
	"github.com/samcharles93/blockmerge/internal/merge"
	"github.com/samcharles93/blockmerge/internal/safetensors"
)

// TensorRef points at a stored tensor. It is the patch payload PatchesFor
// hands out for unpatched keys.
type TensorRef struct {
	Source Source
	Name   string
}

// KeyRef points at a key of a frozen model snapshot. PatchesFor hands it out
// for keys that already carry patches so merge results can be merged again.
type KeyRef struct {
	Model *Model
	Key   string
}

type patchEntry struct {
	payload       merge.Patch
	strengthModel float64
	strengthPatch float64
}

// Model is a base Source plus ordered per-key patch lists.
type Model struct {
	base    Source
	patches map[string][]patchEntry
	log     logger.Logger
}

var _ merge.Model = (*Model)(nil)

func NewModel(base Source, log logger.Logger) *Model {
	if log == nil {
		log = logger.Discard()
	}
	return &Model{base: base, patches: make(map[string][]patchEntry), log: log}
}

// Clone copies the patch lists. The base source is shared read-only.
func (m *Model) Clone() (merge.Model, error) {
	return m.clone(), nil
}

func (m *Model) clone() *Model {
	patches := make(map[string][]patchEntry, len(m.patches))
	for k, v := range m.patches {
		patches[k] = slices.Clone(v)
	}
	return &Model{base: m.base, patches: patches, log: m.log}
}

func (m *Model) PatchesFor(namespace string) (map[string]merge.Patch, error) {
	var snapshot *Model
	out := make(map[string]merge.Patch)
	for _, k := range m.Keys() {
		if !strings.HasPrefix(k, namespace) {
			continue
		}
		if _, patched := m.patches[k]; patched {
			if snapshot == nil {
				snapshot = m.clone()
			}
			out[k] = KeyRef{Model: snapshot, Key: k}
			continue
		}
		// Integer and other non-float tensors have no blend; they stay as stored.
		if info, ok := m.base.Info(k); ok && !safetensors.IsFloat(info.DType) {
			continue
		}
		out[k] = TensorRef{Source: m.base, Name: k}
	}
	return out, nil
}

func (m *Model) ApplyPatches(patches map[string]merge.Patch, baseWeight, patchWeight float64) error {
	for k, p := range patches {
		switch p.(type) {
		case TensorRef, KeyRef, Tensor:
		default:
			return fmt.Errorf("patch for %s: unsupported payload %T", k, p)
		}
	}
	for k, p := range patches {
		m.patches[k] = append(m.patches[k], patchEntry{payload: p, strengthModel: baseWeight, strengthPatch: patchWeight})
	}
	return nil
}

// Keys lists base and patched keys in lexical order.
func (m *Model) Keys() []string {
	seen := make(map[string]struct{}, len(m.patches))
	for _, k := range m.base.Names() {
		seen[k] = struct{}{}
	}
	for k := range m.patches {
		seen[k] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

// Patched reports how many patches are layered on key.
func (m *Model) Patched(key string) int {
	return len(m.patches[key])
}

// Info returns the dtype and shape key will have once materialised.
func (m *Model) Info(key string) (Info, error) {
	if info, ok := m.base.Info(key); ok {
		return info, nil
	}
	entries := m.patches[key]
	if len(entries) == 0 {
		return Info{}, fmt.Errorf("unknown key %s", key)
	}
	return payloadInfo(entries[0].payload)
}

func payloadInfo(p merge.Patch) (Info, error) {
	switch v := p.(type) {
	case TensorRef:
		info, ok := v.Source.Info(v.Name)
		if !ok {
			return Info{}, fmt.Errorf("unknown key %s", v.Name)
		}
		return info, nil
	case KeyRef:
		return v.Model.Info(v.Key)
	case Tensor:
		return Info{DType: v.DType, Shape: v.Shape}, nil
	default:
		return Info{}, fmt.Errorf("unsupported payload %T", p)
	}
}

// Tensor evaluates key: starting from the base value (zeros when the base
// lacks the key), each patch in order computes w = strengthModel*w + strengthPatch*patch.
// A patch whose shape differs from the base is skipped with a warning.
func (m *Model) Tensor(ctx context.Context, key string) (Tensor, error) {
	if err := ctx.Err(); err != nil {
		return Tensor{}, err
	}
	info, err := m.Info(key)
	if err != nil {
		return Tensor{}, err
	}

	var w []float32
	if _, ok := m.base.Info(key); ok {
		if w, err = m.base.ReadF32(key); err != nil {
			return Tensor{}, err
		}
	}

	for _, p := range m.patches[key] {
		pt, err := resolve(ctx, p.payload)
		if err != nil {
			return Tensor{}, fmt.Errorf("%s: %w", key, err)
		}
		if w == nil {
			w = make([]float32, len(pt.Data))
		}
		if !slices.Equal(pt.Shape, info.Shape) || len(pt.Data) != len(w) {
			m.log.Warn("shape mismatch, patch not merged", "key", key, "want", info.Shape, "got", pt.Shape)
			continue
		}
		blend(w, pt.Data, p.strengthModel, p.strengthPatch)
	}
	if w == nil {
		return Tensor{}, fmt.Errorf("unknown key %s", key)
	}
	return Tensor{DType: info.DType, Shape: info.Shape, Data: w}, nil
}

func resolve(ctx context.Context, p merge.Patch) (Tensor, error) {
	switch v := p.(type) {
	case TensorRef:
		info, ok := v.Source.Info(v.Name)
		if !ok {
			return Tensor{}, fmt.Errorf("unknown key %s", v.Name)
		}
		data, err := v.Source.ReadF32(v.Name)
		if err != nil {
			return Tensor{}, err
		}
		return Tensor{DType: info.DType, Shape: info.Shape, Data: data}, nil
	case KeyRef:
		return v.Model.Tensor(ctx, v.Key)
	case Tensor:
		return v, nil
	default:
		return Tensor{}, fmt.Errorf("unsupported payload %T", p)
	}
}

// blend computes dst = a*dst + b*src in float64 and stores float32.
func blend(dst, src []float32, a, b float64) {
	for i := range dst {
		dst[i] = float32(a*float64(dst[i]) + b*float64(src[i]))
	}
}
