package host

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/samcharles93/blockmerge/internal/merge"
	"github.com/samcharles93/blockmerge/internal/safetensors"
)

func vec(vals ...float32) Tensor {
	return Tensor{DType: "F32", Shape: []int{len(vals)}, Data: vals}
}

func fixtures() (MemorySource, MemorySource) {
	a := MemorySource{
		"diffusion_model.time_embed.0.weight":     vec(0, 0),
		"diffusion_model.input_blocks.4.1.weight": vec(1, 2, 3),
		"diffusion_model.out.2.bias":              vec(4),
		"first_stage_model.encoder.weight":        vec(9, 9),
	}
	b := MemorySource{
		"diffusion_model.time_embed.0.weight":     vec(10, 20),
		"diffusion_model.input_blocks.4.1.weight": vec(3, 4, 5),
		"diffusion_model.out.2.bias":              vec(8),
		"diffusion_model.only_in_b.weight":        vec(6, 6),
		"first_stage_model.encoder.weight":        vec(1, 1),
	}
	return a, b
}

func materialise(t *testing.T, m *Model) map[string][]float32 {
	t.Helper()
	out := make(map[string][]float32)
	for _, k := range m.Keys() {
		tensor, err := m.Tensor(context.Background(), k)
		if err != nil {
			t.Fatalf("Tensor(%s): %v", k, err)
		}
		out[k] = tensor.Data
	}
	return out
}

func halfWeights() merge.Params {
	p := merge.DefaultParams()
	p.TimeEmbed = 50
	p.Out = 25
	for i := range p.Weights {
		p.Weights[i] = 50
	}
	return p
}

func TestMergeBlendsTensors(t *testing.T) {
	t.Parallel()
	srcA, srcB := fixtures()
	a, b := NewModel(srcA, nil), NewModel(srcB, nil)

	out, report, err := merge.NewMerger(merge.DefaultOptions(), nil).Merge(context.Background(), a, b, halfWeights())
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if report.Keys != 4 || report.Unmatched != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	want := map[string][]float32{
		"diffusion_model.time_embed.0.weight":     {5, 10},
		"diffusion_model.input_blocks.4.1.weight": {2, 3, 4},
		"diffusion_model.out.2.bias":              {5},
		"diffusion_model.only_in_b.weight":        {6, 6},
		"first_stage_model.encoder.weight":        {9, 9},
	}
	if diff := cmp.Diff(want, materialise(t, out.(*Model)), cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Fatalf("merged tensors mismatch (-want +got):\n%s", diff)
	}

	// Inputs are untouched.
	if a.Patched("diffusion_model.out.2.bias") != 0 || b.Patched("diffusion_model.out.2.bias") != 0 {
		t.Fatal("merge recorded patches on an input model")
	}
	if diff := cmp.Diff([]float32{1, 2, 3}, materialise(t, a)["diffusion_model.input_blocks.4.1.weight"]); diff != "" {
		t.Fatalf("model a changed (-want +got):\n%s", diff)
	}
}

func TestMergeResultCanBeMergedAgain(t *testing.T) {
	t.Parallel()
	srcA, srcB := fixtures()
	a, b := NewModel(srcA, nil), NewModel(srcB, nil)
	m := merge.NewMerger(merge.DefaultOptions(), nil)

	first, _, err := m.Merge(context.Background(), a, b, halfWeights())
	if err != nil {
		t.Fatalf("first Merge: %v", err)
	}
	// Take the merged model fully: every region at 100.
	second, _, err := m.Merge(context.Background(), a, first, merge.DefaultParams())
	if err != nil {
		t.Fatalf("second Merge: %v", err)
	}

	got := materialise(t, second.(*Model))
	if diff := cmp.Diff([]float32{5, 10}, got["diffusion_model.time_embed.0.weight"]); diff != "" {
		t.Fatalf("chained merge mismatch (-want +got):\n%s", diff)
	}
}

func TestShapeMismatchKeepsBase(t *testing.T) {
	t.Parallel()
	a := NewModel(MemorySource{"diffusion_model.out.0.weight": vec(1, 2)}, nil)
	b := NewModel(MemorySource{"diffusion_model.out.0.weight": vec(5, 5, 5)}, nil)

	out, _, err := merge.NewMerger(merge.DefaultOptions(), nil).Merge(context.Background(), a, b, merge.DefaultParams())
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	tensor, err := out.(*Model).Tensor(context.Background(), "diffusion_model.out.0.weight")
	if err != nil {
		t.Fatalf("Tensor: %v", err)
	}
	if diff := cmp.Diff([]float32{1, 2}, tensor.Data); diff != "" {
		t.Fatalf("mismatched patch was applied (-want +got):\n%s", diff)
	}
}

func TestApplyPatchesRejectsUnknownPayload(t *testing.T) {
	t.Parallel()
	m := NewModel(MemorySource{}, nil)
	err := m.ApplyPatches(map[string]merge.Patch{"x": 3.5}, 0, 1)
	if err == nil {
		t.Fatal("expected error for unsupported payload")
	}
	if len(m.Keys()) != 0 {
		t.Fatal("rejected patch was recorded")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()
	m := NewModel(MemorySource{"k": vec(1)}, nil)
	c, err := m.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if err := c.ApplyPatches(map[string]merge.Patch{"k": vec(3)}, 0.5, 0.5); err != nil {
		t.Fatalf("ApplyPatches: %v", err)
	}
	if m.Patched("k") != 0 {
		t.Fatal("patch leaked into the original")
	}
	got := materialise(t, c.(*Model))["k"]
	if diff := cmp.Diff([]float32{2}, got); diff != "" {
		t.Fatalf("clone value mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveWritesMergedCheckpoint(t *testing.T) {
	t.Parallel()
	srcA, srcB := fixtures()
	out, _, err := merge.NewMerger(merge.DefaultOptions(), nil).Merge(context.Background(), NewModel(srcA, nil), NewModel(srcB, nil), halfWeights())
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	path := filepath.Join(t.TempDir(), "merged.safetensors")
	if err := out.(*Model).Save(context.Background(), path, SaveOptions{DType: "F16", Metadata: map[string]string{"k": "v"}, Workers: 2}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	ckpt, err := OpenCheckpoint(path)
	if err != nil {
		t.Fatalf("OpenCheckpoint: %v", err)
	}
	defer func() { _ = ckpt.Close() }()

	if ckpt.Metadata()["k"] != "v" {
		t.Fatalf("metadata lost: %v", ckpt.Metadata())
	}
	reloaded := materialise(t, NewModel(ckpt, nil))
	if diff := cmp.Diff(materialise(t, out.(*Model)), reloaded); diff != "" {
		t.Fatalf("saved tensors mismatch (-want +got):\n%s", diff)
	}
	info, _ := ckpt.Info("diffusion_model.out.2.bias")
	if info.DType != "F16" {
		t.Fatalf("dtype = %s, want F16", info.DType)
	}
}

func TestSaveRejectsUnknownDType(t *testing.T) {
	t.Parallel()
	m := NewModel(MemorySource{"k": vec(1)}, nil)
	path := filepath.Join(t.TempDir(), "x.safetensors")
	if err := m.Save(context.Background(), path, SaveOptions{DType: "Q8"}); err == nil {
		t.Fatal("expected error for unknown dtype")
	}
	if _, err := safetensors.Open(path); err == nil {
		t.Fatal("failed save left a file behind")
	}
}

func TestOutputDType(t *testing.T) {
	t.Parallel()
	tests := []struct{ forced, source, want string }{
		{"", "BF16", "BF16"},
		{"", "I64", "I64"},
		{"F16", "I64", "I64"},
		{"F16", "F32", "F16"},
	}
	for _, tc := range tests {
		if got := outputDType(tc.forced, tc.source); got != tc.want {
			t.Errorf("outputDType(%q, %q) = %q, want %q", tc.forced, tc.source, got, tc.want)
		}
	}
}

func TestKeyOnlyInBScalesFromZeros(t *testing.T) {
	t.Parallel()
	a := NewModel(MemorySource{"diffusion_model.out.0.weight": vec(1)}, nil)
	b := NewModel(MemorySource{
		"diffusion_model.out.0.weight":            vec(1),
		"diffusion_model.input_blocks.7.0.weight": vec(6, 8),
	}, nil)

	out, report, err := merge.NewMerger(merge.DefaultOptions(), nil).Merge(context.Background(), a, b, halfWeights())
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if report.PerRegion["input_blocks.7"] != 1 {
		t.Fatalf("key not assigned to input_blocks.7: %+v", report)
	}
	got := materialise(t, out.(*Model))["diffusion_model.input_blocks.7.0.weight"]
	// 0.5*zeros + 0.5*b
	if diff := cmp.Diff([]float32{3, 4}, got, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Fatalf("b-only key mismatch (-want +got):\n%s", diff)
	}
}

// writeMixedCheckpoint writes an F32 unet weight next to an I64 tensor outside
// the unet, the layout of real SDXL position_ids.
func writeMixedCheckpoint(t *testing.T, path string, ids []int64) {
	t.Helper()
	fh, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	specs := []safetensors.TensorSpec{
		{Name: "cond_stage_model.position_ids", DType: "I64", Shape: []int{1, len(ids)}},
		{Name: "diffusion_model.out.0.weight", DType: "F32", Shape: []int{2}},
	}
	w, err := safetensors.NewWriter(fh, specs, nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	raw := make([]byte, 0, len(ids)*8)
	for _, id := range ids {
		raw = binary.LittleEndian.AppendUint64(raw, uint64(id))
	}
	if err := w.WriteRaw(specs[0].Name, raw); err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}
	if err := w.WriteTensor(specs[1].Name, []float32{1, 2}); err != nil {
		t.Fatalf("WriteTensor: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := fh.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSaveCopiesNonFloatTensors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	src := filepath.Join(dir, "mixed.safetensors")
	writeMixedCheckpoint(t, src, []int64{0, 1, 2, 76})

	ckpt, err := OpenCheckpoint(src)
	if err != nil {
		t.Fatalf("OpenCheckpoint: %v", err)
	}
	defer func() { _ = ckpt.Close() }()
	want, err := ckpt.ReadRaw("cond_stage_model.position_ids")
	if err != nil {
		t.Fatalf("ReadRaw: %v", err)
	}

	a, b := NewModel(ckpt, nil), NewModel(ckpt, nil)
	out, _, err := merge.NewMerger(merge.DefaultOptions(), nil).Merge(context.Background(), a, b, merge.DefaultParams())
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	for _, dtype := range []string{"", "F16"} {
		path := filepath.Join(dir, "merged"+dtype+".safetensors")
		if err := out.(*Model).Save(context.Background(), path, SaveOptions{DType: dtype}); err != nil {
			t.Fatalf("Save(dtype=%q): %v", dtype, err)
		}
		f, err := safetensors.Open(path)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		got, info, err := f.ReadTensor("cond_stage_model.position_ids")
		if err != nil {
			t.Fatalf("ReadTensor: %v", err)
		}
		if info.DType != "I64" || !bytes.Equal(got, want) {
			t.Fatalf("dtype=%q: position_ids changed: %s %v, want I64 %v", dtype, info.DType, got, want)
		}
		_ = f.Close()
	}
}

func TestPatchesForSkipsNonFloat(t *testing.T) {
	t.Parallel()
	m := NewModel(MemorySource{
		"diffusion_model.w":   vec(1),
		"diffusion_model.ids": {DType: "I64", Shape: []int{1}, Raw: make([]byte, 8)},
	}, nil)
	patches, err := m.PatchesFor(merge.DefaultNamespace)
	if err != nil {
		t.Fatalf("PatchesFor: %v", err)
	}
	if _, ok := patches["diffusion_model.ids"]; ok {
		t.Fatal("integer tensor offered as a patch")
	}
	if _, ok := patches["diffusion_model.w"]; !ok {
		t.Fatal("float tensor missing from patches")
	}
}
