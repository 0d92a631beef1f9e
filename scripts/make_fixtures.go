//go:build ignore

// make_fixtures writes two tiny SDXL-shaped checkpoints for trying the CLI:
//
//	go run ./scripts/make_fixtures.go -out ./testdata/models
//	blockmerge merge -a a.safetensors -b b.safetensors -o merged.safetensors --path ./testdata/models
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samcharles93/blockmerge/internal/merge"
	"github.com/samcharles93/blockmerge/internal/safetensors"
)

func main() {
	out := flag.String("out", filepath.Join("testdata", "models"), "output directory")
	dtype := flag.String("dtype", "F16", "tensor dtype (F32, F16, BF16)")
	width := flag.Int("width", 4, "elements per tensor")
	flag.Parse()

	if err := os.MkdirAll(*out, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
		os.Exit(1)
	}
	for name, fill := range map[string]float32{"a.safetensors": 0, "b.safetensors": 1} {
		path := filepath.Join(*out, name)
		if err := write(path, *dtype, *width, fill); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Println(path)
	}
}

func keys() []string {
	ns := merge.DefaultNamespace
	out := []string{ns + "time_embed.0.weight", ns + "label_emb.0.0.weight"}
	for i := range merge.NumBlockWeights {
		out = append(out, ns+merge.BlockPrefix(i)+".0.weight")
	}
	return append(out, ns+"out.2.weight", "conditioner.embedders.0.weight")
}

func write(path, dtype string, width int, fill float32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	names := keys()
	specs := make([]safetensors.TensorSpec, len(names))
	for i, n := range names {
		specs[i] = safetensors.TensorSpec{Name: n, DType: dtype, Shape: []int{width}}
	}
	w, err := safetensors.NewWriter(f, specs, map[string]string{"format": "pt"})
	if err != nil {
		return err
	}
	data := make([]float32, width)
	for i := range data {
		data[i] = fill
	}
	for _, n := range names {
		if err := w.WriteTensor(n, data); err != nil {
			return err
		}
	}
	return w.Close()
}
