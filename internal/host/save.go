package host

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/blockmerge/internal/safetensors"
)

// SaveOptions control how a model is written.
type SaveOptions struct {
	// DType forces every float tensor to F32, F16 or BF16. Empty keeps each
	// tensor's source dtype. Non-float tensors always keep theirs.
	DType    string
	Metadata map[string]string
	// Workers bounds concurrent tensor evaluation. Zero means GOMAXPROCS.
	Workers int
}

// Save materialises every key of m into a safetensors file at path. The file
// is written beside path and renamed into place, so a failed save leaves no
// partial output.
func (m *Model) Save(ctx context.Context, path string, opts SaveOptions) (err error) {
	if opts.DType != "" {
		if _, err := safetensors.DTypeSize(opts.DType); err != nil {
			return err
		}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	keys := m.Keys()
	specs := make([]safetensors.TensorSpec, len(keys))
	// Unpatched keys written in their stored dtype are copied byte for byte.
	passthrough := make([]bool, len(keys))
	for i, k := range keys {
		info, err := m.Info(k)
		if err != nil {
			return err
		}
		dtype := outputDType(opts.DType, info.DType)
		specs[i] = safetensors.TensorSpec{Name: k, DType: dtype, Shape: info.Shape}
		passthrough[i] = m.Patched(k) == 0 && dtype == info.DType
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriterSize(tmp, 4<<20)
	tw, err := safetensors.NewWriter(bw, specs, opts.Metadata)
	if err != nil {
		return err
	}

	batch := workers * 2
	for start := 0; start < len(keys); start += batch {
		end := min(start+batch, len(keys))
		results := make([]Tensor, end-start)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i := start; i < end; i++ {
			g.Go(func() error {
				if passthrough[i] {
					raw, err := m.base.ReadRaw(keys[i])
					if err != nil {
						return fmt.Errorf("tensor %s: %w", keys[i], err)
					}
					results[i-start] = Tensor{Raw: raw}
					return nil
				}
				t, err := m.Tensor(gctx, keys[i])
				if err != nil {
					return err
				}
				results[i-start] = t
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for i, t := range results {
			if passthrough[start+i] {
				err = tw.WriteRaw(keys[start+i], t.Raw)
			} else {
				err = tw.WriteTensor(keys[start+i], t.Data)
			}
			if err != nil {
				return err
			}
		}
		m.log.Debug("tensors written", "done", end, "total", len(keys))
	}

	if err := tw.Close(); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("move merged model into place: %w", err)
	}
	m.log.Info("model saved", "path", path, "tensors", len(keys))
	return nil
}

func outputDType(forced, source string) string {
	if forced == "" || !safetensors.IsFloat(source) {
		return source
	}
	return forced
}
