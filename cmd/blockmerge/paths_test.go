package main

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDiscoverCheckpointsSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.safetensors", "a.SAFETENSORS", "ignore.ckpt", "notes.txt"} {
		touch(t, filepath.Join(dir, name))
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.safetensors"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got, err := discoverCheckpoints(dir)
	if err != nil {
		t.Fatalf("discoverCheckpoints returned error: %v", err)
	}
	want := []string{
		filepath.Join(dir, "a.SAFETENSORS"),
		filepath.Join(dir, "b.safetensors"),
	}
	if len(got) != len(want) {
		t.Fatalf("unexpected model count: got %d want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected model at %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestDiscoverCheckpointsErrors(t *testing.T) {
	if _, err := discoverCheckpoints(""); err == nil {
		t.Fatalf("expected error for empty dir")
	}
	file := filepath.Join(t.TempDir(), "model.safetensors")
	touch(t, file)
	if _, err := discoverCheckpoints(file); err == nil {
		t.Fatalf("expected error for non-directory path")
	}
}

func TestResolveModelPath(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "base.safetensors"))

	t.Run("existing path wins", func(t *testing.T) {
		p := filepath.Join(dir, "base.safetensors")
		got, err := resolveModelPath(p, "")
		if err != nil {
			t.Fatalf("resolveModelPath returned error: %v", err)
		}
		if got != p {
			t.Fatalf("got %q want %q", got, p)
		}
	})

	t.Run("bare name resolves in models dir", func(t *testing.T) {
		got, err := resolveModelPath("base", dir)
		if err != nil {
			t.Fatalf("resolveModelPath returned error: %v", err)
		}
		if want := filepath.Join(dir, "base.safetensors"); got != want {
			t.Fatalf("got %q want %q", got, want)
		}
	})

	t.Run("unknown name", func(t *testing.T) {
		if _, err := resolveModelPath("missing", dir); err == nil {
			t.Fatalf("expected error for missing model")
		}
	})

	t.Run("empty name", func(t *testing.T) {
		if _, err := resolveModelPath("  ", dir); err == nil {
			t.Fatalf("expected error for empty name")
		}
	})
}

func TestResolveModelsDirFromEnv(t *testing.T) {
	t.Setenv(envModelsDir, "/models")
	if got := resolveModelsDir(""); got != "/models" {
		t.Fatalf("got %q want /models", got)
	}
	if got := resolveModelsDir(" /flag "); got != "/flag" {
		t.Fatalf("flag should win over env, got %q", got)
	}
}

func TestResolveOutputPathCreatesDir(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "merged.safetensors")
	got, err := resolveOutputPath(out)
	if err != nil {
		t.Fatalf("resolveOutputPath returned error: %v", err)
	}
	if got != filepath.Clean(out) {
		t.Fatalf("got %q want %q", got, out)
	}
	if _, err := os.Stat(filepath.Dir(got)); err != nil {
		t.Fatalf("expected output directory to exist: %v", err)
	}
	if _, err := resolveOutputPath(""); err == nil {
		t.Fatalf("expected error for empty output")
	}
}

func TestFormatModelSize(t *testing.T) {
	cases := map[int64]string{
		512:                    "512 B",
		2048:                   "2.0 KB",
		5 * 1024 * 1024:        "5.0 MB",
		6_938_000_000:          "6.5 GB",
		3 * 1024 * 1024 * 1024: "3.0 GB",
	}
	for in, want := range cases {
		if got := formatModelSize(in); got != want {
			t.Fatalf("formatModelSize(%d): got %q want %q", in, got, want)
		}
	}
}
