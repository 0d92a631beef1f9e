package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	envModelsDir  = "BLOCKMERGE_MODELS_DIR"
	envConfigPath = "BLOCKMERGE_CONFIG"

	checkpointExt = ".safetensors"
)

func resolveModelsDir(flag string) string {
	dir := strings.TrimSpace(flag)
	if dir == "" {
		dir = strings.TrimSpace(os.Getenv(envModelsDir))
	}
	return dir
}

// resolveModelPath accepts a path, or a bare name looked up in modelsDir
// with or without the .safetensors extension.
func resolveModelPath(name, modelsDir string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("model path is empty")
	}
	if fileExists(name) || modelsDir == "" || strings.ContainsRune(name, filepath.Separator) {
		return filepath.Clean(name), nil
	}
	candidates := []string{filepath.Join(modelsDir, name)}
	if !strings.EqualFold(filepath.Ext(name), checkpointExt) {
		candidates = append(candidates, filepath.Join(modelsDir, name+checkpointExt))
	}
	for _, p := range candidates {
		if fileExists(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("model %q not found in %s", name, modelsDir)
}

func resolveOutputPath(out string) (string, error) {
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("--output is required")
	}
	outPath := filepath.Clean(out)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	return outPath, nil
}

func discoverCheckpoints(dir string) ([]string, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("models directory is empty")
	}
	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("models path is not a directory: %s", dir)
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	models := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), checkpointExt) {
			continue
		}
		models = append(models, filepath.Join(dir, name))
	}
	sort.Strings(models)
	return models, nil
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

func formatModelSize(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
