package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the blockmerge configuration file (~/.config/blockmerge/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	ModelsDir string `yaml:"models_dir"`

	// Merge defaults
	Namespace          string `yaml:"namespace"`
	AllowExtrapolation *bool  `yaml:"allow_extrapolation"`
	DType              string `yaml:"dtype"`
	Workers            *int64 `yaml:"workers"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
	MaxConcurrent *int64 `yaml:"max_concurrent"`

	Presets map[string]Preset `yaml:"presets"`
}

// Preset is a named set of node inputs. Unset fields keep the flag values.
type Preset struct {
	TimeEmbed *int64    `yaml:"time_embed"`
	LabelEmb  *int64    `yaml:"label_emb"`
	Out       *int64    `yaml:"out"`
	Weights   []float64 `yaml:"weights"`
}

func configPath() string {
	if p := strings.TrimSpace(configFile); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(envConfigPath)); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "blockmerge", "config.yaml")
}

// LoadConfig reads the config file. A missing file yields a zero Config;
// a malformed one is an error so a typo does not silently change a merge.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyMergeConfig applies config file defaults to the merge flags
// when the corresponding CLI flag was not explicitly set.
func applyMergeConfig(c *cli.Command, cfg Config, dtype *string, workers *int64) {
	if cfg.ModelsDir != "" && !c.IsSet("models-path") {
		modelsPath = cfg.ModelsDir
	}
	if cfg.Namespace != "" && !c.IsSet("namespace") {
		namespace = cfg.Namespace
	}
	if cfg.AllowExtrapolation != nil && !c.IsSet("allow-extrapolation") {
		allowExtrapolation = *cfg.AllowExtrapolation
	}
	if dtype != nil && cfg.DType != "" && !c.IsSet("dtype") {
		*dtype = cfg.DType
	}
	if workers != nil && cfg.Workers != nil && !c.IsSet("workers") {
		*workers = *cfg.Workers
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string, maxConcurrent *int64) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.MaxConcurrent != nil && !c.IsSet("max-concurrent") {
		*maxConcurrent = *cfg.MaxConcurrent
	}
}
