// Package config loads the catgraph CLI's YAML configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config is the on-disk configuration for the catgraph CLI.
type Config struct {
	DataDir     string `yaml:"dataDir"`
	NumThreads  int    `yaml:"numThreads"`
	History     int    `yaml:"history"` // 0, N, or -1 for full history
	Order       string `yaml:"order"`   // "breadth_first" or "depth_first"
	Quiet       bool   `yaml:"quiet"`
	NoRepeat    bool   `yaml:"noRepeatHistory"`
	IgnoreFails bool   `yaml:"ignoreLoadFailure"`
}

// Load reads path and fills in defaults for any zero-valued field. A missing
// file is not an error; Load returns the defaulted Config as if the file
// were empty, matching the CLI's "works with zero configuration" posture.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = "./catgraph-data"
	}
	if cfg.NumThreads == 0 {
		cfg.NumThreads = 1
	}
	if cfg.Order == "" {
		cfg.Order = "breadth_first"
	}

	return cfg, nil
}
