// Package config loads the optional .cargox.yaml project configuration.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tobyg/cargox/internal/errors"
)

// FileName is the project configuration file looked for in the project
// directory and the user's home directory.
const FileName = ".cargox.yaml"

// Config holds defaults applied when the corresponding CLI flag is absent.
type Config struct {
	// Quiet suppresses tool output flags by default.
	Quiet bool `yaml:"quiet"`
	// Release builds in release mode by default.
	Release bool `yaml:"release"`
	// Workspace forces workspace collection mode.
	Workspace bool `yaml:"workspace"`
	// Concurrency bounds the collection worker pool; 0 means the number of
	// CPUs.
	Concurrency int `yaml:"concurrency"`
	// PluginDirs lists extra plugin directories searched after the defaults.
	PluginDirs []string `yaml:"plugin_dirs"`
	// HistoryPath overrides the run-history file location.
	HistoryPath string `yaml:"history_path"`
}

// Default returns the zero configuration.
func Default() Config {
	return Config{}
}

// Load reads the configuration for projectDir: the project file wins over
// the home-directory file; absence of both yields the default. A present but
// malformed file is a configuration error.
func Load(projectDir string) (Config, error) {
	for _, path := range candidates(projectDir) {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Config{}, errors.Configf("failed to read %s: %v", path, err)
		}
		var cfg Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Configf("failed to parse %s: %v", path, err)
		}
		if cfg.Concurrency < 0 {
			return Config{}, errors.Configf("%s: concurrency must not be negative", path)
		}
		return cfg, nil
	}
	return Default(), nil
}

func candidates(projectDir string) []string {
	paths := []string{filepath.Join(projectDir, FileName)}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, FileName))
	}
	return paths
}
