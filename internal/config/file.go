package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk ring-membership shape the `--config` flag on
// trib-front loads: just Backs/Addrs/This, since Ready and
// Shutdown are process-lifecycle values an entrypoint always supplies
// itself, and Storage is a constructor, not data.
type FileConfig struct {
	Backs []string `yaml:"backs"`
	Addrs []string `yaml:"addrs"`
	This  int      `yaml:"this"`
}

// Path returns the config file location, respecting XDG_CONFIG_HOME and
// falling back to ~/.config/tribfs/config.yaml.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "tribfs", "config.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "tribfs", "config.yaml")
}

// Load reads path. A missing file is not an error — it returns a
// zero-value FileConfig so a caller can layer flag overrides on top.
func Load(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &fc, nil
}

// Save writes fc to path, creating directories as needed.
func (fc *FileConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(fc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
