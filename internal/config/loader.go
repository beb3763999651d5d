package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): environment variables,
// project config, global config, defaults. Missing files are not
// errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*PorterConfig, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.porter/config.json
// Project: .porter/config.json (relative to cwd)
func LoadDefault() (*PorterConfig, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".porter", "config.json")
	projectPath := filepath.Join(".porter", "config.json")

	return Load(globalPath, projectPath)
}

// mergeConfigFile reads a JSON config file and merges it into the base
// config. Missing files are silently skipped.
func mergeConfigFile(base *PorterConfig, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded PorterConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	for key, agent := range loaded.Agents {
		base.Agents[key] = agent
	}

	if loaded.Runner.MaxWorkers > 0 {
		base.Runner.MaxWorkers = loaded.Runner.MaxWorkers
	}
	if loaded.Runner.MaxRetries > 0 {
		base.Runner.MaxRetries = loaded.Runner.MaxRetries
	}
	if loaded.Runner.RetryInitialMS > 0 {
		base.Runner.RetryInitialMS = loaded.Runner.RetryInitialMS
	}
	if loaded.Runner.RetryMaxMS > 0 {
		base.Runner.RetryMaxMS = loaded.Runner.RetryMaxMS
	}
	if loaded.Storage.DBPath != "" {
		base.Storage.DBPath = loaded.Storage.DBPath
	}

	return nil
}
