package config

import (
	"os"
	"path/filepath"
)

// DefaultConfig returns the default configuration with the built-in
// conversion agents and runner settings.
func DefaultConfig() *PorterConfig {
	return &PorterConfig{
		Agents: map[string]AgentConfig{
			"mod_analyzer":       {Type: "analysis"},
			"conversion_planner": {Type: "planning"},
			"feature_translator": {Type: "translation"},
			"asset_converter":    {Type: "asset_conversion"},
			"addon_packager":     {Type: "packaging"},
			"addon_validator":    {Type: "validation"},
		},
		Runner: RunnerConfig{
			MaxWorkers:     4,
			MaxRetries:     2,
			RetryInitialMS: 100,
			RetryMaxMS:     10000,
		},
		Storage: StorageConfig{
			DBPath: DefaultDBPath(),
		},
	}
}

// DefaultDBPath returns the conventional run archive location,
// ~/.porter/runs.db, falling back to a relative path when the home
// directory cannot be resolved.
func DefaultDBPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".porter", "runs.db")
	}
	return filepath.Join(homeDir, ".porter", "runs.db")
}
