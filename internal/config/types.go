package config

// AgentConfig defines one conversion agent: which agent type handles it
// and an optional model override for backends that accept one.
type AgentConfig struct {
	Type  string `json:"type"`            // Agent type matching the runner registry: "analysis", "planning", ...
	Model string `json:"model,omitempty"` // Model override passed through to the agent backend
}

// RunnerConfig controls scheduling and retry behavior. Environment
// variables override file values.
type RunnerConfig struct {
	MaxWorkers     int `json:"max_workers" env:"PORTER_MAX_WORKERS"`
	MaxRetries     int `json:"max_retries" env:"PORTER_MAX_RETRIES"`
	RetryInitialMS int `json:"retry_initial_ms" env:"PORTER_RETRY_INITIAL_MS"`
	RetryMaxMS     int `json:"retry_max_ms" env:"PORTER_RETRY_MAX_MS"`
}

// StorageConfig controls where run archives are stored.
type StorageConfig struct {
	DBPath string `json:"db_path" env:"PORTER_DB_PATH"`
}

// PorterConfig is the top-level configuration.
type PorterConfig struct {
	Agents  map[string]AgentConfig `json:"agents"`
	Runner  RunnerConfig           `json:"runner"`
	Storage StorageConfig          `json:"storage"`
}
