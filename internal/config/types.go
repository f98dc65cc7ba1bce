package config

import "time"

// Config represents the complete foreman configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Store   StoreConfig   `yaml:"store"`
	API     APIConfig     `yaml:"api"`
	Workers WorkersConfig `yaml:"workers"`
}

// ServiceConfig defines core orchestrator settings.
type ServiceConfig struct {
	Name           string        `yaml:"name"`
	LogLevel       string        `yaml:"log_level"`
	HealthInterval time.Duration `yaml:"health_interval"`
	StopGrace      time.Duration `yaml:"stop_grace"`
	TaskTimeout    time.Duration `yaml:"task_timeout"`
}

// StoreConfig defines persistence settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	// Enabled defaults to true; see Defaults.
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// APIKey is an optional bearer token; empty disables auth.
	APIKey string `yaml:"api_key"`
}

// WorkersConfig defines worker process defaults.
type WorkersConfig struct {
	// Dir is the default working directory for spawned workers when a
	// service descriptor does not set one.
	Dir string `yaml:"dir"`
}
