package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file. Environment variable
// references of the form ${VAR} are expanded before parsing.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	expanded := envVarPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return match
	})

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", absPath, err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Defaults returns a configuration with all defaults applied.
func Defaults() *Config {
	cfg := &Config{}
	// The API is the only caller-facing surface, so it is on unless the file
	// says otherwise. Set here rather than in applyDefaults so an explicit
	// `enabled: false` survives the post-parse defaulting pass.
	cfg.API.Enabled = true
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "foreman"
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = "INFO"
	}
	if cfg.Service.HealthInterval <= 0 {
		cfg.Service.HealthInterval = 30 * time.Second
	}
	if cfg.Service.StopGrace <= 0 {
		cfg.Service.StopGrace = 5 * time.Second
	}
	if cfg.Service.TaskTimeout <= 0 {
		cfg.Service.TaskTimeout = 120 * time.Second
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "foreman.db"
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = "127.0.0.1:8700"
	}
}

func validate(cfg *Config) error {
	if cfg.Service.HealthInterval < time.Second {
		return fmt.Errorf("service.health_interval must be at least 1s, got %s", cfg.Service.HealthInterval)
	}
	if cfg.Service.StopGrace < time.Second {
		return fmt.Errorf("service.stop_grace must be at least 1s, got %s", cfg.Service.StopGrace)
	}
	if cfg.Workers.Dir != "" {
		info, err := os.Stat(cfg.Workers.Dir)
		if err != nil {
			return fmt.Errorf("workers.dir does not exist: %s", cfg.Workers.Dir)
		}
		if !info.IsDir() {
			return fmt.Errorf("workers.dir is not a directory: %s", cfg.Workers.Dir)
		}
	}
	return nil
}
