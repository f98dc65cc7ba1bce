package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "foreman.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, "service:\n  name: test-orchestrator\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Service.Name != "test-orchestrator" {
		t.Errorf("name = %q", cfg.Service.Name)
	}
	if cfg.Service.LogLevel != "INFO" {
		t.Errorf("log_level default = %q, want INFO", cfg.Service.LogLevel)
	}
	if cfg.Service.HealthInterval != 30*time.Second {
		t.Errorf("health_interval default = %s, want 30s", cfg.Service.HealthInterval)
	}
	if cfg.Service.StopGrace != 5*time.Second {
		t.Errorf("stop_grace default = %s, want 5s", cfg.Service.StopGrace)
	}
	if cfg.Service.TaskTimeout != 120*time.Second {
		t.Errorf("task_timeout default = %s, want 120s", cfg.Service.TaskTimeout)
	}
	if cfg.Store.Path != "foreman.db" {
		t.Errorf("store path default = %q", cfg.Store.Path)
	}
	if cfg.API.Listen != "127.0.0.1:8700" {
		t.Errorf("api listen default = %q", cfg.API.Listen)
	}
	if !cfg.API.Enabled {
		t.Errorf("api not enabled by default")
	}
}

func TestLoadHonorsExplicitAPIDisable(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, "api:\n  enabled: false\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.Enabled {
		t.Errorf("explicit enabled: false was overridden")
	}
}

func TestLoadFullConfig(t *testing.T) {
	t.Parallel()

	workersDir := t.TempDir()
	cfg, err := Load(writeConfig(t, `
service:
  name: prod-foreman
  log_level: DEBUG
  health_interval: 10s
  stop_grace: 3s
  task_timeout: 45s
store:
  path: /var/lib/foreman/state.db
api:
  enabled: true
  listen: 0.0.0.0:9000
  api_key: sekrit
workers:
  dir: `+workersDir+"\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Service.HealthInterval != 10*time.Second || cfg.Service.StopGrace != 3*time.Second {
		t.Errorf("durations not parsed: %+v", cfg.Service)
	}
	if cfg.Service.TaskTimeout != 45*time.Second {
		t.Errorf("task_timeout = %s", cfg.Service.TaskTimeout)
	}
	if !cfg.API.Enabled || cfg.API.Listen != "0.0.0.0:9000" || cfg.API.APIKey != "sekrit" {
		t.Errorf("api config not parsed: %+v", cfg.API)
	}
	if cfg.Workers.Dir != workersDir {
		t.Errorf("workers dir = %q", cfg.Workers.Dir)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("FOREMAN_TEST_API_KEY", "from-env")

	cfg, err := Load(writeConfig(t, "api:\n  api_key: ${FOREMAN_TEST_API_KEY}\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.APIKey != "from-env" {
		t.Errorf("api_key = %q, want from-env", cfg.API.APIKey)
	}
}

func TestLoadLeavesUnsetEnvVarsIntact(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, "api:\n  api_key: ${FOREMAN_TEST_UNSET_VAR}\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.APIKey != "${FOREMAN_TEST_UNSET_VAR}" {
		t.Errorf("api_key = %q", cfg.API.APIKey)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "health interval too small",
			content: "service:\n  health_interval: 100ms\n",
			wantErr: "health_interval",
		},
		{
			name:    "stop grace too small",
			content: "service:\n  stop_grace: 10ms\n",
			wantErr: "stop_grace",
		},
		{
			name:    "workers dir missing",
			content: "workers:\n  dir: /no/such/dir\n",
			wantErr: "workers.dir",
		},
		{
			name:    "malformed yaml",
			content: "service: [not a mapping\n",
			wantErr: "parse",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Load err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
