package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
listen:
  port: 9999
database:
  path: /tmp/test.db
openrouter:
  api_key: sk-test
  model: some/model
agent:
  max_rounds: 3
log_level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Listen.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Listen.Port)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
	if cfg.OpenRouter.Model != "some/model" {
		t.Errorf("model = %q", cfg.OpenRouter.Model)
	}
	if cfg.Agent.MaxRounds != 3 {
		t.Errorf("max_rounds = %d, want 3", cfg.Agent.MaxRounds)
	}

	// Untouched fields keep their defaults.
	if cfg.Serper.GL != "us" || cfg.Serper.HL != "en" {
		t.Errorf("serper defaults = %q/%q, want us/en", cfg.Serper.GL, cfg.Serper.HL)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_OPENROUTER_KEY", "sk-from-env")

	path := writeConfig(t, `
openrouter:
  api_key: ${TEST_OPENROUTER_KEY}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OpenRouter.APIKey != "sk-from-env" {
		t.Errorf("api_key = %q, want expanded env value", cfg.OpenRouter.APIKey)
	}
	if !cfg.OpenRouter.Configured() {
		t.Error("expected Configured() = true")
	}
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		wantOK bool
	}{
		{"valid", func(c *Config) {}, true},
		{"bad port", func(c *Config) { c.Listen.Port = 0 }, false},
		{"port too high", func(c *Config) { c.Listen.Port = 70000 }, false},
		{"no database", func(c *Config) { c.Database.Path = "" }, false},
		{"zero rounds", func(c *Config) { c.Agent.MaxRounds = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantOK && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.wantOK && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestFindConfigExplicitMissing(t *testing.T) {
	if _, err := FindConfig("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing explicit path")
	}
}

func TestFindConfigExplicit(t *testing.T) {
	path := writeConfig(t, "listen:\n  port: 8080\n")
	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got != path {
		t.Errorf("path = %q, want %q", got, path)
	}
}

func TestSerperConfigured(t *testing.T) {
	c := SerperConfig{}
	if c.Configured() {
		t.Error("empty key should not be configured")
	}
	c.APIKey = "k"
	if !c.Configured() {
		t.Error("expected configured with key")
	}
}
