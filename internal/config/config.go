// Package config handles Scribe configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/scribe/config.yaml, /etc/scribe/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "scribe", "config.yaml"))
	}

	paths = append(paths, "/etc/scribe/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Scribe configuration.
type Config struct {
	Listen       ListenConfig     `yaml:"listen"`
	Database     DatabaseConfig   `yaml:"database"`
	OpenRouter   OpenRouterConfig `yaml:"openrouter"`
	Serper       SerperConfig     `yaml:"serper"`
	Agent        AgentConfig      `yaml:"agent"`
	AllowOrigins []string         `yaml:"allow_origins"`
	LogLevel     string           `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// DatabaseConfig defines the SQLite database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// OpenRouterConfig defines the OpenRouter model endpoint settings.
type OpenRouterConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
	// BaseURL overrides the API endpoint. Useful for tests and proxies.
	BaseURL string `yaml:"base_url"`
	// HTTPReferer and Title are forwarded as the HTTP-Referer and
	// X-Title headers OpenRouter uses for app attribution.
	HTTPReferer string `yaml:"http_referer"`
	Title       string `yaml:"title"`
}

// Configured reports whether an OpenRouter API key is set.
func (c OpenRouterConfig) Configured() bool {
	return c.APIKey != ""
}

// SerperConfig defines the Serper web search provider settings.
// The search_web tool is only registered when an API key is present.
type SerperConfig struct {
	APIKey string `yaml:"api_key"`
	GL     string `yaml:"gl"` // country code for results (e.g. "us")
	HL     string `yaml:"hl"` // language code (e.g. "en")
}

// Configured reports whether a Serper API key is set.
func (c SerperConfig) Configured() bool {
	return c.APIKey != ""
}

// AgentConfig defines orchestration loop settings.
type AgentConfig struct {
	// MaxRounds bounds the number of model calls per chat turn. The
	// loop always enforces a positive bound even if the model keeps
	// requesting tools.
	MaxRounds int `yaml:"max_rounds"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen:   ListenConfig{Port: 8080},
		Database: DatabaseConfig{Path: "scribe.db"},
		OpenRouter: OpenRouterConfig{
			Model:       "google/gemini-3-flash-preview",
			HTTPReferer: "http://localhost:5173",
			Title:       "Scribe",
		},
		Serper:       SerperConfig{GL: "us", HL: "en"},
		Agent:        AgentConfig{MaxRounds: 6},
		AllowOrigins: []string{"http://localhost:5173"},
	}
}

// Validate checks the configuration for fatal problems.
func (c *Config) Validate() error {
	if c.Listen.Port <= 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("invalid listen port %d", c.Listen.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Agent.MaxRounds <= 0 {
		return fmt.Errorf("agent.max_rounds must be positive, got %d", c.Agent.MaxRounds)
	}
	return nil
}
