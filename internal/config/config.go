// Package config handles Anne configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/anne/config.yaml, /etc/anne/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "anne", "config.yaml"))
	}

	paths = append(paths, "/etc/anne/config.yaml")
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

// Config holds all Anne configuration.
type Config struct {
	Listen      ListenConfig   `yaml:"listen"`
	Model       ModelConfig    `yaml:"model"`
	Memory      MemoryConfig   `yaml:"memory"`
	Trends      TrendsConfig   `yaml:"trends"`
	Telegram    TelegramConfig `yaml:"telegram"`
	DataDir     string         `yaml:"data_dir"`
	PersonaFile string         `yaml:"persona_file"`
	LogLevel    string         `yaml:"log_level"`
}

// ListenConfig defines the HTTP server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ModelConfig defines the completion provider settings.
type ModelConfig struct {
	// Provider selects the completion backend: "huggingface" or "ollama".
	Provider string `yaml:"provider"`
	// Name is the model identifier sent to the provider.
	Name string `yaml:"name"`
	// Token authenticates against the Hugging Face router. Supports
	// ${HF_TOKEN}-style env expansion.
	Token string `yaml:"token"`
	// BaseURL overrides the provider endpoint (Ollama host, or a
	// self-hosted OpenAI-compatible gateway).
	BaseURL string `yaml:"base_url"`
	// FallbackBaseURL, when set, configures a second provider that is
	// tried after the primary one fails.
	FallbackBaseURL string `yaml:"fallback_base_url"`
	// MaxTokens caps the completion length (default 500).
	MaxTokens int `yaml:"max_tokens"`
	// Temperature is passed through to the provider when non-zero.
	Temperature float64 `yaml:"temperature"`
}

// MemoryConfig defines conversation memory settings.
type MemoryConfig struct {
	// Backend selects the store: "sqlite" (durable, default) or
	// "memory" (process-local, lost on restart).
	Backend string `yaml:"backend"`
	// Window is how many recent turns the chat pipeline replays
	// (default 8).
	Window int `yaml:"window"`
	// Retention caps how many turns the in-memory backend keeps per
	// session (default 40). The sqlite backend keeps everything.
	Retention int `yaml:"retention"`
}

// TrendsConfig defines the ambient trending-topics enrichment.
type TrendsConfig struct {
	Enabled bool `yaml:"enabled"`
	// FeedURL is an RSS or Atom feed of trending topics.
	FeedURL string `yaml:"feed_url"`
	// PageURL is an HTML page to extract topics from, used when no
	// feed is available.
	PageURL string `yaml:"page_url"`
	// TTLHours is how long a snapshot stays fresh (default 24).
	TTLHours int `yaml:"ttl_hours"`
	// MaxItems caps how many topics are injected into the prompt
	// (default 10).
	MaxItems int `yaml:"max_items"`
}

// TelegramConfig defines the Telegram bot bridge.
type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	// PollTimeoutSec is the getUpdates long-poll timeout (default 30).
	PollTimeoutSec int `yaml:"poll_timeout_sec"`
	// RateLimit is messages per sender per minute; 0 = unlimited.
	RateLimit int `yaml:"rate_limit"`
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
		Listen:  ListenConfig{Port: 8080},
		DataDir: ".",
		Model: ModelConfig{
			Provider:  "huggingface",
			Name:      "meta-llama/Llama-3.3-70B-Instruct",
			MaxTokens: 500,
		},
		Memory: MemoryConfig{
			Backend:   "sqlite",
			Window:    8,
			Retention: 40,
		},
		Trends: TrendsConfig{
			TTLHours: 24,
			MaxItems: 10,
		},
		Telegram: TelegramConfig{
			PollTimeoutSec: 30,
		},
	}
}
