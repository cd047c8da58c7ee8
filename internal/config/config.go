package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultModel is used when the config file names none.
	DefaultModel = "gpt-4"
	// DefaultBaseURL points at the OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"

	defaultTimeoutSeconds  = 60
	defaultMaxAttempts     = 3
	defaultThinkingBudget  = 8192
	defaultResultTruncChar = 30000
)

// Config captures the tunable runtime settings for the agent.
type Config struct {
	Model                 string `yaml:"model"`
	BaseURL               string `yaml:"base_url"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	MaxAttempts           int    `yaml:"max_attempts"`
	DisableThinking       bool   `yaml:"disable_thinking"`
	ThinkingBudgetTokens  int    `yaml:"thinking_budget_tokens"`
	ResultTruncateLimit   int    `yaml:"result_truncate_limit"`
	SystemPrompt          string `yaml:"system_prompt"`
	SessionLogPath        string `yaml:"session_log_path"`
	LogPath               string `yaml:"log_path"`
}

// GetConfigDir returns the directory holding config, credentials, and logs.
func GetConfigDir() string {
	if dir := os.Getenv("R2SLEUTH_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".r2sleuth"
	}
	return filepath.Join(home, ".r2sleuth")
}

// LoadUserConfig loads configuration from ~/.r2sleuth/config.yaml.
// Checks R2SLEUTH_CONFIG_PATH environment variable first.
// If the file doesn't exist, returns defaults.
func LoadUserConfig() (Config, error) {
	configPath := os.Getenv("R2SLEUTH_CONFIG_PATH")
	if configPath == "" {
		configPath = filepath.Join(GetConfigDir(), "config.yaml")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		var cfg Config
		cfg.applyDefaults()
		return cfg, nil
	}
	return Load(configPath)
}

// Load reads and validates the config file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = defaultTimeoutSeconds
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.ThinkingBudgetTokens <= 0 {
		c.ThinkingBudgetTokens = defaultThinkingBudget
	}
	if c.ResultTruncateLimit <= 0 {
		c.ResultTruncateLimit = defaultResultTruncChar
	}
	if c.SessionLogPath == "" {
		c.SessionLogPath = filepath.Join(GetConfigDir(), "sessions.db")
	}
	if c.LogPath == "" {
		c.LogPath = filepath.Join(GetConfigDir(), "r2sleuth.log")
	}
}

// RequestTimeout converts the per-attempt timeout to a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
