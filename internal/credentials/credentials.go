// Package credentials resolves the API key and endpoint for the remote
// model. Environment variables win over the credentials file so shell-local
// overrides keep working.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrMissingAPIKey is returned when neither the environment nor the
// credentials file provides a key. Fatal at startup.
var ErrMissingAPIKey = errors.New("no API key configured (set OPENAI_API_KEY or add api_key to the credentials file)")

// Credentials stores the remote endpoint authentication.
type Credentials struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// Manager handles credential storage and retrieval.
type Manager struct {
	path string
}

// NewManager creates a credential manager.
// Checks R2SLEUTH_CREDENTIALS_PATH environment variable first.
// If not set, defaults to ~/.r2sleuth/credentials.yaml.
func NewManager() *Manager {
	credPath := os.Getenv("R2SLEUTH_CREDENTIALS_PATH")
	if credPath == "" {
		credPath = filepath.Join(configDir(), "credentials.yaml")
	}
	return &Manager{path: credPath}
}

func configDir() string {
	if dir := os.Getenv("R2SLEUTH_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".r2sleuth"
	}
	return filepath.Join(home, ".r2sleuth")
}

// Load reads credentials from disk, then applies environment overrides.
// Returns ErrMissingAPIKey when no key is available from either source.
func (m *Manager) Load() (*Credentials, error) {
	creds := &Credentials{}
	data, err := os.ReadFile(m.path)
	if err == nil {
		if err := yaml.Unmarshal(data, creds); err != nil {
			return nil, fmt.Errorf("parse credentials: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		creds.APIKey = key
	}
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		creds.BaseURL = base
	}

	if creds.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	return creds, nil
}

// Save writes credentials to disk with user-only permissions.
func (m *Manager) Save(creds *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}
	data, err := yaml.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// Path returns the credentials file path.
func (m *Manager) Path() string {
	return m.path
}
