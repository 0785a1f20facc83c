package app

import (
	"os"
	"path/filepath"
)

// ConfigDir returns ~/.config/forgotyet/ on all platforms.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "forgotyet"), nil
}

// EnsureConfigDir creates the config directory and default config.yaml if missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return os.WriteFile(configFile, []byte(defaultConfig), 0600)
	}
	return nil
}

const defaultConfig = `# forgotyet configuration
# Run: forgotyet --help

# Backend base URL. Can also be set via FORGOTYET_API_BASE_URL or --api.
# api_base_url: http://localhost:8080

# Optional: override the SQLite database location.
# Can also be set via FORGOTYET_DB_PATH or --db-path.
# db_path: ~/.config/forgotyet/forgotyet.db

# Post-submission reconciliation polling.
# poll_interval: 1.5s
# poll_attempts: 10

# match_policy: contains   # or: exact
# record_cap_seconds: 60
# audio_device: ""
`
