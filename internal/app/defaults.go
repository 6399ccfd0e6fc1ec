package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - MYVC_CONFIG_PATH: config file location (default: ~/.config/myvc.toml)
//   - MYVC_HOME: base directory for myvc data (default: ~/.local/share/myvc)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking MYVC_CONFIG_PATH env var first,
// then falling back to the default ~/.config/myvc.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("MYVC_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "myvc.toml"), nil
}

// getBaseDir returns the base directory for myvc data, checking MYVC_HOME env var first,
// then falling back to the XDG default ~/.local/share/myvc.
func getBaseDir() (string, error) {
	if path := os.Getenv("MYVC_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "myvc"), nil
}

// DefaultAuthor returns the name local operations are attributed to when the
// config does not set one: $USER, then "anonymous".
func DefaultAuthor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "anonymous"
}
