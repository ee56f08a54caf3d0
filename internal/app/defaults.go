package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - PACKRAT_CONFIG_PATH: config file location (default: ~/.config/packrat.toml)
//   - PACKRAT_HOME: base directory for packrat data (default: ~/.local/share/packrat)
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

// getConfigPath returns the config file path, checking PACKRAT_CONFIG_PATH
// env var first, then falling back to the default ~/.config/packrat.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("PACKRAT_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "packrat.toml"), nil
}

// getBaseDir returns the base directory for packrat data, checking
// PACKRAT_HOME env var first, then falling back to the XDG default
// ~/.local/share/packrat.
func getBaseDir() (string, error) {
	if path := os.Getenv("PACKRAT_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "packrat"), nil
}
