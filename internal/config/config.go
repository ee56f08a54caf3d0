package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for packrat.
type Config struct {
	// Dataset is the ZFS dataset holding the mirrored tree. The target tree
	// root defaults to /<dataset> unless TargetRoot is set.
	Dataset    string          `toml:"dataset"`
	TargetRoot string          `toml:"target_root,omitempty"`
	LogDir     string          `toml:"log_dir"`
	Database   DatabaseConfig  `toml:"database"`
	Source     SourceConfig    `toml:"source"`
	Snapshots  SnapshotsConfig `toml:"snapshots"`
	Replay     ReplayConfig    `toml:"replay"`
}

// DatabaseConfig represents configuration for the event store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// SourceConfig represents configuration for the remote content source.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type SourceConfig struct {
	Type string `toml:"type"` // "dropbox" or "s3"

	// Dropbox-specific fields (only used when Type == "dropbox")
	Token string `toml:"token,omitempty"`

	// S3 content mirror fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"`
}

// SnapshotsConfig represents configuration for the snapshot backend.
type SnapshotsConfig struct {
	Type   string `toml:"type"`   // "zfs" or "memory"
	Prefix string `toml:"prefix"` // snapshot name prefix, defaults to "dropbox"
}

// ReplayConfig holds replay engine tunables.
type ReplayConfig struct {
	Workers              int `toml:"workers"`                // concurrent fetch tasks per batch
	RetryIntervalSeconds int `toml:"retry_interval_seconds"` // fixed backoff between network retries
}

// NewConfig creates a Config for the given dataset with default settings.
func NewConfig(dataset, baseDir string) *Config {
	return &Config{
		Dataset: dataset,
		LogDir:  filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: baseDir,
		},
		Source:    SourceConfig{Type: "dropbox"},
		Snapshots: SnapshotsConfig{Type: "zfs", Prefix: "dropbox"},
	}
}

// Root returns the target tree root: TargetRoot when set, otherwise the
// dataset's default mountpoint.
func (c *Config) Root() string {
	if c.TargetRoot != "" {
		return c.TargetRoot
	}
	return "/" + c.Dataset
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
// This is an internal helper and should not be exported.
func writeToFile(path string, cfg *Config) error {
	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
