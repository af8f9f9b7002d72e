package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// FilePermissions is the default permission mode for regular files (read/write for owner, read for others)
	FilePermissions = 0644
	// DirPermissions is the default permission mode for directories (rwxr-xr-x)
	DirPermissions = 0755

	// HomeEnv overrides the configuration directory
	HomeEnv = "INFLIGHT_HOME"
)

// Storage backends
const (
	StorageSQLite = "sqlite"
	StorageJSON   = "json"
)

var (
	// ConfigDir is the global configuration directory (~/.inflight)
	ConfigDir string

	// DatabasePath is the SQLite database file for documents and history
	DatabasePath string

	// DocumentsDir holds project and workspace files for the json backend
	DocumentsDir string

	// SettingsFile is the YAML settings file
	SettingsFile string
)

// Settings are read from config.yaml. Missing keys keep their defaults.
type Settings struct {
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	AutosaveDelay  time.Duration `yaml:"autosaveDelay"`
	Storage        string        `yaml:"storage"`
	Listen         string        `yaml:"listen"`
	Debug          bool          `yaml:"debug"`
	Project        string        `yaml:"project"`
}

// DefaultSettings returns the settings used when config.yaml is absent
func DefaultSettings() Settings {
	return Settings{
		RequestTimeout: 30 * time.Second,
		AutosaveDelay:  500 * time.Millisecond,
		Storage:        StorageSQLite,
		Listen:         "127.0.0.1:7878",
		Project:        "default",
	}
}

// Initialize sets up the configuration directories
// It creates ~/.inflight/ (or $INFLIGHT_HOME) if it doesn't exist
func Initialize() error {
	dir := os.Getenv(HomeEnv)
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".inflight")
	}
	return InitializeAt(dir)
}

// InitializeAt sets the global paths under dir and creates the directories
func InitializeAt(dir string) error {
	ConfigDir = dir
	DatabasePath = filepath.Join(ConfigDir, "inflight.db")
	DocumentsDir = filepath.Join(ConfigDir, "documents")
	SettingsFile = filepath.Join(ConfigDir, "config.yaml")

	for _, d := range []string{ConfigDir, DocumentsDir} {
		if err := os.MkdirAll(d, DirPermissions); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}

	return nil
}

// Load reads the settings file at path. A missing file yields the defaults.
func Load(path string) (Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return settings, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return settings, nil
}

// Validate checks value ranges and enumerations
func (s Settings) Validate() error {
	switch strings.ToLower(s.Storage) {
	case StorageSQLite, StorageJSON:
	default:
		return fmt.Errorf("storage must be %q or %q, got %q", StorageSQLite, StorageJSON, s.Storage)
	}
	if s.RequestTimeout <= 0 {
		return fmt.Errorf("requestTimeout must be positive")
	}
	if s.AutosaveDelay < 0 {
		return fmt.Errorf("autosaveDelay must not be negative")
	}
	if s.Project == "" {
		return fmt.Errorf("project must not be empty")
	}
	return nil
}

// Save writes settings to path as YAML
func Save(path string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, FilePermissions); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
