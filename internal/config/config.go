package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds host-side settings shared by the metalboot binaries.
type Config struct {
	// KnownJobsFile is the path to the YAML registry of job and template definitions
	// used by the manifest linter.
	KnownJobsFile string `yaml:"known_jobs_file"`
	// MountBaseDir is the directory under which scratch mount points are created.
	// Empty means the system temporary directory.
	MountBaseDir string `yaml:"mount_base_dir"`
	// MarkerFile guards against concurrent NVRAM runs on the same host.
	MarkerFile string `yaml:"marker_file"`
	// Timeout is the duration allowed for a single external command.
	Timeout time.Duration `yaml:"timeout"`
}

const (
	// DefaultConfigFilename is the default filename for metalboot settings.
	DefaultConfigFilename = "metalboot-settings.yaml"

	// DefaultMarkerFilename is the default filename of the NVRAM run marker.
	DefaultMarkerFilename = "metalboot-uefi-marker.bin"

	// DefaultTimeout is the default duration for external commands.
	// Firmware calls through efibootmgr can be slow on some boards.
	DefaultTimeout = 90 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errMountBaseNotDir is returned when mount_base_dir exists but is not a directory.
	errMountBaseNotDir = errors.New("mount base is not a directory")
)

// Load reads configuration from the provided path and validates essential fields.
// A missing file is not an error: all fields have usable defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	var cfg Config

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read settings: %w", err)
		}
	} else if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings and fills in defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.MarkerFile == "" {
		cfg.MarkerFile = filepath.Join(os.TempDir(), DefaultMarkerFilename)
	}

	if cfg.MountBaseDir == "" {
		return nil
	}

	info, err := os.Stat(cfg.MountBaseDir)
	if err != nil {
		return fmt.Errorf("invalid mount base: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%s: %w", cfg.MountBaseDir, errMountBaseNotDir)
	}

	return nil
}
