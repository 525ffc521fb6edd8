package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestValidate checks defaults and mount base validation.
func TestValidate(t *testing.T) {
	t.Parallel()

	require.Error(t, Validate(nil))

	// Defaults are filled in.
	cfg := new(Config)
	require.NoError(t, Validate(cfg))
	require.Equal(t, DefaultTimeout, cfg.Timeout)
	require.NotEmpty(t, cfg.MarkerFile)

	// Mount base must be an existing directory.
	cfg = &Config{
		MountBaseDir: filepath.Join(t.TempDir(), "missing"),
	}
	require.Error(t, Validate(cfg))

	cfg = &Config{
		MountBaseDir: t.TempDir(),
	}
	require.NoError(t, Validate(cfg))
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	cfg := &Config{
		KnownJobsFile: "zuul.d/jobs.yaml",
		MountBaseDir:  dir,
	}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.KnownJobsFile, loaded.KnownJobsFile)
	require.Equal(t, cfg.MountBaseDir, loaded.MountBaseDir)

	// File exists.
	_, err = os.Stat(path)
	require.NoError(t, err)
}

// TestLoadMissingFile verifies that a missing settings file yields defaults.
func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultTimeout, cfg.Timeout)
}
