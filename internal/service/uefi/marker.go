package uefi

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/baremetal-lab/metalboot/internal/config"
	"github.com/baremetal-lab/metalboot/internal/logger"
)

const (
	// managerExecutable is the process name a stale marker points at.
	managerExecutable = "metalboot-uefi"

	// markerLifetime is the period after which a marker is considered stale:
	// no healthy NVRAM update takes longer.
	markerLifetime = 5 * time.Minute
)

// IsManageRunningNow checks presence of the marker file and attempts
// recovery if it looks stale.
func IsManageRunningNow(ctx context.Context, markerPath string) bool {
	logger.Debug(ctx, "Checking for the presence of an NVRAM run marker")

	fileInfo, err := os.Stat(markerPath)
	if err == nil {
		if time.Since(fileInfo.ModTime()) <= markerLifetime {
			return true
		}

		logger.Info(ctx, "The NVRAM run marker is too old, attempting cleanup")

		if err = terminateProcessByName(managerExecutable); err != nil {
			return true
		}

		if err = os.Remove(markerPath); err != nil {
			return true
		}

		return false
	}

	if errors.Is(err, os.ErrNotExist) {
		logger.Debug(ctx, "NVRAM run marker not found, continuing")
		return false
	}

	logger.Infof(ctx, "Unable to read NVRAM run marker: %v", err)

	return false
}

// writeMarker creates the marker file guarding this run.
func writeMarker(markerPath string) error {
	return os.WriteFile(markerPath,
		[]byte(time.Now().UTC().Format(time.RFC3339)),
		config.DefaultFilePermissions)
}

// removeMarker removes the marker file; a missing file is fine.
func removeMarker(ctx context.Context, markerPath string) {
	if err := os.Remove(markerPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WarnKV(ctx, "Unable to remove NVRAM run marker",
			"path", markerPath, "error", err)
	}
}

// terminateProcessByName tries to kill processes with the provided executable name.
func terminateProcessByName(processName string) error {
	processList, err := ps.Processes()
	if err != nil {
		return err
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() != processName {
			continue
		}

		var runningProcess *os.Process

		runningProcess, err = os.FindProcess(process.Pid())
		if err != nil {
			return err
		}

		if err = runningProcess.Kill(); err != nil {
			return err
		}
	}

	return nil
}
