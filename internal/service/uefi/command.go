package uefi

import (
	"context"
	"errors"
	"fmt"

	"github.com/baremetal-lab/metalboot/internal/config"
	"github.com/baremetal-lab/metalboot/internal/logger"
	"github.com/baremetal-lab/metalboot/internal/sysexec"
)

// Options contains inputs for the boot management entry point.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// Device is the block device holding the deployed image.
	Device string
	// ESPPartitionUUID is the partition UUID of the EFI system partition
	// recorded during deployment, used when the partition table carries no
	// ESP type (usual for whole disk images).
	ESPPartitionUUID string
}

var (
	// ErrNoBootloader is returned when the ESP carries no usable bootloader.
	ErrNoBootloader = errors.New("no EFI bootloader found on the EFI system partition")
	// errManageRunning indicates another NVRAM update is in progress on this host.
	errManageRunning = errors.New("another NVRAM update is running now")
)

// Run executes the boot management workflow for the provided device.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "metalboot-uefi")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if IsManageRunningNow(ctx, cfg.MarkerFile) {
		return errManageRunning
	}

	if err = writeMarker(cfg.MarkerFile); err != nil {
		return fmt.Errorf("write run marker: %w", err)
	}

	defer removeMarker(ctx, cfg.MarkerFile)

	manager := NewManager(sysexec.NewHostRunner(cfg.Timeout), cfg.MountBaseDir)

	updated, err := manager.ManageBoot(ctx, opts.Device, opts.ESPPartitionUUID)
	if err != nil {
		return fmt.Errorf("manage boot on %s: %w", opts.Device, err)
	}

	if !updated {
		return fmt.Errorf("%s: %w", opts.Device, ErrNoBootloader)
	}

	logger.InfoKV(ctx, "NVRAM boot records updated", "device", opts.Device)

	return nil
}
