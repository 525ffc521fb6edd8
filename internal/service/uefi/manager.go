package uefi

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/baremetal-lab/metalboot/internal/logger"
	"github.com/baremetal-lab/metalboot/internal/sysexec"
)

const (
	// umountAttempts is how many times unmounting the ESP is tried.
	umountAttempts = 3
	// umountRetryDelay is the pause between unmount attempts.
	umountRetryDelay = time.Second
	// mountPointPermissions is the mode for the scratch mount point.
	mountPointPermissions = 0o755
)

// ErrESPNotFound is returned when no EFI system partition can be located.
// This is the usual failure mode for images that are not UEFI compatible.
var ErrESPNotFound = errors.New("no EFI partition could be detected")

// Manager drives the boot entry update flow on top of a command runner.
type Manager struct {
	// runner executes the host commands.
	runner sysexec.Runner
	// mountBase is the parent for scratch mount points; empty means the
	// system temporary directory.
	mountBase string
}

// NewManager creates a manager using the provided runner and scratch base.
func NewManager(runner sysexec.Runner, mountBase string) *Manager {
	return &Manager{
		runner:    runner,
		mountBase: mountBase,
	}
}

// ManageBoot checks the device for valid EFI bootloaders and updates the
// firmware NVRAM records accordingly.
//
// The ESP is found by partition type, falling back to the partition UUID
// recorded during deployment (usual for whole-disk images). It returns true
// when records were written and false when the ESP carries no bootloader,
// in which case the caller may populate the partition instead.
func (m *Manager) ManageBoot(ctx context.Context, device, espPartitionUUID string) (updated bool, err error) {
	logger.Debug(ctx, "Attempting UEFI loader autodetection and NVRAM record setup")

	// Force the kernel to reread the partition table first: the device was
	// just written and the table may be stale.
	if err = m.rescanPartitionTable(ctx, device); err != nil {
		return false, fmt.Errorf("rescan %s: %w", device, err)
	}

	partition, found, err := m.findESPByType(ctx, device)
	if err != nil {
		return false, err
	}

	if !found && espPartitionUUID != "" {
		partition, found, err = m.findPartitionByUUID(ctx, device, espPartitionUUID)
		if err != nil {
			return false, err
		}
	}

	if !found {
		return false, fmt.Errorf(
			"%w on device %s and no EFI partition UUID was recorded during deployment "+
				"(often the case for whole disk images); is the image UEFI compatible?",
			ErrESPNotFound, device)
	}

	scratch, err := os.MkdirTemp(m.mountBase, "metalboot-esp-")
	if err != nil {
		return false, fmt.Errorf("create scratch directory: %w", err)
	}

	mountPoint := filepath.Join(scratch, "boot", "efi")
	if err = os.MkdirAll(mountPoint, mountPointPermissions); err != nil {
		m.removeScratch(ctx, scratch)
		return false, fmt.Errorf("create mount point: %w", err)
	}

	partitionDev := partitionDevice(device, partition)

	if _, err = m.runner.Run(ctx, sysexec.Command{
		Name: "mount",
		Args: []string{partitionDev, mountPoint},
	}); err != nil {
		// Nothing was mounted, so the scratch tree can go right away.
		m.removeScratch(ctx, scratch)
		return false, fmt.Errorf("mount %s: %w", partitionDev, err)
	}

	defer func() {
		if cleanupErr := m.cleanup(ctx, mountPoint, scratch); cleanupErr != nil && err == nil {
			err = cleanupErr
			updated = false
		}
	}()

	loaders, err := scanBootloaders(ctx, mountPoint)
	if err != nil {
		return false, fmt.Errorf("scan %s: %w", mountPoint, err)
	}

	if len(loaders) == 0 {
		// Nothing to point the firmware at; the caller may fall back to
		// populating the partition.
		logger.Warn(ctx, "Empty EFI partition detected")
		return false, nil
	}

	if err = m.reconcileNVRAM(ctx, device, partition, mountPoint, loaders); err != nil {
		return false, err
	}

	return true, nil
}

// cleanup unmounts the ESP and removes the scratch directory. The unmount is
// retried because the firmware tooling may briefly hold the mount busy.
func (m *Manager) cleanup(ctx context.Context, mountPoint, scratch string) error {
	logger.Debug(ctx, "Executing boot management clean-up")

	if _, err := m.runner.Run(ctx, sysexec.Command{
		Name:       "umount",
		Args:       []string{mountPoint},
		Attempts:   umountAttempts,
		RetryDelay: umountRetryDelay,
	}); err != nil {
		logger.ErrorKV(ctx, "Unmounting EFI system partition failed",
			"mount_point", mountPoint, "attempts", umountAttempts, "error", err)

		return fmt.Errorf("umount %s: %w", mountPoint, err)
	}

	if _, err := m.runner.Run(ctx, sysexec.Command{Name: "sync"}); err != nil {
		// Without a completed sync the scratch directory is left in place.
		logger.WarnKV(ctx, "Unable to sync before scratch removal",
			"path", scratch, "error", err)

		return nil
	}

	m.removeScratch(ctx, scratch)

	return nil
}

// removeScratch deletes the scratch mount tree, logging instead of failing.
func (m *Manager) removeScratch(ctx context.Context, scratch string) {
	if err := os.RemoveAll(scratch); err != nil {
		logger.WarnKV(ctx, "Unable to remove scratch directory",
			"path", scratch, "error", err)
	}
}

// rescanPartitionTable rereads the partition table and waits for device
// events to settle. Settling is best effort.
func (m *Manager) rescanPartitionTable(ctx context.Context, device string) error {
	if _, err := m.runner.Run(ctx, sysexec.Command{
		Name: "partprobe",
		Args: []string{device},
	}); err != nil {
		return err
	}

	if _, err := m.runner.Run(ctx, sysexec.Command{
		Name: "udevadm",
		Args: []string{"settle"},
	}); err != nil {
		logger.WarnKV(ctx, "Device events did not settle", "device", device, "error", err)
	}

	return nil
}
