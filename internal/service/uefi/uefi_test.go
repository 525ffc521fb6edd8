package uefi

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"

	"github.com/baremetal-lab/metalboot/internal/sysexec"
)

// fakeRunner records commands and replies with canned output.
// Responses are keyed by the full command line, falling back to the
// executable name; unknown commands succeed with empty output.
type fakeRunner struct {
	mu       sync.Mutex
	calls    []string
	stdout   map[string]string
	failures map[string]error
}

// Run implements sysexec.Runner.
func (f *fakeRunner) Run(_ context.Context, cmd sysexec.Command) (*sysexec.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	full := cmd.String()
	f.calls = append(f.calls, full)

	for _, key := range []string{full, cmd.Name} {
		if err, ok := f.failures[key]; ok {
			return nil, err
		}

		if out, ok := f.stdout[key]; ok {
			return &sysexec.Result{Stdout: out}, nil
		}
	}

	return &sysexec.Result{}, nil
}

// callsMatching returns recorded command lines with the provided prefix.
func (f *fakeRunner) callsMatching(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []string

	for _, call := range f.calls {
		if strings.HasPrefix(call, prefix) {
			matched = append(matched, call)
		}
	}

	return matched
}

// encodeUTF16 encodes s as UTF-16LE with a BOM, the on-disk format of
// BOOT*.CSV pointer files.
func encodeUTF16(t *testing.T, s string) []byte {
	t.Helper()

	encoded, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).
		NewEncoder().Bytes([]byte(s))
	require.NoError(t, err)

	return encoded
}

const sampleLsblk = `NAME="sda" PARTTYPE="" PARTUUID=""
NAME="sda1" PARTTYPE="C12A7328-F81F-11D2-BA4B-00A0C93EC93B" PARTUUID="6f5c08e5-3f50-4d10-9f41-e65d9d93b552"
NAME="sda2" PARTTYPE="0fc63daf-8483-4772-8e79-3d69d8477de4" PARTUUID="a3f1de55-11ae-4e41-b3f1-dc9f1ee9e0f6"
`

// TestPartitionDevice checks the NVMe-style naming rule.
func TestPartitionDevice(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/dev/sda1", partitionDevice("/dev/sda", 1))
	require.Equal(t, "/dev/nvme0n1p2", partitionDevice("/dev/nvme0n1", 2))
	require.Equal(t, "/dev/md127p3", partitionDevice("/dev/md127", 3))
}

// TestFindESPByType verifies type-GUID lookup, case-insensitively.
func TestFindESPByType(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{stdout: map[string]string{"lsblk": sampleLsblk}}
	manager := NewManager(runner, "")

	partition, found, err := manager.findESPByType(context.Background(), "/dev/sda")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 1, partition)
}

// TestFindESPByTypeAbsent verifies the not-found result without an error.
func TestFindESPByTypeAbsent(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{stdout: map[string]string{
		"lsblk": `NAME="vda" PARTTYPE="" PARTUUID=""` + "\n",
	}}
	manager := NewManager(runner, "")

	_, found, err := manager.findESPByType(context.Background(), "/dev/vda")
	require.NoError(t, err)
	require.False(t, found)
}

// TestFindPartitionByUUID verifies the recorded-UUID fallback.
func TestFindPartitionByUUID(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{stdout: map[string]string{"lsblk": sampleLsblk}}
	manager := NewManager(runner, "")

	partition, found, err := manager.findPartitionByUUID(context.Background(),
		"/dev/sda", "A3F1DE55-11AE-4E41-B3F1-DC9F1EE9E0F6")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 2, partition)
}

// TestScanBootloaders covers executability filtering and CSV short-circuiting.
func TestScanBootloaders(t *testing.T) {
	t.Parallel()

	t.Run("executable loaders only", func(t *testing.T) {
		t.Parallel()

		root := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(root, "EFI", "BOOT"), 0o755))
		require.NoError(t, os.WriteFile(
			filepath.Join(root, "EFI", "BOOT", "BOOTX64.EFI"), []byte("x"), 0o755))
		require.NoError(t, os.WriteFile(
			filepath.Join(root, "EFI", "BOOT", "BOOTAA64.EFI"), []byte("x"), 0o644))
		require.NoError(t, os.WriteFile(
			filepath.Join(root, "EFI", "BOOT", "README"), []byte("x"), 0o755))

		loaders, err := scanBootloaders(context.Background(), root)
		require.NoError(t, err)
		require.Equal(t, []string{"EFI/BOOT/BOOTX64.EFI"}, loaders)
	})

	t.Run("csv pointer is authoritative", func(t *testing.T) {
		t.Parallel()

		root := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(root, "EFI", "BOOT"), 0o755))
		require.NoError(t, os.WriteFile(
			filepath.Join(root, "EFI", "BOOT", "BOOTX64.EFI"), []byte("x"), 0o755))
		require.NoError(t, os.MkdirAll(filepath.Join(root, "EFI", "ubuntu"), 0o755))
		require.NoError(t, os.WriteFile(
			filepath.Join(root, "EFI", "ubuntu", "BOOTX64.CSV"),
			encodeUTF16(t, "shimx64.efi,ubuntu,,This is the boot entry for ubuntu\n"), 0o644))

		loaders, err := scanBootloaders(context.Background(), root)
		require.NoError(t, err)
		require.Equal(t, []string{"EFI/ubuntu/BOOTX64.CSV"}, loaders)
	})

	t.Run("empty partition", func(t *testing.T) {
		t.Parallel()

		loaders, err := scanBootloaders(context.Background(), t.TempDir())
		require.NoError(t, err)
		require.Empty(t, loaders)
	})
}

// TestDecodeLoaderCSV verifies the UTF-16 pointer file format.
func TestDecodeLoaderCSV(t *testing.T) {
	t.Parallel()

	loaderFile, label, err := decodeLoaderCSV(
		encodeUTF16(t, "shimx64.efi,ubuntu,,This is the boot entry for ubuntu\n"))
	require.NoError(t, err)
	require.Equal(t, "shimx64.efi", loaderFile)
	require.Equal(t, "ubuntu", label)

	_, _, err = decodeLoaderCSV(encodeUTF16(t, "no-fields-here"))
	require.ErrorIs(t, err, errLoaderCSVShape)
}

const sampleEFIBootmgr = `BootCurrent: 0004
Timeout: 1 seconds
BootOrder: 0004,0002,0000
Boot0000* ubuntu	HD(1,GPT,6f5c08e5)/File(\EFI\ubuntu\shimx64.efi)
Boot0002* UEFI: Built-in EFI Shell	VenMedia(5023b95c)
Boot0004* metalboot1	HD(1,GPT,6f5c08e5)/File(\EFI\BOOT\BOOTX64.EFI)
`

// TestParseBootEntries verifies NVRAM record extraction from efibootmgr output.
func TestParseBootEntries(t *testing.T) {
	t.Parallel()

	entries := parseBootEntries(sampleEFIBootmgr)
	require.Len(t, entries, 3)
	require.Equal(t, "0000", entries[0].Number)
	require.Contains(t, entries[0].Label, "ubuntu")
	require.Equal(t, "0004", entries[2].Number)
}

// TestReconcileNVRAM verifies duplicate removal and record creation order.
func TestReconcileNVRAM(t *testing.T) {
	t.Parallel()

	mountPoint := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(mountPoint, "EFI", "ubuntu"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(mountPoint, "EFI", "ubuntu", "BOOTX64.CSV"),
		encodeUTF16(t, "shimx64.efi,ubuntu,,This is the boot entry for ubuntu\n"), 0o644))

	runner := &fakeRunner{stdout: map[string]string{
		"efibootmgr -v": sampleEFIBootmgr,
	}}
	manager := NewManager(runner, "")

	err := manager.reconcileNVRAM(context.Background(), "/dev/sda", 1, mountPoint,
		[]string{"EFI/ubuntu/BOOTX64.CSV"})
	require.NoError(t, err)

	// The colliding record is removed before the new one is created.
	deletes := runner.callsMatching("efibootmgr -b")
	require.Equal(t, []string{"efibootmgr -b 0000 -B"}, deletes)

	creates := runner.callsMatching("efibootmgr -v -c")
	require.Equal(t, []string{
		`efibootmgr -v -c -d /dev/sda -p 1 -w -L ubuntu -l \EFI\ubuntu\shimx64.efi`,
	}, creates)
}

// TestReconcileNVRAMPlainLoaders verifies sequential labels for plain loaders.
func TestReconcileNVRAMPlainLoaders(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{stdout: map[string]string{
		"efibootmgr -v": "BootOrder: 0000\n",
	}}
	manager := NewManager(runner, "")

	err := manager.reconcileNVRAM(context.Background(), "/dev/nvme0n1", 1, t.TempDir(),
		[]string{"EFI/BOOT/BOOTX64.EFI", "EFI/centos/grubx64.efi"})
	require.NoError(t, err)

	require.Empty(t, runner.callsMatching("efibootmgr -b"))

	creates := runner.callsMatching("efibootmgr -v -c")
	require.Len(t, creates, 2)
	require.Contains(t, creates[0], `-L metalboot1 -l \EFI\BOOT\BOOTX64.EFI`)
	require.Contains(t, creates[1], `-L metalboot2 -l \EFI\centos\grubx64.efi`)
}

// TestManageBootEmptyESP verifies the warn-and-return-false path with cleanup.
func TestManageBootEmptyESP(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{stdout: map[string]string{"lsblk": sampleLsblk}}
	manager := NewManager(runner, t.TempDir())

	updated, err := manager.ManageBoot(context.Background(), "/dev/sda", "")
	require.NoError(t, err)
	require.False(t, updated)

	// The flow rescans, mounts and always cleans up.
	require.Len(t, runner.callsMatching("partprobe /dev/sda"), 1)
	require.Len(t, runner.callsMatching("mount /dev/sda1 "), 1)
	require.Len(t, runner.callsMatching("umount "), 1)
	require.Len(t, runner.callsMatching("sync"), 1)
}

// TestManageBootMountFailure verifies the scratch tree is removed when the
// partition never mounts.
func TestManageBootMountFailure(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	runner := &fakeRunner{
		stdout:   map[string]string{"lsblk": sampleLsblk},
		failures: map[string]error{"mount": errors.New("unknown filesystem type")},
	}
	manager := NewManager(runner, base)

	updated, err := manager.ManageBoot(context.Background(), "/dev/sda", "")
	require.Error(t, err)
	require.False(t, updated)

	leftovers, globErr := filepath.Glob(filepath.Join(base, "metalboot-esp-*"))
	require.NoError(t, globErr)
	require.Empty(t, leftovers)

	// No unmount is attempted for a mount that never happened.
	require.Empty(t, runner.callsMatching("umount"))
}

// TestManageBootNoESP verifies the typed error when no ESP can be located.
func TestManageBootNoESP(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{stdout: map[string]string{
		"lsblk": `NAME="vda" PARTTYPE="" PARTUUID=""` + "\n",
	}}
	manager := NewManager(runner, t.TempDir())

	_, err := manager.ManageBoot(context.Background(), "/dev/vda", "")
	require.ErrorIs(t, err, ErrESPNotFound)
}

// TestMarkerGuard verifies fresh, missing and stale marker handling.
func TestMarkerGuard(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	markerPath := filepath.Join(t.TempDir(), "marker.bin")

	// Missing marker.
	require.False(t, IsManageRunningNow(ctx, markerPath))

	// Fresh marker blocks.
	require.NoError(t, writeMarker(markerPath))
	require.True(t, IsManageRunningNow(ctx, markerPath))

	// Stale marker is recovered.
	old := time.Now().Add(-2 * markerLifetime)
	require.NoError(t, os.Chtimes(markerPath, old, old))
	require.False(t, IsManageRunningNow(ctx, markerPath))

	_, err := os.Stat(markerPath)
	require.ErrorIs(t, err, os.ErrNotExist)

	// removeMarker tolerates a missing file.
	removeMarker(ctx, markerPath)
}
