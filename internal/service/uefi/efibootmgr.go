package uefi

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/baremetal-lab/metalboot/internal/logger"
	"github.com/baremetal-lab/metalboot/internal/sysexec"
)

// bootEntryPattern identifies NVRAM records in efibootmgr output.
var bootEntryPattern = regexp.MustCompile(`^Boot([0-9A-Fa-f]+)\*?\s+(.*)$`)

// bootEntry is one NVRAM record reported by efibootmgr.
type bootEntry struct {
	// Number is the hexadecimal record number.
	Number string
	// Label is the record's human-readable label plus trailing detail.
	Label string
}

// parseBootEntries extracts NVRAM records from `efibootmgr -v` output.
func parseBootEntries(output string) []bootEntry {
	var entries []bootEntry

	for _, line := range strings.Split(output, "\n") {
		match := bootEntryPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		entries = append(entries, bootEntry{
			Number: match[1],
			Label:  match[2],
		})
	}

	return entries
}

// loaderRecord is the NVRAM record to create for one discovered loader.
type loaderRecord struct {
	// Path is the ESP-relative loader path in firmware notation (backslashes).
	Path string
	// Label is the boot entry label.
	Label string
}

// loaderRecords resolves discovered loader paths into the records to write.
// CSV pointer files designate both the loader file and the label; plain
// loaders are labeled metalboot1, metalboot2, … in discovery order.
func loaderRecords(ctx context.Context, mountPoint string, loaders []string) ([]loaderRecord, error) {
	records := make([]loaderRecord, 0, len(loaders))

	labelID := 1

	for _, loader := range loaders {
		if strings.HasSuffix(strings.ToLower(loader), ".csv") {
			contents, err := os.ReadFile(filepath.Join(mountPoint, filepath.FromSlash(loader)))
			if err != nil {
				return nil, fmt.Errorf("read bootloader CSV %s: %w", loader, err)
			}

			loaderFile, label, err := decodeLoaderCSV(contents)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", loader, err)
			}

			logger.DebugKV(ctx, "Bootloader hint decoded",
				"csv", loader, "loader", loaderFile, "label", label)

			// The CSV names its loader relative to its own directory.
			records = append(records, loaderRecord{
				Path:  toFirmwarePath(path.Join(path.Dir(loader), loaderFile)),
				Label: label,
			})

			continue
		}

		records = append(records, loaderRecord{
			Path:  toFirmwarePath(loader),
			Label: "metalboot" + strconv.Itoa(labelID),
		})
		labelID++
	}

	return records, nil
}

// toFirmwarePath converts an ESP-relative slash path to firmware notation.
func toFirmwarePath(rel string) string {
	return `\` + strings.ReplaceAll(rel, "/", `\`)
}

// reconcileNVRAM deletes stale records whose labels collide with the ones
// about to be written, then creates one record per discovered loader.
func (m *Manager) reconcileNVRAM(ctx context.Context, device string, partition int, mountPoint string, loaders []string) error {
	logger.Debug(ctx, "Getting information about boot order")

	current, err := m.runner.Run(ctx, sysexec.Command{
		Name: "efibootmgr",
		Args: []string{"-v"},
	})
	if err != nil {
		return fmt.Errorf("read NVRAM records: %w", err)
	}

	entries := parseBootEntries(current.Stdout)

	records, err := loaderRecords(ctx, mountPoint, loaders)
	if err != nil {
		return err
	}

	for _, record := range records {
		for _, entry := range entries {
			if !strings.Contains(entry.Label, record.Label) {
				continue
			}

			logger.DebugKV(ctx, "Removing NVRAM record with matching label",
				"number", entry.Number, "label", record.Label)

			if _, err = m.runner.Run(ctx, sysexec.Command{
				Name: "efibootmgr",
				Args: []string{"-b", entry.Number, "-B"},
			}); err != nil {
				return fmt.Errorf("delete NVRAM record %s: %w", entry.Number, err)
			}
		}

		logger.DebugKV(ctx, "Adding loader record",
			"path", record.Path, "partition", partition, "device", device)

		if _, err = m.runner.Run(ctx, sysexec.Command{
			Name: "efibootmgr",
			Args: []string{
				"-v", "-c",
				"-d", device,
				"-p", strconv.Itoa(partition),
				"-w",
				"-L", record.Label,
				"-l", record.Path,
			},
		}); err != nil {
			return fmt.Errorf("create NVRAM record for %s: %w", record.Path, err)
		}
	}

	return nil
}
