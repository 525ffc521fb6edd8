package uefi

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/baremetal-lab/metalboot/internal/logger"
	"github.com/baremetal-lab/metalboot/internal/sysexec"
)

// espPartitionTypeGUID is the GPT partition type of an EFI system partition.
const espPartitionTypeGUID = "c12a7328-f81f-11d2-ba4b-00a0c93ec93b"

// lsblkPairPattern matches one KEY="value" pair of lsblk --pairs output.
var lsblkPairPattern = regexp.MustCompile(`([A-Z]+)="([^"]*)"`)

// findESPByType looks for a partition carrying the ESP type GUID.
// Whole-disk images are trusted to carry their own ESP, so the on-disk
// partition table is consulted first.
func (m *Manager) findESPByType(ctx context.Context, device string) (int, bool, error) {
	rows, err := m.listPartitions(ctx, device)
	if err != nil {
		return 0, false, err
	}

	for _, row := range rows {
		if strings.EqualFold(row["PARTTYPE"], espPartitionTypeGUID) {
			return m.partitionNumberOf(ctx, row["NAME"])
		}
	}

	return 0, false, nil
}

// findPartitionByUUID looks for the partition with the recorded partition UUID.
func (m *Manager) findPartitionByUUID(ctx context.Context, device, partitionUUID string) (int, bool, error) {
	rows, err := m.listPartitions(ctx, device)
	if err != nil {
		return 0, false, err
	}

	for _, row := range rows {
		if strings.EqualFold(row["PARTUUID"], partitionUUID) {
			return m.partitionNumberOf(ctx, row["NAME"])
		}
	}

	return 0, false, nil
}

// listPartitions returns one key-value row per block device node under device.
func (m *Manager) listPartitions(ctx context.Context, device string) ([]map[string]string, error) {
	result, err := m.runner.Run(ctx, sysexec.Command{
		Name: "lsblk",
		Args: []string{"--pairs", "--bytes", "--output", "NAME,PARTTYPE,PARTUUID", device},
	})
	if err != nil {
		return nil, fmt.Errorf("list partitions of %s: %w", device, err)
	}

	var rows []map[string]string

	for _, line := range strings.Split(result.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		row := make(map[string]string)
		for _, match := range lsblkPairPattern.FindAllStringSubmatch(line, -1) {
			row[match[1]] = match[2]
		}

		rows = append(rows, row)
	}

	return rows, nil
}

// partitionNumberOf extracts the trailing partition number from a node name
// such as sda1 or nvme0n1p2. Nodes without one (the disk itself) are skipped.
func (m *Manager) partitionNumberOf(ctx context.Context, name string) (int, bool, error) {
	digits := trailingDigits(name)
	if digits == "" {
		logger.DebugKV(ctx, "Skipping node without partition number", "name", name)
		return 0, false, nil
	}

	number, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false, fmt.Errorf("partition number of %s: %w", name, err)
	}

	return number, true, nil
}

// trailingDigits returns the digit suffix of s.
func trailingDigits(s string) string {
	end := len(s)

	start := end
	for start > 0 && unicode.IsDigit(rune(s[start-1])) {
		start--
	}

	return s[start:end]
}

// partitionDevice joins a device and a partition number: NVMe-style names
// ending in a digit take a `p` separator, everything else concatenates.
func partitionDevice(device string, partition int) string {
	if device != "" && unicode.IsDigit(rune(device[len(device)-1])) {
		return fmt.Sprintf("%sp%d", device, partition)
	}

	return fmt.Sprintf("%s%d", device, partition)
}
