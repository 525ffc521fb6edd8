package uefi

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"github.com/baremetal-lab/metalboot/internal/logger"
)

// knownLoaderNames are the bootloader and pointer filenames recognized on an
// ESP, matched case-insensitively. bootia32.csv is deliberately absent:
// 32-bit EFI booting never became popular.
var knownLoaderNames = map[string]struct{}{
	"bootx64.csv":      {}, // Used by GRUB2 shim loader (Ubuntu, Red Hat).
	"boot.csv":         {}, // Used by rEFInd, CentOS 7 GRUB2.
	"bootia32.efi":     {},
	"bootx64.efi":      {}, // x86_64 default.
	"bootia64.efi":     {},
	"bootarm.efi":      {},
	"bootaa64.efi":     {}, // ARM64 default.
	"bootriscv32.efi":  {},
	"bootriscv64.efi":  {},
	"bootriscv128.efi": {},
	"grubaa64.efi":     {},
	"winload.efi":      {},
}

// errLoaderCSVShape is returned when a BOOT*.CSV file lacks the expected fields.
var errLoaderCSVShape = errors.New("bootloader CSV must contain a filename and a label")

// executableBits is any-execute permission on a file.
const executableBits = 0o111

// scanBootloaders walks the mounted ESP and returns relative slash-separated
// paths of valid bootloaders. A BOOT*.CSV pointer file is authoritative as to
// the loader and label to use, so finding one short-circuits the scan with a
// single result.
func scanBootloaders(ctx context.Context, root string) ([]string, error) {
	logger.DebugKV(ctx, "Looking for EFI bootloaders", "root", root)

	var (
		loaders []string
		csvHit  bool
	)

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if entry.IsDir() {
			return nil
		}

		name := strings.ToLower(entry.Name())
		if _, ok := knownLoaderNames[name]; !ok {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}

		rel = filepath.ToSlash(rel)

		if strings.HasSuffix(name, ".csv") {
			logger.DebugKV(ctx, "CSV file identified as a bootloader hint", "file", rel)

			loaders = []string{rel}
			csvHit = true

			return filepath.SkipAll
		}

		info, infoErr := entry.Info()
		if infoErr != nil {
			return infoErr
		}

		if info.Mode()&executableBits == 0 {
			logger.DebugKV(ctx, "Skipping non-executable loader", "file", rel)
			return nil
		}

		logger.DebugKV(ctx, "Valid bootloader found", "file", rel)
		loaders = append(loaders, rel)

		return nil
	})
	if err != nil {
		return nil, err
	}

	if !csvHit && len(loaders) == 0 {
		logger.DebugKV(ctx, "No EFI bootloaders found", "root", root)
	}

	return loaders, nil
}

// decodeLoaderCSV decodes a UTF-16 BOOT*.CSV pointer file into the loader
// filename and boot entry label it designates.
func decodeLoaderCSV(data []byte) (loaderFile, label string, err error) {
	// These files are UTF-16 encoded, sometimes with a BOM header.
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()

	decoded, err := decoder.Bytes(data)
	if err != nil {
		return "", "", fmt.Errorf("decode bootloader CSV: %w", err)
	}

	const csvFieldCount = 3

	fields := strings.SplitN(string(decoded), ",", csvFieldCount)
	if len(fields) < 2 {
		return "", "", errLoaderCSVShape
	}

	loaderFile = strings.TrimSpace(fields[0])
	label = strings.TrimSpace(fields[1])

	if loaderFile == "" || label == "" {
		return "", "", errLoaderCSVShape
	}

	return loaderFile, label, nil
}
