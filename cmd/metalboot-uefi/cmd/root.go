package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/baremetal-lab/metalboot/internal/config"
	"github.com/baremetal-lab/metalboot/internal/service/uefi"
	"github.com/baremetal-lab/metalboot/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// espPartitionUUID is the recorded EFI system partition UUID, if any.
	espPartitionUUID string

	// rootCmd represents the base command for UEFI boot management.
	rootCmd = &cobra.Command{
		Use:   "metalboot-uefi <device>",
		Short: "Update firmware NVRAM records for a deployed device.",
		Long: `Detect EFI bootloaders on a deployed block device and update NVRAM.

Rescans the device, locates the EFI system partition (by partition type, or by
the partition UUID recorded during deployment for whole disk images), mounts
it, and reconciles firmware boot records with efibootmgr: records whose labels
collide with the discovered loaders are replaced.

Run this on the provisioning ramdisk after the image has been written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Create boot management options for the target device.
			uefiOptions := &uefi.Options{
				ConfigPath:       configPath,
				Device:           args[0],
				ESPPartitionUUID: espPartitionUUID,
			}

			return uefi.Run(ctx, uefiOptions)
		},
	}
)

// Execute runs the metalboot-uefi CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&espPartitionUUID, "esp-uuid", "u", "", "partition UUID of the EFI system partition recorded during deployment")
}
