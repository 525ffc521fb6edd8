package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/baremetal-lab/metalboot/internal/config"
	"github.com/baremetal-lab/metalboot/internal/service/lint"
	"github.com/baremetal-lab/metalboot/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// registryPath overrides the known-jobs registry file from settings.
	registryPath string
	// manifestPaths overrides CI manifest discovery.
	manifestPaths []string
	// requirementsPaths overrides dependency manifest discovery.
	requirementsPaths []string

	// rootCmd represents the base command for manifest validation.
	rootCmd = &cobra.Command{
		Use:   "metalboot-lint [repo-dir]",
		Short: "Validate CI pipeline and dependency manifests.",
		Long: `Statically validate the repository's CI and dependency manifests.

Pipeline manifests (zuul.d/*.yaml, .zuul.yaml) are checked against the known
job and template definitions: every referenced name must resolve, job parent
chains must be acyclic, gate must name a queue and must not carry non-voting
jobs. Dependency manifests (requirements.txt and friends) must parse line by
line; duplicate constraints are errors and missing license annotations are
warnings.

The command exits non-zero when any error-severity finding exists.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use repository directory argument if provided, otherwise the
			// current directory.
			var repoDir string
			if len(args) > 0 {
				repoDir = args[0]
			}

			// Create lint options with discovery overrides.
			lintOptions := &lint.Options{
				ConfigPath:        configPath,
				RepoDir:           repoDir,
				ManifestPaths:     manifestPaths,
				RegistryPath:      registryPath,
				RequirementsPaths: requirementsPaths,
			}

			return lint.Run(ctx, lintOptions)
		},
	}
)

// Execute runs the metalboot-lint CLI and exits with non-zero status on error.
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
	rootCmd.Flags().StringVarP(&registryPath, "jobs", "j", "", "path to the known-jobs registry file")
	rootCmd.Flags().StringSliceVarP(&manifestPaths, "manifest", "m", nil, "CI manifest file to validate (repeatable)")
	rootCmd.Flags().StringSliceVarP(&requirementsPaths, "requirements", "r", nil, "dependency manifest file to validate (repeatable)")
}
