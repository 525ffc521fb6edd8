package lint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/baremetal-lab/metalboot/internal/config"
	"github.com/baremetal-lab/metalboot/internal/domain/ci"
	"github.com/baremetal-lab/metalboot/internal/domain/requirements"
	"github.com/baremetal-lab/metalboot/internal/logger"
)

// Options controls which manifests are validated.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// RepoDir is the repository to discover manifests in; defaults to the
	// current directory.
	RepoDir string
	// ManifestPaths overrides CI configuration discovery.
	ManifestPaths []string
	// RegistryPath overrides the known-jobs registry file from settings.
	RegistryPath string
	// RequirementsPaths overrides dependency manifest discovery.
	RequirementsPaths []string
}

var (
	// ErrFindings is returned when validation produced error-severity findings.
	ErrFindings = errors.New("manifest validation failed")
	// errNothingToValidate is returned when no manifest could be located.
	errNothingToValidate = errors.New("no CI or dependency manifests found")
)

// requirementsCandidates are the dependency manifests conventionally present
// in a repository, in installer processing order.
var requirementsCandidates = []string{
	"requirements.txt",
	"test-requirements.txt",
	"driver-requirements.txt",
}

// Run validates the repository's manifests and reports findings through the
// logger. It returns ErrFindings when any error-severity finding exists.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "metalboot-lint")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	repoDir := opts.RepoDir
	if repoDir == "" {
		repoDir = "."
	}

	manifestPaths := opts.ManifestPaths
	if len(manifestPaths) == 0 {
		manifestPaths, err = discoverManifests(repoDir)
		if err != nil {
			return fmt.Errorf("discover CI manifests: %w", err)
		}
	}

	registryPath := opts.RegistryPath
	if registryPath == "" {
		registryPath = cfg.KnownJobsFile
	}

	requirementsPaths := opts.RequirementsPaths
	if len(requirementsPaths) == 0 {
		requirementsPaths = discoverRequirements(repoDir)
	}

	if len(manifestPaths) == 0 && len(requirementsPaths) == 0 {
		return fmt.Errorf("%s: %w", repoDir, errNothingToValidate)
	}

	report := new(Report)

	ciConfigs, err := validateAll(ctx, report, ciPaths(manifestPaths, registryPath), requirementsPaths)
	if err != nil {
		return err
	}

	validateCIConfigs(report, ciConfigs)

	for _, finding := range report.Findings() {
		if finding.Severity == SeverityError {
			logger.Error(ctx, finding.String())
		} else {
			logger.Warn(ctx, finding.String())
		}
	}

	logger.InfoKV(ctx, "Validation finished",
		"ci_files", len(ciConfigs),
		"requirements_files", len(requirementsPaths),
		"findings", len(report.Findings()))

	if report.HasErrors() {
		return ErrFindings
	}

	return nil
}

// validateAll parses all manifests concurrently: dependency manifests are
// fully checked in place, CI configurations are collected for cross-file
// registry validation.
func validateAll(ctx context.Context, report *Report, ciFiles, requirementsFiles []string) ([]*ci.Config, error) {
	group, groupCtx := errgroup.WithContext(ctx)

	ciConfigs := make([]*ci.Config, len(ciFiles))

	for i, path := range ciFiles {
		i, path := i, path
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}

			contents, err := os.ReadFile(filepath.Clean(path))
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			cfg, err := ci.Parse(contents, path)
			if err != nil {
				// A file that does not decode is a finding, not a crash:
				// the rest of the tree is still worth reporting on.
				report.Add(Finding{
					File:     path,
					Severity: SeverityError,
					Message:  err.Error(),
				})

				cfg = &ci.Config{Source: path}
			}

			ciConfigs[i] = cfg

			return nil
		})
	}

	for _, path := range requirementsFiles {
		path := path
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}

			contents, err := os.ReadFile(filepath.Clean(path))
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			file, parseErrors := requirements.Parse(contents, path)
			report.Add(CheckRequirements(file, parseErrors)...)

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return ciConfigs, nil
}

// validateCIConfigs runs the cross-file checks that need the full registry.
func validateCIConfigs(report *Report, ciConfigs []*ci.Config) {
	registry, issues := ci.BuildRegistry(ciConfigs...)
	report.Add(registryFindings(issues)...)
	report.Add(registryFindings(registry.ValidateParents())...)
	report.Add(registryFindings(registry.ValidateArtifacts())...)

	for _, cfg := range ciConfigs {
		report.Add(CheckTemplates(cfg, registry)...)

		for _, project := range cfg.Projects {
			report.Add(CheckProject(project, registry, cfg.Source)...)
		}
	}
}

// ciPaths merges manifest paths with the registry path, dropping duplicates
// while keeping order.
func ciPaths(manifestPaths []string, registryPath string) []string {
	paths := make([]string, 0, len(manifestPaths)+1)
	seen := make(map[string]struct{}, len(manifestPaths)+1)

	for _, path := range manifestPaths {
		if _, ok := seen[path]; ok {
			continue
		}

		seen[path] = struct{}{}
		paths = append(paths, path)
	}

	if registryPath != "" {
		if _, ok := seen[registryPath]; !ok {
			paths = append(paths, registryPath)
		}
	}

	return paths
}

// discoverManifests locates CI configuration files in their conventional spots.
func discoverManifests(repoDir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(repoDir, "zuul.d", "*.yaml"))
	if err != nil {
		return nil, err
	}

	sort.Strings(paths)

	for _, name := range []string{".zuul.yaml", "zuul.yaml"} {
		candidate := filepath.Join(repoDir, name)
		if _, statErr := os.Stat(candidate); statErr == nil {
			paths = append(paths, candidate)
		}
	}

	return paths, nil
}

// discoverRequirements locates dependency manifests in their conventional spots.
func discoverRequirements(repoDir string) []string {
	var paths []string

	for _, name := range requirementsCandidates {
		candidate := filepath.Join(repoDir, name)
		if _, err := os.Stat(candidate); err == nil {
			paths = append(paths, candidate)
		}
	}

	return paths
}
