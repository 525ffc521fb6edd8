// Package version exposes build metadata injected at build time via ldflags
// and a helper to attach a `version` subcommand to cobra roots.
package version
