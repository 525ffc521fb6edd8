// Package config defines host-side settings shared by the metalboot binaries
// and provides helpers to load, validate and save them in YAML format.
//
// The Config type holds the known-job registry location, the scratch directory
// for EFI partition mounts and the guard-marker path for NVRAM runs.
package config
