// Package uefi manages UEFI boot entries for a deployed device.
//
// It locates the EFI system partition, mounts it on a scratch directory,
// scans for known bootloader binaries and BOOT*.CSV pointer files, and
// reconciles firmware NVRAM records through efibootmgr: stale records with
// matching labels are removed before one record per discovered loader is
// created. A marker file guards against concurrent NVRAM runs on one host.
package uefi
