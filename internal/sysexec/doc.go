// Package sysexec runs external host commands with captured output, per-call
// timeouts and optional fixed-delay retries.
//
// Services depend on the Runner interface so hardware-touching flows can be
// tested without a privileged host.
package sysexec
