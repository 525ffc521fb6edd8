package sysexec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/baremetal-lab/metalboot/internal/logger"
)

// Command describes one external command invocation.
type Command struct {
	// Name is the executable to run.
	Name string
	// Args are the command arguments.
	Args []string
	// Attempts is how many times to try the command; zero means once.
	Attempts uint
	// RetryDelay is the fixed delay between attempts.
	RetryDelay time.Duration
}

// String renders the full command line for logs and errors.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}

	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result holds the captured output of a successful command.
type Result struct {
	// Stdout is the captured standard output.
	Stdout string
	// Stderr is the captured standard error.
	Stderr string
}

// Error is reported when a command fails, carrying its captured stderr.
type Error struct {
	// Command is the rendered command line.
	Command string
	// Stderr is the captured standard error of the failed attempt.
	Stderr string
	// Err is the underlying execution error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}

	return fmt.Sprintf("%s: %v: %s", e.Command, e.Err, strings.TrimSpace(e.Stderr))
}

// Unwrap returns the underlying execution error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Runner executes host commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// HostRunner executes commands on the local host.
type HostRunner struct {
	// Timeout bounds a single attempt; zero means no bound beyond the context.
	Timeout time.Duration
}

// NewHostRunner creates a runner with the provided per-attempt timeout.
func NewHostRunner(timeout time.Duration) *HostRunner {
	return &HostRunner{
		Timeout: timeout,
	}
}

// Run executes the command, retrying per the command's retry settings.
// The last error is returned when all attempts fail.
func (r *HostRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	attempts := cmd.Attempts
	if attempts == 0 {
		attempts = 1
	}

	retryOptions := []retry.Option{
		retry.Attempts(attempts),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	}
	if cmd.RetryDelay > 0 {
		retryOptions = append(retryOptions, retry.Delay(cmd.RetryDelay))
	}

	var result *Result

	err := retry.Do(func() error {
		res, runErr := r.runOnce(ctx, cmd)
		if runErr != nil {
			return runErr
		}

		result = res

		return nil
	}, retryOptions...)
	if err != nil {
		return nil, err
	}

	return result, nil
}

// runOnce performs a single attempt with captured output.
func (r *HostRunner) runOnce(ctx context.Context, cmd Command) (*Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	logger.DebugKV(ctx, "Executing command", "command", cmd.String())

	var stdout, stderr bytes.Buffer

	execCmd := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	if err := execCmd.Run(); err != nil {
		return nil, &Error{
			Command: cmd.String(),
			Stderr:  stderr.String(),
			Err:     err,
		}
	}

	return &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}, nil
}
