package sysinfo

import (
	"context"
	"errors"
	"os/exec"
	"strings"
)

// Exec runs a command, waits for it, and returns its stdout and exit code.
// A nonzero exit code is not an error here; err is reserved for failures to
// run the command at all (missing binary, context cancellation). No timeout
// is enforced: callers needing bounded latency pass a deadline context.
func Exec(ctx context.Context, name string, args ...string) (string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout strings.Builder
	cmd.Stdout = &stdout

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), exitErr.ExitCode(), nil
		}
		return stdout.String(), -1, err
	}
	return stdout.String(), 0, nil
}
