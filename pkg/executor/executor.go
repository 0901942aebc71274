package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	maxStderrBytes = 4096
	// waitDelay bounds how long Execute waits for pipes after the process
	// was killed, since grandchildren may still hold them open.
	waitDelay = 2 * time.Second
)

// Executor runs external tools. Implementations must stop the process when
// ctx is cancelled.
type Executor interface {
	Execute(ctx context.Context, name string, args ...string) (string, error)
}

// Func adapts a plain function to Executor.
type Func func(ctx context.Context, name string, args ...string) (string, error)

func (f Func) Execute(ctx context.Context, name string, args ...string) (string, error) {
	return f(ctx, name, args...)
}

type implExecutor struct{}

// New creates an Executor backed by os/exec.
func New() Executor {
	return implExecutor{}
}

// Execute runs name with args and returns stdout. Stderr is folded into the
// error so callers can surface what the tool complained about.
func (implExecutor) Execute(ctx context.Context, name string, args ...string) (string, error) {
	cmdPath, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", name, err)
	}

	cmd := exec.CommandContext(ctx, cmdPath, args...)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("command '%s' interrupted: %w", name, ctxErr)
		}
		stderrStr := tail(strings.TrimSpace(stderr.String()), maxStderrBytes)
		if stderrStr != "" {
			return "", fmt.Errorf("command '%s' failed: %w\nstderr: %s", name, err, stderrStr)
		}
		return "", fmt.Errorf("command '%s' failed: %w", name, err)
	}

	return stdout.String(), nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
