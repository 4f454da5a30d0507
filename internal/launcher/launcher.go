// Package launcher runs build-step commands as OS processes and supports
// environment-overlay decoration.
//
// The overlay is applied to the child's environment block before spawn —
// the decorated launcher builds the final env slice and the process is
// started with it, so the binding is visible to the child from its first
// instruction, not patched in afterwards.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
	"time"
)

// Command describes one process launch.
type Command struct {
	Argv   []string  // Program and arguments. Must be non-empty.
	Dir    string    // Working directory. "" = inherit.
	Env    []string  // Environment block. nil = inherit the host process env.
	Stdout io.Writer // nil = discard.
	Stderr io.Writer // nil = discard.
}

// Result is the outcome of a completed launch.
type Result struct {
	ExitCode int
	Duration time.Duration
}

// Launcher starts build-step processes. Implementations must apply any
// environment decoration before the process starts.
type Launcher interface {
	Launch(ctx context.Context, cmd Command) (*Result, error)
}

// ExecLauncher runs commands as real OS processes. Each child gets its own
// process group so a build abort kills the whole tree, not just the
// immediate child.
type ExecLauncher struct {
	logger *slog.Logger
}

// NewExecLauncher creates an ExecLauncher.
func NewExecLauncher(logger *slog.Logger) *ExecLauncher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ExecLauncher{logger: logger}
}

// Launch starts the command and waits for it. A non-zero exit code is a
// result, not an error; context cancellation kills the process group and
// returns the context's error.
func (l *ExecLauncher) Launch(ctx context.Context, c Command) (*Result, error) {
	if len(c.Argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Dir = c.Dir

	env := c.Env
	if env == nil {
		env = os.Environ()
	}
	cmd.Env = env

	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr

	// Child runs in its own process group; negative PID kills the group.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	l.logger.Info("launching build step command",
		slog.Any("argv", c.Argv),
		slog.String("dir", c.Dir),
	)

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if runErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("launching command: %w", runErr)
		}
	}

	l.logger.Info("build step command finished",
		slog.Int("exit_code", exitCode),
		slog.Duration("duration", duration),
	)
	return &Result{ExitCode: exitCode, Duration: duration}, nil
}

// WithEnv decorates a launcher so every launched command's environment
// carries the overlay variables, overriding any same-named inherited ones.
// The merge happens per launch; the base launcher and the overlay map are
// never mutated.
func WithEnv(base Launcher, overlay map[string]string) Launcher {
	return &envLauncher{base: base, overlay: overlay}
}

type envLauncher struct {
	base    Launcher
	overlay map[string]string
}

func (l *envLauncher) Launch(ctx context.Context, c Command) (*Result, error) {
	env := c.Env
	if env == nil {
		env = os.Environ()
	}
	c.Env = mergeEnv(env, l.overlay)
	return l.base.Launch(ctx, c)
}

// mergeEnv returns a new environment slice with overlay entries replacing
// same-named base entries. Overlay keys are appended in sorted order so the
// result is deterministic.
func mergeEnv(base []string, overlay map[string]string) []string {
	merged := make([]string, 0, len(base)+len(overlay))
	for _, kv := range base {
		name, _, ok := strings.Cut(kv, "=")
		if ok {
			if _, shadowed := overlay[name]; shadowed {
				continue
			}
		}
		merged = append(merged, kv)
	}

	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		merged = append(merged, k+"="+overlay[k])
	}
	return merged
}
