package opencode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Result is the captured outcome of one CLI run.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes the CLI with the given arguments. A non-zero exit code is
// reported in Result, not as an error; errors mean the process could not run
// to completion (missing binary, timeout, cancellation).
type Runner interface {
	Run(ctx context.Context, args ...string) (Result, error)
}

// ExecRunner runs a local binary.
type ExecRunner struct {
	Bin     string
	Env     []string
	Timeout time.Duration
}

// NewExecRunner creates a runner for bin. env entries ("KEY=value") are added
// to the inherited environment of every child process.
func NewExecRunner(bin string, timeout time.Duration, env ...string) (*ExecRunner, error) {
	bin = strings.TrimSpace(bin)
	if bin == "" {
		return nil, errors.New("opencode: binary must not be empty")
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &ExecRunner{Bin: bin, Env: env, Timeout: timeout}, nil
}

func (r *ExecRunner) Run(ctx context.Context, args ...string) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.Bin, args...)
	cmd.Env = append(os.Environ(), r.Env...)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if runErr == nil {
		return res, nil
	}
	if ctxErr := runCtx.Err(); ctxErr != nil {
		return res, fmt.Errorf("opencode: %s did not finish: %w", r.Bin, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, fmt.Errorf("opencode: run %s: %w", r.Bin, runErr)
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
