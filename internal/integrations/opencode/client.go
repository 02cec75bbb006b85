package opencode

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ExitError reports a CLI run that exited with a non-zero code.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("opencode: process exited with code %d: %s", e.Code, strings.TrimSpace(truncate(e.Stderr, 400)))
}

// Client sends prompts through `opencode run -m <model> <prompt>`. One Send is
// one attempt; retries belong to the caller.
type Client struct {
	runner       Runner
	defaultModel string
}

// NewClient creates a Client. defaultModel is used when Send receives no model
// and may be empty for clients whose model is always resolved by the caller.
func NewClient(runner Runner, defaultModel string) (*Client, error) {
	if runner == nil {
		return nil, errors.New("opencode: runner must not be nil")
	}
	return &Client{runner: runner, defaultModel: strings.TrimSpace(defaultModel)}, nil
}

func (c *Client) Send(ctx context.Context, prompt, model string) (string, error) {
	if model = strings.TrimSpace(model); model == "" {
		model = c.defaultModel
	}
	if model == "" {
		return "", errors.New("opencode: model must not be empty")
	}

	res, err := c.runner.Run(ctx, runArgs(model, prompt)...)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", &ExitError{Code: res.ExitCode, Stderr: res.Stderr}
	}
	return strings.TrimSpace(res.Stdout), nil
}

func runArgs(model, prompt string) []string {
	return []string{"run", "-m", model, prompt}
}
