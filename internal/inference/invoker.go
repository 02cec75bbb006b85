package inference

import (
	"context"
	"fmt"
)

// Invoker sends one prompt to a text-generation backend and returns the reply.
// An empty model selects the backend's configured default.
type Invoker interface {
	Send(ctx context.Context, prompt, model string) (string, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, prompt, model string) (string, error)

func (f InvokerFunc) Send(ctx context.Context, prompt, model string) (string, error) {
	return f(ctx, prompt, model)
}

// BackendError is returned once every attempt against a backend has failed.
type BackendError struct {
	Backend  string
	Attempts int
	Err      error
}

func (e *BackendError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("inference: %s failed after %d attempts: %v", e.Backend, e.Attempts, e.Err)
}

func (e *BackendError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
