package opencode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const probePrompt = "test"

// NoAvailableModelError is returned when neither the preferred nor the fallback
// model answered a probe.
type NoAvailableModelError struct {
	Preferred string
	Fallback  string
	Err       error
}

func (e *NoAvailableModelError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("opencode: no available model (preferred %s, fallback %s): %v", e.Preferred, e.Fallback, e.Err)
}

func (e *NoAvailableModelError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Resolver picks the model to use for a request by probing the preferred model
// of a provider key and then the shared fallback. Results are not cached.
type Resolver struct {
	runner      Runner
	preferred   map[string]string
	fallback    string
	baselineKey string
	logger      *zap.Logger
}

// NewResolver creates a Resolver. Unknown provider keys resolve through
// baselineKey, which must have a preferred model.
func NewResolver(runner Runner, preferred map[string]string, fallback, baselineKey string, logger *zap.Logger) (*Resolver, error) {
	if runner == nil {
		return nil, errors.New("opencode: runner must not be nil")
	}
	if strings.TrimSpace(fallback) == "" {
		return nil, errors.New("opencode: fallback model must not be empty")
	}
	catalog := make(map[string]string, len(preferred))
	for k, v := range preferred {
		if v = strings.TrimSpace(v); v != "" {
			catalog[k] = v
		}
	}
	if _, ok := catalog[baselineKey]; !ok {
		return nil, fmt.Errorf("opencode: baseline provider %q has no preferred model", baselineKey)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		runner:      runner,
		preferred:   catalog,
		fallback:    strings.TrimSpace(fallback),
		baselineKey: baselineKey,
		logger:      logger,
	}, nil
}

// PreferredModel returns the model tried first for providerKey.
func (r *Resolver) PreferredModel(providerKey string) string {
	if m, ok := r.preferred[providerKey]; ok {
		return m
	}
	return r.preferred[r.baselineKey]
}

// Resolve returns the first servable model for providerKey.
func (r *Resolver) Resolve(ctx context.Context, providerKey string) (string, error) {
	preferred := r.PreferredModel(providerKey)

	err := r.probe(ctx, preferred)
	if err == nil {
		return preferred, nil
	}
	r.logger.Warn("preferred model unavailable, attempting fallback",
		zap.String("provider", providerKey),
		zap.String("model", preferred),
		zap.String("fallback", r.fallback),
		zap.Error(err),
	)

	if err = r.probe(ctx, r.fallback); err == nil {
		r.logger.Info("using fallback model", zap.String("model", r.fallback))
		return r.fallback, nil
	}
	r.logger.Error("preferred and fallback models unavailable",
		zap.String("preferred", preferred),
		zap.String("fallback", r.fallback),
		zap.Error(err),
	)
	return "", &NoAvailableModelError{Preferred: preferred, Fallback: r.fallback, Err: err}
}

// probe reports whether model answers the probe prompt with non-empty output.
// Failures of any kind, including a panicking runner, come back as an error.
func (r *Resolver) probe(ctx context.Context, model string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("opencode: probe of %s panicked: %v", model, rec)
		}
	}()

	res, err := r.runner.Run(ctx, runArgs(model, probePrompt)...)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return &ExitError{Code: res.ExitCode, Stderr: res.Stderr}
	}
	if strings.TrimSpace(res.Stdout) == "" {
		return fmt.Errorf("opencode: probe of %s returned no output", model)
	}
	return nil
}
