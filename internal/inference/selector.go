package inference

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"relay-agent/internal/config"
	"relay-agent/internal/integrations/anthropic"
	"relay-agent/internal/integrations/ollama"
	"relay-agent/internal/integrations/openai"
	"relay-agent/internal/integrations/opencode"
)

// ModelResolver picks the model for a request at dispatch time.
type ModelResolver interface {
	Resolve(ctx context.Context, providerKey string) (string, error)
}

// Backend is the invoker chosen for this process, plus a resolver when the
// provider's model is picked per request.
type Backend struct {
	Provider config.Provider
	Invoker  Invoker
	Resolver ModelResolver
}

// RequiresResolution reports whether a model must be resolved before each send.
func (b Backend) RequiresResolution() bool {
	return b.Resolver != nil
}

// Deps carries optional collaborators for NewBackend.
type Deps struct {
	Logger *zap.Logger
	// Runner replaces the opencode process runner for CLI providers.
	Runner opencode.Runner
	// Retry customizes the retry wrapper around the chosen backend.
	Retry []RetryOption
}

// NewBackend builds the backend for cfg.Provider. It fails with a
// *config.ConfigurationError when the provider is unknown or its credential is
// missing, so a misconfigured process never starts serving.
func NewBackend(cfg config.Config, deps Deps) (Backend, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	credential := strings.TrimSpace(cfg.Credential)
	if variable := cfg.Provider.CredentialVariable(); variable != "" && credential == "" {
		return Backend{}, &config.ConfigurationError{
			Variable: variable,
			Reason:   fmt.Sprintf("is required when INFERENCE_PROVIDER=%s", cfg.Provider),
		}
	}

	var (
		single   Invoker
		resolver ModelResolver
		err      error
	)
	switch cfg.Provider {
	case config.ProviderOpenRouter:
		runner, rerr := cliRunner(cfg, deps, credential)
		if rerr != nil {
			return Backend{}, rerr
		}
		single, err = opencode.NewClient(runner, "")
		if err == nil {
			resolver, err = opencode.NewResolver(runner, cfg.Models.Preferred, cfg.Models.Fallback,
				string(config.ProviderOpenRouter), logger)
		}
	case config.ProviderOpenCodeZen:
		single, err = cliClient(cfg, deps, credential, cfg.Models.OpenCodeZen)
	case config.ProviderMistral:
		single, err = cliClient(cfg, deps, credential, cfg.Models.Mistral)
	case config.ProviderAnthropic:
		single, err = anthropic.NewClient(credential, cfg.Models.Anthropic)
	case config.ProviderOpenAI:
		single, err = openai.NewClient(credential, cfg.Models.OpenAI, openai.WithBaseURL(cfg.OpenAIBaseURL))
	case config.ProviderOllama:
		single, err = ollama.NewClient(credential, cfg.Models.Ollama)
	default:
		return Backend{}, &config.ConfigurationError{
			Variable: "INFERENCE_PROVIDER",
			Reason:   fmt.Sprintf("unsupported provider %q", cfg.Provider),
		}
	}
	if err != nil {
		return Backend{}, fmt.Errorf("inference: build %s backend: %w", cfg.Provider, err)
	}

	retrying, err := NewRetrying(single, string(cfg.Provider), logger, deps.Retry...)
	if err != nil {
		return Backend{}, err
	}
	return Backend{Provider: cfg.Provider, Invoker: retrying, Resolver: resolver}, nil
}

func cliClient(cfg config.Config, deps Deps, credential, model string) (Invoker, error) {
	runner, err := cliRunner(cfg, deps, credential)
	if err != nil {
		return nil, err
	}
	return opencode.NewClient(runner, model)
}

// cliRunner hands the credential to the child process through its environment.
func cliRunner(cfg config.Config, deps Deps, credential string) (opencode.Runner, error) {
	if deps.Runner != nil {
		return deps.Runner, nil
	}
	return opencode.NewExecRunner(cfg.OpenCodeBin, cfg.InvokeTimeout,
		cfg.Provider.CredentialVariable()+"="+credential)
}
