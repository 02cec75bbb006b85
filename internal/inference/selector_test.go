package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"relay-agent/internal/config"
	"relay-agent/internal/integrations/opencode"
)

type scriptedRunner struct {
	calls [][]string
	reply string
}

func (r *scriptedRunner) Run(_ context.Context, args ...string) (opencode.Result, error) {
	r.calls = append(r.calls, args)
	return opencode.Result{Stdout: r.reply}, nil
}

func baseConfig(p config.Provider, credential string) config.Config {
	return config.Config{
		Provider:      p,
		Credential:    credential,
		Models:        config.DefaultModels(),
		OpenCodeBin:   "opencode",
		OpenAIBaseURL: "https://api.openai.com/v1",
		InvokeTimeout: time.Minute,
	}
}

func TestNewBackend_EveryProvider(t *testing.T) {
	credentials := map[config.Provider]string{
		config.ProviderOpenRouter:  "or-key",
		config.ProviderOpenCodeZen: "oc-key",
		config.ProviderMistral:     "mi-key",
		config.ProviderAnthropic:   "sk-ant",
		config.ProviderOpenAI:      "sk-openai",
		config.ProviderOllama:      "http://127.0.0.1:11434",
	}

	for _, p := range config.Providers() {
		t.Run(string(p), func(t *testing.T) {
			b, err := NewBackend(baseConfig(p, credentials[p]), Deps{Runner: &scriptedRunner{}})
			require.NoError(t, err)
			require.Equal(t, p, b.Provider)
			require.NotNil(t, b.Invoker)
			require.Equal(t, p == config.ProviderOpenRouter, b.RequiresResolution())
		})
	}
}

func TestNewBackend_MissingCredential(t *testing.T) {
	for _, p := range config.Providers() {
		t.Run(string(p), func(t *testing.T) {
			_, err := NewBackend(baseConfig(p, "  "), Deps{})
			var cfgErr *config.ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			require.Equal(t, p.CredentialVariable(), cfgErr.Variable)
		})
	}
}

func TestNewBackend_UnknownProvider(t *testing.T) {
	_, err := NewBackend(baseConfig(config.Provider("bard"), "x"), Deps{})
	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, "INFERENCE_PROVIDER", cfgErr.Variable)
}

func TestNewBackend_FixedCLIModel(t *testing.T) {
	runner := &scriptedRunner{reply: "pong"}
	b, err := NewBackend(baseConfig(config.ProviderMistral, "mi-key"), Deps{Runner: runner})
	require.NoError(t, err)

	reply, err := b.Invoker.Send(context.Background(), "ping", "")
	require.NoError(t, err)
	require.Equal(t, "pong", reply)
	require.Equal(t, [][]string{{"run", "-m", "mistral/mistral-7b", "ping"}}, runner.calls)
}

func TestNewBackend_OpenRouterResolvesPreferred(t *testing.T) {
	runner := &scriptedRunner{reply: "ok"}
	b, err := NewBackend(baseConfig(config.ProviderOpenRouter, "or-key"), Deps{Runner: runner})
	require.NoError(t, err)

	model, err := b.Resolver.Resolve(context.Background(), string(config.ProviderOpenRouter))
	require.NoError(t, err)
	require.Equal(t, "openrouter/moonshotai/kimi-k2.5", model)
}

func TestNewBackend_ExecRunnerCarriesCredential(t *testing.T) {
	runner, err := cliRunner(baseConfig(config.ProviderOpenCodeZen, "oc-key"), Deps{}, "oc-key")
	require.NoError(t, err)

	execRunner, ok := runner.(*opencode.ExecRunner)
	require.True(t, ok)
	require.Equal(t, "opencode", execRunner.Bin)
	require.Equal(t, []string{"OPENCODE_API_KEY=oc-key"}, execRunner.Env)
	require.Equal(t, time.Minute, execRunner.Timeout)
}
