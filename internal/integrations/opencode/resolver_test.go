package opencode

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	testPreferred = "openrouter/moonshotai/kimi-k2.5"
	testFallback  = "openrouter/arcee-ai/trinity-large-preview:free"
)

func newTestResolver(t *testing.T, runner Runner, logger *zap.Logger) *Resolver {
	t.Helper()
	r, err := NewResolver(runner, map[string]string{"openrouter": testPreferred}, testFallback, "openrouter", logger)
	require.NoError(t, err)
	return r
}

func TestNewResolver_Validation(t *testing.T) {
	_, err := NewResolver(nil, map[string]string{"openrouter": testPreferred}, testFallback, "openrouter", nil)
	require.Error(t, err)

	_, err = NewResolver(newFakeRunner(), map[string]string{"openrouter": testPreferred}, " ", "openrouter", nil)
	require.Error(t, err)

	_, err = NewResolver(newFakeRunner(), map[string]string{"other": "x"}, testFallback, "openrouter", nil)
	require.Error(t, err)
}

func TestResolve_PreferredAvailable(t *testing.T) {
	runner := newFakeRunner()
	runner.results[testPreferred] = Result{Stdout: "ok"}

	model, err := newTestResolver(t, runner, nil).Resolve(context.Background(), "openrouter")
	require.NoError(t, err)
	require.Equal(t, testPreferred, model)
	require.Equal(t, []string{testPreferred}, runner.models())
	require.Equal(t, []string{"run", "-m", testPreferred, "test"}, runner.calls[0].args)
}

func TestResolve_FallsBack(t *testing.T) {
	cases := []struct {
		name  string
		setup func(r *fakeRunner)
	}{
		{name: "non-zero exit", setup: func(r *fakeRunner) {
			r.results[testPreferred] = Result{ExitCode: 1}
		}},
		{name: "blank output", setup: func(r *fakeRunner) {
			r.results[testPreferred] = Result{Stdout: "  \n"}
		}},
		{name: "runner error", setup: func(r *fakeRunner) {
			r.errs[testPreferred] = errors.New("spawn failed")
		}},
		{name: "runner panic", setup: func(r *fakeRunner) {
			r.panics[testPreferred] = true
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.InfoLevel)
			runner := newFakeRunner()
			runner.results[testFallback] = Result{Stdout: "fine"}
			tc.setup(runner)

			model, err := newTestResolver(t, runner, zap.New(core)).Resolve(context.Background(), "openrouter")
			require.NoError(t, err)
			require.Equal(t, testFallback, model)
			require.Equal(t, []string{testPreferred, testFallback}, runner.models())
			require.Equal(t, 1, logs.FilterMessage("preferred model unavailable, attempting fallback").Len())
			require.Equal(t, 1, logs.FilterMessage("using fallback model").Len())
		})
	}
}

func TestResolve_NothingAvailable(t *testing.T) {
	runner := newFakeRunner()

	_, err := newTestResolver(t, runner, nil).Resolve(context.Background(), "openrouter")
	var noModel *NoAvailableModelError
	require.True(t, errors.As(err, &noModel))
	require.Equal(t, testPreferred, noModel.Preferred)
	require.Equal(t, testFallback, noModel.Fallback)
	require.Equal(t, []string{testPreferred, testFallback}, runner.models())
}

func TestResolve_UnknownKeyUsesBaseline(t *testing.T) {
	runner := newFakeRunner()
	runner.results[testPreferred] = Result{Stdout: "ok"}

	r := newTestResolver(t, runner, nil)
	require.Equal(t, testPreferred, r.PreferredModel("somethingelse"))

	model, err := r.Resolve(context.Background(), "somethingelse")
	require.NoError(t, err)
	require.Equal(t, testPreferred, model)
}

func TestResolve_NotCached(t *testing.T) {
	runner := newFakeRunner()
	runner.results[testPreferred] = Result{Stdout: "ok"}
	r := newTestResolver(t, runner, nil)

	for i := 0; i < 2; i++ {
		_, err := r.Resolve(context.Background(), "openrouter")
		require.NoError(t, err)
	}
	require.Len(t, runner.calls, 2)
}

func TestNoAvailableModelError_Nil(t *testing.T) {
	var err *NoAvailableModelError
	require.Equal(t, "", err.Error())
	require.NoError(t, err.Unwrap())
}
