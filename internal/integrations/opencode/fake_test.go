package opencode

import (
	"context"
	"sync"
)

type runCall struct {
	args []string
}

// fakeRunner answers by model (the argument after -m).
type fakeRunner struct {
	mu      sync.Mutex
	calls   []runCall
	results map[string]Result
	errs    map[string]error
	panics  map[string]bool
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		results: map[string]Result{},
		errs:    map[string]error{},
		panics:  map[string]bool{},
	}
}

func (f *fakeRunner) Run(_ context.Context, args ...string) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, runCall{args: append([]string(nil), args...)})
	f.mu.Unlock()

	model := ""
	for i := 0; i+1 < len(args); i++ {
		if args[i] == "-m" {
			model = args[i+1]
		}
	}
	if f.panics[model] {
		panic("runner exploded")
	}
	if err, ok := f.errs[model]; ok {
		return Result{}, err
	}
	if res, ok := f.results[model]; ok {
		return res, nil
	}
	return Result{ExitCode: 1, Stderr: "unknown model"}, nil
}

func (f *fakeRunner) models() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.args[2])
	}
	return out
}
