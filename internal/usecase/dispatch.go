package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"relay-agent/internal/domain"
	"relay-agent/internal/inference"
	"relay-agent/internal/integrations/opencode"
)

const defaultDispatchTimeout = 3 * time.Minute

// HistoryStore is the conversation store as seen by the dispatcher.
type HistoryStore interface {
	AppendAndTrim(chatID string, turn domain.Turn) []domain.Turn
	Lock(chatID string) (unlock func())
}

// Dispatcher turns one inbound chat message into one reply.
type Dispatcher struct {
	store    HistoryStore
	invoker  inference.Invoker
	resolver inference.ModelResolver
	provider string
	logger   *zap.Logger
	timeout  time.Duration
}

// NewDispatcher wires a dispatcher to the backend chosen at startup. A timeout
// of zero or less selects the default of three minutes.
func NewDispatcher(store HistoryStore, backend inference.Backend, logger *zap.Logger, timeout time.Duration) (*Dispatcher, error) {
	if store == nil {
		return nil, errors.New("usecase: history store must not be nil")
	}
	if backend.Invoker == nil {
		return nil, errors.New("usecase: backend invoker must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	return &Dispatcher{
		store:    store,
		invoker:  backend.Invoker,
		resolver: backend.Resolver,
		provider: string(backend.Provider),
		logger:   logger,
		timeout:  timeout,
	}, nil
}

// ProcessMessage records text as the chat's newest user turn, obtains a reply
// from the backend and records it as the following assistant turn. Calls for
// the same chat run one at a time, so each user turn is immediately followed by
// its own reply in the history.
//
// Every failure is returned as a *DispatchError. A user turn that was recorded
// stays recorded when the backend fails.
func (d *Dispatcher) ProcessMessage(ctx context.Context, chatID, text string) (string, error) {
	if strings.TrimSpace(chatID) == "" {
		return "", newDispatchError(ErrorInvalidInput, "empty_chat_id", nil)
	}
	if strings.TrimSpace(text) == "" {
		return "", newDispatchError(ErrorInvalidInput, "empty_text", nil)
	}

	unlock := d.store.Lock(chatID)
	defer unlock()

	d.store.AppendAndTrim(chatID, domain.UserTurn(text))

	reply, err := d.generate(ctx, text)
	if err != nil {
		dispatchErr := classify(err)
		d.logger.Error("dispatch failed",
			zap.String("chat_id", chatID),
			zap.String("provider", d.provider),
			zap.String("code", string(dispatchErr.Code)),
			zap.String("reason", dispatchErr.Reason),
			zap.Error(err),
		)
		return "", dispatchErr
	}

	d.store.AppendAndTrim(chatID, domain.AssistantTurn(reply))
	return reply, nil
}

func (d *Dispatcher) generate(ctx context.Context, text string) (reply string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("usecase: backend panicked: %v", rec)
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	model := ""
	if d.resolver != nil {
		model, err = d.resolver.Resolve(callCtx, d.provider)
		if err != nil {
			return "", err
		}
	}
	return d.invoker.Send(callCtx, text, model)
}

func classify(err error) *DispatchError {
	var noModel *opencode.NoAvailableModelError
	var backendErr *inference.BackendError
	switch {
	case errors.As(err, &noModel):
		return newDispatchError(ErrorNoAvailableModel, "model_resolution_failed", err)
	case errors.Is(err, context.DeadlineExceeded):
		return newDispatchError(ErrorTimeout, "dispatch_deadline_exceeded", err)
	case errors.As(err, &backendErr):
		return newDispatchError(ErrorUpstream, "backend_retries_exhausted", err)
	default:
		return newDispatchError(ErrorInternal, "unexpected_error", err)
	}
}
