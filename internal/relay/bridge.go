package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"relay-agent/internal/domain"
	"relay-agent/internal/usecase"
)

const defaultPollBackoff = 5 * time.Second

// Transport delivers inbound chat messages and sends replies.
type Transport interface {
	Poll(ctx context.Context, offset int64) ([]domain.InboundMessage, int64, error)
	SendReply(ctx context.Context, chatID, text string) error
}

// Processor produces the reply for one inbound message.
type Processor interface {
	ProcessMessage(ctx context.Context, chatID, text string) (string, error)
}

// Bridge connects a Transport to a Processor. Chats are handled concurrently;
// messages within one chat are handled one at a time in arrival order.
type Bridge struct {
	transport   Transport
	processor   Processor
	logger      *zap.Logger
	pollBackoff time.Duration

	mu     sync.Mutex
	queues map[string][]domain.InboundMessage
	wg     sync.WaitGroup
}

func NewBridge(transport Transport, processor Processor, logger *zap.Logger, pollBackoff time.Duration) (*Bridge, error) {
	if transport == nil {
		return nil, errors.New("relay: transport must not be nil")
	}
	if processor == nil {
		return nil, errors.New("relay: processor must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if pollBackoff <= 0 {
		pollBackoff = defaultPollBackoff
	}
	return &Bridge{
		transport:   transport,
		processor:   processor,
		logger:      logger,
		pollBackoff: pollBackoff,
		queues:      make(map[string][]domain.InboundMessage),
	}, nil
}

// Run polls until ctx is cancelled, then waits for in-flight messages to be
// answered before returning. In-flight work is not cancelled with ctx; it is
// bounded by the processor's own deadline.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("relay bridge started")
	defer b.logger.Info("relay bridge stopped")

	work := context.WithoutCancel(ctx)
	var offset int64
	for ctx.Err() == nil {
		msgs, next, err := b.transport.Poll(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			b.logger.Warn("poll failed", zap.Error(err), zap.Duration("backoff", b.pollBackoff))
			if !wait(ctx, b.pollBackoff) {
				break
			}
			continue
		}
		offset = next

		for _, msg := range msgs {
			b.enqueue(work, msg)
		}
	}

	b.wg.Wait()
	return nil
}

// enqueue appends msg to its chat's queue, starting a worker for the chat when
// none is running.
func (b *Bridge) enqueue(ctx context.Context, msg domain.InboundMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pending, active := b.queues[msg.ChatID]
	b.queues[msg.ChatID] = append(pending, msg)
	if active {
		return
	}
	b.wg.Add(1)
	go b.drain(ctx, msg.ChatID)
}

// drain handles the chat's queued messages in order and exits once the queue
// is empty.
func (b *Bridge) drain(ctx context.Context, chatID string) {
	defer b.wg.Done()
	for {
		b.mu.Lock()
		pending := b.queues[chatID]
		if len(pending) == 0 {
			delete(b.queues, chatID)
			b.mu.Unlock()
			return
		}
		msg := pending[0]
		b.queues[chatID] = pending[1:]
		b.mu.Unlock()

		b.handle(ctx, msg)
	}
}

func (b *Bridge) handle(ctx context.Context, msg domain.InboundMessage) {
	logger := b.logger.With(zap.String("chat_id", msg.ChatID), zap.String("message_id", msg.ID))

	reply, err := b.processor.ProcessMessage(ctx, msg.ChatID, msg.Text)
	if err != nil {
		var dispatchErr *usecase.DispatchError
		if !errors.As(err, &dispatchErr) {
			logger.Error("message processing failed", zap.Error(err))
			return
		}
		// The dispatcher has already logged the cause; tell the sender something went wrong.
		reply = dispatchErr.Error()
	}
	if reply == "" {
		logger.Debug("empty reply, nothing sent")
		return
	}
	if err := b.transport.SendReply(ctx, msg.ChatID, reply); err != nil {
		logger.Error("reply delivery failed", zap.Error(err))
	}
}

func wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
