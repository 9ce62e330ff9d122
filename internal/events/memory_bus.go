package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/verdantis/esgdata-backend/internal/platform/logger"
)

// MemoryBus delivers messages in process. It is used in tests and in local
// single-node mode; delivery is synchronous so a Publish returns after every
// subscriber has run, which keeps test assertions deterministic.
type MemoryBus struct {
	log         *logger.Logger
	maxAttempts int

	mu          sync.Mutex
	subscribers map[string][]Handler
	deadLetters map[string][]Envelope
	closed      bool
}

func NewMemoryBus(log *logger.Logger) *MemoryBus {
	if log == nil {
		log = logger.NewNop()
	}
	return &MemoryBus{
		log:         log.With("service", "MemoryBus"),
		maxAttempts: 5,
		subscribers: map[string][]Handler{},
		deadLetters: map[string][]Envelope{},
	}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, env Envelope) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("memory bus closed")
	}
	handlers := append([]Handler(nil), b.subscribers[topic]...)
	b.mu.Unlock()

	for _, handler := range handlers {
		b.deliver(ctx, topic, env, handler)
	}
	return nil
}

func (b *MemoryBus) deliver(ctx context.Context, topic string, env Envelope, handler Handler) {
	for attempt := 1; ; attempt++ {
		err := handler(ctx, env)
		if err == nil {
			return
		}
		if IsRetryable(err) && attempt < b.maxAttempts {
			continue
		}
		b.log.Error("dead lettering message", "topic", topic, "type", env.Type, "attempt", attempt, "error", err)
		b.mu.Lock()
		b.deadLetters[topic] = append(b.deadLetters[topic], env)
		b.mu.Unlock()
		return
	}
}

func (b *MemoryBus) Subscribe(ctx context.Context, topic, group string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("memory bus closed")
	}
	b.subscribers[topic] = append(b.subscribers[topic], handler)
	return nil
}

// DeadLetters returns the envelopes that exhausted their deliveries on
// topic. Test hook.
func (b *MemoryBus) DeadLetters(topic string) []Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Envelope(nil), b.deadLetters[topic]...)
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
