package events

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/verdantis/esgdata-backend/internal/domain"
	"github.com/verdantis/esgdata-backend/internal/platform/logger"
)

func TestMemoryBusDeliversToSubscribers(t *testing.T) {
	bus := NewMemoryBus(logger.NewNop())
	ctx := context.Background()

	var got []Envelope
	if err := bus.Subscribe(ctx, TypeQaStatusChanged, "qa", func(ctx context.Context, env Envelope) error {
		got = append(got, env)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	itemID := uuid.New()
	env, err := NewEnvelope(TypeQaStatusChanged, "corr-1", QaStatusChangedPayload{
		ItemID:    itemID,
		NewStatus: domain.QaStatusAccepted,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := bus.Publish(ctx, TypeQaStatusChanged, env); err != nil {
		t.Fatal(err)
	}

	if len(got) != 1 {
		t.Fatalf("expected one delivery, got %d", len(got))
	}
	var payload QaStatusChangedPayload
	if err := got[0].DecodePayload(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.ItemID != itemID || payload.NewStatus != domain.QaStatusAccepted {
		t.Fatalf("payload mismatch: %+v", payload)
	}
	if got[0].CorrelationID != "corr-1" {
		t.Fatalf("correlation id lost: %q", got[0].CorrelationID)
	}
}

func TestMemoryBusRetriesRetryableErrors(t *testing.T) {
	bus := NewMemoryBus(logger.NewNop())
	ctx := context.Background()

	attempts := 0
	if err := bus.Subscribe(ctx, TypeItemPersisted, "staging", func(ctx context.Context, env Envelope) error {
		attempts++
		if attempts < 3 {
			return Retryable(errors.New("not visible yet"))
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if err := bus.Publish(ctx, TypeItemPersisted, Envelope{Type: TypeItemPersisted}); err != nil {
		t.Fatal(err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if dead := bus.DeadLetters(TypeItemPersisted); len(dead) != 0 {
		t.Fatalf("unexpected dead letters: %d", len(dead))
	}
}

func TestMemoryBusDeadLettersAfterMaxAttempts(t *testing.T) {
	bus := NewMemoryBus(logger.NewNop())
	ctx := context.Background()

	attempts := 0
	if err := bus.Subscribe(ctx, TypeQaStatusChanged, "qa", func(ctx context.Context, env Envelope) error {
		attempts++
		return Retryable(errors.New("unknown item"))
	}); err != nil {
		t.Fatal(err)
	}

	if err := bus.Publish(ctx, TypeQaStatusChanged, Envelope{Type: TypeQaStatusChanged}); err != nil {
		t.Fatal(err)
	}
	if attempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", attempts)
	}
	if dead := bus.DeadLetters(TypeQaStatusChanged); len(dead) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(dead))
	}
}

func TestMemoryBusDeadLettersNonRetryableImmediately(t *testing.T) {
	bus := NewMemoryBus(logger.NewNop())
	ctx := context.Background()

	attempts := 0
	if err := bus.Subscribe(ctx, TypeQaStatusChanged, "qa", func(ctx context.Context, env Envelope) error {
		attempts++
		return errors.New("malformed payload")
	}); err != nil {
		t.Fatal(err)
	}

	if err := bus.Publish(ctx, TypeQaStatusChanged, Envelope{Type: TypeQaStatusChanged}); err != nil {
		t.Fatal(err)
	}
	if attempts != 1 {
		t.Fatalf("expected single attempt, got %d", attempts)
	}
	if dead := bus.DeadLetters(TypeQaStatusChanged); len(dead) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(dead))
	}
}

func TestRetryableWrapsAndUnwraps(t *testing.T) {
	base := errors.New("boom")
	err := Retryable(base)
	if !IsRetryable(err) {
		t.Fatal("expected retryable")
	}
	if !errors.Is(err, base) {
		t.Fatal("expected unwrap to base error")
	}
	if IsRetryable(base) {
		t.Fatal("plain error must not be retryable")
	}
	if Retryable(nil) != nil {
		t.Fatal("Retryable(nil) must be nil")
	}
}
