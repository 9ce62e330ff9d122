package events

import (
	"context"
	"errors"
)

// Handler processes one message. Returning a retryable error requeues the
// message up to the bus redelivery limit; any other error moves it to the
// dead letter stream immediately. Handlers must be idempotent because
// redelivery can duplicate messages.
type Handler func(ctx context.Context, env Envelope) error

// Bus is the messaging fabric between the storage side and the QA side.
type Bus interface {
	Publish(ctx context.Context, topic string, env Envelope) error
	Subscribe(ctx context.Context, topic, group string, handler Handler) error
	Close() error
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable marks err as transient so the bus requeues instead of dead
// lettering. Use it for ordering races such as a QA verdict arriving before
// the item it refers to is visible.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

func IsRetryable(err error) bool {
	var r *retryableError
	return errors.As(err, &r)
}
