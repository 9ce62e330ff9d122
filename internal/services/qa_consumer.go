package services

import (
	"context"
	"fmt"

	"github.com/verdantis/esgdata-backend/internal/events"
	"github.com/verdantis/esgdata-backend/internal/observability"
	"github.com/verdantis/esgdata-backend/internal/platform/envutil"
	"github.com/verdantis/esgdata-backend/internal/platform/logger"
)

const qaConsumerGroup = "esgdata-activation"

// QaConsumer pulls QA verdicts off the bus and hands them to the activation
// service. Verdicts are dispatched through a keyed dispatcher so that all
// verdicts touching one data key apply in arrival order, while unrelated
// keys proceed concurrently.
type QaConsumer struct {
	log        *logger.Logger
	bus        events.Bus
	activation ActivationService
	dispatcher *events.KeyedDispatcher
	metrics    *observability.Metrics
}

func NewQaConsumer(baseLog *logger.Logger, bus events.Bus, activation ActivationService, metrics *observability.Metrics) *QaConsumer {
	return &QaConsumer{
		log:        baseLog.With("service", "QaConsumer"),
		bus:        bus,
		activation: activation,
		dispatcher: events.NewKeyedDispatcher(
			envutil.Int("QA_CONSUMER_SHARDS", 8),
			envutil.Int("QA_CONSUMER_QUEUE_DEPTH", 64),
		),
		metrics: metrics,
	}
}

func (c *QaConsumer) Start(ctx context.Context) error {
	return c.bus.Subscribe(ctx, events.TypeQaStatusChanged, qaConsumerGroup, c.handle)
}

func (c *QaConsumer) handle(ctx context.Context, env events.Envelope) error {
	var verdict events.QaStatusChangedPayload
	if err := env.DecodePayload(&verdict); err != nil {
		return err
	}

	key, _, err := c.activation.ResolveDataKey(ctx, verdict.ItemID)
	if err != nil {
		return err
	}

	if c.metrics != nil {
		c.metrics.QaQueueDepth.Inc()
	}
	done := make(chan error, 1)
	if err := c.dispatcher.Dispatch(ctx, key.String(), func() {
		err := c.activation.HandleQaStatusChanged(ctx, env.CorrelationID, verdict)
		if c.metrics != nil {
			c.metrics.QaQueueDepth.Dec()
		}
		done <- err
	}); err != nil {
		if c.metrics != nil {
			c.metrics.QaQueueDepth.Dec()
		}
		return events.Retryable(fmt.Errorf("dispatch verdict: %w", err))
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *QaConsumer) Close() {
	c.dispatcher.Close()
}
