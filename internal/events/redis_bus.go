package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/verdantis/esgdata-backend/internal/platform/envutil"
	"github.com/verdantis/esgdata-backend/internal/platform/logger"
)

const deadLetterSuffix = ".deadletter"

// redisBus delivers messages over Redis streams with consumer groups.
// Failed deliveries are requeued with an attempt counter; once the counter
// exceeds the redelivery limit the message moves to <topic>.deadletter and
// delivery of the rest of the stream continues.
type redisBus struct {
	log         *logger.Logger
	rdb         *goredis.Client
	consumer    string
	maxAttempts int
	blockFor    time.Duration
}

func NewRedisBus(log *logger.Logger) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := envutil.Str("REDIS_ADDR", "")
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    envutil.Str("REDIS_PASSWORD", ""),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisBus{
		log:         log.With("service", "RedisBus"),
		rdb:         rdb,
		consumer:    envutil.Str("EVENTS_CONSUMER_NAME", "esgdata-1"),
		maxAttempts: envutil.Int("EVENTS_MAX_ATTEMPTS", 5),
		blockFor:    envutil.Dur("EVENTS_BLOCK_FOR", 5*time.Second),
	}, nil
}

func (b *redisBus) Publish(ctx context.Context, topic string, env Envelope) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis bus not initialized")
	}
	return b.add(ctx, topic, env, 1)
}

func (b *redisBus) add(ctx context.Context, stream string, env Envelope, attempt int) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"envelope": string(raw),
			"attempt":  strconv.Itoa(attempt),
		},
	}).Err()
}

func (b *redisBus) Subscribe(ctx context.Context, topic, group string, handler Handler) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis bus not initialized")
	}
	if handler == nil {
		return fmt.Errorf("handler required")
	}

	err := b.rdb.XGroupCreateMkStream(ctx, topic, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", group, topic, err)
	}

	go b.consumeLoop(ctx, topic, group, handler)
	return nil
}

func (b *redisBus) consumeLoop(ctx context.Context, topic, group string, handler Handler) {
	log := b.log.With("topic", topic, "group", group)
	for {
		if ctx.Err() != nil {
			return
		}
		streams, err := b.rdb.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    group,
			Consumer: b.consumer,
			Streams:  []string{topic, ">"},
			Count:    16,
			Block:    b.blockFor,
		}).Result()
		if err != nil {
			if err == goredis.Nil || ctx.Err() != nil {
				continue
			}
			log.Warn("read group failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				b.handleMessage(ctx, topic, group, msg, handler, log)
			}
		}
	}
}

func (b *redisBus) handleMessage(ctx context.Context, topic, group string, msg goredis.XMessage, handler Handler, log *logger.Logger) {
	defer func() {
		if err := b.rdb.XAck(ctx, topic, group, msg.ID).Err(); err != nil && ctx.Err() == nil {
			log.Warn("ack failed", "messageId", msg.ID, "error", err)
		}
	}()

	raw, _ := msg.Values["envelope"].(string)
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		log.Warn("malformed envelope, dead lettering", "messageId", msg.ID, "error", err)
		b.deadLetter(ctx, topic, msg.Values, log)
		return
	}
	attempt := 1
	if v, ok := msg.Values["attempt"].(string); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			attempt = n
		}
	}

	err := handler(ctx, env)
	switch {
	case err == nil:
	case IsRetryable(err) && attempt < b.maxAttempts:
		log.Info("requeueing message", "type", env.Type, "attempt", attempt, "error", err)
		if addErr := b.add(ctx, topic, env, attempt+1); addErr != nil {
			log.Error("requeue failed", "messageId", msg.ID, "error", addErr)
		}
	default:
		log.Error("dead lettering message", "type", env.Type, "attempt", attempt, "error", err)
		b.deadLetter(ctx, topic, msg.Values, log)
	}
}

func (b *redisBus) deadLetter(ctx context.Context, topic string, values map[string]any, log *logger.Logger) {
	if err := b.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: topic + deadLetterSuffix,
		Values: values,
	}).Err(); err != nil {
		log.Error("dead letter write failed", "error", err)
	}
}

func (b *redisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
