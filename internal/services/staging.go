package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/google/uuid"

	"github.com/verdantis/esgdata-backend/internal/events"
	"github.com/verdantis/esgdata-backend/internal/observability"
	"github.com/verdantis/esgdata-backend/internal/platform/envutil"
	"github.com/verdantis/esgdata-backend/internal/platform/logger"
)

// StagingStore holds the raw payload of an upload between acceptance of the
// request and the durable commit of its QA verdict. Reads prefer staged
// payloads so an upload is immediately readable by its uploader. Entries are
// evicted when the item-persisted confirmation arrives; the TTL is a
// backstop for confirmations that never come.
type StagingStore interface {
	Put(ctx context.Context, itemID uuid.UUID, payload json.RawMessage) error
	Get(ctx context.Context, itemID uuid.UUID) (json.RawMessage, error)
	Evict(ctx context.Context, itemID uuid.UUID) error
}

type redisStagingStore struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewRedisStagingStore(log *logger.Logger) (StagingStore, error) {
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
	return &redisStagingStore{
		log: log.With("service", "RedisStagingStore"),
		rdb: rdb,
		ttl: envutil.Dur("STAGING_TTL", time.Hour),
	}, nil
}

func stagingKey(itemID uuid.UUID) string {
	return "staging:item:" + itemID.String()
}

func (s *redisStagingStore) Put(ctx context.Context, itemID uuid.UUID, payload json.RawMessage) error {
	return s.rdb.Set(ctx, stagingKey(itemID), []byte(payload), s.ttl).Err()
}

// Get returns nil without error when the item is not staged.
func (s *redisStagingStore) Get(ctx context.Context, itemID uuid.UUID) (json.RawMessage, error) {
	raw, err := s.rdb.Get(ctx, stagingKey(itemID)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

func (s *redisStagingStore) Evict(ctx context.Context, itemID uuid.UUID) error {
	return s.rdb.Del(ctx, stagingKey(itemID)).Err()
}

// MemoryStagingStore is the in-process StagingStore used in tests and local
// single-node mode.
type MemoryStagingStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]json.RawMessage
}

func NewMemoryStagingStore() *MemoryStagingStore {
	return &MemoryStagingStore{entries: map[uuid.UUID]json.RawMessage{}}
}

func (s *MemoryStagingStore) Put(ctx context.Context, itemID uuid.UUID, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[itemID] = append(json.RawMessage(nil), payload...)
	return nil
}

func (s *MemoryStagingStore) Get(ctx context.Context, itemID uuid.UUID) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.entries[itemID]
	if !ok {
		return nil, nil
	}
	return payload, nil
}

func (s *MemoryStagingStore) Evict(ctx context.Context, itemID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, itemID)
	return nil
}

// StartStagingEviction drops staged payloads once their QA verdict has been
// durably applied, signalled by the item-persisted message.
func StartStagingEviction(ctx context.Context, bus events.Bus, staging StagingStore, log *logger.Logger, metrics *observability.Metrics) error {
	log = log.With("service", "StagingEviction")
	return bus.Subscribe(ctx, events.TypeItemPersisted, "staging-eviction", func(ctx context.Context, env events.Envelope) error {
		var payload events.ItemPersistedPayload
		if err := env.DecodePayload(&payload); err != nil {
			return err
		}
		if err := staging.Evict(ctx, payload.ItemID); err != nil {
			return events.Retryable(err)
		}
		if metrics != nil {
			metrics.StagingEvictions.Inc()
		}
		log.Debug("evicted staged payload", "itemId", payload.ItemID, "correlationId", env.CorrelationID)
		return nil
	})
}
