package events

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
)

// KeyedDispatcher serializes work per key while keeping different keys
// concurrent. Tasks for the same key land on the same shard and run in
// submission order; QA verdicts for one (company, dataType, reportingPeriod)
// group therefore never interleave.
type KeyedDispatcher struct {
	shards  []chan func()
	workers sync.WaitGroup
	quit    chan struct{}

	mu       sync.Mutex
	inflight sync.WaitGroup
	closed   bool
}

func NewKeyedDispatcher(shardCount, queueDepth int) *KeyedDispatcher {
	if shardCount <= 0 {
		shardCount = 8
	}
	if queueDepth <= 0 {
		queueDepth = 64
	}
	d := &KeyedDispatcher{
		shards: make([]chan func(), shardCount),
		quit:   make(chan struct{}),
	}
	for i := range d.shards {
		ch := make(chan func(), queueDepth)
		d.shards[i] = ch
		d.workers.Add(1)
		go func() {
			defer d.workers.Done()
			for task := range ch {
				task()
			}
		}()
	}
	return d
}

func (d *KeyedDispatcher) shardFor(key string) chan func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return d.shards[h.Sum32()%uint32(len(d.shards))]
}

// Dispatch queues task on key's shard. Blocks when the shard queue is full,
// which backpressures the consumer instead of dropping verdicts. The shard
// channels are only closed once every in-flight Dispatch has returned, so a
// Close racing a blocked Dispatch wakes it through the quit channel instead
// of panicking its send.
func (d *KeyedDispatcher) Dispatch(ctx context.Context, key string, task func()) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher closed")
	}
	d.inflight.Add(1)
	d.mu.Unlock()
	defer d.inflight.Done()

	select {
	case d.shardFor(key) <- task:
		return nil
	case <-d.quit:
		return fmt.Errorf("dispatcher closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks, waits for in-flight Dispatch calls to back
// out, then drains the queued tasks.
func (d *KeyedDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.quit)
	d.inflight.Wait()
	for _, ch := range d.shards {
		close(ch)
	}
	d.workers.Wait()
}
