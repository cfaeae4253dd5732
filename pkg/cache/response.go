// Package cache memoizes slow remote responses for a bounded time.
package cache

import (
	"context"
	"sync"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
	"golang.org/x/sync/singleflight"
)

// PollSafetyMargin keeps an entry from surviving into the next poll interval.
const PollSafetyMargin = time.Second

// TTLForPollInterval returns the TTL that lets a repeated refresh inside one
// poll interval hit the cache while the next scheduled poll always misses.
func TTLForPollInterval(interval time.Duration) time.Duration {
	ttl := interval - PollSafetyMargin
	if ttl < 0 {
		return 0
	}
	return ttl
}

type entry[V any] struct {
	payload    V
	producedAt time.Time
}

// ResponseCache keeps one entry per key. Concurrent misses for the same key
// share a single producer call.
type ResponseCache[V any] struct {
	name    string
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]entry[V]
	group   singleflight.Group
}

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func NewResponseCache[V any](name string, ttl time.Duration, opts ...Option) *ResponseCache[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &ResponseCache[V]{
		name:    name,
		ttl:     ttl,
		now:     o.now,
		entries: make(map[string]entry[V]),
	}
}

func (c *ResponseCache[V]) TTL() time.Duration {
	return c.ttl
}

// GetOrFetch returns the entry for key while it is younger than the TTL,
// otherwise calls produce and stores its result. Errors are not cached.
// An entry is aged from the moment its fetch started. Concurrent misses share
// one fetch that is not cancelled when the first caller gives up.
func (c *ResponseCache[V]) GetOrFetch(ctx context.Context, key string, produce func(context.Context) (V, error)) (V, error) {
	if v, ok := c.lookup(key); ok {
		c.record(ctx, MHits)
		return v, nil
	}
	c.record(ctx, MMisses)

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		started := c.now()
		v, err := produce(context.WithoutCancel(ctx))
		if err != nil {
			return v, err
		}
		c.mu.Lock()
		c.entries[key] = entry[V]{payload: v, producedAt: started}
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Invalidate drops the entry for key, e.g. after a command changed the
// remote state.
func (c *ResponseCache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *ResponseCache[V]) lookup(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.producedAt.Add(c.ttl)) {
		var zero V
		return zero, false
	}
	return e.payload, true
}

func (c *ResponseCache[V]) record(ctx context.Context, m *stats.Int64Measure) {
	mctx, err := tag.New(ctx, tag.Insert(KeyCache, c.name))
	if err != nil {
		mctx = ctx
	}
	stats.Record(mctx, m.M(1))
}
