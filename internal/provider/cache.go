package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gyaneshwarpardhi/sense/internal/event"
	"github.com/gyaneshwarpardhi/sense/internal/metrics"
)

const (
	defaultMaxSize   = 10_000
	defaultMaxWeight = 10 * 1024 * 1024
)

// CacheConf bounds the event cache.
type CacheConf struct {
	MaxSize   int
	MaxWeight int // total Event.Weight() across cached entries
}

// Cached is a Provider backed by a Store with an LRU cache bounded by entry count and weight.
// Only found events are cached; misses and store errors are not.
type Cached struct {
	store Store

	mu        sync.Mutex
	cache     *lru.Cache[string, *event.Event]
	weight    int
	maxWeight int
}

// NewCached wraps store with a cache sized by conf (zero values pick defaults).
func NewCached(store Store, conf CacheConf) (*Cached, error) {
	if conf.MaxSize <= 0 {
		conf.MaxSize = defaultMaxSize
	}
	if conf.MaxWeight <= 0 {
		conf.MaxWeight = defaultMaxWeight
	}
	c := &Cached{store: store, maxWeight: conf.MaxWeight}
	cache, err := lru.NewWithEvict[string, *event.Event](conf.MaxSize, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("event cache: %w", err)
	}
	c.cache = cache
	return c, nil
}

// onEvict runs synchronously inside cache mutations, which only happen under c.mu.
func (c *Cached) onEvict(id string, ev *event.Event) {
	c.weight -= ev.Weight()
	slog.Debug("event evicted from cache", "event_id", id)
}

// FindEvent returns the event with id, or nil if the store does not know it.
func (c *Cached) FindEvent(ctx context.Context, id string) (*event.Event, error) {
	if ev, ok := c.cache.Get(id); ok {
		metrics.EventCacheRequests.WithLabelValues("hit").Inc()
		return ev, nil
	}
	metrics.EventCacheRequests.WithLabelValues("miss").Inc()

	// The store is queried without holding c.mu.
	ev, err := c.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", id, err)
	}
	c.add(ev)
	return ev, nil
}

// Invalidate drops id from the cache so the next lookup reloads it.
func (c *Cached) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(id)
}

func (c *Cached) add(ev *event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if contained, _ := c.cache.ContainsOrAdd(ev.ID, ev); contained {
		return
	}
	c.weight += ev.Weight()
	for c.weight > c.maxWeight && c.cache.Len() > 1 {
		if _, _, ok := c.cache.RemoveOldest(); !ok {
			break
		}
	}
}

// FindParentFor returns the direct parent of ev, or nil if ev has none.
func (c *Cached) FindParentFor(ctx context.Context, ev *event.Event) (*event.Event, error) {
	return findParent(ctx, c.FindEvent, ev)
}

// FindRootFor returns the topmost ancestor of ev, or nil if ev has no parent.
func (c *Cached) FindRootFor(ctx context.Context, ev *event.Event) (*event.Event, error) {
	return findRoot(ctx, c.FindEvent, ev)
}

// Record stores ev when the underlying store accepts writes and refreshes the cached copy.
func (c *Cached) Record(ctx context.Context, ev *event.Event) error {
	rec, ok := c.store.(Recorder)
	if !ok {
		return nil
	}
	if err := rec.Put(ctx, ev); err != nil {
		return fmt.Errorf("record event %s: %w", ev.ID, err)
	}
	c.Invalidate(ev.ID)
	return nil
}
