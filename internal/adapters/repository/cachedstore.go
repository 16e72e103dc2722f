package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/fibertrace/internal/domain/model"
	"github.com/okian/fibertrace/pkg/metrics"
)

const listKey = "list"

// CachedStore serves List from a time-boxed copy of the full dataset.
// Concurrent misses share a single load, and every write drops the copy.
// Get, Count and the write methods go straight to the wrapped store.
type CachedStore struct {
	Store
	ttl         time.Duration
	loadTimeout time.Duration
	now         func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	rows     []model.Record
	loadedAt time.Time
	// gen increases on every invalidation so a load that raced with a
	// write is not cached.
	gen uint64
}

// NewCachedStore wraps s. A non-positive ttl returns s unchanged.
func NewCachedStore(s Store, ttl time.Duration, opts ...Option) Store {
	if ttl <= 0 {
		return s
	}
	o := newOptions(opts...)
	return &CachedStore{Store: s, ttl: ttl, loadTimeout: o.loadTimeout, now: o.now}
}

func (c *CachedStore) List(ctx context.Context) ([]model.Record, error) {
	c.mu.RLock()
	rows, fresh := c.rows, c.rows != nil && c.now().Sub(c.loadedAt) < c.ttl
	c.mu.RUnlock()
	if fresh {
		metrics.RecordCacheEvent("hit")
		return slices.Clone(rows), nil
	}
	metrics.RecordCacheEvent("miss")
	return c.load(ctx)
}

// Refresh drops the cached dataset and loads it again.
func (c *CachedStore) Refresh(ctx context.Context) ([]model.Record, error) {
	metrics.RecordCacheEvent("refresh")
	c.invalidate()
	return c.load(ctx)
}

// load runs one shared List on the wrapped store. The shared call is
// detached from any single caller's cancellation and bounded by the load
// timeout; each caller stops waiting when its own ctx ends.
func (c *CachedStore) load(ctx context.Context) ([]model.Record, error) {
	ch := c.group.DoChan(listKey, func() (any, error) {
		c.mu.RLock()
		gen := c.gen
		c.mu.RUnlock()

		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()
		rows, err := c.Store.List(loadCtx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gen == gen {
			c.rows = rows
			c.loadedAt = c.now()
		}
		c.mu.Unlock()
		return rows, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]model.Record)), nil
	}
}

func (c *CachedStore) invalidate() {
	c.mu.Lock()
	c.rows = nil
	c.gen++
	c.mu.Unlock()
	c.group.Forget(listKey)
	metrics.RecordCacheEvent("invalidate")
}

func (c *CachedStore) Insert(ctx context.Context, rec model.Record) error {
	defer c.invalidate()
	return c.Store.Insert(ctx, rec)
}

func (c *CachedStore) Update(ctx context.Context, id string, rec model.Record) error {
	defer c.invalidate()
	return c.Store.Update(ctx, id, rec)
}

func (c *CachedStore) Delete(ctx context.Context, id string) error {
	defer c.invalidate()
	return c.Store.Delete(ctx, id)
}

// Refresher is implemented by stores that cache the dataset.
type Refresher interface {
	Refresh(ctx context.Context) ([]model.Record, error)
}
