package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/fibertrace/internal/domain/model"
)

// countingStore counts List calls and can be made to fail or block.
type countingStore struct {
	*MemStore
	lists   atomic.Int32
	fail    atomic.Bool
	release chan struct{}
}

func (c *countingStore) List(ctx context.Context) ([]model.Record, error) {
	c.lists.Add(1)
	if c.release != nil {
		<-c.release
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.fail.Load() {
		return nil, errors.New("connection refused")
	}
	return c.MemStore.List(ctx)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestCachedStore_TTL(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{MemStore: NewMemStore()}
	_ = inner.Insert(ctx, rec("a", 1))
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := NewCachedStore(inner, time.Minute, WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		rows, err := s.List(ctx)
		if err != nil || len(rows) != 1 {
			t.Fatalf("list: %v %v", rows, err)
		}
	}
	if n := inner.lists.Load(); n != 1 {
		t.Errorf("expected 1 backend load within ttl, got %d", n)
	}

	clock.Advance(2 * time.Minute)
	if _, err := s.List(ctx); err != nil {
		t.Fatalf("list: %v", err)
	}
	if n := inner.lists.Load(); n != 2 {
		t.Errorf("expected reload after ttl, got %d loads", n)
	}
}

func TestCachedStore_WritesInvalidate(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{MemStore: NewMemStore()}
	s := NewCachedStore(inner, time.Hour)

	if rows, _ := s.List(ctx); len(rows) != 0 {
		t.Fatalf("expected empty dataset")
	}
	if err := s.Insert(ctx, rec("a", 1)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if rows, _ := s.List(ctx); len(rows) != 1 {
		t.Errorf("insert did not invalidate the cache")
	}
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rows, _ := s.List(ctx); len(rows) != 0 {
		t.Errorf("delete did not invalidate the cache")
	}

	r, ok := s.(Refresher)
	if !ok {
		t.Fatalf("cached store should implement Refresher")
	}
	before := inner.lists.Load()
	if _, err := r.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if inner.lists.Load() != before+1 {
		t.Errorf("refresh did not reload")
	}
}

func TestCachedStore_FailuresAreNotCached(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{MemStore: NewMemStore()}
	s := NewCachedStore(inner, time.Hour)

	inner.fail.Store(true)
	if _, err := s.List(ctx); err == nil {
		t.Fatalf("expected fetch error")
	}
	inner.fail.Store(false)
	if _, err := s.List(ctx); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
}

func TestCachedStore_SharedLoad(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{MemStore: NewMemStore(), release: make(chan struct{})}
	s := NewCachedStore(inner, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.List(ctx); err != nil {
				t.Errorf("list: %v", err)
			}
		}()
	}
	// Let the goroutines pile up behind the first load.
	time.Sleep(50 * time.Millisecond)
	close(inner.release)
	wg.Wait()

	if n := inner.lists.Load(); n != 1 {
		t.Errorf("expected a single shared load, got %d", n)
	}
}

func TestCachedStore_CancelledCallerDoesNotFailOthers(t *testing.T) {
	inner := &countingStore{MemStore: NewMemStore(), release: make(chan struct{})}
	_ = inner.Insert(context.Background(), rec("a", 1))
	s := NewCachedStore(inner, time.Hour)

	firstCtx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := s.List(firstCtx)
		first <- err
	}()
	for inner.lists.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	type result struct {
		rows []model.Record
		err  error
	}
	second := make(chan result, 1)
	go func() {
		rows, err := s.List(context.Background())
		second <- result{rows, err}
	}()
	// Let the second caller join the in-flight load.
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-first:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("cancelled caller: expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("cancelled caller kept waiting for the shared load")
	}

	close(inner.release)
	res := <-second
	if res.err != nil || len(res.rows) != 1 {
		t.Fatalf("second caller: rows=%v err=%v", res.rows, res.err)
	}
	if n := inner.lists.Load(); n != 1 {
		t.Errorf("expected a single shared load, got %d", n)
	}
}

func TestCachedStore_Disabled(t *testing.T) {
	inner := NewMemStore()
	if s := NewCachedStore(inner, 0); s != Store(inner) {
		t.Errorf("zero ttl should return the wrapped store")
	}
}
