// Package dedupe tracks client submission IDs so retried sample submissions
// are stored once.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

const defaultMaxSize = 10000

// Deduper remembers which submission produced which sample.
type Deduper interface {
	// Claim atomically records submissionID as producing sampleID unless it
	// is already known. When it is known, the sample ID recorded first is
	// returned with seen set to true.
	Claim(ctx context.Context, submissionID, sampleID string) (existing string, seen bool)

	// Release forgets submissionID so a failed submission can be retried.
	Release(ctx context.Context, submissionID string)

	Size() int64
}

type entry struct {
	submissionID string
	sampleID     string
}

// inMemoryDeduper keeps submissions in insertion order; the front of order
// is the oldest.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
		seen:    make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) Claim(_ context.Context, submissionID, sampleID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[submissionID]; ok {
		return el.Value.(*entry).sampleID, true
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		d.evictOldest()
	}
	d.seen[submissionID] = d.order.PushBack(&entry{submissionID: submissionID, sampleID: sampleID})
	d.size.Add(1)
	return sampleID, false
}

func (d *inMemoryDeduper) Release(_ context.Context, submissionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[submissionID]; ok {
		d.order.Remove(el)
		delete(d.seen, submissionID)
		d.size.Add(-1)
	}
}

// evictOldest must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	front := d.order.Front()
	if front == nil {
		return
	}
	d.order.Remove(front)
	delete(d.seen, front.Value.(*entry).submissionID)
	d.size.Add(-1)
}

func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
