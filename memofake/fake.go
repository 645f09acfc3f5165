// Package memofake provides an in-memory memo backend that records every
// call, with assertion helpers for tests of code that caches through memo.
package memofake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goforj/memo"
)

// Op identifies a backend operation for assertions.
type Op string

const (
	OpGet     Op = "get"
	OpSet     Op = "set"
	OpDelete  Op = "delete"
	OpGetMany Op = "get_many"
	OpSetMany Op = "set_many"
	OpFlush   Op = "flush"
)

// Fake exposes a deterministic in-memory store plus assertion helpers for tests.
// It wraps the memory store so no external services are needed.
type Fake struct {
	store  *countingStore
	helper *memo.Helper
	counts map[Op]map[string]int
	mu     sync.Mutex
}

// New creates a Fake using an in-memory store. Helper options (codec,
// observer, default timeout) apply to the helper returned by Helper.
func New(opts ...memo.Option) *Fake {
	store := &countingStore{inner: memo.NewMemoryBackend(context.Background())}
	f := &Fake{
		store:  store,
		counts: make(map[Op]map[string]int),
	}
	store.onCount = f.record
	f.helper = memo.New(store, opts...)
	return f
}

// Helper returns a helper bound to the fake store, to inject into code under test.
func (f *Fake) Helper() *memo.Helper { return f.helper }

// Backend returns the counting store itself.
func (f *Fake) Backend() memo.Store { return f.store }

// Reset clears recorded counts. Stored entries are kept.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = make(map[Op]map[string]int)
}

// AssertCalled verifies key was touched by op the expected number of times.
// Batch operations count once per key.
func (f *Fake) AssertCalled(t *testing.T, op Op, key string, times int) {
	t.Helper()
	if got := f.Count(op, key); got != times {
		t.Fatalf("expected %s %q called %d times, got %d", op, key, times, got)
	}
}

// AssertNotCalled ensures key was never touched by op.
func (f *Fake) AssertNotCalled(t *testing.T, op Op, key string) {
	t.Helper()
	if got := f.Count(op, key); got != 0 {
		t.Fatalf("expected %s %q not called, got %d", op, key, got)
	}
}

// AssertTotal ensures the total call count for an op matches times.
func (f *Fake) AssertTotal(t *testing.T, op Op, times int) {
	t.Helper()
	if got := f.Total(op); got != times {
		t.Fatalf("expected %s total=%d, got %d", op, times, got)
	}
}

// AssertBatches ensures op was issued as exactly n batch requests. Only
// meaningful for OpGetMany and OpSetMany.
func (f *Fake) AssertBatches(t *testing.T, op Op, n int) {
	t.Helper()
	if got := f.Count(op, batchMarker); got != n {
		t.Fatalf("expected %d %s batches, got %d", n, op, got)
	}
}

// Count returns calls for op+key.
func (f *Fake) Count(op Op, key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[op] == nil {
		return 0
	}
	return f.counts[op][key]
}

// Total returns total calls for an op across keys, batch markers excluded.
func (f *Fake) Total(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int
	for key, v := range f.counts[op] {
		if key == batchMarker {
			continue
		}
		sum += v
	}
	return sum
}

func (f *Fake) record(op Op, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[op] == nil {
		f.counts[op] = make(map[string]int)
	}
	f.counts[op][key]++
}

// batchMarker is recorded once per batch request.
const batchMarker = "\x00batch"

// countingStore wraps a Store to record calls.
type countingStore struct {
	inner   memo.Store
	onCount func(Op, string)
}

func (s *countingStore) Driver() memo.Driver { return s.inner.Driver() }

func (s *countingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.bump(OpGet, key)
	return s.inner.Get(ctx, key)
}

func (s *countingStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	s.bump(OpSet, key)
	return s.inner.Set(ctx, key, val, ttl)
}

func (s *countingStore) Delete(ctx context.Context, key string) error {
	s.bump(OpDelete, key)
	return s.inner.Delete(ctx, key)
}

func (s *countingStore) GetMany(ctx context.Context, keys ...string) (map[string][]byte, error) {
	s.bump(OpGetMany, batchMarker)
	for _, k := range keys {
		s.bump(OpGetMany, k)
	}
	return s.inner.GetMany(ctx, keys...)
}

func (s *countingStore) SetMany(ctx context.Context, values map[string][]byte, ttl time.Duration) error {
	s.bump(OpSetMany, batchMarker)
	for k := range values {
		s.bump(OpSetMany, k)
	}
	return s.inner.SetMany(ctx, values, ttl)
}

func (s *countingStore) Flush(ctx context.Context) error {
	s.bump(OpFlush, "")
	return s.inner.Flush(ctx)
}

func (s *countingStore) bump(op Op, key string) {
	if s.onCount != nil {
		s.onCount(op, key)
	}
}
