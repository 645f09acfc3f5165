package memo

import (
	"context"
	"sync"
	"time"
)

// spyBackend wraps a memory store and records every call.
type spyBackend struct {
	inner Store

	mu      sync.Mutex
	calls   []string
	getErr  error
	setErr  error
	lastTTL time.Duration
}

func newSpyBackend() *spyBackend {
	return &spyBackend{inner: newMemoryStore(0, 0)}
}

func (s *spyBackend) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *spyBackend) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *spyBackend) count(call string) int {
	n := 0
	for _, c := range s.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (s *spyBackend) Driver() Driver { return s.inner.Driver() }

func (s *spyBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.record("get")
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	return s.inner.Get(ctx, key)
}

func (s *spyBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.record("set")
	if s.setErr != nil {
		return s.setErr
	}
	s.mu.Lock()
	s.lastTTL = ttl
	s.mu.Unlock()
	return s.inner.Set(ctx, key, value, ttl)
}

func (s *spyBackend) Delete(ctx context.Context, key string) error {
	s.record("delete")
	return s.inner.Delete(ctx, key)
}

func (s *spyBackend) GetMany(ctx context.Context, keys ...string) (map[string][]byte, error) {
	s.record("get_many")
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.inner.GetMany(ctx, keys...)
}

func (s *spyBackend) SetMany(ctx context.Context, values map[string][]byte, ttl time.Duration) error {
	s.record("set_many")
	if s.setErr != nil {
		return s.setErr
	}
	s.mu.Lock()
	s.lastTTL = ttl
	s.mu.Unlock()
	return s.inner.SetMany(ctx, values, ttl)
}

func (s *spyBackend) Flush(ctx context.Context) error {
	s.record("flush")
	return s.inner.Flush(ctx)
}

type observedOp struct {
	op     string
	key    string
	hit    bool
	err    error
	driver Driver
}

type observerSpy struct {
	mu  sync.Mutex
	ops []observedOp
}

func (o *observerSpy) OnCacheOp(_ context.Context, op string, key string, hit bool, err error, _ time.Duration, driver Driver) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, observedOp{op: op, key: key, hit: hit, err: err, driver: driver})
}

func (o *observerSpy) Ops() []observedOp {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]observedOp(nil), o.ops...)
}

// fakeClock is a manually advanced wall clock.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
