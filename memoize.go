package memo

import (
	"context"
	"time"
)

// DriverLocal is reported to observers by Memoized functions.
const DriverLocal Driver = "local"

const defaultLocalTimeout = 300 * time.Second

// Memoized is a function with an in-process result cache owned by this
// value alone. Entries expire lazily: one older than the timeout is treated
// as a miss on its next call and recomputed.
//
// Keys are the positional values plus the keyword pairs sorted by name, so
// f(1, 2) and f(a=1, b=2) are cached separately. Argument values must be
// comparable.
//
// A Memoized is not safe for concurrent use; callers sharing one across
// goroutines must synchronize access.
type Memoized[R any] struct {
	fn       Func[R]
	timeout  time.Duration
	now      func() time.Time
	observer Observer
	entries  map[localKey]localEntry[R]
}

type localEntry[R any] struct {
	value    R
	storedAt time.Time
}

// LocalOption configures a Memoized function.
type LocalOption func(*localConfig)

type localConfig struct {
	now      func() time.Time
	observer Observer
}

// WithClock overrides the wall clock used to stamp and expire entries.
func WithClock(now func() time.Time) LocalOption {
	return func(c *localConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLocalObserver attaches an observer to a Memoized function.
func WithLocalObserver(o Observer) LocalOption {
	return func(c *localConfig) { c.observer = o }
}

// Memoize wraps fn with a private in-process cache. A timeout <= 0 uses
// 300 seconds.
// @group Memoize
//
// Example: memoize a pure function
//
//	double := memo.Memoize(time.Minute, func(_ context.Context, a memo.Args) (int, error) {
//		return a.Positional[0].(int) * 2, nil
//	})
//	v, _ := double.Call(context.Background(), memo.Positional(21))
//	fmt.Println(v) // 42
func Memoize[R any](timeout time.Duration, fn Func[R], opts ...LocalOption) *Memoized[R] {
	cfg := localConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if timeout <= 0 {
		timeout = defaultLocalTimeout
	}
	return &Memoized[R]{
		fn:       fn,
		timeout:  timeout,
		now:      cfg.now,
		observer: cfg.observer,
		entries:  make(map[localKey]localEntry[R]),
	}
}

// Call returns the cached result for args when it is younger than the
// timeout, otherwise runs the function and caches what it returns. Errors are
// not cached.
func (m *Memoized[R]) Call(ctx context.Context, args Args) (R, error) {
	var zero R
	start := time.Now()
	if m.fn == nil {
		return zero, ErrNilProducer
	}
	key, err := newLocalKey(args)
	if err != nil {
		m.observe(ctx, false, err, start)
		return zero, err
	}
	now := m.now()
	if entry, ok := m.entries[key]; ok && now.Sub(entry.storedAt) <= m.timeout {
		m.observe(ctx, true, nil, start)
		return entry.value, nil
	}
	value, err := m.fn(ctx, args)
	if err != nil {
		m.observe(ctx, false, err, start)
		return zero, err
	}
	m.entries[key] = localEntry[R]{value: value, storedAt: now}
	m.observe(ctx, false, nil, start)
	return value, nil
}

// ClearCache drops every cached entry. Arguments are accepted for symmetry
// with CachedFunc.ClearCache and ignored.
func (m *Memoized[R]) ClearCache(...Args) {
	clear(m.entries)
}

// Len reports how many entries are held, expired ones included.
func (m *Memoized[R]) Len() int {
	return len(m.entries)
}

// Func returns Call as a plain Func.
func (m *Memoized[R]) Func() Func[R] {
	return m.Call
}

func (m *Memoized[R]) observe(ctx context.Context, hit bool, err error, start time.Time) {
	if m.observer == nil {
		return
	}
	m.observer.OnCacheOp(ctx, opLocal, "", hit, err, time.Since(start), DriverLocal)
}
