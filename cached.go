package memo

import (
	"context"
	"time"
)

// CachedFunc is a function whose results are cached in a Helper's backend
// under keys built from a KeyPattern and the bound call arguments.
type CachedFunc[R any] struct {
	helper  *Helper
	pattern *KeyPattern
	sig     Signature
	ttl     time.Duration
	fn      Func[R]
}

// Cached wraps fn so each call is served from h's backend when possible.
// The pattern is parsed once here; sig names fn's parameters so positional
// and keyword calls resolve to the same key.
// @group Decorator
//
// Example: cache by name
//
//	ctx := context.Background()
//	h := memo.New(memo.NewMemoryBackend(ctx))
//	fullName, _ := memo.Cached(h, "name:{first}:{last}", memo.Params("first", "last"), time.Minute,
//		func(_ context.Context, a memo.Args) (string, error) {
//			return fmt.Sprintf("%v %v", a.Positional...), nil
//		})
//	v, _ := fullName.Call(ctx, memo.Positional("Kujo", "Jotaro"))
//	fmt.Println(v) // Kujo Jotaro
func Cached[R any](h *Helper, pattern string, sig Signature, ttl time.Duration, fn Func[R]) (*CachedFunc[R], error) {
	if fn == nil {
		return nil, ErrNilProducer
	}
	p, err := ParsePattern(pattern)
	if err != nil {
		return nil, err
	}
	return &CachedFunc[R]{helper: h, pattern: p, sig: sig, ttl: ttl, fn: fn}, nil
}

// MustCached is like Cached but panics on error.
func MustCached[R any](h *Helper, pattern string, sig Signature, ttl time.Duration, fn Func[R]) *CachedFunc[R] {
	c, err := Cached(h, pattern, sig, ttl, fn)
	if err != nil {
		panic(err)
	}
	return c
}

// Key returns the cache key args resolve to.
func (c *CachedFunc[R]) Key(args Args) (string, error) {
	return c.pattern.Key(c.sig, args)
}

// Call returns the cached result for args or computes and stores it.
// Binding and pattern errors are returned before the backend is touched.
func (c *CachedFunc[R]) Call(ctx context.Context, args Args) (R, error) {
	key, err := c.Key(args)
	if err != nil {
		var zero R
		c.helper.observe(ctx, opCall, c.pattern.String(), false, err, time.Now())
		return zero, err
	}
	return Call(ctx, c.helper, key, c.ttl, func(ctx context.Context) (R, error) {
		return c.fn(ctx, args)
	})
}

// Map runs the batch wrapper over argTuples with this function's pattern,
// signature and ttl.
func (c *CachedFunc[R]) Map(ctx context.Context, argTuples [][]any) ([]R, error) {
	return mapWith(ctx, c.helper, c.pattern, c.sig, c.fn, argTuples, c.ttl)
}

// ClearCache deletes the entry for args only; other argument sets stay cached.
func (c *CachedFunc[R]) ClearCache(ctx context.Context, args Args) error {
	start := time.Now()
	key, err := c.Key(args)
	if err != nil {
		c.helper.observe(ctx, opClear, c.pattern.String(), false, err, start)
		return err
	}
	err = c.helper.backend.Delete(ctx, key)
	c.helper.observe(ctx, opClear, key, err == nil, err, start)
	return err
}

// Func returns Call as a plain Func so a cached function can stand in for
// the original.
func (c *CachedFunc[R]) Func() Func[R] {
	return c.Call
}
