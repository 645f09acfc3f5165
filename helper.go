package memo

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	opCall  = "call"
	opMap   = "map"
	opClear = "clear"
	opLocal = "memoize"
)

// Func is the shape of a function whose results can be cached.
type Func[R any] func(ctx context.Context, args Args) (R, error)

// Helper wraps function calls with get-or-compute logic against a Backend.
// It holds no state of its own beyond configuration; everything cached lives
// in the backend.
type Helper struct {
	backend    Backend
	codec      Codec
	defaultTTL time.Duration
	observer   Observer
}

// Option configures a Helper.
type Option func(*Helper)

// WithCodec sets the codec used to store results. Defaults to JSONCodec.
func WithCodec(codec Codec) Option {
	return func(h *Helper) {
		if codec != nil {
			h.codec = codec
		}
	}
}

// WithDefaultTimeout sets the TTL applied when a call passes ttl <= 0.
func WithDefaultTimeout(ttl time.Duration) Option {
	return func(h *Helper) {
		if ttl > 0 {
			h.defaultTTL = ttl
		}
	}
}

// WithObserver attaches an observer to receive operation events.
func WithObserver(o Observer) Option {
	return func(h *Helper) { h.observer = o }
}

// New creates a helper bound to backend.
// @group Helper
//
// Example: helper over an in-process store
//
//	ctx := context.Background()
//	h := memo.New(memo.NewMemoryBackend(ctx))
//	fmt.Println(h.Driver()) // memory
func New(backend Backend, opts ...Option) *Helper {
	h := &Helper{
		backend:    backend,
		codec:      JSONCodec{},
		defaultTTL: defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Backend returns the underlying backend.
func (h *Helper) Backend() Backend {
	return h.backend
}

// Driver reports the backend driver, or "" for foreign backends.
func (h *Helper) Driver() Driver {
	return driverOf(h.backend)
}

// Call returns the value cached under key, or runs producer once, stores its
// result for ttl and returns it. A nil result is cached as Empty and comes
// back as the zero value without running producer again. Producer errors are
// returned and nothing is stored.
//
// Concurrent misses on the same key may each run producer; the last write wins.
//
// Hits are decoded into R, so with R = any a hit carries the codec's generic
// form rather than the producer's type: under JSONCodec a miss returning int 7
// is followed by hits returning float64 7. Use a concrete R when the dynamic
// type matters.
// @group Helper
//
// Example: cache a lookup
//
//	ctx := context.Background()
//	h := memo.New(memo.NewMemoryBackend(ctx))
//	name, _ := memo.Call(ctx, h, "user:42:name", time.Minute, func(context.Context) (string, error) {
//		return "Ada", nil
//	})
//	fmt.Println(name) // Ada
func Call[R any](ctx context.Context, h *Helper, key string, ttl time.Duration, producer func(context.Context) (R, error)) (R, error) {
	return callWith(ctx, h, h.codec, key, ttl, producer)
}

// CallBytes is Call for raw byte results; values are stored without a codec
// and a nil slice is cached as Empty.
func (h *Helper) CallBytes(ctx context.Context, key string, ttl time.Duration, producer func(context.Context) ([]byte, error)) ([]byte, error) {
	return callWith(ctx, h, rawCodec{}, key, ttl, producer)
}

func callWith[R any](ctx context.Context, h *Helper, codec Codec, key string, ttl time.Duration, producer func(context.Context) (R, error)) (R, error) {
	var zero R
	if producer == nil {
		return zero, ErrNilProducer
	}
	start := time.Now()
	raw, ok, err := h.backend.Get(ctx, key)
	if err != nil {
		h.observe(ctx, opCall, key, false, err, start)
		return zero, err
	}
	if ok {
		var out R
		stored, err := decodeEntry[R](codec, raw)
		if err == nil {
			out, err = resultOf[R](stored)
		}
		if err != nil {
			h.observe(ctx, opCall, key, false, err, start)
			return zero, err
		}
		h.observe(ctx, opCall, key, true, nil, start)
		return out, nil
	}

	result, err := producer(ctx)
	if err != nil {
		h.observe(ctx, opCall, key, false, err, start)
		return zero, err
	}
	body, err := encodeEntry(codec, storedValue(result))
	if err == nil {
		err = h.backend.Set(ctx, key, body, h.resolveTTL(ttl))
	}
	h.observe(ctx, opCall, key, false, err, start)
	if err != nil {
		return zero, err
	}
	return result, nil
}

// Map resolves producer for every argument tuple with one bulk read and at
// most one bulk write. Each tuple is bound positionally against sig and
// formatted with pattern. Misses are computed eagerly in input order, once per
// distinct key; results are aligned with argTuples.
// @group Helper
//
// Example: batch add
//
//	ctx := context.Background()
//	h := memo.New(memo.NewMemoryBackend(ctx))
//	add := func(_ context.Context, a memo.Args) (int, error) {
//		return a.Positional[0].(int) + a.Positional[1].(int), nil
//	}
//	sums, _ := memo.Map(ctx, h, "add:{a}:{b}", memo.Params("a", "b"), add, [][]any{{1, 2}, {3, 4}}, time.Minute)
//	fmt.Println(sums) // [3 7]
func Map[R any](ctx context.Context, h *Helper, pattern string, sig Signature, producer Func[R], argTuples [][]any, ttl time.Duration) ([]R, error) {
	p, err := ParsePattern(pattern)
	if err != nil {
		return nil, err
	}
	return mapWith(ctx, h, p, sig, producer, argTuples, ttl)
}

func mapWith[R any](ctx context.Context, h *Helper, pattern *KeyPattern, sig Signature, producer Func[R], argTuples [][]any, ttl time.Duration) ([]R, error) {
	if producer == nil {
		return nil, ErrNilProducer
	}
	start := time.Now()
	keys := make([]string, len(argTuples))
	unique := make([]string, 0, len(argTuples))
	seen := make(map[string]struct{}, len(argTuples))
	for i, tuple := range argTuples {
		key, err := pattern.Key(sig, Positional(tuple...))
		if err != nil {
			h.observe(ctx, opMap, pattern.String(), false, err, start)
			return nil, err
		}
		keys[i] = key
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			unique = append(unique, key)
		}
	}
	results := make([]R, len(argTuples))
	if len(keys) == 0 {
		return results, nil
	}

	cached, err := h.backend.GetMany(ctx, unique...)
	if err != nil {
		h.observe(ctx, opMap, pattern.String(), false, err, start)
		return nil, err
	}

	resolved := make(map[string]any, len(unique))
	misses := make(map[string][]byte)
	for i, key := range keys {
		if stored, ok := resolved[key]; ok {
			results[i], err = resultOf[R](stored)
			if err != nil {
				h.observe(ctx, opMap, key, false, err, start)
				return nil, err
			}
			continue
		}
		if raw, ok := cached[key]; ok {
			stored, err := decodeEntry[R](h.codec, raw)
			if err == nil {
				results[i], err = resultOf[R](stored)
			}
			if err != nil {
				h.observe(ctx, opMap, key, false, err, start)
				return nil, err
			}
			resolved[key] = stored
			continue
		}
		value, err := producer(ctx, Positional(argTuples[i]...))
		if err != nil {
			h.observe(ctx, opMap, key, false, err, start)
			return nil, err
		}
		stored := storedValue(value)
		body, err := encodeEntry(h.codec, stored)
		if err != nil {
			h.observe(ctx, opMap, key, false, err, start)
			return nil, err
		}
		resolved[key] = stored
		misses[key] = body
		results[i] = value
	}

	if len(misses) > 0 {
		if err := h.backend.SetMany(ctx, misses, h.resolveTTL(ttl)); err != nil {
			h.observe(ctx, opMap, pattern.String(), false, err, start)
			return nil, err
		}
	}
	h.observe(ctx, opMap, pattern.String(), len(misses) == 0, nil, start)
	return results, nil
}

func (h *Helper) resolveTTL(ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return h.defaultTTL
}

func (h *Helper) observe(ctx context.Context, op, key string, hit bool, err error, start time.Time) {
	if h.observer == nil {
		return
	}
	h.observer.OnCacheOp(ctx, op, key, hit, err, time.Since(start), h.Driver())
}

// rawCodec passes []byte values through unchanged.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	body, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("memo: raw codec cannot encode %T", v)
	}
	return cloneBytes(body), nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	out, ok := v.(*[]byte)
	if !ok {
		return errors.New("memo: raw codec decodes into *[]byte only")
	}
	*out = cloneBytes(data)
	return nil
}
