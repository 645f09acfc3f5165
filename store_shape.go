package memo

import (
	"context"
	"time"
)

// shapingStore enforces data shaping concerns (compression, size limits)
// transparently on top of any concrete Store implementation.
type shapingStore struct {
	inner Store
	codec CompressionCodec
	max   int
}

func newShapingStore(inner Store, codec CompressionCodec, max int) Store {
	if (codec == CompressionNone || codec == "") && max <= 0 {
		return inner
	}
	return &shapingStore{inner: inner, codec: codec, max: max}
}

func (s *shapingStore) Driver() Driver { return s.inner.Driver() }

func (s *shapingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	body, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return body, ok, err
	}
	decoded, err := decodeValue(body)
	if err != nil {
		return nil, false, err
	}
	return decoded, true, nil
}

func (s *shapingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	encoded, err := encodeValue(s.codec, s.max, value)
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, encoded, ttl)
}

func (s *shapingStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *shapingStore) GetMany(ctx context.Context, keys ...string) (map[string][]byte, error) {
	found, err := s.inner.GetMany(ctx, keys...)
	if err != nil {
		return nil, err
	}
	for key, body := range found {
		decoded, err := decodeValue(body)
		if err != nil {
			return nil, err
		}
		found[key] = decoded
	}
	return found, nil
}

// SetMany encodes every value before writing any, so an oversized value
// leaves the backend untouched.
func (s *shapingStore) SetMany(ctx context.Context, values map[string][]byte, ttl time.Duration) error {
	encoded := make(map[string][]byte, len(values))
	for key, value := range values {
		body, err := encodeValue(s.codec, s.max, value)
		if err != nil {
			return err
		}
		encoded[key] = body
	}
	return s.inner.SetMany(ctx, encoded, ttl)
}

func (s *shapingStore) Flush(ctx context.Context) error {
	return s.inner.Flush(ctx)
}
