package memo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goforj/memo/memotest"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStoreContract(t *testing.T) {
	mr, client := newTestRedis(t)
	store := newRedisStore(client, time.Minute, "test")
	memotest.RunBackendContract(t, store, memotest.Options{Advance: mr.FastForward})
}

func TestRedisStoreNilClientErrors(t *testing.T) {
	store := newRedisStore(nil, 0, "")
	ctx := context.Background()

	if _, _, err := store.Get(ctx, "k"); !errors.Is(err, errRedisUnavailable) {
		t.Fatalf("expected get error, got %v", err)
	}
	if err := store.Set(ctx, "k", []byte("v"), 0); !errors.Is(err, errRedisUnavailable) {
		t.Fatalf("expected set error, got %v", err)
	}
	if err := store.Delete(ctx, "k"); !errors.Is(err, errRedisUnavailable) {
		t.Fatalf("expected delete error, got %v", err)
	}
	if _, err := store.GetMany(ctx, "k"); !errors.Is(err, errRedisUnavailable) {
		t.Fatalf("expected get many error, got %v", err)
	}
	if err := store.SetMany(ctx, map[string][]byte{"k": nil}, 0); !errors.Is(err, errRedisUnavailable) {
		t.Fatalf("expected set many error, got %v", err)
	}
	if err := store.Flush(ctx); !errors.Is(err, errRedisUnavailable) {
		t.Fatalf("expected flush error, got %v", err)
	}
}

func TestRedisStoreKeysAndTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	store := newRedisStore(client, 30*time.Second, "svc")
	ctx := context.Background()

	if err := store.Set(ctx, "alpha", []byte("one"), 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if got, err := mr.Get("svc:alpha"); err != nil || got != "one" {
		t.Fatalf("expected prefixed key, got %q err=%v", got, err)
	}
	if ttl := mr.TTL("svc:alpha"); ttl != 30*time.Second {
		t.Fatalf("expected default ttl applied, got %v", ttl)
	}
	if err := store.SetMany(ctx, map[string][]byte{"b": []byte("2"), "c": []byte("3")}, 5*time.Second); err != nil {
		t.Fatalf("set many failed: %v", err)
	}
	if ttl := mr.TTL("svc:c"); ttl != 5*time.Second {
		t.Fatalf("expected batch ttl applied, got %v", ttl)
	}
}

func TestRedisStoreFlushRespectsPrefix(t *testing.T) {
	mr, client := newTestRedis(t)
	store := newRedisStore(client, time.Minute, "mine")
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := mr.Set("other:k", "keep"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if mr.Exists("mine:k") {
		t.Fatalf("expected prefixed key flushed")
	}
	if !mr.Exists("other:k") {
		t.Fatalf("expected other prefix retained")
	}
}

func TestRedisStoreServerErrors(t *testing.T) {
	mr, client := newTestRedis(t)
	store := newRedisStore(client, time.Minute, "test")
	ctx := context.Background()

	mr.SetError("LOADING")
	if _, _, err := store.Get(ctx, "k"); err == nil {
		t.Fatalf("expected get error")
	}
	if _, err := store.GetMany(ctx, "a", "b"); err == nil {
		t.Fatalf("expected get many error")
	}
	if err := store.SetMany(ctx, map[string][]byte{"a": []byte("1")}, time.Minute); err == nil {
		t.Fatalf("expected set many error")
	}
	mr.SetError("")
	if _, ok, err := store.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected recovery, ok=%v err=%v", ok, err)
	}
}

func TestRedisBackendThroughHelper(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()
	h := New(NewRedisBackend(ctx, client, WithPrefix("app"), WithCompression(CompressionZstd)))
	calls := 0
	for i := 0; i < 2; i++ {
		results, err := Map(ctx, h, "add:{a}:{b}", Params("a", "b"), add(&calls), [][]any{{1, 2}, {nil, 2}}, time.Minute)
		if err != nil {
			t.Fatalf("map failed: %v", err)
		}
		if *results[0] != 3 || results[1] != nil {
			t.Fatalf("unexpected results")
		}
	}
	if calls != 2 {
		t.Fatalf("expected second batch served from redis, got %d calls", calls)
	}
}
