package memo

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewBackendDrivers(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name  string
		store Store
		want  Driver
	}{
		{"default", NewBackend(ctx, BackendConfig{}), DriverMemory},
		{"memory", NewMemoryBackend(ctx), DriverMemory},
		{"null", NewNullBackend(ctx), DriverNull},
		{"file", NewFileBackend(ctx, t.TempDir()), DriverFile},
		{"sql", NewSQLBackend(ctx, "sqlite", filepath.Join(t.TempDir(), "memo.db"), ""), DriverSQL},
		{"dynamo", NewDynamoBackend(ctx, newDynStub()), DriverDynamo},
		{"nats", NewNATSBackend(ctx, newStubNATSKeyValue("bucket")), DriverNATS},
		{"memcached", NewMemcachedBackend(ctx, []string{"127.0.0.1:1"}), DriverMemcached},
	}
	for _, tc := range cases {
		if got := tc.store.Driver(); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
		if es, ok := tc.store.(*errorStore); ok {
			t.Fatalf("%s: unexpected construction error: %v", tc.name, es.Err())
		}
	}
}

func TestNewBackendRedisWithoutClient(t *testing.T) {
	store := NewBackendWith(context.Background(), DriverRedis)
	if store.Driver() != DriverRedis {
		t.Fatalf("expected redis driver, got %q", store.Driver())
	}
	if _, _, err := store.Get(context.Background(), "k"); !errors.Is(err, errRedisUnavailable) {
		t.Fatalf("expected redis unavailable error, got %v", err)
	}
}

func TestNewBackendUnknownDriver(t *testing.T) {
	store := NewBackend(context.Background(), BackendConfig{Driver: "carrier-pigeon"})
	es, ok := store.(*errorStore)
	if !ok {
		t.Fatalf("expected error store, got %T", store)
	}
	if !strings.Contains(es.Err().Error(), "unknown driver") {
		t.Fatalf("unexpected error: %v", es.Err())
	}
	if store.Driver() != "carrier-pigeon" {
		t.Fatalf("expected driver identity preserved, got %q", store.Driver())
	}
}

func TestNewBackendSQLMissingConfigReturnsErrorStore(t *testing.T) {
	store := NewBackend(context.Background(), BackendConfig{Driver: DriverSQL})
	if store.Driver() != DriverSQL {
		t.Fatalf("expected sql driver")
	}
	if _, _, err := store.Get(context.Background(), "k"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := store.GetMany(context.Background(), "k"); err == nil {
		t.Fatalf("expected error from get many")
	}
	if err := store.SetMany(context.Background(), map[string][]byte{"k": nil}, time.Minute); err == nil {
		t.Fatalf("expected error from set many")
	}
}

func TestNewBackendSQLInvalidTable(t *testing.T) {
	store := NewSQLBackend(context.Background(), "sqlite", filepath.Join(t.TempDir(), "memo.db"), "bad-name;")
	if _, ok := store.(*errorStore); !ok {
		t.Fatalf("expected error store for invalid table, got %T", store)
	}
}

func TestNewBackendDynamoErrorReturnsErrorStore(t *testing.T) {
	store := NewDynamoBackend(context.Background(), failingDynamo{}, WithDynamoTable("tbl"))
	if store.Driver() != DriverDynamo {
		t.Fatalf("expected dynamo driver")
	}
	if _, _, err := store.Get(context.Background(), "k"); err == nil {
		t.Fatalf("expected propagated error")
	}
}

func TestNewBackendBadEncryptionKey(t *testing.T) {
	store := NewMemoryBackend(context.Background(), WithEncryptionKey([]byte("short")))
	if err := store.Set(context.Background(), "k", []byte("v"), time.Minute); !errors.Is(err, ErrEncryptionKey) {
		t.Fatalf("expected encryption key error, got %v", err)
	}
}

func TestNewBackendUnsupportedCompression(t *testing.T) {
	store := NewMemoryBackend(context.Background(), WithCompression("brotli"))
	if _, _, err := store.Get(context.Background(), "k"); !errors.Is(err, ErrUnsupportedCodec) {
		t.Fatalf("expected unsupported codec error, got %v", err)
	}
}

func TestNewBackendAppliesEncryption(t *testing.T) {
	store := NewMemoryBackend(context.Background(), WithEncryptionKey(testKey))
	if _, ok := store.(*encryptingStore); !ok {
		t.Fatalf("expected encrypting store wrapper, got %T", store)
	}
}

func TestErrorStoreFeedsHelper(t *testing.T) {
	store := NewBackend(context.Background(), BackendConfig{Driver: DriverSQL})
	h := New(store)
	calls := 0
	_, err := Call(context.Background(), h, "k", time.Minute, func(context.Context) (int, error) {
		calls++
		return 1, nil
	})
	if err == nil || calls != 0 {
		t.Fatalf("expected construction error before producer runs, err=%v calls=%d", err, calls)
	}
}
