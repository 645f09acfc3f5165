package memo

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestShapingStoreIdentityWhenDisabled(t *testing.T) {
	base := newMemoryStore(0, 0)
	if newShapingStore(base, CompressionNone, 0) != base {
		t.Fatalf("expected identity without compression or limit")
	}
}

func TestShapingStoreCompressesAtRest(t *testing.T) {
	base := newMemoryStore(0, 0)
	store := newShapingStore(base, CompressionZstd, 0)
	ctx := context.Background()
	payload := bytes.Repeat([]byte("z"), 1024)

	if err := store.Set(ctx, "k", payload, time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	raw, _, _ := base.Get(ctx, "k")
	if !bytes.HasPrefix(raw, compressMagic) || len(raw) >= len(payload) {
		t.Fatalf("expected compressed value at rest, len=%d", len(raw))
	}
	got, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || !bytes.Equal(got, payload) {
		t.Fatalf("unexpected get: ok=%v err=%v", ok, err)
	}

	if err := store.SetMany(ctx, map[string][]byte{"a": payload, "b": []byte("b")}, time.Minute); err != nil {
		t.Fatalf("set many failed: %v", err)
	}
	found, err := store.GetMany(ctx, "a", "b", "missing")
	if err != nil {
		t.Fatalf("get many failed: %v", err)
	}
	if len(found) != 2 || !bytes.Equal(found["a"], payload) || string(found["b"]) != "b" {
		t.Fatalf("unexpected batch result")
	}
}

func TestShapingStoreSetManyIsAllOrNothing(t *testing.T) {
	base := newMemoryStore(0, 0)
	store := newShapingStore(base, CompressionNone, 4)
	ctx := context.Background()
	err := store.SetMany(ctx, map[string][]byte{"ok": []byte("1"), "big": []byte("too large")}, time.Minute)
	if !errors.Is(err, ErrValueTooLarge) {
		t.Fatalf("expected size error, got %v", err)
	}
	found, _ := base.GetMany(ctx, "ok", "big")
	if len(found) != 0 {
		t.Fatalf("expected nothing written, got %q", found)
	}
}

func TestShapingStoreWithEncryption(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryBackend(ctx, WithCompression(CompressionSnappy), WithEncryptionKey(testKey))
	shaped, ok := store.(*shapingStore)
	if !ok {
		t.Fatalf("expected shaping store outermost, got %T", store)
	}
	if _, ok := shaped.inner.(*encryptingStore); !ok {
		t.Fatalf("expected encrypting store beneath shaping, got %T", shaped.inner)
	}
	payload := bytes.Repeat([]byte("abc"), 100)
	if err := store.Set(ctx, "k", payload, time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || !bytes.Equal(got, payload) {
		t.Fatalf("unexpected get: ok=%v err=%v", ok, err)
	}
	if store.Driver() != DriverMemory {
		t.Fatalf("expected driver passthrough, got %q", store.Driver())
	}
}
