package memotest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

// Backend is the method set exercised by RunBackendContract.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	GetMany(ctx context.Context, keys ...string) (map[string][]byte, error)
	SetMany(ctx context.Context, values map[string][]byte, ttl time.Duration) error
}

type flusher interface {
	Flush(ctx context.Context) error
}

// Options configures shared backend contract checks.
type Options struct {
	// CaseName is used to namespace keys. Defaults to t.Name().
	CaseName string
	// NullSemantics expects every read to miss.
	NullSemantics bool
	// SkipCloneCheck disables the "get returns a cloned value" assertion.
	SkipCloneCheck bool
	// TTL controls the expiry duration used in TTL tests.
	TTL time.Duration
	// TTLWait is how long the harness waits for expiry to occur.
	TTLWait time.Duration
	// Advance, when set, is called with TTLWait instead of sleeping. Use it
	// with servers that have a simulated clock.
	Advance func(time.Duration)
	// SkipTTL disables the expiry check.
	SkipTTL bool
	// SkipFlush disables the flush check even when the backend can flush.
	SkipFlush bool
}

// RunBackendContract runs a backend-agnostic contract suite.
func RunBackendContract(t *testing.T, backend Backend, opts Options) {
	t.Helper()

	caseName := opts.CaseName
	if caseName == "" {
		caseName = t.Name()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 50 * time.Millisecond
	}
	wait := opts.TTLWait
	if wait <= 0 {
		wait = 120 * time.Millisecond
	}

	ctx := context.Background()
	key := func(s string) string {
		return sanitize(caseName) + ":" + s
	}

	// Set/Get round-trip.
	if err := backend.Set(ctx, key("alpha"), []byte("value"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	body, ok, err := backend.Get(ctx, key("alpha"))
	if err != nil {
		t.Fatalf("get failed: ok=%v err=%v", ok, err)
	}
	if opts.NullSemantics {
		if ok {
			t.Fatalf("expected miss for null semantics")
		}
	} else {
		if !ok || string(body) != "value" {
			t.Fatalf("unexpected get result: ok=%v body=%q", ok, string(body))
		}
		if !opts.SkipCloneCheck {
			body[0] = 'X'
			body2, ok2, err2 := backend.Get(ctx, key("alpha"))
			if err2 != nil || !ok2 || string(body2) != "value" {
				t.Fatalf("expected stored value unchanged, got ok=%v body=%q err=%v", ok2, string(body2), err2)
			}
		}
	}

	// Missing keys are misses, not errors.
	if _, ok, err := backend.Get(ctx, key("never-set")); err != nil || ok {
		t.Fatalf("expected miss for unknown key; ok=%v err=%v", ok, err)
	}

	// Overwrite replaces the value.
	if err := backend.Set(ctx, key("alpha"), []byte("value-2"), time.Minute); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if body, ok, err := backend.Get(ctx, key("alpha")); err != nil || ok != !opts.NullSemantics || (ok && string(body) != "value-2") {
		t.Fatalf("unexpected overwrite result: ok=%v body=%q err=%v", ok, string(body), err)
	}

	// SetMany / GetMany report hits only.
	batch := map[string][]byte{
		key("m1"): []byte("one"),
		key("m2"): []byte("two"),
	}
	if err := backend.SetMany(ctx, batch, time.Minute); err != nil {
		t.Fatalf("set many failed: %v", err)
	}
	found, err := backend.GetMany(ctx, key("m1"), key("m2"), key("m3"))
	if err != nil {
		t.Fatalf("get many failed: %v", err)
	}
	if _, ok := found[key("m3")]; ok {
		t.Fatalf("expected missing key absent from get many result")
	}
	if opts.NullSemantics {
		if len(found) != 0 {
			t.Fatalf("expected no hits for null semantics, got %d", len(found))
		}
	} else {
		if len(found) != 2 || string(found[key("m1")]) != "one" || string(found[key("m2")]) != "two" {
			t.Fatalf("unexpected get many result: %q", found)
		}
	}
	if found, err := backend.GetMany(ctx); err != nil || len(found) != 0 {
		t.Fatalf("expected empty get many to return nothing; found=%d err=%v", len(found), err)
	}
	if err := backend.SetMany(ctx, map[string][]byte{}, time.Minute); err != nil {
		t.Fatalf("empty set many failed: %v", err)
	}

	// TTL expiry.
	if !opts.SkipTTL {
		if err := backend.Set(ctx, key("ttl"), []byte("v"), ttl); err != nil {
			t.Fatalf("set ttl failed: %v", err)
		}
		if err := backend.SetMany(ctx, map[string][]byte{key("ttl-many"): []byte("v")}, ttl); err != nil {
			t.Fatalf("set many ttl failed: %v", err)
		}
		if opts.Advance != nil {
			opts.Advance(wait)
		}
		if err := waitForMiss(ctx, backend, key("ttl"), wait); err != nil {
			t.Fatalf("expected ttl expiry: %v", err)
		}
		if err := waitForMiss(ctx, backend, key("ttl-many"), wait); err != nil {
			t.Fatalf("expected set many ttl expiry: %v", err)
		}
	}

	// Delete.
	if err := backend.Set(ctx, key("a"), []byte("1"), time.Minute); err != nil {
		t.Fatalf("set a failed: %v", err)
	}
	if err := backend.Delete(ctx, key("a")); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, err := backend.Get(ctx, key("a")); err != nil || ok {
		t.Fatalf("expected key a deleted; ok=%v err=%v", ok, err)
	}
	if err := backend.Delete(ctx, key("a")); err != nil {
		t.Fatalf("expected deleting a missing key to succeed: %v", err)
	}

	// Flush.
	if f, ok := backend.(flusher); ok && !opts.SkipFlush {
		if err := backend.Set(ctx, key("flush"), []byte("x"), time.Minute); err != nil {
			t.Fatalf("set flush failed: %v", err)
		}
		if err := f.Flush(ctx); err != nil {
			t.Fatalf("flush failed: %v", err)
		}
		if _, ok, err := backend.Get(ctx, key("flush")); err != nil || ok {
			t.Fatalf("expected flush to clear key; ok=%v err=%v", ok, err)
		}
	}
}

func waitForMiss(ctx context.Context, backend Backend, key string, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		_, ok, err := backend.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	_, ok, err := backend.Get(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("key %q still present after %s", key, wait)
	}
	return nil
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
