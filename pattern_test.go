package memo

import (
	"errors"
	"reflect"
	"testing"
)

func TestKeyPatternFormat(t *testing.T) {
	p := MustParsePattern("user:{id}:{lang}")
	key, err := p.Format(map[string]any{"id": 42, "lang": "en"})
	if err != nil {
		t.Fatalf("format failed: %v", err)
	}
	if key != "user:42:en" {
		t.Fatalf("unexpected key: %q", key)
	}
	if !reflect.DeepEqual(p.Names(), []string{"id", "lang"}) {
		t.Fatalf("unexpected names: %v", p.Names())
	}
	if p.String() != "user:{id}:{lang}" {
		t.Fatalf("unexpected raw pattern: %q", p.String())
	}
}

func TestKeyPatternEscapes(t *testing.T) {
	p := MustParsePattern("{{lit}}:{v}")
	key, err := p.Format(map[string]any{"v": "x"})
	if err != nil {
		t.Fatalf("format failed: %v", err)
	}
	if key != "{lit}:x" {
		t.Fatalf("unexpected key: %q", key)
	}
}

func TestParsePatternErrors(t *testing.T) {
	for _, raw := range []string{"a:{id", "a:{}", "a:}", "a:{x{y}"} {
		_, err := ParsePattern(raw)
		if !errors.Is(err, ErrKeyFormat) {
			t.Fatalf("expected key format error for %q, got %v", raw, err)
		}
	}
}

func TestKeyPatternUnboundName(t *testing.T) {
	p := MustParsePattern("item:{missing}")
	_, err := p.Key(Params("id"), Positional(1))
	var kfe *KeyFormatError
	if !errors.As(err, &kfe) {
		t.Fatalf("expected *KeyFormatError, got %v", err)
	}
	if kfe.Name != "missing" {
		t.Fatalf("expected missing name reported, got %q", kfe.Name)
	}
}

func TestKeyPatternKeyBindsFirst(t *testing.T) {
	p := MustParsePattern("item:{id}")
	if _, err := p.Key(Params("id"), Positional(1, 2)); !errors.Is(err, ErrBinding) {
		t.Fatalf("expected binding error, got %v", err)
	}
}
