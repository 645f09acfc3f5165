package memo

import (
	"errors"
	"fmt"
	"reflect"
)

type emptyResult struct{}

func (emptyResult) String() string { return "<memo: empty result>" }

// Empty is stored in place of a nil result so that a cached nil can be told
// apart from a miss. It only ever equals itself and is never returned to
// callers; wrappers translate it back to the zero value. The package matches
// the sentinel by type, so reassigning Empty has no effect on caching.
var Empty any = emptyResult{}

func isEmpty(v any) bool {
	_, ok := v.(emptyResult)
	return ok
}

// ErrCorruptEntry is returned when a backend holds bytes that were not
// written by this package.
var ErrCorruptEntry = errors.New("memo: corrupt cache entry")

const (
	entryValue byte = 'v'
	entryEmpty byte = 'e'
)

// isNil reports whether v is a nil interface or a nil pointer, slice, map,
// chan or func.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

// storedValue substitutes Empty for nil results.
func storedValue(v any) any {
	if isNil(v) {
		return emptyResult{}
	}
	return v
}

func encodeEntry(codec Codec, stored any) ([]byte, error) {
	if isEmpty(stored) {
		return []byte{entryEmpty}, nil
	}
	body, err := codec.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("memo: encode value: %w", err)
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, entryValue)
	return append(out, body...), nil
}

// decodeEntry returns Empty for a cached nil, otherwise the decoded R.
func decodeEntry[R any](codec Codec, raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, ErrCorruptEntry
	}
	switch raw[0] {
	case entryEmpty:
		if len(raw) != 1 {
			return nil, ErrCorruptEntry
		}
		return emptyResult{}, nil
	case entryValue:
		var out R
		if err := codec.Unmarshal(raw[1:], &out); err != nil {
			return nil, fmt.Errorf("memo: decode value: %w", err)
		}
		return out, nil
	default:
		return nil, ErrCorruptEntry
	}
}

// resultOf translates a stored value back to what callers see.
func resultOf[R any](stored any) (R, error) {
	var zero R
	if isEmpty(stored) {
		return zero, nil
	}
	out, ok := stored.(R)
	if !ok {
		return zero, fmt.Errorf("%w: holds %T, want %T", ErrCorruptEntry, stored, zero)
	}
	return out, nil
}
