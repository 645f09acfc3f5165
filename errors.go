package memo

import (
	"errors"
	"fmt"
)

var (
	// ErrBinding matches every *BindingError.
	ErrBinding = errors.New("memo: cannot bind arguments")
	// ErrKeyFormat matches every *KeyFormatError.
	ErrKeyFormat = errors.New("memo: cannot format key")
	// ErrUnhashableArgument is returned when a local cache key would contain
	// a value that cannot be compared (slices, maps, funcs).
	ErrUnhashableArgument = errors.New("memo: argument is not comparable")
	// ErrNilProducer is returned when a wrapper is given a nil function.
	ErrNilProducer = errors.New("memo: producer function is nil")
)

// BindingError reports call arguments that do not fit a Signature.
type BindingError struct {
	Param  string
	Reason string
}

func (e *BindingError) Error() string {
	if e.Param == "" {
		return "memo: bind arguments: " + e.Reason
	}
	return fmt.Sprintf("memo: bind argument %q: %s", e.Param, e.Reason)
}

func (e *BindingError) Is(target error) bool { return target == ErrBinding }

// KeyFormatError reports a key pattern that cannot be resolved.
type KeyFormatError struct {
	Pattern string
	Name    string
	Reason  string
}

func (e *KeyFormatError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("memo: key pattern %q: %s", e.Pattern, e.Reason)
	}
	return fmt.Sprintf("memo: key pattern %q: %s %q", e.Pattern, e.Reason, e.Name)
}

func (e *KeyFormatError) Is(target error) bool { return target == ErrKeyFormat }
