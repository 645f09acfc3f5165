package memo

import (
	"fmt"
	"reflect"
	"sort"
)

// localKey identifies a call in local mode: the positional values in order
// and the keyword pairs sorted by name. Both halves hold fixed-size arrays
// built at runtime so the key is comparable and usable as a map key.
//
// Positional and keyword spellings of the same call produce different keys.
type localKey struct {
	positional any
	named      any
}

type namedArg struct {
	Name  string
	Value any
}

func newLocalKey(args Args) (localKey, error) {
	positional, err := tupleOf(args.Positional)
	if err != nil {
		return localKey{}, err
	}
	names := make([]string, 0, len(args.Named))
	for name := range args.Named {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([]namedArg, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, namedArg{Name: name, Value: args.Named[name]})
	}
	named, err := tupleOf(pairs)
	if err != nil {
		return localKey{}, err
	}
	return localKey{positional: positional, named: named}, nil
}

func tupleOf[T any](items []T) (any, error) {
	arr := reflect.New(reflect.ArrayOf(len(items), reflect.TypeOf((*T)(nil)).Elem())).Elem()
	for i := range items {
		v := reflect.ValueOf(&items[i]).Elem()
		if !v.Comparable() {
			return nil, fmt.Errorf("%w: %T at position %d", ErrUnhashableArgument, items[i], i)
		}
		arr.Index(i).Set(v)
	}
	return arr.Interface(), nil
}
