package memo

import (
	"fmt"
	"sort"
)

// Args carries the arguments of a single call: positional values in order
// and keyword values by parameter name.
type Args struct {
	Positional []any
	Named      map[string]any
}

// Positional builds Args from positional values.
func Positional(values ...any) Args {
	return Args{Positional: values}
}

// Named builds Args holding a single keyword argument.
func Named(name string, value any) Args {
	return Args{}.With(name, value)
}

// With returns a copy of a with name bound as a keyword argument.
func (a Args) With(name string, value any) Args {
	named := make(map[string]any, len(a.Named)+1)
	for k, v := range a.Named {
		named[k] = v
	}
	named[name] = value
	return Args{Positional: a.Positional, Named: named}
}

// Param declares one parameter of a Signature.
type Param struct {
	Name string
	// Default is bound when the call omits the parameter and HasDefault is set.
	Default    any
	HasDefault bool
}

// Required declares a parameter that every call must supply.
func Required(name string) Param {
	return Param{Name: name}
}

// Optional declares a parameter bound to def when omitted.
func Optional(name string, def any) Param {
	return Param{Name: name, Default: def, HasDefault: true}
}

// Signature is the declared parameter list of a cached function. Key patterns
// are resolved against the names it binds, so a call made positionally and the
// same call made by keyword resolve to the same key.
type Signature struct {
	params   []Param
	index    map[string]int
	variadic string
}

// Params declares a signature of required parameters.
func Params(names ...string) Signature {
	params := make([]Param, 0, len(names))
	for _, name := range names {
		params = append(params, Required(name))
	}
	return NewSignature(params...)
}

// NewSignature declares a signature. It panics on empty or duplicate names.
func NewSignature(params ...Param) Signature {
	index := make(map[string]int, len(params))
	for i, p := range params {
		if p.Name == "" {
			panic("memo: signature parameter name is empty")
		}
		if _, dup := index[p.Name]; dup {
			panic(fmt.Sprintf("memo: duplicate signature parameter %q", p.Name))
		}
		index[p.Name] = i
	}
	return Signature{params: append([]Param(nil), params...), index: index}
}

// WithVariadic returns a copy of s that collects surplus positional arguments
// into name as a []any.
func (s Signature) WithVariadic(name string) Signature {
	if _, dup := s.index[name]; dup || name == "" {
		panic(fmt.Sprintf("memo: invalid variadic parameter %q", name))
	}
	s.variadic = name
	return s
}

// Names lists the parameter names in declaration order, variadic last.
func (s Signature) Names() []string {
	names := make([]string, 0, len(s.params)+1)
	for _, p := range s.params {
		names = append(names, p.Name)
	}
	if s.variadic != "" {
		names = append(names, s.variadic)
	}
	return names
}

// Bind maps args onto the declared parameters. It fails with a *BindingError
// on surplus positional arguments, unknown keywords, a parameter supplied
// twice, or a missing required parameter.
func (s Signature) Bind(args Args) (map[string]any, error) {
	bound := make(map[string]any, len(s.params)+1)

	var rest []any
	for i, v := range args.Positional {
		if i < len(s.params) {
			bound[s.params[i].Name] = v
			continue
		}
		if s.variadic == "" {
			return nil, &BindingError{Reason: fmt.Sprintf(
				"takes %d positional arguments but %d were given", len(s.params), len(args.Positional))}
		}
		rest = append(rest, v)
	}
	if s.variadic != "" {
		if rest == nil {
			rest = []any{}
		}
		bound[s.variadic] = rest
	}

	names := make([]string, 0, len(args.Named))
	for name := range args.Named {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := s.index[name]; !ok {
			return nil, &BindingError{Param: name, Reason: "unexpected keyword argument"}
		}
		if _, dup := bound[name]; dup {
			return nil, &BindingError{Param: name, Reason: "got multiple values"}
		}
		bound[name] = args.Named[name]
	}

	for _, p := range s.params {
		if _, ok := bound[p.Name]; ok {
			continue
		}
		if !p.HasDefault {
			return nil, &BindingError{Param: p.Name, Reason: "missing required argument"}
		}
		bound[p.Name] = p.Default
	}
	return bound, nil
}
