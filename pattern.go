package memo

import (
	"fmt"
	"strings"
)

// KeyPattern is a parsed cache key template such as "user:{id}:{lang}".
// Placeholders name bound parameters; "{{" and "}}" produce literal braces.
type KeyPattern struct {
	raw   string
	parts []patternPart
}

type patternPart struct {
	text  string
	field bool
}

// ParsePattern parses a key template. Malformed templates fail with a
// *KeyFormatError.
func ParsePattern(pattern string) (*KeyPattern, error) {
	p := &KeyPattern{raw: pattern}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			p.parts = append(p.parts, patternPart{text: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '{':
			if i+1 < len(pattern) && pattern[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexAny(pattern[i+1:], "{}")
			if end < 0 || pattern[i+1+end] != '}' {
				return nil, &KeyFormatError{Pattern: pattern, Reason: "unclosed placeholder"}
			}
			name := pattern[i+1 : i+1+end]
			if name == "" {
				return nil, &KeyFormatError{Pattern: pattern, Reason: "empty placeholder"}
			}
			flush()
			p.parts = append(p.parts, patternPart{text: name, field: true})
			i += end + 1
		case '}':
			if i+1 < len(pattern) && pattern[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, &KeyFormatError{Pattern: pattern, Reason: "single '}' encountered"}
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return p, nil
}

// MustParsePattern is like ParsePattern but panics on error.
func MustParsePattern(pattern string) *KeyPattern {
	p, err := ParsePattern(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *KeyPattern) String() string { return p.raw }

// Names lists the placeholder names in order of appearance.
func (p *KeyPattern) Names() []string {
	var names []string
	for _, part := range p.parts {
		if part.field {
			names = append(names, part.text)
		}
	}
	return names
}

// Format substitutes bound values into the pattern. A placeholder with no
// bound value fails with a *KeyFormatError.
func (p *KeyPattern) Format(bound map[string]any) (string, error) {
	var b strings.Builder
	for _, part := range p.parts {
		if !part.field {
			b.WriteString(part.text)
			continue
		}
		v, ok := bound[part.text]
		if !ok {
			return "", &KeyFormatError{Pattern: p.raw, Name: part.text, Reason: "references unbound name"}
		}
		b.WriteString(fmt.Sprint(v))
	}
	return b.String(), nil
}

// Key binds args against sig and formats the result.
func (p *KeyPattern) Key(sig Signature, args Args) (string, error) {
	bound, err := sig.Bind(args)
	if err != nil {
		return "", err
	}
	return p.Format(bound)
}
