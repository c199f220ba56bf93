package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrMissingKey is wrapped by MissingKeyError.
var ErrMissingKey = errors.New("missing template key")

// MissingKeyError reports a required placeholder absent from state.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("%s: %q", ErrMissingKey, e.Key)
}

func (e *MissingKeyError) Unwrap() error { return ErrMissingKey }

type segment struct {
	literal  string
	key      string
	optional bool
}

// Template is a parsed instruction with {key} and {key?} placeholders.
// Brace text that is not a placeholder stays literal; {{ and }} escape a brace.
type Template struct {
	source   string
	segments []segment
	required []string
	optional []string
}

// ParseTemplate parses text. The only error is a lone brace immediately
// following an opening escape at end of input, e.g. "abc{{".
func ParseTemplate(text string) (*Template, error) {
	t := &Template{source: text}
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			t.segments = append(t.segments, segment{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == '{' && strings.HasPrefix(text[i:], "{{"):
			if i+2 == len(text) {
				return nil, fmt.Errorf("unterminated escape at offset %d", i)
			}
			lit.WriteByte('{')
			i += 2
		case c == '}' && strings.HasPrefix(text[i:], "}}"):
			lit.WriteByte('}')
			i += 2
		case c == '{':
			key, optional, n, ok := scanPlaceholder(text[i:])
			if !ok {
				lit.WriteByte(c)
				i++
				continue
			}
			flush()
			t.segments = append(t.segments, segment{key: key, optional: optional})
			if optional {
				t.optional = appendUnique(t.optional, key)
			} else {
				t.required = appendUnique(t.required, key)
			}
			i += n
		default:
			lit.WriteByte(c)
			i++
		}
	}
	flush()

	// A key used both ways is required.
	t.optional = slices.DeleteFunc(t.optional, func(k string) bool { return slices.Contains(t.required, k) })

	return t, nil
}

// MustParseTemplate is like ParseTemplate but panics on error.
func MustParseTemplate(text string) *Template {
	t, err := ParseTemplate(text)
	if err != nil {
		panic(err)
	}
	return t
}

func scanPlaceholder(s string) (key string, optional bool, n int, ok bool) {
	end := strings.IndexByte(s, '}')
	if end < 2 {
		return "", false, 0, false
	}
	body := s[1:end]
	if strings.HasSuffix(body, "?") {
		optional = true
		body = body[:len(body)-1]
	}
	if !isIdentifier(body) {
		return "", false, 0, false
	}
	return body, optional, end + 1, true
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func appendUnique(list []string, k string) []string {
	if slices.Contains(list, k) {
		return list
	}
	return append(list, k)
}

// Source returns the unparsed text.
func (t *Template) Source() string { return t.source }

// RequiredKeys returns required placeholder names in first-use order.
func (t *Template) RequiredKeys() []string { return slices.Clone(t.required) }

// OptionalKeys returns optional placeholder names in first-use order.
func (t *Template) OptionalKeys() []string { return slices.Clone(t.optional) }

// Keys returns required keys followed by optional keys.
func (t *Template) Keys() []string {
	return append(t.RequiredKeys(), t.optional...)
}

// Render substitutes placeholders using lookup. Strings render verbatim,
// other values as JSON.
func (t *Template) Render(lookup func(key string) (any, bool)) (string, error) {
	var b strings.Builder
	for _, seg := range t.segments {
		if seg.key == "" {
			b.WriteString(seg.literal)
			continue
		}
		v, ok := lookup(seg.key)
		if !ok {
			if seg.optional {
				continue
			}
			return "", &MissingKeyError{Key: seg.key}
		}
		s, err := stringify(v)
		if err != nil {
			return "", fmt.Errorf("render %q: %w", seg.key, err)
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// RenderMap is Render over a plain map.
func (t *Template) RenderMap(values map[string]any) (string, error) {
	return t.Render(func(k string) (any, bool) {
		v, ok := values[k]
		return v, ok
	})
}

func stringify(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case fmt.Stringer:
		return x.String(), nil
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
