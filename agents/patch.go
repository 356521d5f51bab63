package agents

import (
	"fmt"
	"strings"
)

// The patch path mini-language addresses a location inside nested
// open-schema data: dotted segments descend through maps, and
// `[field=value]` selectors pick (or create) the first list element
// whose field equals the value. A selector with no preceding segment
// addresses the implicit list "items".
//
//	path := segment ('.' segment | '[' field '=' value ']')*
//
// Whitespace around '=' is insignificant.

type pathToken struct {
	segment  string // set for segment tokens
	field    string // set with value for selector tokens
	value    string
	selector bool
}

// parsePath scans a path into tokens and normalizes it so every
// selector follows a segment.
func parsePath(path string) ([]pathToken, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("empty path")
	}
	var tokens []pathToken
	i := 0
	for i < len(path) {
		switch path[i] {
		case '.':
			i++
			if i >= len(path) {
				return nil, fmt.Errorf("path %q: trailing dot", path)
			}
		case '[':
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("path %q: unterminated selector", path)
			}
			body := path[i+1 : i+end]
			eq := strings.IndexByte(body, '=')
			if eq < 0 {
				return nil, fmt.Errorf("path %q: selector %q missing '='", path, body)
			}
			field := strings.TrimSpace(body[:eq])
			value := strings.TrimSpace(body[eq+1:])
			if field == "" {
				return nil, fmt.Errorf("path %q: selector with empty field", path)
			}
			if len(tokens) == 0 || tokens[len(tokens)-1].selector {
				tokens = append(tokens, pathToken{segment: "items"})
			}
			tokens = append(tokens, pathToken{field: field, value: value, selector: true})
			i += end + 1
		default:
			j := i
			for j < len(path) && path[j] != '.' && path[j] != '[' {
				j++
			}
			seg := path[i:j]
			if seg == "" {
				return nil, fmt.Errorf("path %q: empty segment at offset %d", path, i)
			}
			tokens = append(tokens, pathToken{segment: seg})
			i = j
		}
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("path %q: no segments", path)
	}
	if tokens[len(tokens)-1].selector {
		return nil, fmt.Errorf("path %q: must end in a field segment", path)
	}
	return tokens, nil
}

// ApplyPatch assigns value at path inside root, creating intermediate
// maps and list elements as needed. Applying the same (path, value)
// twice leaves root unchanged after the first application.
func ApplyPatch(root map[string]interface{}, path string, value interface{}) error {
	tokens, err := parsePath(path)
	if err != nil {
		return err
	}

	var cur interface{} = root
	// setCur writes a replacement for the container cur lives in,
	// needed when a selector appends to a list.
	setCur := func(v interface{}) {}

	for i, tok := range tokens {
		last := i == len(tokens)-1
		if tok.selector {
			list, ok := cur.([]interface{})
			if !ok {
				list = []interface{}{}
			}
			elem := findListElement(list, tok.field, tok.value)
			if elem == nil {
				elem = map[string]interface{}{tok.field: tok.value}
				list = append(list, elem)
				setCur(list)
			}
			cur = elem
			continue
		}

		m, ok := cur.(map[string]interface{})
		if !ok {
			return fmt.Errorf("path %q: segment %q applied to non-map", path, tok.segment)
		}
		if last {
			m[tok.segment] = value
			return nil
		}

		child := m[tok.segment]
		nextIsSelector := tokens[i+1].selector
		switch {
		case nextIsSelector:
			if _, isList := child.([]interface{}); !isList {
				child = []interface{}{}
				m[tok.segment] = child
			}
		default:
			if _, isMap := child.(map[string]interface{}); !isMap {
				child = map[string]interface{}{}
				m[tok.segment] = child
			}
		}
		key := tok.segment
		setCur = func(v interface{}) { m[key] = v }
		cur = child
	}
	return nil
}

func findListElement(list []interface{}, field, value string) map[string]interface{} {
	for _, e := range list {
		if em, ok := e.(map[string]interface{}); ok {
			if got, present := em[field]; present && fmt.Sprintf("%v", got) == value {
				return em
			}
		}
	}
	return nil
}
