// Package render implements the SMCP Config Renderer (component C9):
// substituting "${input:id}" placeholders into a Computer's MCP server
// configuration before it boots, using a pluggable resolver (the actual
// interactive/cached input provider is out of scope for this module,
// see SPEC_FULL.md §1).
package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// Resolver resolves one input id to its concrete value. An id with no
// value available should return an error satisfying errors.Is(err,
// ErrNotFound); any other error is treated as a hard failure.
type Resolver func(id string) (any, error)

// ErrNotFound is the sentinel a Resolver wraps into its returned error
// to mean "no value for this id" rather than some other failure. On
// this error renderString leaves the placeholder unchanged instead of
// propagating it.
var ErrNotFound = errors.New("render: no value for input")

var placeholder = regexp.MustCompile(`\$\{input:([^}]+)\}`)

// Render walks value (a decoded JSON tree of map[string]any / []any /
// scalars) and substitutes every "${input:id}" placeholder found in a
// string leaf. A string that is entirely one placeholder is replaced by
// resolve's returned value with its original JSON type preserved; a
// placeholder embedded within a larger string is replaced by its
// string-formatted value instead.
func Render(value any, resolve Resolver) (any, error) {
	switch v := value.(type) {
	case string:
		return renderString(v, resolve)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			rendered, err := Render(child, resolve)
			if err != nil {
				return nil, err
			}
			out[k] = rendered
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			rendered, err := Render(child, resolve)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return v, nil
	}
}

func renderString(s string, resolve Resolver) (any, error) {
	matches := placeholder.FindStringSubmatchIndex(s)
	if matches == nil {
		return s, nil
	}

	// Sole placeholder: the whole string is exactly one "${input:id}" —
	// preserve the resolved value's own JSON type.
	if matches[0] == 0 && matches[1] == len(s) {
		id := s[matches[2]:matches[3]]
		value, err := resolve(id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return s, nil
			}
			return nil, fmt.Errorf("resolve input %q: %w", id, err)
		}
		return value, nil
	}

	var resolveErr error
	result := placeholder.ReplaceAllStringFunc(s, func(match string) string {
		if resolveErr != nil {
			return match
		}
		sub := placeholder.FindStringSubmatch(match)
		id := sub[1]
		value, err := resolve(id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return match
			}
			resolveErr = fmt.Errorf("resolve input %q: %w", id, err)
			return match
		}
		return stringify(value)
	})
	if resolveErr != nil {
		return nil, resolveErr
	}
	return result, nil
}

func stringify(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(b)
}

// RenderRaw is a convenience wrapper over Render for json.RawMessage
// config documents: decode, render, re-encode.
func RenderRaw(raw json.RawMessage, resolve Resolver) (json.RawMessage, error) {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode config for rendering: %w", err)
	}
	rendered, err := Render(decoded, resolve)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(rendered)
	if err != nil {
		return nil, fmt.Errorf("encode rendered config: %w", err)
	}
	return out, nil
}
