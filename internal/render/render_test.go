package render

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSolePlaceholderPreservesType(t *testing.T) {
	resolve := func(id string) (any, error) {
		if id == "port" {
			return float64(8080), nil
		}
		return nil, errors.New("unknown input")
	}

	value := map[string]any{"port": "${input:port}"}
	rendered, err := Render(value, resolve)
	require.NoError(t, err)
	assert.Equal(t, float64(8080), rendered.(map[string]any)["port"])
}

func TestRenderEmbeddedPlaceholderStringifies(t *testing.T) {
	resolve := func(id string) (any, error) { return "world", nil }
	rendered, err := Render("hello ${input:name}!", resolve)
	require.NoError(t, err)
	assert.Equal(t, "hello world!", rendered)
}

func TestRenderNoPlaceholderPassesThrough(t *testing.T) {
	rendered, err := Render("plain string", func(string) (any, error) { return nil, nil })
	require.NoError(t, err)
	assert.Equal(t, "plain string", rendered)
}

func TestRenderNestedStructures(t *testing.T) {
	resolve := func(id string) (any, error) { return "resolved", nil }
	value := []any{map[string]any{"a": "${input:x}"}, "literal"}
	rendered, err := Render(value, resolve)
	require.NoError(t, err)
	list := rendered.([]any)
	assert.Equal(t, "resolved", list[0].(map[string]any)["a"])
	assert.Equal(t, "literal", list[1])
}

func TestRenderResolveErrorPropagates(t *testing.T) {
	resolve := func(id string) (any, error) { return nil, errors.New("boom") }
	_, err := Render("${input:missing}", resolve)
	require.Error(t, err)
}

func TestRenderSolePlaceholderNotFoundLeftUnchanged(t *testing.T) {
	resolve := func(id string) (any, error) { return nil, fmt.Errorf("%w: %s", ErrNotFound, id) }
	rendered, err := Render("${input:missing}", resolve)
	require.NoError(t, err)
	assert.Equal(t, "${input:missing}", rendered)
}

func TestRenderEmbeddedPlaceholderNotFoundLeftUnchanged(t *testing.T) {
	resolve := func(id string) (any, error) { return nil, fmt.Errorf("%w: %s", ErrNotFound, id) }
	rendered, err := Render("hello ${input:missing}!", resolve)
	require.NoError(t, err)
	assert.Equal(t, "hello ${input:missing}!", rendered)
}

func TestRenderEmbeddedPlaceholderOtherErrorPropagates(t *testing.T) {
	resolve := func(id string) (any, error) { return nil, errors.New("boom") }
	_, err := Render("hello ${input:name}!", resolve)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
