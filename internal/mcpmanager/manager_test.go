package mcpmanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagenti/smcp-gateway/internal/config"
)

func TestAddServerDisabledDoesNotConnect(t *testing.T) {
	m := New(nil)
	err := m.AddServer(context.Background(), &config.MCPServer{Name: "fs", Disabled: true, Transport: config.TransportStdio})
	require.NoError(t, err)
	_, ok := m.Client("fs")
	assert.False(t, ok)
	assert.Contains(t, m.ServerNames(), config.ServerName("fs"))
}

func TestRemoveUnknownServerErrors(t *testing.T) {
	m := New(nil)
	err := m.RemoveServer(context.Background(), "missing")
	require.Error(t, err)
	var nfErr *ServerNotFoundError
	assert.ErrorAs(t, err, &nfErr)
}

func TestValidateToolCallUnknownTool(t *testing.T) {
	m := New(nil)
	_, _, err := m.ValidateToolCall("ghost")
	require.Error(t, err)
	var notFound *ToolNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestValidateToolCallDisabled(t *testing.T) {
	m := New(nil)
	m.toolMapping["danger"] = "fs"
	m.disabledTools["danger"] = struct{}{}

	_, _, err := m.ValidateToolCall("danger")
	require.Error(t, err)
	var disabledErr *ToolDisabledError
	assert.ErrorAs(t, err, &disabledErr)
}

func TestValidateToolCallResolvesAlias(t *testing.T) {
	m := New(nil)
	m.toolMapping["read"] = "fs"
	m.aliasMapping["read"] = aliasEntry{server: "fs", original: "read_file"}

	server, original, err := m.ValidateToolCall("read")
	require.NoError(t, err)
	assert.Equal(t, config.ServerName("fs"), server)
	assert.Equal(t, "read_file", original)
}

func TestToolConflictErrorMessage(t *testing.T) {
	err := &ToolConflictError{Tool: "search", Servers: []string{"a", "b"}}
	assert.Contains(t, err.Error(), "Tool 'search' exists in multiple servers")
	assert.Contains(t, err.Error(), "alias")
}

func TestConfigureBackOffDefaults(t *testing.T) {
	b := ConfigureBackOff()
	assert.Equal(t, 2.0, b.Factor)
	assert.Equal(t, 5, b.Steps)
}
