package computer

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagenti/smcp-gateway/internal/config"
)

// fakeManager is a toolManager test double that resolves every tool
// name to a fixed server/original pair and never actually forwards a
// CallTool; ExecuteTool with no confirm callback should never reach
// CallTool for a tool requiring confirmation.
type fakeManager struct {
	server, original string
	calledTool       bool
}

func (f *fakeManager) AddServer(ctx context.Context, server *config.MCPServer) error { return nil }
func (f *fakeManager) RemoveServer(ctx context.Context, name config.ServerName) error { return nil }
func (f *fakeManager) Tools(ctx context.Context) ([]mcp.Tool, error)                  { return nil, nil }
func (f *fakeManager) ValidateToolCall(toolName string) (config.ServerName, string, error) {
	return f.server, f.original, nil
}
func (f *fakeManager) CallTool(ctx context.Context, toolName string, args map[string]any) (*mcp.CallToolResult, error) {
	f.calledTool = true
	return mcp.NewToolResultText("ok"), nil
}
func (f *fakeManager) Shutdown() {}

func TestBootUpWithNoServers(t *testing.T) {
	c := New("test", nil)
	require.NoError(t, c.BootUp(context.Background()))
	_, err := c.AvailableTools(context.Background())
	require.NoError(t, err)
}

func TestResolveInputUsesDefault(t *testing.T) {
	c := New("test", nil)
	c.AddOrUpdateInput(&config.InputDef{Kind: config.InputPromptString, ID: "token", Default: "abc"})

	v, err := c.ResolveInput("token")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)
}

func TestResolveInputUsesCachedValueOverDefault(t *testing.T) {
	c := New("test", nil)
	c.AddOrUpdateInput(&config.InputDef{Kind: config.InputPromptString, ID: "token", Default: "abc"})
	require.True(t, c.SetInputValue("token", "override"))

	v, err := c.ResolveInput("token")
	require.NoError(t, err)
	assert.Equal(t, "override", v)
}

func TestResolveInputUnknownID(t *testing.T) {
	c := New("test", nil)
	_, err := c.ResolveInput("ghost")
	require.Error(t, err)
	var notFound *InputNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestResolveInputNoDefaultUnresolved(t *testing.T) {
	c := New("test", nil)
	c.AddOrUpdateInput(&config.InputDef{Kind: config.InputPromptString, ID: "token"})
	_, err := c.ResolveInput("token")
	require.Error(t, err)
	var unresolved *InputUnresolvedError
	assert.ErrorAs(t, err, &unresolved)
}

func TestResolveInputPickStringFallsBackToFirstOption(t *testing.T) {
	c := New("test", nil)
	c.AddOrUpdateInput(&config.InputDef{Kind: config.InputPickString, ID: "env", Options: []string{"prod", "dev"}})
	v, err := c.ResolveInput("env")
	require.NoError(t, err)
	assert.Equal(t, "prod", v)
}

func TestSetInputValueRejectsUnknownID(t *testing.T) {
	c := New("test", nil)
	assert.False(t, c.SetInputValue("ghost", "x"))
}

func TestRemoveInputClearsValue(t *testing.T) {
	c := New("test", nil)
	c.AddOrUpdateInput(&config.InputDef{Kind: config.InputPromptString, ID: "token"})
	c.SetInputValue("token", "v")
	require.True(t, c.RemoveInput("token"))
	_, ok := c.GetInputValue("token")
	assert.False(t, ok)
}

func TestClearInputValuesAll(t *testing.T) {
	c := New("test", nil)
	c.AddOrUpdateInput(&config.InputDef{Kind: config.InputPromptString, ID: "a"})
	c.AddOrUpdateInput(&config.InputDef{Kind: config.InputPromptString, ID: "b"})
	c.SetInputValue("a", "1")
	c.SetInputValue("b", "2")
	c.ClearInputValues(nil)
	assert.Empty(t, c.ListInputValues())
}

func TestHistoryBoundedToTen(t *testing.T) {
	c := New("test", nil)
	for i := 0; i < 15; i++ {
		c.recordHistory(ToolCallRecord{Tool: "t"})
	}
	assert.Len(t, c.ToolHistory(), maxHistory)
}

func TestExecuteToolWithoutBootFails(t *testing.T) {
	c := New("test", nil)
	_, err := c.ExecuteTool(context.Background(), "r1", "tool", nil, nil)
	require.Error(t, err)
	var notBooted *NotBootedError
	assert.ErrorAs(t, err, &notBooted)
}

func TestExecuteToolWithoutConfirmCallbackReturnsErrorResultAndRecordsHistory(t *testing.T) {
	c := New("test", nil)
	fm := &fakeManager{server: "fs", original: "write_file"}
	c.manager = fm
	c.booted = true
	c.servers["fs"] = &config.MCPServer{Name: "fs"}

	result, err := c.ExecuteTool(context.Background(), "r1", "write_file", nil, nil)
	require.NoError(t, err, "a missing confirm callback is a tool-shaped error, not a Go error")
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.False(t, fm.calledTool, "a call needing confirmation must never reach CallTool without one")

	history := c.ToolHistory()
	require.Len(t, history, 1)
	assert.False(t, history[0].Success)
	assert.NotEmpty(t, history[0].Error)
}
