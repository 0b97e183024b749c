// Package computer implements the SMCP Computer Facade (component
// C10): the boot sequence that renders a set of upstream MCP server
// configs and hands them to an mcpmanager.Manager, dynamic server/input
// management, and ExecuteTool with a confirm-callback gate and bounded
// call history.
package computer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kagenti/smcp-gateway/internal/config"
	"github.com/kagenti/smcp-gateway/internal/mcpmanager"
	"github.com/kagenti/smcp-gateway/internal/render"
)

const maxHistory = 10

// toolManager is the slice of *mcpmanager.Manager that Computer drives;
// narrowed to an interface so ExecuteTool's confirmation and history
// bookkeeping can be tested without a live upstream connection.
type toolManager interface {
	AddServer(ctx context.Context, server *config.MCPServer) error
	RemoveServer(ctx context.Context, name config.ServerName) error
	Tools(ctx context.Context) ([]mcp.Tool, error)
	ValidateToolCall(toolName string) (config.ServerName, string, error)
	CallTool(ctx context.Context, toolName string, args map[string]any) (*mcp.CallToolResult, error)
	Shutdown()
}

// ToolCallRecord is one entry in a Computer's bounded tool-call
// history, mirroring the original's ToolCallRecord.
type ToolCallRecord struct {
	Timestamp  time.Time
	ReqID      string
	Server     string
	Tool       string
	Parameters json.RawMessage
	Timeout    *float64
	Success    bool
	Error      string
}

// ConfirmFunc gates a tool call requiring user confirmation. It
// returns whether the call is approved.
type ConfirmFunc func(reqID, server, tool string, params json.RawMessage) bool

// NotificationEmitter is the Computer's upward notification hook — the
// Go analogue of the original's weak Socket.IO client reference,
// modeled as a small interface instead of an Arc<Weak<...>> so the
// Computer never holds the room transport alive on its own.
type NotificationEmitter interface {
	EmitUpdateToolList(ctx context.Context) error
	EmitUpdateDesktop(ctx context.Context, desktop string) error
}

// Computer is the facade a Computer process runs: config rendering,
// the MCP server manager, input bookkeeping, and tool execution.
type Computer struct {
	name   string
	logger *slog.Logger

	mu      sync.RWMutex
	booted  bool
	manager toolManager
	inputs  map[string]*config.InputDef
	servers map[string]*config.MCPServer

	inputValuesMu sync.RWMutex
	inputValues   map[string]any

	confirmCallback ConfirmFunc
	notifier        NotificationEmitter

	historyMu sync.Mutex
	history   []ToolCallRecord
}

// New constructs an unbooted Computer.
func New(name string, logger *slog.Logger) *Computer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Computer{
		name:        name,
		logger:      logger.With("computer", name),
		inputs:      make(map[string]*config.InputDef),
		servers:     make(map[string]*config.MCPServer),
		inputValues: make(map[string]any),
	}
}

// WithConfirmCallback registers the confirmation gate used by
// ExecuteTool for tools not marked auto-apply.
func (c *Computer) WithConfirmCallback(fn ConfirmFunc) *Computer {
	c.confirmCallback = fn
	return c
}

// SetNotifier attaches (or detaches, with nil) the room-side
// notification emitter.
func (c *Computer) SetNotifier(n NotificationEmitter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifier = n
}

// SetConfig replaces the Computer's server and input definitions ahead
// of BootUp.
func (c *Computer) SetConfig(cfg *config.ComputerConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.servers = make(map[string]*config.MCPServer, len(cfg.Servers))
	for _, s := range cfg.Servers {
		c.servers[s.Name] = s
	}
	c.inputs = make(map[string]*config.InputDef, len(cfg.Inputs))
	for _, in := range cfg.Inputs {
		c.inputs[in.ID] = in
	}
}

// BootUp renders every configured server's parameters against the
// input resolver and connects the MCP server manager to each.
func (c *Computer) BootUp(ctx context.Context) error {
	c.logger.Info("booting computer")

	c.mu.Lock()
	manager := mcpmanager.New(c.logger)
	servers := make([]*config.MCPServer, 0, len(c.servers))
	for _, s := range c.servers {
		servers = append(servers, s)
	}
	c.manager = manager
	c.booted = true
	c.mu.Unlock()

	for _, server := range servers {
		rendered, err := c.renderServerConfig(server)
		if err != nil {
			c.logger.Error("failed to render server config, using as-is", "server", server.Name, "error", err)
			rendered = server
		}
		if err := manager.AddServer(ctx, rendered); err != nil {
			c.logger.Error("failed to add server during boot", "server", server.Name, "error", err)
		}
	}

	c.logger.Info("computer booted", "servers", len(servers))
	return nil
}

// renderServerConfig substitutes every "${input:id}" placeholder in a
// server's transport parameters using ResolveInput.
func (c *Computer) renderServerConfig(server *config.MCPServer) (*config.MCPServer, error) {
	raw, err := json.Marshal(server)
	if err != nil {
		return nil, fmt.Errorf("marshal server %q: %w", server.Name, err)
	}
	rendered, err := render.RenderRaw(raw, c.ResolveInput)
	if err != nil {
		return nil, err
	}
	var out config.MCPServer
	if err := json.Unmarshal(rendered, &out); err != nil {
		return nil, fmt.Errorf("unmarshal rendered server %q: %w", server.Name, err)
	}
	return &out, nil
}

// ResolveInput implements render.Resolver: a cached value wins, else
// the input definition's default, else the first option of a pickString
// input, else InputUnresolvedError. Both of
// its failure cases wrap render.ErrNotFound so renderString leaves the
// placeholder unchanged instead of failing the whole render.
func (c *Computer) ResolveInput(id string) (any, error) {
	c.mu.RLock()
	def, ok := c.inputs[id]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %w", render.ErrNotFound, &InputNotFoundError{ID: id})
	}

	if v, ok := c.GetInputValue(id); ok {
		return v, nil
	}
	if def.Default != "" {
		return def.Default, nil
	}
	if def.Kind == config.InputPickString && len(def.Options) > 0 {
		return def.Options[0], nil
	}
	return nil, fmt.Errorf("%w: %w", render.ErrNotFound, &InputUnresolvedError{ID: id})
}

// AddOrUpdateServer renders and adds a server config dynamically,
// connecting it through the manager if the computer is already booted.
func (c *Computer) AddOrUpdateServer(ctx context.Context, server *config.MCPServer) error {
	c.mu.Lock()
	if c.manager == nil {
		c.manager = mcpmanager.New(c.logger)
		c.booted = true
	}
	manager := c.manager
	c.servers[server.Name] = server
	c.mu.Unlock()

	rendered, err := c.renderServerConfig(server)
	if err != nil {
		return err
	}
	return manager.AddServer(ctx, rendered)
}

// RemoveServer disconnects and forgets a server.
func (c *Computer) RemoveServer(ctx context.Context, name string) error {
	c.mu.Lock()
	manager := c.manager
	delete(c.servers, name)
	c.mu.Unlock()

	if manager == nil {
		return &NotBootedError{Name: c.name}
	}
	return manager.RemoveServer(ctx, name)
}

// AddOrUpdateInput adds or replaces one input definition.
func (c *Computer) AddOrUpdateInput(input *config.InputDef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputs[input.ID] = input
}

// RemoveInput removes an input definition and its cached value.
func (c *Computer) RemoveInput(id string) bool {
	c.mu.Lock()
	_, existed := c.inputs[id]
	delete(c.inputs, id)
	c.mu.Unlock()
	c.RemoveInputValue(id)
	return existed
}

// GetInput returns an input definition by id.
func (c *Computer) GetInput(id string) (*config.InputDef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	in, ok := c.inputs[id]
	return in, ok
}

// ListInputs returns every known input definition.
func (c *Computer) ListInputs() []*config.InputDef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*config.InputDef, 0, len(c.inputs))
	for _, in := range c.inputs {
		out = append(out, in)
	}
	return out
}

// GetInputValue returns a cached input value, if set.
func (c *Computer) GetInputValue(id string) (any, bool) {
	c.inputValuesMu.RLock()
	defer c.inputValuesMu.RUnlock()
	v, ok := c.inputValues[id]
	return v, ok
}

// SetInputValue caches a resolved value for a known input id. Reports
// false if the input is not defined.
func (c *Computer) SetInputValue(id string, value any) bool {
	c.mu.RLock()
	_, known := c.inputs[id]
	c.mu.RUnlock()
	if !known {
		return false
	}
	c.inputValuesMu.Lock()
	c.inputValues[id] = value
	c.inputValuesMu.Unlock()
	return true
}

// RemoveInputValue clears one cached input value.
func (c *Computer) RemoveInputValue(id string) bool {
	c.inputValuesMu.Lock()
	defer c.inputValuesMu.Unlock()
	_, ok := c.inputValues[id]
	delete(c.inputValues, id)
	return ok
}

// ListInputValues returns every cached input value, keyed by id.
func (c *Computer) ListInputValues() map[string]any {
	c.inputValuesMu.RLock()
	defer c.inputValuesMu.RUnlock()
	out := make(map[string]any, len(c.inputValues))
	for k, v := range c.inputValues {
		out[k] = v
	}
	return out
}

// ClearInputValues clears one cached value (id non-nil) or all of them
// (id nil).
func (c *Computer) ClearInputValues(id *string) {
	c.inputValuesMu.Lock()
	defer c.inputValuesMu.Unlock()
	if id == nil {
		c.inputValues = make(map[string]any)
		return
	}
	delete(c.inputValues, *id)
}

// AvailableTools returns the merged, conflict-resolved tool list.
func (c *Computer) AvailableTools(ctx context.Context) ([]mcp.Tool, error) {
	c.mu.RLock()
	manager := c.manager
	c.mu.RUnlock()
	if manager == nil {
		return nil, &NotBootedError{Name: c.name}
	}
	return manager.Tools(ctx)
}

// ExecuteTool validates, optionally confirms, forwards, and records one
// tool call. Confirmation is skipped when the resolved ToolMeta marks
// the tool auto-apply.
func (c *Computer) ExecuteTool(ctx context.Context, reqID, toolName string, params json.RawMessage, timeout *float64) (*mcp.CallToolResult, error) {
	c.mu.RLock()
	manager := c.manager
	servers := c.servers
	c.mu.RUnlock()
	if manager == nil {
		return nil, &NotBootedError{Name: c.name}
	}

	server, original, err := manager.ValidateToolCall(toolName)
	if err != nil {
		return nil, err
	}

	needConfirm := true
	if cfg, ok := servers[server]; ok {
		if meta, ok := cfg.ToolMetaFor(original); ok && meta.AutoApply != nil && *meta.AutoApply {
			needConfirm = false
		}
	}

	var args map[string]any
	if len(params) > 0 {
		if err := json.Unmarshal(params, &args); err != nil {
			return nil, fmt.Errorf("decode tool arguments: %w", err)
		}
	}

	timestamp := time.Now()
	var result *mcp.CallToolResult
	var callErr string

	if needConfirm {
		if c.confirmCallback == nil {
			result = mcp.NewToolResultError((&ConfirmationRequiredError{Tool: toolName}).Error())
		} else if !c.confirmCallback(reqID, server, original, params) {
			result = mcp.NewToolResultText("tool call confirmation was declined")
		} else {
			result, err = manager.CallTool(ctx, toolName, args)
			if err != nil {
				return nil, err
			}
		}
	} else {
		result, err = manager.CallTool(ctx, toolName, args)
		if err != nil {
			return nil, err
		}
	}

	success := result != nil && !result.IsError
	if result != nil && result.IsError {
		for _, block := range result.Content {
			if tc, ok := block.(mcp.TextContent); ok {
				callErr = tc.Text
				break
			}
			if tc, ok := block.(*mcp.TextContent); ok {
				callErr = tc.Text
				break
			}
		}
	}

	c.recordHistory(ToolCallRecord{
		Timestamp:  timestamp,
		ReqID:      reqID,
		Server:     server,
		Tool:       toolName,
		Parameters: params,
		Timeout:    timeout,
		Success:    success,
		Error:      callErr,
	})

	return result, nil
}

func (c *Computer) recordHistory(rec ToolCallRecord) {
	c.historyMu.Lock()
	defer c.historyMu.Unlock()
	c.history = append(c.history, rec)
	if len(c.history) > maxHistory {
		c.history = c.history[len(c.history)-maxHistory:]
	}
}

// ToolHistory returns a copy of the most recent (up to 10) tool calls.
func (c *Computer) ToolHistory() []ToolCallRecord {
	c.historyMu.Lock()
	defer c.historyMu.Unlock()
	out := make([]ToolCallRecord, len(c.history))
	copy(out, c.history)
	return out
}

// Shutdown disconnects every managed server.
func (c *Computer) Shutdown() {
	c.mu.Lock()
	manager := c.manager
	c.manager = nil
	c.booted = false
	c.mu.Unlock()
	if manager != nil {
		manager.Shutdown()
	}
	c.logger.Info("computer shut down")
}
