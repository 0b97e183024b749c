// Package mcpmanager implements the SMCP MCP Server Manager
// (component C7): owns one mcpclient.Client per configured upstream
// MCP server, merges their tools into a single conflict-checked
// mapping (applying alias/forbidden-tool overrides from each server's
// config.ToolMeta), and retries failed connects with backoff.
package mcpmanager

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/kagenti/smcp-gateway/internal/config"
	"github.com/kagenti/smcp-gateway/internal/mcpclient"
)

// aliasEntry records that a display name was produced by aliasing one
// server's original tool name.
type aliasEntry struct {
	server   string
	original string
}

// Manager holds the live client set and the derived tool mapping for
// one Computer.
type Manager struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[config.ServerName]*mcpclient.Client
	configs map[config.ServerName]*config.MCPServer

	toolMapping   map[string]config.ServerName
	aliasMapping  map[string]aliasEntry
	disabledTools map[string]struct{}
}

// New constructs an empty Manager.
func New(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:        logger.With("component", "mcpmanager"),
		clients:       make(map[config.ServerName]*mcpclient.Client),
		configs:       make(map[config.ServerName]*config.MCPServer),
		toolMapping:   make(map[string]config.ServerName),
		aliasMapping:  make(map[string]aliasEntry),
		disabledTools: make(map[string]struct{}),
	}
}

// ConfigureBackOff builds the retry schedule for AddServer's initial
// connect attempt, tunable via the SMCP_CONNECT_RETRY_BASE_DELAY,
// SMCP_CONNECT_RETRY_MAX_DELAY and SMCP_CONNECT_RETRY_MAX_ATTEMPTS
// environment variables.
func ConfigureBackOff() wait.Backoff {
	baseDelay := 2 * time.Second
	if v := os.Getenv("SMCP_CONNECT_RETRY_BASE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			baseDelay = d
		}
	}
	maxDelay := time.Minute
	if v := os.Getenv("SMCP_CONNECT_RETRY_MAX_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			maxDelay = d
		}
	}
	maxAttempts := 5
	if v := os.Getenv("SMCP_CONNECT_RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxAttempts = n
		}
	}
	return wait.Backoff{
		Duration: baseDelay,
		Factor:   2.0,
		Steps:    maxAttempts,
		Cap:      maxDelay,
	}
}

// AddServer connects to a newly-configured upstream server, retrying
// with backoff, and folds it into the tool mapping on success. Disabled
// servers are recorded but never connected.
func (m *Manager) AddServer(ctx context.Context, server *config.MCPServer) error {
	if server.Disabled {
		m.mu.Lock()
		m.configs[server.Name] = server
		m.mu.Unlock()
		m.logger.Info("server added disabled, not connecting", "server", server.Name)
		return nil
	}

	cl := mcpclient.New(server, m.logger)
	attempt := 0
	backOff := ConfigureBackOff()
	err := wait.ExponentialBackoffWithContext(ctx, backOff, func(ctx context.Context) (bool, error) {
		attempt++
		if err := cl.Connect(ctx); err != nil {
			m.logger.Warn("connect attempt failed", "server", server.Name, "attempt", attempt, "error", err)
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("connect to %q after %d attempts: %w", server.Name, attempt, err)
	}

	m.mu.Lock()
	m.clients[server.Name] = cl
	m.configs[server.Name] = server
	m.mu.Unlock()

	m.logger.Info("server connected", "server", server.Name, "transport", server.Transport)
	return m.RefreshToolMapping(ctx)
}

// RemoveServer disconnects and forgets a server, then recomputes the
// tool mapping.
func (m *Manager) RemoveServer(ctx context.Context, name config.ServerName) error {
	m.mu.Lock()
	cl, ok := m.clients[name]
	delete(m.clients, name)
	delete(m.configs, name)
	m.mu.Unlock()

	if !ok {
		return &ServerNotFoundError{Server: name}
	}
	if cl.CanDisconnect() {
		if err := cl.Disconnect(); err != nil {
			m.logger.Warn("disconnect failed", "server", name, "error", err)
		}
	}
	return m.RefreshToolMapping(ctx)
}

// Client returns the connected client for a server, if any.
func (m *Manager) Client(name config.ServerName) (*mcpclient.Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cl, ok := m.clients[name]
	return cl, ok
}

// ServerNames returns the names of every configured server (connected
// or disabled).
func (m *Manager) ServerNames() []config.ServerName {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]config.ServerName, 0, len(m.configs))
	for name := range m.configs {
		names = append(names, name)
	}
	return names
}

// RefreshToolMapping rebuilds the display-name -> server mapping from
// every connected client's live tool list, applying alias/forbidden
// overrides from each server's ToolMeta, and fails with
// ToolConflictError the first time a display name resolves to more
// than one server — a direct port of the original manager's
// refresh_tool_mapping conflict check.
func (m *Manager) RefreshToolMapping(ctx context.Context) error {
	m.mu.RLock()
	clients := make(map[config.ServerName]*mcpclient.Client, len(m.clients))
	for name, cl := range m.clients {
		clients[name] = cl
	}
	configs := make(map[config.ServerName]*config.MCPServer, len(m.configs))
	for name, cfg := range m.configs {
		configs[name] = cfg
	}
	m.mu.RUnlock()

	toolSources := make(map[string][]config.ServerName)
	aliasMapping := make(map[string]aliasEntry)
	disabled := make(map[string]struct{})

	for serverName, cl := range clients {
		cfg := configs[serverName]
		if cfg == nil || cl.State() != mcpclient.StateConnected {
			continue
		}
		tools, err := cl.ListTools(ctx)
		if err != nil {
			m.logger.Error("list tools failed during refresh", "server", serverName, "error", err)
			continue
		}
		for _, tool := range tools {
			original := tool.Name
			displayName := original
			if meta, ok := cfg.ToolMetaFor(original); ok && meta.Alias != "" {
				displayName = meta.Alias
			}
			if displayName != original {
				aliasMapping[displayName] = aliasEntry{server: serverName, original: original}
			}
			toolSources[displayName] = append(toolSources[displayName], serverName)

			if cfg.IsForbidden(displayName) || cfg.IsForbidden(original) {
				disabled[displayName] = struct{}{}
			}
		}
	}

	toolMapping := make(map[string]config.ServerName, len(toolSources))
	for tool, sources := range toolSources {
		if len(sources) > 1 {
			return &ToolConflictError{Tool: tool, Servers: sources}
		}
		toolMapping[tool] = sources[0]
	}

	m.mu.Lock()
	m.toolMapping = toolMapping
	m.aliasMapping = aliasMapping
	m.disabledTools = disabled
	m.mu.Unlock()
	return nil
}

// ValidateToolCall resolves a display tool name to its owning server
// and original (unaliased) tool name, rejecting disabled or unknown
// tools.
func (m *Manager) ValidateToolCall(toolName string) (server config.ServerName, original string, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, disabled := m.disabledTools[toolName]; disabled {
		return "", "", &ToolDisabledError{Tool: toolName}
	}
	server, ok := m.toolMapping[toolName]
	if !ok {
		return "", "", &ToolNotFoundError{Tool: toolName}
	}
	original = toolName
	if entry, ok := m.aliasMapping[toolName]; ok {
		original = entry.original
	}
	return server, original, nil
}

// CallTool validates and forwards a tool call by its display name.
func (m *Manager) CallTool(ctx context.Context, toolName string, args map[string]any) (*mcp.CallToolResult, error) {
	server, original, err := m.ValidateToolCall(toolName)
	if err != nil {
		return nil, err
	}
	cl, ok := m.Client(server)
	if !ok {
		return nil, &ServerNotFoundError{Server: server}
	}
	return cl.CallTool(ctx, original, args)
}

// Tools returns every tool currently in the merged mapping, renamed to
// its display (aliased) name.
func (m *Manager) Tools(ctx context.Context) ([]mcp.Tool, error) {
	m.mu.RLock()
	clients := make(map[config.ServerName]*mcpclient.Client, len(m.clients))
	for name, cl := range m.clients {
		clients[name] = cl
	}
	mapping := make(map[string]config.ServerName, len(m.toolMapping))
	for k, v := range m.toolMapping {
		mapping[k] = v
	}
	aliasMapping := make(map[string]aliasEntry, len(m.aliasMapping))
	for k, v := range m.aliasMapping {
		aliasMapping[k] = v
	}
	m.mu.RUnlock()

	byOriginal := make(map[config.ServerName]map[string]mcp.Tool)
	for serverName, cl := range clients {
		tools, err := cl.ListTools(ctx)
		if err != nil {
			continue
		}
		m := make(map[string]mcp.Tool, len(tools))
		for _, t := range tools {
			m[t.Name] = t
		}
		byOriginal[serverName] = m
	}

	out := make([]mcp.Tool, 0, len(mapping))
	for display, serverName := range mapping {
		original := display
		if entry, ok := aliasMapping[display]; ok {
			original = entry.original
		}
		tool, ok := byOriginal[serverName][original]
		if !ok {
			continue
		}
		tool.Name = display
		out = append(out, tool)
	}
	return out, nil
}

// Shutdown disconnects every connected client.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	clients := make([]*mcpclient.Client, 0, len(m.clients))
	for _, cl := range m.clients {
		clients = append(clients, cl)
	}
	m.mu.RUnlock()

	for _, cl := range clients {
		if cl.CanDisconnect() {
			_ = cl.Disconnect()
		}
	}
}
