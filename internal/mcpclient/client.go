// Package mcpclient implements the SMCP MCP Client Abstraction
// (component C4): a state-machine wrapper around mark3labs/mcp-go's
// client, uniform across the stdio, SSE, and streamable-HTTP
// transports a Computer's config.MCPServer entries select between.
package mcpclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kagenti/smcp-gateway/internal/config"
)

// State is the lifecycle state of a Client's connection.
type State string

const (
	StateInitialized State = "initialized"
	StateConnected   State = "connected"
	StateDisconnected State = "disconnected"
	StateError       State = "error"
)

func (s State) String() string { return string(s) }

// validTransitions mirrors the original client state machine: a fresh
// or disconnected client can (re)connect, a connected client can
// disconnect, any state can fault to Error, and Error can only be
// cleared by an explicit reset back to Initialized.
var validTransitions = map[State]map[State]bool{
	StateInitialized:  {StateConnected: true, StateError: true},
	StateConnected:    {StateDisconnected: true, StateError: true},
	StateDisconnected: {StateConnected: true, StateInitialized: true, StateError: true},
	StateError:        {StateInitialized: true},
}

// ProtocolVersion is the MCP protocol version this client negotiates.
const ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION

const clientName = "smcp-computer"

var clientVersion = "0.1.0"

// ConnectionError reports a Connect/Disconnect attempted from a state
// that does not permit it.
type ConnectionError struct {
	From, To State
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mcpclient: cannot transition from %s to %s", e.From, e.To)
}

// Client wraps one upstream MCP server connection with state tracking
// matching the teacher's upstream.MCPServer Connect/Disconnect
// lifecycle, generalized across all three transports instead of only
// streamable-HTTP.
type Client struct {
	Server *config.MCPServer
	logger *slog.Logger

	mu    sync.RWMutex
	state State
	inner client.MCPClient
	init  *mcp.InitializeResult

	subsMu sync.Mutex
	subs   []chan State
}

// New constructs a Client for the given server entry. Connect must be
// called before any MCP operation.
func New(server *config.MCPServer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{Server: server, logger: logger, state: StateInitialized}
}

// State returns the client's current lifecycle state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Subscribe returns a channel receiving every subsequent state
// transition. The channel is buffered; callers that fall behind drop
// intermediate states rather than blocking the client.
func (c *Client) Subscribe() <-chan State {
	ch := make(chan State, 4)
	c.subsMu.Lock()
	c.subs = append(c.subs, ch)
	c.subsMu.Unlock()
	return ch
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

func (c *Client) transition(to State) error {
	from := c.State()
	if !validTransitions[from][to] {
		return &ConnectionError{From: from, To: to}
	}
	c.setState(to)
	return nil
}

// CanConnect reports whether the client is in a state from which
// Connect may be called.
func (c *Client) CanConnect() bool {
	s := c.State()
	return s == StateInitialized || s == StateDisconnected
}

// CanDisconnect reports whether the client is in a state from which
// Disconnect may be called.
func (c *Client) CanDisconnect() bool {
	return c.State() == StateConnected
}

// Connect builds the transport selected by Server.Transport, starts
// it, and performs the MCP initialize handshake. A no-op if already
// connected.
func (c *Client) Connect(ctx context.Context) error {
	if c.State() == StateConnected {
		return nil
	}
	if !c.CanConnect() {
		return &ConnectionError{From: c.State(), To: StateConnected}
	}

	inner, err := c.buildTransport()
	if err != nil {
		_ = c.transition(StateError)
		return fmt.Errorf("build transport for %q: %w", c.Server.Name, err)
	}

	if c.Server.Transport != config.TransportStdio {
		if err := inner.Start(ctx); err != nil {
			_ = c.transition(StateError)
			return fmt.Errorf("start transport for %q: %w", c.Server.Name, err)
		}
	}

	initResult, err := inner.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: ProtocolVersion,
			Capabilities: mcp.ClientCapabilities{
				Roots: &struct {
					ListChanged bool `json:"listChanged,omitempty"`
				}{ListChanged: true},
			},
			ClientInfo: mcp.Implementation{Name: clientName, Version: clientVersion},
		},
	})
	if err != nil {
		_ = inner.Close()
		_ = c.transition(StateError)
		return fmt.Errorf("initialize %q: %w", c.Server.Name, err)
	}

	c.mu.Lock()
	c.inner = inner
	c.init = initResult
	c.mu.Unlock()

	if err := c.transition(StateConnected); err != nil {
		return err
	}
	c.logger.Info("mcp client connected", "server", c.Server.Name, "transport", c.Server.Transport, "protocolVersion", initResult.ProtocolVersion)
	return nil
}

func (c *Client) buildTransport() (client.MCPClient, error) {
	switch c.Server.Transport {
	case config.TransportStdio:
		p := c.Server.Stdio
		if p == nil {
			return nil, fmt.Errorf("server %q: missing stdio parameters", c.Server.Name)
		}
		env := make([]string, 0, len(p.Env))
		for k, v := range p.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		return client.NewStdioMCPClient(p.Command, env, p.Args...)

	case config.TransportSSE:
		p := c.Server.SSE
		if p == nil {
			return nil, fmt.Errorf("server %q: missing sse parameters", c.Server.Name)
		}
		var opts []transport.ClientOption
		if len(p.Headers) > 0 {
			opts = append(opts, client.WithHeaders(p.Headers))
		}
		return client.NewSSEMCPClient(p.URL, opts...)

	case config.TransportHTTP:
		p := c.Server.HTTP
		if p == nil {
			return nil, fmt.Errorf("server %q: missing http parameters", c.Server.Name)
		}
		var opts []transport.StreamableHTTPCOption
		opts = append(opts, transport.WithContinuousListening())
		if len(p.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(p.Headers))
		}
		return client.NewStreamableHttpClient(p.URL, opts...)

	default:
		return nil, fmt.Errorf("server %q: unknown transport %q", c.Server.Name, c.Server.Transport)
	}
}

// Disconnect closes the underlying transport. Returns a ConnectionError
// unless currently connected.
func (c *Client) Disconnect() error {
	if !c.CanDisconnect() {
		return &ConnectionError{From: c.State(), To: StateDisconnected}
	}
	c.mu.Lock()
	inner := c.inner
	c.inner = nil
	c.mu.Unlock()

	var err error
	if inner != nil {
		err = inner.Close()
	}
	_ = c.transition(StateDisconnected)
	return err
}

// Reset clears an Error state back to Initialized so Connect may be
// retried.
func (c *Client) Reset() error {
	return c.transition(StateInitialized)
}

func (c *Client) connectedInner() (client.MCPClient, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateConnected || c.inner == nil {
		return nil, fmt.Errorf("mcpclient: %q is not connected", c.Server.Name)
	}
	return c.inner, nil
}

// ListTools lists the upstream server's tools.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	inner, err := c.connectedInner()
	if err != nil {
		return nil, err
	}
	res, err := inner.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools on %q: %w", c.Server.Name, err)
	}
	return res.Tools, nil
}

// CallTool invokes one tool by its upstream (unprefixed, unaliased)
// name.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	inner, err := c.connectedInner()
	if err != nil {
		return nil, err
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := inner.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call tool %q on %q: %w", name, c.Server.Name, err)
	}
	return res, nil
}

// ListResources lists the upstream server's window/resource entries.
func (c *Client) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	inner, err := c.connectedInner()
	if err != nil {
		return nil, err
	}
	res, err := inner.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, fmt.Errorf("list resources on %q: %w", c.Server.Name, err)
	}
	return res.Resources, nil
}

// ReadResource reads one resource (window) body by URI.
func (c *Client) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	inner, err := c.connectedInner()
	if err != nil {
		return nil, err
	}
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	res, err := inner.ReadResource(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("read resource %q on %q: %w", uri, c.Server.Name, err)
	}
	return res, nil
}

// SubscribeResource subscribes to update notifications for a resource URI.
func (c *Client) SubscribeResource(ctx context.Context, uri string) error {
	inner, err := c.connectedInner()
	if err != nil {
		return err
	}
	req := mcp.SubscribeRequest{}
	req.Params.URI = uri
	return inner.Subscribe(ctx, req)
}

// Unsubscribe cancels a prior SubscribeResource.
func (c *Client) Unsubscribe(ctx context.Context, uri string) error {
	inner, err := c.connectedInner()
	if err != nil {
		return err
	}
	req := mcp.UnsubscribeRequest{}
	req.Params.URI = uri
	return inner.Unsubscribe(ctx, req)
}

// Ping checks liveness of the underlying connection.
func (c *Client) Ping(ctx context.Context) error {
	inner, err := c.connectedInner()
	if err != nil {
		return err
	}
	return inner.Ping(ctx)
}

// OnNotification registers a callback for raw JSON-RPC notifications
// (e.g. "notifications/tools/list_changed", "notifications/resources/updated").
func (c *Client) OnNotification(handler func(mcp.JSONRPCNotification)) {
	c.mu.RLock()
	inner := c.inner
	c.mu.RUnlock()
	if inner != nil {
		inner.OnNotification(handler)
	}
}

// InitializeResult returns the handshake result recorded by the most
// recent successful Connect, or nil if never connected.
func (c *Client) InitializeResult() *mcp.InitializeResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.init
}
