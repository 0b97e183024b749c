// Package agent implements the SMCP Agent Facade (component C11): the
// thin client an orchestrator embeds to join an office, discover and call
// a Computer's tools, and react to the Broker's lifecycle notifications
// without hand-rolling request/response correlation.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kagenti/smcp-gateway/internal/proto"
	"github.com/kagenti/smcp-gateway/internal/rpctransport"
)

// Config bounds an Agent's identity and RPC timeouts.
type Config struct {
	AgentName       string
	OfficeID        string
	DefaultTimeout  time.Duration
	ToolCallTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 30 * time.Second
	}
	if c.ToolCallTimeout <= 0 {
		c.ToolCallTimeout = 60 * time.Second
	}
	return c
}

// EventHandler receives the Agent's auto-behavior callbacks. Embed
// NoopEventHandler to implement only the callbacks of interest.
type EventHandler interface {
	OnComputerEnterOffice(ctx context.Context, n proto.EnterOfficeNotification, a *Agent)
	OnComputerLeaveOffice(ctx context.Context, n proto.LeaveOfficeNotification, a *Agent)
	OnComputerUpdateConfig(ctx context.Context, computer string, a *Agent)
	OnToolsReceived(ctx context.Context, computer string, tools []proto.SMCPTool, a *Agent)
	OnDesktopUpdated(ctx context.Context, computer string, desktops []proto.Desktop, a *Agent)
}

// NoopEventHandler satisfies EventHandler with no-op callbacks; embed it
// to override only the ones a particular Agent cares about.
type NoopEventHandler struct{}

func (NoopEventHandler) OnComputerEnterOffice(context.Context, proto.EnterOfficeNotification, *Agent) {
}
func (NoopEventHandler) OnComputerLeaveOffice(context.Context, proto.LeaveOfficeNotification, *Agent) {
}
func (NoopEventHandler) OnComputerUpdateConfig(context.Context, string, *Agent) {}
func (NoopEventHandler) OnToolsReceived(context.Context, string, []proto.SMCPTool, *Agent) {
}
func (NoopEventHandler) OnDesktopUpdated(context.Context, string, []proto.Desktop, *Agent) {}

// Agent is the orchestrator-facing SMCP client. One Agent owns one
// transport connection and one office membership.
type Agent struct {
	cfg       Config
	transport rpctransport.AgentTransport
	handler   EventHandler
	logger    *slog.Logger

	toolsMu    sync.RWMutex
	toolsCache map[string][]proto.SMCPTool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds an Agent bound to an already-established transport. Run
// must be called to start the notification dispatch loop.
func New(transport rpctransport.AgentTransport, cfg Config, handler EventHandler, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	if handler == nil {
		handler = NoopEventHandler{}
	}
	return &Agent{
		cfg:        cfg.withDefaults(),
		transport:  transport,
		handler:    handler,
		logger:     logger.With("component", "agent", "agent", cfg.AgentName),
		toolsCache: make(map[string][]proto.SMCPTool),
	}
}

// Run starts the background notification dispatch loop. It returns
// immediately; call Close to stop it.
func (a *Agent) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.wg.Add(1)
	go a.dispatchLoop(ctx)
}

// Close stops the dispatch loop and waits for it to exit.
func (a *Agent) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
}

func (a *Agent) dispatchLoop(ctx context.Context) {
	defer a.wg.Done()
	notifications := a.transport.Notifications()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			// Handlers for a single notification run sequentially;
			// distinct notifications dispatch concurrently so one slow
			// auto-behavior never stalls the next event off the wire.
			a.wg.Add(1)
			go func(n rpctransport.RawNotification) {
				defer a.wg.Done()
				a.handleNotification(ctx, n)
			}(n)
		}
	}
}

func (a *Agent) handleNotification(ctx context.Context, raw rpctransport.RawNotification) {
	switch raw.Event {
	case proto.EventNotifyEnterOffice:
		var n proto.EnterOfficeNotification
		if err := json.Unmarshal(raw.Payload, &n); err != nil {
			a.logger.Error("decode enter_office notification", "error", err)
			return
		}
		if n.Computer != nil {
			if tools, err := a.GetTools(ctx, *n.Computer); err == nil {
				a.handler.OnToolsReceived(ctx, *n.Computer, tools, a)
			} else {
				a.logger.Warn("auto get_tools on enter_office failed", "computer", *n.Computer, "error", err)
			}
		}
		a.handler.OnComputerEnterOffice(ctx, n, a)

	case proto.EventNotifyLeaveOffice:
		var n proto.LeaveOfficeNotification
		if err := json.Unmarshal(raw.Payload, &n); err != nil {
			a.logger.Error("decode leave_office notification", "error", err)
			return
		}
		a.handler.OnComputerLeaveOffice(ctx, n, a)

	case proto.EventNotifyUpdateConfig:
		var n proto.UpdateMCPConfigNotification
		if err := json.Unmarshal(raw.Payload, &n); err != nil {
			a.logger.Error("decode update_config notification", "error", err)
			return
		}
		if tools, err := a.GetTools(ctx, n.Computer); err == nil {
			a.handler.OnToolsReceived(ctx, n.Computer, tools, a)
		} else {
			a.logger.Warn("auto get_tools on update_config failed", "computer", n.Computer, "error", err)
		}
		a.handler.OnComputerUpdateConfig(ctx, n.Computer, a)

	case proto.EventNotifyUpdateToolList:
		var n proto.UpdateToolListNotification
		if err := json.Unmarshal(raw.Payload, &n); err != nil {
			a.logger.Error("decode update_tool_list notification", "error", err)
			return
		}
		if tools, err := a.GetTools(ctx, n.Computer); err == nil {
			a.handler.OnToolsReceived(ctx, n.Computer, tools, a)
		} else {
			a.logger.Warn("auto get_tools on update_tool_list failed", "computer", n.Computer, "error", err)
		}

	case proto.EventNotifyUpdateDesktop:
		var n proto.UpdateMCPConfigNotification
		if err := json.Unmarshal(raw.Payload, &n); err != nil {
			a.logger.Error("decode update_desktop notification", "error", err)
			return
		}
		if desktops, err := a.GetDesktop(ctx, n.Computer, nil, nil); err == nil {
			a.handler.OnDesktopUpdated(ctx, n.Computer, desktops, a)
		} else {
			a.logger.Warn("auto get_desktop on update_desktop failed", "computer", n.Computer, "error", err)
		}

	default:
		a.logger.Debug("ignoring unknown notification", "event", raw.Event)
	}
}

// JoinOffice emits server:join_office for this Agent's configured office.
func (a *Agent) JoinOffice(ctx context.Context) error {
	if a.transport == nil {
		return &NotConnectedError{}
	}
	req := proto.EnterOfficeReq{Role: proto.RoleAgent, Name: a.cfg.AgentName, OfficeID: a.cfg.OfficeID}
	if err := a.transport.Emit(proto.EventServerJoinOffice, req); err != nil {
		return err
	}
	a.logger.Info("joined office", "office_id", a.cfg.OfficeID)
	return nil
}

// LeaveOffice emits server:leave_office for this Agent's configured office.
func (a *Agent) LeaveOffice(ctx context.Context) error {
	if a.transport == nil {
		return &NotConnectedError{}
	}
	req := proto.LeaveOfficeReq{OfficeID: a.cfg.OfficeID}
	if err := a.transport.Emit(proto.EventServerLeaveOffice, req); err != nil {
		return err
	}
	a.logger.Info("left office", "office_id", a.cfg.OfficeID)
	return nil
}

// GetTools fetches and caches the live tool list for a Computer.
func (a *Agent) GetTools(ctx context.Context, computer string) ([]proto.SMCPTool, error) {
	if a.transport == nil {
		return nil, &NotConnectedError{}
	}
	reqID := proto.NewReqID()
	req := proto.GetToolsReq{
		AgentCallData: proto.AgentCallData{Agent: a.cfg.AgentName, ReqId: reqID},
		Computer:      computer,
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.DefaultTimeout)
	defer cancel()

	var ret proto.GetToolsRet
	if err := a.transport.Call(ctx, proto.EventClientGetTools, req, &ret); err != nil {
		return nil, err
	}
	if ret.ReqId != reqID {
		return nil, &ReqIdMismatchError{Expected: string(reqID), Actual: string(ret.ReqId)}
	}

	a.toolsMu.Lock()
	a.toolsCache[computer] = ret.Tools
	a.toolsMu.Unlock()

	a.logger.Info("received tools", "computer", computer, "count", len(ret.Tools))
	return ret.Tools, nil
}

// CachedTools returns the last tool list GetTools observed for a
// Computer, without issuing a new RPC.
func (a *Agent) CachedTools(computer string) ([]proto.SMCPTool, bool) {
	a.toolsMu.RLock()
	defer a.toolsMu.RUnlock()
	tools, ok := a.toolsCache[computer]
	return tools, ok
}

// GetDesktop fetches the rendered window list for a Computer. size and
// window are optional filters mirroring GetDesktopReq's fields.
func (a *Agent) GetDesktop(ctx context.Context, computer string, size *int, window *string) ([]proto.Desktop, error) {
	if a.transport == nil {
		return nil, &NotConnectedError{}
	}
	reqID := proto.NewReqID()
	req := proto.GetDesktopReq{
		AgentCallData: proto.AgentCallData{Agent: a.cfg.AgentName, ReqId: reqID},
		Computer:      computer,
		DesktopSize:   size,
		Window:        window,
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.DefaultTimeout)
	defer cancel()

	var ret proto.GetDesktopRet
	if err := a.transport.Call(ctx, proto.EventClientGetDesktop, req, &ret); err != nil {
		return nil, err
	}
	if ret.ReqId != reqID {
		return nil, &ReqIdMismatchError{Expected: string(reqID), Actual: string(ret.ReqId)}
	}

	a.logger.Info("received desktop", "computer", computer, "count", len(ret.Desktops))
	return ret.Desktops, nil
}

// ListRoom lists every session registered in an office.
func (a *Agent) ListRoom(ctx context.Context, officeID string) ([]proto.SessionInfo, error) {
	if a.transport == nil {
		return nil, &NotConnectedError{}
	}
	reqID := proto.NewReqID()
	req := proto.ListRoomReq{
		AgentCallData: proto.AgentCallData{Agent: a.cfg.AgentName, ReqId: reqID},
		OfficeID:      officeID,
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.DefaultTimeout)
	defer cancel()

	var ret proto.ListRoomRet
	if err := a.transport.Call(ctx, proto.EventServerListRoom, req, &ret); err != nil {
		return nil, err
	}
	if ret.ReqId != reqID {
		return nil, &ReqIdMismatchError{Expected: string(reqID), Actual: string(ret.ReqId)}
	}

	a.logger.Info("listed room", "office_id", officeID, "count", len(ret.Sessions))
	return ret.Sessions, nil
}

// ToolCall invokes a tool on a Computer. On ack timeout it fires
// server:tool_call_cancel (best-effort) and returns a synthesized
// CallToolResult-shaped timeout error instead of propagating the
// timeout to the caller.
func (a *Agent) ToolCall(ctx context.Context, computer, toolName string, params json.RawMessage) (*mcp.CallToolResult, error) {
	if a.transport == nil {
		return nil, &NotConnectedError{}
	}
	reqID := proto.NewReqID()
	req := proto.ToolCallReq{
		AgentCallData: proto.AgentCallData{Agent: a.cfg.AgentName, ReqId: reqID},
		Computer:      computer,
		ToolName:      toolName,
		Params:        params,
		Timeout:       int(a.cfg.ToolCallTimeout.Seconds()),
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.ToolCallTimeout)
	defer cancel()

	var ret proto.ToolCallRet
	err := a.transport.Call(callCtx, proto.EventClientToolCall, req, &ret)
	if err == nil {
		if ret.ReqId == nil || *ret.ReqId != reqID {
			actual := ""
			if ret.ReqId != nil {
				actual = string(*ret.ReqId)
			}
			return nil, &ReqIdMismatchError{Expected: string(reqID), Actual: actual}
		}
		a.logger.Info("tool call succeeded", "tool", toolName, "computer", computer)
		return toolCallResult(ret), nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		a.logger.Warn("tool call timeout, cancelling", "tool", toolName, "computer", computer, "req_id", reqID)
		cancelData := proto.AgentCallData{Agent: a.cfg.AgentName, ReqId: reqID}
		if emitErr := a.transport.Emit(proto.EventServerToolCallCancel, cancelData); emitErr != nil {
			a.logger.Error("failed to send tool_call_cancel", "error", emitErr)
		}
		return mcp.NewToolResultError(fmt.Sprintf("tool call timeout, req_id=%s", reqID)), nil
	}

	a.logger.Error("tool call failed", "tool", toolName, "computer", computer, "error", err)
	return nil, err
}

func toolCallResult(ret proto.ToolCallRet) *mcp.CallToolResult {
	content := make([]mcp.Content, 0, len(ret.Content))
	for _, raw := range ret.Content {
		var tc mcp.TextContent
		if err := json.Unmarshal(raw, &tc); err == nil && tc.Text != "" {
			content = append(content, &tc)
			continue
		}
		content = append(content, mcp.NewTextContent(string(raw)))
	}
	isError := ret.IsError != nil && *ret.IsError
	return &mcp.CallToolResult{IsError: isError, Content: content}
}
