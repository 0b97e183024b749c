// Package broker implements the SMCP Broker core: office/room
// membership, the join/leave decision table, lifecycle notification
// broadcast, and forwarding of client:* requests from an Agent to the
// named Computer in its office.
//
// This generalizes kagenti-mcp-gateway's internal/broker package (which
// owns upstream MCP connections directly) into a pure room-and-forwarding
// fabric: the Broker here never talks MCP itself, it only routes frames
// between registered peers.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kagenti/smcp-gateway/internal/proto"
	"github.com/kagenti/smcp-gateway/internal/rpctransport"
	"github.com/kagenti/smcp-gateway/internal/session"
)

// Authenticator gates a new connection before any event handler runs,
// matching the teacher's pluggable auth-provider shape
// (internal/session.TokenAuthenticator is the bearer-token
// implementation, generalized to a single authenticate(headers, auth)
// capability per SPEC_FULL.md §6).
type Authenticator interface {
	Authenticate(ctx context.Context, headers http.Header, authData json.RawMessage) error
}

// DefaultForwardTimeout bounds every CLIENT_GET_TOOLS / CLIENT_GET_DESKTOP /
// CLIENT_GET_CONFIG forward, and a CLIENT_TOOL_CALL forward whose request
// carries no positive timeout.
const DefaultForwardTimeout = 30 * time.Second

// Broker holds the session registry and routes frames between Agent and
// Computer peers sharing an office.
type Broker struct {
	registry  *session.Registry
	directory rpctransport.SocketDirectory
	auth      Authenticator
	logger    *slog.Logger
}

// New constructs a Broker. directory resolves a sid to its live socket
// handle for forwarding; auth may be nil to accept every connection.
func New(directory rpctransport.SocketDirectory, auth Authenticator, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		registry:  session.New(logger),
		directory: directory,
		auth:      auth,
		logger:    logger,
	}
}

// Registry exposes the underlying session registry, e.g. for a /status
// HTTP handler.
func (b *Broker) Registry() *session.Registry { return b.registry }

// OnConnect authenticates a new socket before any event is processed.
func (b *Broker) OnConnect(ctx context.Context, headers http.Header, authData json.RawMessage) error {
	if b.auth == nil {
		return nil
	}
	return b.auth.Authenticate(ctx, headers, authData)
}

// OnDisconnect unregisters sid and, if it was in an office, broadcasts a
// leave notification to the rest of that office.
func (b *Broker) OnDisconnect(socket rpctransport.Socket, broadcaster rpctransport.RoomBroadcaster) {
	sess := b.registry.Unregister(socket.Sid())
	if sess == nil || sess.OfficeID == nil {
		return
	}
	notification := leaveNotification(*sess)
	broadcaster.BroadcastToRoom(*sess.OfficeID, proto.EventNotifyLeaveOffice, notification)
}

// OnJoinOffice implements server:join_office: register (or reuse) the
// session, apply the join decision table, and broadcast an enter
// notification to the office on success.
func (b *Broker) OnJoinOffice(socket rpctransport.Socket, broadcaster rpctransport.RoomBroadcaster, req proto.EnterOfficeReq) error {
	sid := socket.Sid()

	sess := b.registry.Get(sid)
	if sess == nil {
		sess = &session.Data{Sid: sid, Name: req.Name, Role: req.Role}
		if err := b.registry.Register(*sess); err != nil {
			return err
		}
	}

	decision, err := b.validateJoinRoom(*sess, req.OfficeID)
	if err != nil {
		return err
	}
	switch decision.kind {
	case joinNoop:
	case joinLeaveAndJoin:
		socket.Leave(decision.leaveOffice)
		socket.Join(req.OfficeID)
	case joinJoin:
		socket.Join(req.OfficeID)
	}

	if err := b.registry.UpdateOfficeID(sid, &req.OfficeID); err != nil {
		return err
	}

	if decision.kind != joinNoop {
		notification := enterNotification(*sess, req.OfficeID)
		broadcaster.BroadcastToRoom(req.OfficeID, proto.EventNotifyEnterOffice, notification)
	}
	return nil
}

// OnLeaveOffice implements server:leave_office.
func (b *Broker) OnLeaveOffice(socket rpctransport.Socket, broadcaster rpctransport.RoomBroadcaster, req proto.LeaveOfficeReq) error {
	sid := socket.Sid()
	sess := b.registry.Get(sid)
	if sess == nil {
		return &session.NotFoundError{Sid: sid}
	}

	notification := leaveNotification(*sess)
	broadcaster.BroadcastToRoom(req.OfficeID, proto.EventNotifyLeaveOffice, notification)

	if err := b.registry.UpdateOfficeID(sid, nil); err != nil {
		return err
	}
	socket.Leave(req.OfficeID)
	return nil
}

// OnToolCallCancel broadcasts a cancellation to the rest of the sender's
// office (the sender excluded), so any Computer running that tool call
// learns to abort it.
func (b *Broker) OnToolCallCancel(socket rpctransport.Socket, broadcaster rpctransport.RoomBroadcaster, data proto.AgentCallData) {
	b.broadcastToSenderOffice(socket, broadcaster, proto.EventNotifyToolCallCancel, data)
}

// OnUpdateConfig, OnUpdateToolList and OnUpdateDesktop each broadcast a
// computer-scoped change notification to the rest of the sender's office
// (the sender excluded), so the Agent sharing that office is told its
// cached config/tool-list/desktop is stale.
func (b *Broker) OnUpdateConfig(socket rpctransport.Socket, broadcaster rpctransport.RoomBroadcaster, req proto.UpdateComputerConfigReq) {
	b.broadcastToSenderOffice(socket, broadcaster, proto.EventNotifyUpdateConfig, proto.UpdateMCPConfigNotification{Computer: req.Computer})
}

func (b *Broker) OnUpdateToolList(socket rpctransport.Socket, broadcaster rpctransport.RoomBroadcaster, req proto.UpdateComputerConfigReq) {
	b.broadcastToSenderOffice(socket, broadcaster, proto.EventNotifyUpdateToolList, proto.UpdateMCPConfigNotification{Computer: req.Computer})
}

func (b *Broker) OnUpdateDesktop(socket rpctransport.Socket, broadcaster rpctransport.RoomBroadcaster, req proto.UpdateComputerConfigReq) {
	b.broadcastToSenderOffice(socket, broadcaster, proto.EventNotifyUpdateDesktop, proto.UpdateMCPConfigNotification{Computer: req.Computer})
}

// broadcastToSenderOffice resolves socket's own office from the registry
// and broadcasts payload to the rest of that office. A sender with no
// current office (already disconnected, or never joined) has nowhere to
// broadcast to and is silently skipped.
func (b *Broker) broadcastToSenderOffice(socket rpctransport.Socket, broadcaster rpctransport.RoomBroadcaster, event string, payload any) {
	sess := b.registry.Get(socket.Sid())
	if sess == nil || sess.OfficeID == nil {
		return
	}
	broadcaster.BroadcastToRoomExcept(*sess.OfficeID, socket.Sid(), event, payload)
}

// OnListRoom implements server:list_room.
func (b *Broker) OnListRoom(req proto.ListRoomReq) proto.ListRoomRet {
	sessions := b.registry.SessionsInOffice(req.OfficeID)
	infos := make([]proto.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		officeID := ""
		if s.OfficeID != nil {
			officeID = *s.OfficeID
		}
		infos = append(infos, proto.SessionInfo{Sid: s.Sid, Name: s.Name, Role: s.Role, OfficeID: officeID})
	}
	return proto.ListRoomRet{Sessions: infos, ReqId: req.ReqId}
}

// --- forwarding: client:* requests routed from Agent to Computer ---
//
// The original handler left the tool_call, get_tools and get_desktop
// forwards as TODO stubs (a transport API limitation at the time it was
// written). SMCP requires them, so the implementation here is new:
// resolve the named Computer's sid within the caller's office and forward
// the request over the resolved socket with an ack wait bounded by a
// deadline. OnToolCall turns a missing Computer or a failed or timed-out
// ack into an isError ToolCallRet envelope; OnGetTools, OnGetDesktop and
// OnGetConfig return those failures as a Go error instead.

// OnToolCall implements client:tool_call forwarding.
func (b *Broker) OnToolCall(ctx context.Context, callerOfficeID string, req proto.ToolCallReq) proto.ToolCallRet {
	timeout := time.Duration(req.Timeout) * time.Second
	if timeout <= 0 {
		timeout = DefaultForwardTimeout
	}

	target, ok := b.registry.ComputerSidInOffice(callerOfficeID, req.Computer)
	if !ok {
		return errorToolCallRet(req.ReqId, &ComputerUnreachableError{Name: req.Computer})
	}
	sock, ok := b.directory.Socket(target)
	if !ok {
		return errorToolCallRet(req.ReqId, &ComputerUnreachableError{Name: req.Computer})
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var ret proto.ToolCallRet
	if err := sock.Call(callCtx, proto.EventClientToolCall, req, &ret); err != nil {
		return errorToolCallRet(req.ReqId, fmt.Errorf("forward %s: %w", proto.EventClientToolCall, err))
	}
	return ret
}

// OnGetTools implements client:get_tools forwarding.
func (b *Broker) OnGetTools(ctx context.Context, callerOfficeID string, req proto.GetToolsReq) (proto.GetToolsRet, error) {
	target, ok := b.registry.ComputerSidInOffice(callerOfficeID, req.Computer)
	if !ok {
		return proto.GetToolsRet{}, &ComputerUnreachableError{Name: req.Computer}
	}
	sock, ok := b.directory.Socket(target)
	if !ok {
		return proto.GetToolsRet{}, &ComputerUnreachableError{Name: req.Computer}
	}

	callCtx, cancel := context.WithTimeout(ctx, DefaultForwardTimeout)
	defer cancel()

	var ret proto.GetToolsRet
	if err := sock.Call(callCtx, proto.EventClientGetTools, req, &ret); err != nil {
		return proto.GetToolsRet{}, fmt.Errorf("forward %s: %w", proto.EventClientGetTools, err)
	}
	return ret, nil
}

// OnGetDesktop implements client:get_desktop forwarding.
func (b *Broker) OnGetDesktop(ctx context.Context, callerOfficeID string, req proto.GetDesktopReq) (proto.GetDesktopRet, error) {
	target, ok := b.registry.ComputerSidInOffice(callerOfficeID, req.Computer)
	if !ok {
		return proto.GetDesktopRet{}, &ComputerUnreachableError{Name: req.Computer}
	}
	sock, ok := b.directory.Socket(target)
	if !ok {
		return proto.GetDesktopRet{}, &ComputerUnreachableError{Name: req.Computer}
	}

	callCtx, cancel := context.WithTimeout(ctx, DefaultForwardTimeout)
	defer cancel()

	var ret proto.GetDesktopRet
	if err := sock.Call(callCtx, proto.EventClientGetDesktop, req, &ret); err != nil {
		return proto.GetDesktopRet{}, fmt.Errorf("forward %s: %w", proto.EventClientGetDesktop, err)
	}
	return ret, nil
}

// OnGetConfig implements client:get_config forwarding.
func (b *Broker) OnGetConfig(ctx context.Context, callerOfficeID string, req proto.GetComputerConfigReq) (proto.GetComputerConfigRet, error) {
	target, ok := b.registry.ComputerSidInOffice(callerOfficeID, req.Computer)
	if !ok {
		return proto.GetComputerConfigRet{}, &ComputerUnreachableError{Name: req.Computer}
	}
	sock, ok := b.directory.Socket(target)
	if !ok {
		return proto.GetComputerConfigRet{}, &ComputerUnreachableError{Name: req.Computer}
	}

	callCtx, cancel := context.WithTimeout(ctx, DefaultForwardTimeout)
	defer cancel()

	var ret proto.GetComputerConfigRet
	if err := sock.Call(callCtx, proto.EventClientGetConfig, req, &ret); err != nil {
		return proto.GetComputerConfigRet{}, fmt.Errorf("forward %s: %w", proto.EventClientGetConfig, err)
	}
	return ret, nil
}

func errorToolCallRet(reqID proto.ReqId, err error) proto.ToolCallRet {
	isErr := true
	msg, _ := json.Marshal(map[string]string{"type": "text", "text": err.Error()})
	id := reqID
	return proto.ToolCallRet{
		Content: []json.RawMessage{msg},
		IsError: &isErr,
		ReqId:   &id,
	}
}

func enterNotification(sess session.Data, officeID string) proto.EnterOfficeNotification {
	if sess.Role == proto.RoleComputer {
		name := sess.Name
		return proto.EnterOfficeNotification{OfficeID: officeID, Computer: &name}
	}
	name := sess.Name
	return proto.EnterOfficeNotification{OfficeID: officeID, Agent: &name}
}

func leaveNotification(sess session.Data) proto.LeaveOfficeNotification {
	officeID := ""
	if sess.OfficeID != nil {
		officeID = *sess.OfficeID
	}
	if sess.Role == proto.RoleComputer {
		name := sess.Name
		return proto.LeaveOfficeNotification{OfficeID: officeID, Computer: &name}
	}
	name := sess.Name
	return proto.LeaveOfficeNotification{OfficeID: officeID, Agent: &name}
}
