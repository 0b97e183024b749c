// Package proto defines the wire types and event-name constants of the
// SMCP room-fabric protocol: request/notification envelopes exchanged
// between Agent, Broker and Computer over the namespaced RPC transport.
package proto

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Namespace is the transport namespace the room fabric operates under.
const Namespace = "/smcp"

// Event name constants, shared verbatim by every peer on the wire.
const (
	EventClientGetTools  = "client:get_tools"
	EventClientGetConfig = "client:get_config"
	EventClientGetDesktop = "client:get_desktop"
	EventClientToolCall  = "client:tool_call"

	EventServerJoinOffice     = "server:join_office"
	EventServerLeaveOffice    = "server:leave_office"
	EventServerUpdateConfig   = "server:update_config"
	EventServerUpdateToolList = "server:update_tool_list"
	EventServerUpdateDesktop  = "server:update_desktop"
	EventServerToolCallCancel = "server:tool_call_cancel"
	EventServerListRoom       = "server:list_room"

	EventNotifyToolCallCancel = "notify:tool_call_cancel"
	EventNotifyEnterOffice    = "notify:enter_office"
	EventNotifyLeaveOffice    = "notify:leave_office"
	EventNotifyUpdateConfig   = "notify:update_config"
	EventNotifyUpdateToolList = "notify:update_tool_list"
	EventNotifyUpdateDesktop  = "notify:update_desktop"

	NotifyPrefix = "notify:"
)

// ReqId correlates a request emitted by an Agent with its eventual
// response, and is echoed back verbatim by the Broker/Computer.
type ReqId string

// NewReqID mints a new request id in the same lowercase-hex "simple" UUID
// form produced by Python's uuid4().hex, so a mixed-language deployment
// can compare ids byte-for-byte.
func NewReqID() ReqId {
	id := uuid.New()
	return ReqId(hexSimple(id))
}

func hexSimple(id uuid.UUID) string {
	buf := make([]byte, 32)
	const hexdigits = "0123456789abcdef"
	for i, b := range id {
		buf[i*2] = hexdigits[b>>4]
		buf[i*2+1] = hexdigits[b&0x0f]
	}
	return string(buf)
}

// Role distinguishes the two kinds of session a peer can register as.
type Role string

const (
	RoleAgent    Role = "agent"
	RoleComputer Role = "computer"
)

// UserInfo identifies the caller attempting to join an office.
type UserInfo struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// AgentCallData is embedded (flattened) into every Agent-originated
// request that must be correlated back to a ReqId.
type AgentCallData struct {
	Agent string `json:"agent"`
	ReqId ReqId  `json:"req_id"`
}

// EnterOfficeReq is the server:join_office payload.
type EnterOfficeReq struct {
	Role     Role   `json:"role"`
	Name     string `json:"name"`
	OfficeID string `json:"office_id"`
}

// LeaveOfficeReq is the server:leave_office payload.
type LeaveOfficeReq struct {
	OfficeID string `json:"office_id"`
}

// GetToolsReq is the client:get_tools payload (Agent -> Broker -> Computer).
type GetToolsReq struct {
	AgentCallData
	Computer string `json:"computer"`
}

// SMCPTool is a tool definition surfaced to an Agent.
type SMCPTool struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	ParamsSchema json.RawMessage `json:"params_schema"`
	ReturnSchema json.RawMessage `json:"return_schema,omitempty"`
	Meta         json.RawMessage `json:"meta,omitempty"`
}

// GetToolsRet is the response to GetToolsReq.
type GetToolsRet struct {
	Tools []SMCPTool `json:"tools"`
	ReqId ReqId      `json:"req_id"`
}

// GetComputerConfigReq is the client:get_config payload.
type GetComputerConfigReq struct {
	AgentCallData
	Computer string `json:"computer"`
}

// GetComputerConfigRet is the response to GetComputerConfigReq.
type GetComputerConfigRet struct {
	Inputs  []json.RawMessage `json:"inputs,omitempty"`
	Servers json.RawMessage   `json:"servers"`
}

// UpdateComputerConfigReq is the server:update_config payload.
type UpdateComputerConfigReq struct {
	Computer string `json:"computer"`
}

// ToolCallReq is the client:tool_call payload.
type ToolCallReq struct {
	AgentCallData
	Computer string          `json:"computer"`
	ToolName string          `json:"tool_name"`
	Params   json.RawMessage `json:"params"`
	Timeout  int             `json:"timeout"`
}

// ToolCallRet mirrors the MCP CallToolResult shape: an empty struct
// serializes to "{}" and every field is independently optional.
type ToolCallRet struct {
	Content []json.RawMessage `json:"content,omitempty"`
	IsError *bool             `json:"isError,omitempty"`
	ReqId   *ReqId            `json:"req_id,omitempty"`
}

// GetDesktopReq is the client:get_desktop payload.
type GetDesktopReq struct {
	AgentCallData
	Computer    string  `json:"computer"`
	DesktopSize *int    `json:"desktop_size,omitempty"`
	Window      *string `json:"window,omitempty"`
}

// Desktop is a single rendered window, as produced by the desktop organizer.
type Desktop = string

// GetDesktopRet is the response to GetDesktopReq.
type GetDesktopRet struct {
	Desktops []Desktop `json:"desktops,omitempty"`
	ReqId    ReqId     `json:"req_id"`
}

// ListRoomReq is the server:list_room payload.
type ListRoomReq struct {
	AgentCallData
	OfficeID string `json:"office_id"`
}

// SessionInfo describes one registered session for a list_room response.
type SessionInfo struct {
	Sid      string `json:"sid"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	OfficeID string `json:"office_id"`
}

// ListRoomRet is the response to ListRoomReq.
type ListRoomRet struct {
	Sessions []SessionInfo `json:"sessions"`
	ReqId    ReqId         `json:"req_id"`
}

// EnterOfficeNotification is broadcast to an office when a peer joins it.
type EnterOfficeNotification struct {
	OfficeID string  `json:"office_id"`
	Computer *string `json:"computer,omitempty"`
	Agent    *string `json:"agent,omitempty"`
}

// LeaveOfficeNotification is broadcast to an office when a peer leaves it.
type LeaveOfficeNotification struct {
	OfficeID string  `json:"office_id"`
	Computer *string `json:"computer,omitempty"`
	Agent    *string `json:"agent,omitempty"`
}

// UpdateMCPConfigNotification is broadcast when a Computer's server config changes.
type UpdateMCPConfigNotification struct {
	Computer string `json:"computer"`
}

// UpdateToolListNotification is broadcast when a Computer's tool mapping changes.
type UpdateToolListNotification struct {
	Computer string `json:"computer"`
}

// NotificationType discriminates the payload-free and payload-carrying
// notification kinds dispatched over the office room.
type NotificationType string

const (
	NotificationToolCallCancel  NotificationType = "ToolCallCancel"
	NotificationEnterOffice     NotificationType = "EnterOffice"
	NotificationLeaveOffice     NotificationType = "LeaveOffice"
	NotificationUpdateMCPConfig NotificationType = "UpdateMCPConfig"
	NotificationUpdateToolList  NotificationType = "UpdateToolList"
	NotificationUpdateDesktop   NotificationType = "UpdateDesktop"
)

// Notification is the envelope broadcast over notify:* events; exactly
// one of the payload fields is populated depending on Type.
type Notification struct {
	Type            NotificationType             `json:"type"`
	EnterOffice     *EnterOfficeNotification     `json:"-"`
	LeaveOffice     *LeaveOfficeNotification     `json:"-"`
	UpdateMCPConfig *UpdateMCPConfigNotification `json:"-"`
	UpdateToolList  *UpdateToolListNotification  `json:"-"`
}

// MarshalJSON flattens the active payload alongside the discriminant tag,
// matching the internally-tagged `{"type": ..., ...fields}` shape used on
// the wire by every other SMCP peer.
func (n Notification) MarshalJSON() ([]byte, error) {
	var payload any
	switch n.Type {
	case NotificationEnterOffice:
		payload = n.EnterOffice
	case NotificationLeaveOffice:
		payload = n.LeaveOffice
	case NotificationUpdateMCPConfig:
		payload = n.UpdateMCPConfig
	case NotificationUpdateToolList:
		payload = n.UpdateToolList
	default:
		payload = struct{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"] = json.RawMessage(`"` + string(n.Type) + `"`)
	return json.Marshal(fields)
}
