// Package rpctransport defines the narrow edges SMCP needs from a
// Socket.IO-compatible RPC transport. The transport's own framing,
// handshake and reconnection machinery are out of scope for this module
// (see SPEC_FULL.md §6) — only the operations the Broker, Computer and
// Agent facades call against it are modeled here, as plain interfaces a
// concrete transport adapter implements.
package rpctransport

import (
	"context"
	"encoding/json"
)

// Socket is one connected peer's RPC handle, as seen from the Broker.
type Socket interface {
	// Sid is the transport-assigned session id for this connection.
	Sid() string
	// Join adds this socket to a room (office).
	Join(room string)
	// Leave removes this socket from a room.
	Leave(room string)
	// Emit sends a fire-and-forget event to this socket alone.
	Emit(event string, payload any) error
	// Call sends event to this socket and blocks for its acknowledgement,
	// decoding the ack payload into reply. ctx bounds the wait.
	Call(ctx context.Context, event string, payload any, reply any) error
}

// RoomBroadcaster broadcasts to every socket currently joined to a room.
type RoomBroadcaster interface {
	BroadcastToRoom(room, event string, payload any)
	// BroadcastToRoomExcept broadcasts to every socket in room other than
	// exceptSid, matching Socket.IO's socket.to(room).emit() semantics for
	// a sender rebroadcasting to its own room.
	BroadcastToRoomExcept(room, exceptSid, event string, payload any)
}

// SocketDirectory resolves a sid to its live Socket handle, letting the
// Broker forward a request to one specific Computer or Agent regardless
// of which room(s) it currently belongs to.
type SocketDirectory interface {
	Socket(sid string) (Socket, bool)
}

// AgentTransport is the edge an Agent facade calls against: emit a
// request and wait for its acknowledgement, or listen for broadcast
// notifications on the office room.
type AgentTransport interface {
	Call(ctx context.Context, event string, payload any, reply any) error
	Emit(event string, payload any) error
	Notifications() <-chan RawNotification
}

// RawNotification is an undecoded notify:* event as received by an Agent
// or Computer transport, left for the facade to dispatch by Event.
type RawNotification struct {
	Event   string
	Payload json.RawMessage
}
