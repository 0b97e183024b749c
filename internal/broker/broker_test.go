package broker

import (
	"context"
	"testing"

	"github.com/kagenti/smcp-gateway/internal/proto"
	"github.com/kagenti/smcp-gateway/internal/rpctransport"
	"github.com/kagenti/smcp-gateway/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSocket struct {
	sid     string
	joined  map[string]bool
	emitted []struct {
		event   string
		payload any
	}
	callFn func(ctx context.Context, event string, payload any, reply any) error
}

func newFakeSocket(sid string) *fakeSocket {
	return &fakeSocket{sid: sid, joined: map[string]bool{}}
}

func (f *fakeSocket) Sid() string { return f.sid }
func (f *fakeSocket) Join(room string) { f.joined[room] = true }
func (f *fakeSocket) Leave(room string) { delete(f.joined, room) }
func (f *fakeSocket) Emit(event string, payload any) error {
	f.emitted = append(f.emitted, struct {
		event   string
		payload any
	}{event, payload})
	return nil
}
func (f *fakeSocket) Call(ctx context.Context, event string, payload any, reply any) error {
	return f.callFn(ctx, event, payload, reply)
}

type fakeBroadcaster struct {
	calls []struct {
		room, event string
		payload     any
	}
	exceptCalls []struct {
		room, exceptSid, event string
		payload                any
	}
}

func (f *fakeBroadcaster) BroadcastToRoom(room, event string, payload any) {
	f.calls = append(f.calls, struct {
		room, event string
		payload     any
	}{room, event, payload})
}

func (f *fakeBroadcaster) BroadcastToRoomExcept(room, exceptSid, event string, payload any) {
	f.exceptCalls = append(f.exceptCalls, struct {
		room, exceptSid, event string
		payload                any
	}{room, exceptSid, event, payload})
}

type fakeDirectory struct{ sockets map[string]*fakeSocket }

func (f *fakeDirectory) Socket(sid string) (rpctransport.Socket, bool) {
	s, ok := f.sockets[sid]
	if !ok {
		return nil, false
	}
	return s, true
}

func TestOnJoinOfficeAgent(t *testing.T) {
	b := New(&fakeDirectory{sockets: map[string]*fakeSocket{}}, nil, nil)
	sock := newFakeSocket("sid1")
	bc := &fakeBroadcaster{}

	err := b.OnJoinOffice(sock, bc, proto.EnterOfficeReq{Role: proto.RoleAgent, Name: "agent1", OfficeID: "office1"})
	require.NoError(t, err)
	assert.True(t, sock.joined["office1"])
	require.Len(t, bc.calls, 1)
	assert.Equal(t, proto.EventNotifyEnterOffice, bc.calls[0].event)
}

func TestOnJoinOfficeAgentAlreadyExists(t *testing.T) {
	b := New(&fakeDirectory{sockets: map[string]*fakeSocket{}}, nil, nil)
	require.NoError(t, b.registry.Register(session.Data{Sid: "sid_agent", Name: "agent1", Role: proto.RoleAgent, OfficeID: strPtr("office1")}))

	sock := newFakeSocket("sid_new")
	bc := &fakeBroadcaster{}
	err := b.OnJoinOffice(sock, bc, proto.EnterOfficeReq{Role: proto.RoleAgent, Name: "agent2", OfficeID: "office1"})
	require.Error(t, err)
	var exists *AgentAlreadyExistsError
	assert.ErrorAs(t, err, &exists)
}

func TestOnJoinOfficeComputerSwitchesRoom(t *testing.T) {
	b := New(&fakeDirectory{sockets: map[string]*fakeSocket{}}, nil, nil)
	require.NoError(t, b.registry.Register(session.Data{Sid: "sid_c", Name: "computer1", Role: proto.RoleComputer, OfficeID: strPtr("office_old")}))

	sock := newFakeSocket("sid_c")
	sock.Join("office_old")
	bc := &fakeBroadcaster{}
	err := b.OnJoinOffice(sock, bc, proto.EnterOfficeReq{Role: proto.RoleComputer, Name: "computer1", OfficeID: "office_new"})
	require.NoError(t, err)
	assert.False(t, sock.joined["office_old"])
	assert.True(t, sock.joined["office_new"])
}

func TestOnJoinOfficeNoopDoesNotRebroadcast(t *testing.T) {
	b := New(&fakeDirectory{sockets: map[string]*fakeSocket{}}, nil, nil)
	sock := newFakeSocket("sid1")
	bc := &fakeBroadcaster{}

	req := proto.EnterOfficeReq{Role: proto.RoleAgent, Name: "agent1", OfficeID: "office1"}
	require.NoError(t, b.OnJoinOffice(sock, bc, req))
	require.Len(t, bc.calls, 1)

	require.NoError(t, b.OnJoinOffice(sock, bc, req))
	assert.Len(t, bc.calls, 1, "re-joining the same office must not broadcast a second enter notification")
}

func TestOnToolCallCancelBroadcastsToRoomExcludingSender(t *testing.T) {
	b := New(&fakeDirectory{sockets: map[string]*fakeSocket{}}, nil, nil)
	require.NoError(t, b.registry.Register(session.Data{Sid: "agent-sid", Name: "agent1", Role: proto.RoleAgent, OfficeID: strPtr("office1")}))

	sock := newFakeSocket("agent-sid")
	bc := &fakeBroadcaster{}
	b.OnToolCallCancel(sock, bc, proto.AgentCallData{Agent: "agent1", ReqId: "r1"})

	require.Len(t, bc.exceptCalls, 1)
	assert.Equal(t, "office1", bc.exceptCalls[0].room)
	assert.Equal(t, "agent-sid", bc.exceptCalls[0].exceptSid)
	assert.Equal(t, proto.EventNotifyToolCallCancel, bc.exceptCalls[0].event)
	assert.Empty(t, sock.emitted)
}

func TestOnUpdateConfigBroadcastsToRoomExcludingSender(t *testing.T) {
	b := New(&fakeDirectory{sockets: map[string]*fakeSocket{}}, nil, nil)
	require.NoError(t, b.registry.Register(session.Data{Sid: "computer-sid", Name: "computer1", Role: proto.RoleComputer, OfficeID: strPtr("office1")}))

	sock := newFakeSocket("computer-sid")
	bc := &fakeBroadcaster{}
	b.OnUpdateConfig(sock, bc, proto.UpdateComputerConfigReq{Computer: "computer1"})

	require.Len(t, bc.exceptCalls, 1)
	assert.Equal(t, "office1", bc.exceptCalls[0].room)
	assert.Equal(t, "computer-sid", bc.exceptCalls[0].exceptSid)
	assert.Equal(t, proto.EventNotifyUpdateConfig, bc.exceptCalls[0].event)
}

func TestOnToolCallForwardsToComputer(t *testing.T) {
	dir := &fakeDirectory{sockets: map[string]*fakeSocket{}}
	b := New(dir, nil, nil)
	require.NoError(t, b.registry.Register(session.Data{Sid: "agent-sid", Name: "agent1", Role: proto.RoleAgent, OfficeID: strPtr("office1")}))
	require.NoError(t, b.registry.Register(session.Data{Sid: "computer-sid", Name: "computer1", Role: proto.RoleComputer, OfficeID: strPtr("office1")}))

	computerSock := newFakeSocket("computer-sid")
	isErr := false
	computerSock.callFn = func(ctx context.Context, event string, payload any, reply any) error {
		out := reply.(*proto.ToolCallRet)
		*out = proto.ToolCallRet{IsError: &isErr}
		return nil
	}
	dir.sockets["computer-sid"] = computerSock

	ret := b.OnToolCall(context.Background(), "office1", proto.ToolCallReq{
		AgentCallData: proto.AgentCallData{Agent: "agent1", ReqId: "r1"},
		Computer:      "computer1",
		ToolName:      "echo",
		Timeout:       5,
	})
	require.NotNil(t, ret.IsError)
	assert.False(t, *ret.IsError)
}

func TestOnToolCallUnreachableComputer(t *testing.T) {
	dir := &fakeDirectory{sockets: map[string]*fakeSocket{}}
	b := New(dir, nil, nil)
	require.NoError(t, b.registry.Register(session.Data{Sid: "agent-sid", Name: "agent1", Role: proto.RoleAgent, OfficeID: strPtr("office1")}))

	ret := b.OnToolCall(context.Background(), "office1", proto.ToolCallReq{
		AgentCallData: proto.AgentCallData{Agent: "agent1", ReqId: "r1"},
		Computer:      "missing",
		ToolName:      "echo",
	})
	require.NotNil(t, ret.IsError)
	assert.True(t, *ret.IsError)
}

func TestOnListRoom(t *testing.T) {
	b := New(&fakeDirectory{sockets: map[string]*fakeSocket{}}, nil, nil)
	require.NoError(t, b.registry.Register(session.Data{Sid: "sid1", Name: "computer1", Role: proto.RoleComputer, OfficeID: strPtr("office1")}))

	ret := b.OnListRoom(proto.ListRoomReq{OfficeID: "office1", AgentCallData: proto.AgentCallData{ReqId: "r1"}})
	require.Len(t, ret.Sessions, 1)
	assert.Equal(t, "computer1", ret.Sessions[0].Name)
}

func strPtr(s string) *string { return &s }
