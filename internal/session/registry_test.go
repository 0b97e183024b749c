package session

import (
	"testing"

	"github.com/kagenti/smcp-gateway/internal/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func office(id string) *OfficeID { return &id }

func TestRegisterAndGet(t *testing.T) {
	r := New(nil)
	sess := Data{Sid: "sid-1", Name: "test_agent", Role: proto.RoleAgent}
	require.NoError(t, r.Register(sess))

	got := r.Get("sid-1")
	require.NotNil(t, got)
	assert.Equal(t, "test_agent", got.Name)

	sid, ok := r.SidByAgentName("test_agent")
	assert.True(t, ok)
	assert.Equal(t, "sid-1", sid)
}

func TestDuplicateNameRegistration(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(Data{Sid: "s1", Name: "dup", Role: proto.RoleAgent}))

	err := r.Register(Data{Sid: "s2", Name: "dup", Role: proto.RoleAgent})
	require.Error(t, err)

	require.NoError(t, r.Register(Data{Sid: "s3", Name: "dup", Role: proto.RoleComputer, OfficeID: office("office1")}))
	// same sid re-register is idempotent
	require.NoError(t, r.Register(Data{Sid: "s3", Name: "dup", Role: proto.RoleComputer, OfficeID: office("office1")}))

	err = r.Register(Data{Sid: "s4", Name: "dup", Role: proto.RoleComputer, OfficeID: office("office1")})
	require.Error(t, err)

	// different office, same computer name: allowed
	require.NoError(t, r.Register(Data{Sid: "s5", Name: "dup", Role: proto.RoleComputer, OfficeID: office("office2")}))
}

func TestOfficeQueries(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(Data{Sid: "sid-1", Name: "test_computer", Role: proto.RoleComputer, OfficeID: office("office_123")}))

	sessions := r.SessionsInOffice("office_123")
	require.Len(t, sessions, 1)
	assert.Equal(t, "sid-1", sessions[0].Sid)

	assert.False(t, r.HasAgentInOffice("office_123"))
	assert.True(t, r.HasComputerInOffice("office_123", "test_computer"))

	sid, ok := r.ComputerSidInOffice("office_123", "test_computer")
	assert.True(t, ok)
	assert.Equal(t, "sid-1", sid)
}

func TestUnregister(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(Data{Sid: "sid-1", Name: "test_agent", Role: proto.RoleAgent}))

	removed := r.Unregister("sid-1")
	require.NotNil(t, removed)

	assert.Nil(t, r.Get("sid-1"))
	_, ok := r.SidByAgentName("test_agent")
	assert.False(t, ok)
}

func TestStatsSnapshot(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(Data{Sid: "a1", Name: "agent1", Role: proto.RoleAgent}))
	require.NoError(t, r.Register(Data{Sid: "c1", Name: "computer1", Role: proto.RoleComputer}))
	require.NoError(t, r.Register(Data{Sid: "c2", Name: "computer2", Role: proto.RoleComputer}))

	stats := r.StatsSnapshot()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Agents)
	assert.Equal(t, 2, stats.Computers)
}

func TestUpdateOfficeID(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(Data{Sid: "sid-1", Name: "test", Role: proto.RoleAgent}))

	require.NoError(t, r.UpdateOfficeID("sid-1", office("office_x")))
	got := r.Get("sid-1")
	require.NotNil(t, got.OfficeID)
	assert.Equal(t, "office_x", *got.OfficeID)

	err := r.UpdateOfficeID("missing-sid", office("office_y"))
	require.Error(t, err)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}
