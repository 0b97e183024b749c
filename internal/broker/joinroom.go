package broker

import (
	"github.com/kagenti/smcp-gateway/internal/proto"
	"github.com/kagenti/smcp-gateway/internal/session"
)

type joinDecisionKind int

const (
	joinNoop joinDecisionKind = iota
	joinJoin
	joinLeaveAndJoin
)

type joinDecision struct {
	kind        joinDecisionKind
	leaveOffice string
}

// validateJoinRoom applies the join/leave decision table: an Agent may
// belong to only one office at a time and is unique per office; a
// Computer is unique by name within an office but may switch offices,
// leaving its prior one. Re-joining the office a session is already in
// is a no-op, not an error.
func (b *Broker) validateJoinRoom(sess session.Data, officeID string) (joinDecision, error) {
	switch sess.Role {
	case proto.RoleAgent:
		if sess.OfficeID != nil {
			if *sess.OfficeID != officeID {
				return joinDecision{}, &AgentAlreadyInRoomError{OfficeID: *sess.OfficeID}
			}
			b.logger.Warn("agent already in room, re-join ignored", "sid", sess.Sid, "office_id", *sess.OfficeID)
			return joinDecision{kind: joinNoop}, nil
		}
		if b.registry.HasAgentInOffice(officeID) {
			return joinDecision{}, &AgentAlreadyExistsError{}
		}
		return joinDecision{kind: joinJoin}, nil

	default: // proto.RoleComputer
		if sess.OfficeID != nil {
			if *sess.OfficeID != officeID {
				if b.registry.HasComputerInOffice(officeID, sess.Name) {
					return joinDecision{}, &ComputerAlreadyExistsError{Name: sess.Name, OfficeID: officeID}
				}
				return joinDecision{kind: joinLeaveAndJoin, leaveOffice: *sess.OfficeID}, nil
			}
			b.logger.Warn("computer already in room, re-join ignored", "sid", sess.Sid, "office_id", *sess.OfficeID)
			return joinDecision{kind: joinNoop}, nil
		}
		if b.registry.HasComputerInOffice(officeID, sess.Name) {
			return joinDecision{}, &ComputerAlreadyExistsError{Name: sess.Name, OfficeID: officeID}
		}
		return joinDecision{kind: joinJoin}, nil
	}
}
