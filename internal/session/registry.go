// Package session implements the SMCP session registry: the Broker-side
// bookkeeping of which sid is registered under which name, role and
// office, with the uniqueness rules that keep office membership sane.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kagenti/smcp-gateway/internal/proto"
)

// OfficeID and SID are the two string-keyed identifiers the registry
// indexes sessions by.
type OfficeID = string
type SID = string

// Data is the registered state for one connected peer.
type Data struct {
	Sid      SID
	Name     string
	Role     proto.Role
	OfficeID *OfficeID
	Extra    json.RawMessage
}

// NameAlreadyRegisteredError reports that a session's name key (an
// Agent's name, or a Computer's office and name) is already bound to a
// different sid.
type NameAlreadyRegisteredError struct{ Name string }

func (e *NameAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("name already registered: %s", e.Name)
}

// NotFoundError reports that no session is registered under a sid.
type NotFoundError struct{ Sid string }

func (e *NotFoundError) Error() string { return fmt.Sprintf("session not found: %s", e.Sid) }

// Stats summarizes the registry's current population.
type Stats struct {
	Total     int
	Agents    int
	Computers int
}

// Registry tracks every connected peer keyed by sid, plus a secondary
// name index enforcing SMCP's uniqueness rules: an Agent name is unique
// across the whole broker, a Computer name is unique within its office.
type Registry struct {
	mu         sync.RWMutex
	sessions   map[SID]*Data
	nameToSid  map[string]SID
	logger     *slog.Logger
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions:  make(map[SID]*Data),
		nameToSid: make(map[string]SID),
		logger:    logger,
	}
}

func nameKey(role proto.Role, officeID *OfficeID, name string) string {
	if role == proto.RoleAgent {
		return "agent:" + name
	}
	if officeID != nil {
		return "computer:" + *officeID + ":" + name
	}
	return "computer::" + name
}

// Register adds sess to the registry, enforcing name uniqueness. A
// re-registration of the same sid under the same identity is idempotent.
func (r *Registry) Register(sess Data) error {
	key := nameKey(sess.Role, sess.OfficeID, sess.Name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.nameToSid[key]; ok {
		if existing != sess.Sid {
			return &NameAlreadyRegisteredError{Name: sess.Name}
		}
		r.logger.Debug("name re-registered by same sid", "name", sess.Name, "sid", sess.Sid)
		return nil
	}

	copied := sess
	r.sessions[sess.Sid] = &copied
	r.nameToSid[key] = sess.Sid
	r.logger.Debug("registered session", "name", sess.Name, "sid", sess.Sid)
	return nil
}

// Unregister removes sid from the registry and returns its prior data,
// or nil if sid was not registered.
func (r *Registry) Unregister(sid SID) *Data {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[sid]
	if !ok {
		return nil
	}
	delete(r.sessions, sid)
	delete(r.nameToSid, nameKey(sess.Role, sess.OfficeID, sess.Name))
	r.logger.Debug("unregistered session", "name", sess.Name, "sid", sid)
	return sess
}

// Get returns the session data for sid, or nil.
func (r *Registry) Get(sid SID) *Data {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sessions[sid]; ok {
		copied := *s
		return &copied
	}
	return nil
}

// SidByAgentName resolves a globally-registered agent name to its sid.
func (r *Registry) SidByAgentName(name string) (SID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.nameToSid[nameKey(proto.RoleAgent, nil, name)]
	return sid, ok
}

// UpdateOfficeID moves sid to a new office (nil to leave any office),
// re-keying the name index and rejecting a move that would collide with
// an existing distinct registration in the destination office.
func (r *Registry) UpdateOfficeID(sid SID, officeID *OfficeID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[sid]
	if !ok {
		return &NotFoundError{Sid: sid}
	}

	oldKey := nameKey(sess.Role, sess.OfficeID, sess.Name)
	newKey := nameKey(sess.Role, officeID, sess.Name)

	if oldKey != newKey {
		if existing, ok := r.nameToSid[newKey]; ok && existing != sid {
			return &NameAlreadyRegisteredError{Name: sess.Name}
		}
		delete(r.nameToSid, oldKey)
		r.nameToSid[newKey] = sid
	}

	sess.OfficeID = officeID
	return nil
}

// SessionsInOffice returns every session currently bound to officeID.
func (r *Registry) SessionsInOffice(officeID OfficeID) []Data {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Data
	for _, s := range r.sessions {
		if s.OfficeID != nil && *s.OfficeID == officeID {
			out = append(out, *s)
		}
	}
	return out
}

// HasAgentInOffice reports whether officeID already has a registered Agent.
func (r *Registry) HasAgentInOffice(officeID OfficeID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.OfficeID != nil && *s.OfficeID == officeID && s.Role == proto.RoleAgent {
			return true
		}
	}
	return false
}

// HasComputerInOffice reports whether officeID already has a Computer
// registered under name.
func (r *Registry) HasComputerInOffice(officeID OfficeID, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.OfficeID != nil && *s.OfficeID == officeID && s.Role == proto.RoleComputer && s.Name == name {
			return true
		}
	}
	return false
}

// ComputerSidInOffice resolves a Computer's sid within an office by name.
func (r *Registry) ComputerSidInOffice(officeID OfficeID, name string) (SID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.OfficeID != nil && *s.OfficeID == officeID && s.Role == proto.RoleComputer && s.Name == name {
			return s.Sid, true
		}
	}
	return "", false
}

// AllSessions returns every registered session.
func (r *Registry) AllSessions() []Data {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Data, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	return out
}

// StatsSnapshot summarizes the registry's current population.
func (r *Registry) StatsSnapshot() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := Stats{Total: len(r.sessions)}
	for _, s := range r.sessions {
		if s.Role == proto.RoleAgent {
			stats.Agents++
		} else {
			stats.Computers++
		}
	}
	return stats
}
