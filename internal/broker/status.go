package broker

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kagenti/smcp-gateway/internal/proto"
)

// StatusHandler is an ops introspection surface reporting room and
// session health, adapted from the teacher's upstream-MCP
// ServerValidationStatus reporting (internal/broker/status.go) to SMCP's
// room/session model: there is no upstream MCP connection for the
// Broker to validate here, only registered sessions and their office
// membership.
type StatusHandler struct {
	broker *Broker
	logger *slog.Logger
}

// NewStatusHandler constructs a StatusHandler over b.
func NewStatusHandler(b *Broker, logger *slog.Logger) *StatusHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusHandler{broker: b, logger: logger}
}

// OfficeStatus summarizes one office's current membership.
type OfficeStatus struct {
	OfficeID string              `json:"office_id"`
	Sessions []proto.SessionInfo `json:"sessions"`
}

// StatusResponse is the /status payload.
type StatusResponse struct {
	Stats   statsJSON      `json:"stats"`
	Offices []OfficeStatus `json:"offices"`
}

type statsJSON struct {
	Total     int `json:"total"`
	Agents    int `json:"agents"`
	Computers int `json:"computers"`
}

// ServeHTTP implements http.Handler, reporting every office with at
// least one registered session.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := h.broker.Registry().StatsSnapshot()
	byOffice := map[string][]proto.SessionInfo{}
	for _, s := range h.broker.Registry().AllSessions() {
		if s.OfficeID == nil {
			continue
		}
		byOffice[*s.OfficeID] = append(byOffice[*s.OfficeID], proto.SessionInfo{
			Sid: s.Sid, Name: s.Name, Role: s.Role, OfficeID: *s.OfficeID,
		})
	}

	resp := StatusResponse{
		Stats: statsJSON{Total: stats.Total, Agents: stats.Agents, Computers: stats.Computers},
	}
	for officeID, sessions := range byOffice {
		resp.Offices = append(resp.Offices, OfficeStatus{OfficeID: officeID, Sessions: sessions})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode status response", "error", err)
	}
}
