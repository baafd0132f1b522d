package server

import (
	"net/http"
	"time"
)

func (s *Server) handleCPU(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status.CPU())
}

func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Memory())
}

func (s *Server) handleProcesses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Processes())
}

func (s *Server) handleExtTemp(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status.ExternalTemperature())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Snapshot())
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	// LastUpdate is when the snapshot was last replaced; omitted before
	// the first poll completes.
	LastUpdate      *time.Time `json:"last_update,omitempty"`
	SnapshotVersion uint64     `json:"snapshot_version"`

	// ControllerConnected is omitted when the controller does not report it.
	ControllerConnected *bool `json:"controller_connected,omitempty"`

	TerminalEnabled  bool `json:"terminal_enabled"`
	TerminalSessions int  `json:"terminal_sessions"`
	TLSEnabled       bool `json:"tls_enabled"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:          "ok",
		Version:         s.version,
		UptimeSeconds:   int64(time.Since(s.startTime).Seconds()),
		TerminalEnabled: s.terminal != nil,
	}

	if at, version := s.status.UpdatedAt(); version > 0 {
		resp.LastUpdate = &at
		resp.SnapshotVersion = version
	}
	if cr, ok := s.controller.(connectedReporter); ok {
		connected := cr.Connected()
		resp.ControllerConnected = &connected
	}
	if s.terminal != nil {
		resp.TerminalSessions = s.terminal.Active()
	}

	s.mu.Lock()
	resp.TLSEnabled = s.tlsEnabled
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}
