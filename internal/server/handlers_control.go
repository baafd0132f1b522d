package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/rpistatus/host/internal/errors"
)

// KillRequest is the body of POST /control/process/kill.
type KillRequest struct {
	PID *uint32 `json:"pid"`
}

// maxControlBody bounds control request bodies.
const maxControlBody = 1024

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("Handling POST /control/ping")
	s.runControl(w, r, "ping", s.controller.Ping)
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("Handling POST /control/system/shutdown")
	s.runControl(w, r, "shutdown", s.controller.Shutdown)
}

func (s *Server) handleReboot(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("Handling POST /control/system/reboot")
	s.runControl(w, r, "reboot", s.controller.Reboot)
}

func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	req, err := decodeKill(r.Body)
	if err != nil {
		s.log.Warn("Rejecting kill request: %v", err)
		writeError(w, err)
		return
	}
	s.log.Debug("Handling POST /control/process/kill with pid %d", *req.PID)
	s.runControl(w, r, "kill", func(ctx context.Context) error {
		return s.controller.KillProcess(ctx, *req.PID)
	})
}

func decodeKill(body io.Reader) (KillRequest, error) {
	var req KillRequest
	dec := json.NewDecoder(io.LimitReader(body, maxControlBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, errors.InvalidRequest("body must be {\"pid\": <unsigned integer>}")
	}
	if req.PID == nil {
		return req, errors.InvalidRequest("missing pid")
	}
	return req, nil
}

// runControl executes one controller operation and writes the result.
func (s *Server) runControl(w http.ResponseWriter, r *http.Request, name string, op func(context.Context) error) {
	if err := op(r.Context()); err != nil {
		s.log.Error("Control operation %s failed: %v", name, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{Status: "ok"})
}
