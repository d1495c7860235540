package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/NekoSaan/h264Player/internal/input"
	"github.com/NekoSaan/h264Player/internal/logger"
	"github.com/NekoSaan/h264Player/internal/transport"
	"github.com/NekoSaan/h264Player/pkg/version"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// CommandResponse acknowledges a queued command.
type CommandResponse struct {
	Command string `json:"command"`
	Queued  bool   `json:"queued"`
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status    HealthStatus      `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]*Check `json:"checks,omitempty"`
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["command"]
	ev, ok := transport.ParseEvent(name)
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, "unknown command: "+name)
		return
	}

	if err := s.sink.Push(ev, input.OriginHTTP); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, input.ErrQueueFull), errors.Is(err, input.ErrRateLimited):
			status = http.StatusTooManyRequests
		case errors.Is(err, input.ErrQueueClosed):
			status = http.StatusConflict
		}
		s.writeError(w, r, status, err.Error())
		return
	}

	logger.FromContext(r.Context()).WithField("command", ev.String()).Info("Command queued")
	s.writeJSON(w, r, http.StatusAccepted, CommandResponse{Command: ev.String(), Queued: true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*CheckTimeout)
	defer cancel()

	checks := s.health.RunChecks(ctx)
	overall := Overall(checks)

	code := http.StatusOK
	if overall == StatusDown {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, r, code, HealthResponse{
		Status:    overall,
		Timestamp: time.Now(),
		Version:   version.Version,
		Uptime:    time.Since(s.startTime).Truncate(time.Second).String(),
		Checks:    checks,
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	s.writeJSON(w, r, http.StatusOK, version.GetInfo())
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusNotFound, "not found")
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.FromContext(r.Context()).WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.writeJSON(w, r, status, ErrorResponse{
		Error:     msg,
		RequestID: r.Header.Get(logger.RequestIDHeader),
	})
}
