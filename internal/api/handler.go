// Package api provides the HTTP API handlers and routing for the compute service.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"c2d-service/internal/apperrors"
	"c2d-service/internal/compute"
	"c2d-service/internal/health"
)

// Handler contains HTTP handlers for the compute API
type Handler struct {
	svc    *compute.Service
	health *health.Checker
}

// NewHandler creates a new API handler
func NewHandler(svc *compute.Service, healthChecker *health.Checker) *Handler {
	return &Handler{
		svc:    svc,
		health: healthChecker,
	}
}

// StartCompute handles POST /compute/start
func (h *Handler) StartCompute(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Start(r.Context())
	if err != nil {
		var running *compute.AlreadyRunningError
		if errors.As(err, &running) {
			// Conflict carries the existing job's identifier so the caller
			// can poll it instead.
			h.writeJSON(w, http.StatusConflict, map[string]string{
				"error": running.Error(),
				"jobId": running.JobID,
			})
			return
		}
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// ComputeStatus handles GET /compute/status
func (h *Handler) ComputeStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Status(r.Context()))
}

// ComputeResult handles GET /compute/result
func (h *Handler) ComputeResult(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Result(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// ResetCompute handles POST /compute/reset
func (h *Handler) ResetCompute(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Reset(r.Context()))
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 200 if the service is ready to accept traffic.
// Returns 503 if the provider node is unavailable.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError handles errors from the service layer with appropriate HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, err.Error())
}
