// Package api exposes the serving layer over HTTP.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"sentrydeck/internal/serving"
	"sentrydeck/internal/storage"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Handler serves the alert and log endpoints.
type Handler struct {
	service *serving.Service
	logger  *slog.Logger
}

// NewHandler creates a Handler over the serving layer.
func NewHandler(service *serving.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers all routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/alerts", h.HandleListAlerts)
	mux.HandleFunc("GET /v1/alerts/{id}", h.HandleGetAlert)
	mux.HandleFunc("PATCH /v1/alerts/{id}", h.HandlePatchAlert)
	mux.HandleFunc("GET /v1/logs", h.HandleListLogs)
	mux.HandleFunc("GET /health", h.HandleHealth)
}

// HandleListAlerts returns alerts with overrides applied.
func (h *Handler) HandleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 200)

	alerts, err := h.service.ListAlerts(r.Context(), limit)
	if err != nil {
		h.logger.Error("list alerts failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal", "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []storage.Alert{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// HandleGetAlert returns one alert by id.
func (h *Handler) HandleGetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.service.GetAlert(r.Context(), r.PathValue("id"))
	if storage.IsNotFound(err) {
		h.writeError(w, http.StatusNotFound, "not_found", "alert not found")
		return
	}
	if err != nil {
		h.logger.Error("get alert failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal", "failed to load alert")
		return
	}

	h.writeJSON(w, http.StatusOK, alert)
}

// HandlePatchAlert applies an analyst override and returns the
// reconciled alert.
func (h *Handler) HandlePatchAlert(w http.ResponseWriter, r *http.Request) {
	var req serving.OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	alert, err := h.service.ApplyOverride(r.Context(), r.PathValue("id"), req)
	if storage.IsNotFound(err) {
		h.writeError(w, http.StatusNotFound, "not_found", "alert not found")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, alert)
}

// HandleListLogs returns published log entries.
func (h *Handler) HandleListLogs(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 500)

	logs, err := h.service.ListLogs(r.Context(), limit)
	if err != nil {
		h.logger.Error("list logs failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal", "failed to list logs")
		return
	}
	if logs == nil {
		logs = []storage.LogEntry{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"logs":  logs,
		"count": len(logs),
	})
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > 5000 {
		return def
	}
	return limit
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}
