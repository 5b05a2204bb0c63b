package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/yardwatch/internal/console/service"
	"github.com/xela07ax/yardwatch/internal/domain"
	"github.com/xela07ax/yardwatch/internal/infra/auth"
	"go.uber.org/zap"
)

type OverrideHandler struct {
	service *service.OverrideService
	logger  *zap.Logger
}

func NewOverrideHandler(s *service.OverrideService, logger *zap.Logger) *OverrideHandler {
	return &OverrideHandler{service: s, logger: logger}
}

type setOverrideRequest struct {
	Status string `json:"status"`
}

// List — GET /v1/overrides
func (h *OverrideHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list overrides failed", zap.Error(err))
		http.Error(w, "Failed to fetch overrides", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []domain.Override{}
	}
	writeJSON(w, http.StatusOK, list)
}

// Put — PUT /v1/overrides/{trackID}
func (h *OverrideHandler) Put(w http.ResponseWriter, r *http.Request) {
	trackID, ok := trackIDParam(w, r)
	if !ok {
		return
	}

	var req setOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	o, err := h.service.Set(r.Context(), trackID, req.Status, operator(r))
	switch {
	case errors.Is(err, domain.ErrInvalidStatus):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Error("set override failed", zap.Int64("track_id", trackID), zap.Error(err))
		http.Error(w, "Failed to set override", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// Delete — DELETE /v1/overrides/{trackID}
func (h *OverrideHandler) Delete(w http.ResponseWriter, r *http.Request) {
	trackID, ok := trackIDParam(w, r)
	if !ok {
		return
	}

	err := h.service.Clear(r.Context(), trackID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "Override not found", http.StatusNotFound)
		return
	case err != nil:
		h.logger.Error("clear override failed", zap.Int64("track_id", trackID), zap.Error(err))
		http.Error(w, "Failed to clear override", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func trackIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "trackID"), 10, 64)
	if err != nil {
		http.Error(w, "trackID must be an integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func operator(r *http.Request) string {
	if c, ok := auth.ClaimsFromContext(r.Context()); ok {
		if c.Username != "" {
			return c.Username
		}
		return c.UserID
	}
	return ""
}
