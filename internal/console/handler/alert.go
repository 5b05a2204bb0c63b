package handler

import (
	"net/http"
	"strconv"

	"github.com/xela07ax/yardwatch/internal/console/service"
	"github.com/xela07ax/yardwatch/internal/domain"
	"go.uber.org/zap"
)

type AlertHandler struct {
	service *service.AlertService
	logger  *zap.Logger
}

func NewAlertHandler(s *service.AlertService, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{service: s, logger: logger}
}

// List — архив алертов с фильтрацией.
// GET /v1/alerts?level=high&track_id=7&limit=50
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f domain.AlertFilter

	switch lvl := domain.AlertLevel(q.Get("level")); lvl {
	case "", domain.AlertLow, domain.AlertMedium, domain.AlertHigh:
		f.Level = lvl
	default:
		http.Error(w, "unknown level", http.StatusBadRequest)
		return
	}
	if raw := q.Get("track_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "track_id must be an integer", http.StatusBadRequest)
			return
		}
		f.TrackID = &id
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		f.Limit = n
	}

	records, err := h.service.List(r.Context(), f)
	if err != nil {
		h.logger.Error("list alerts failed", zap.Error(err))
		http.Error(w, "Failed to fetch alerts", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
