package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/goodtune/playtime/internal/storage"
	"github.com/goodtune/playtime/internal/usage"
	"github.com/rs/zerolog"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// HistoryHandler serves the append-only usage log.
type HistoryHandler struct {
	stats  *usage.Stats
	logger zerolog.Logger
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(stats *usage.Stats, logger zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{
		stats:  stats,
		logger: logger.With().Str("handler", "history").Logger(),
	}
}

// Query returns log entries filtered by subject, label and since (RFC3339).
func (h *HistoryHandler) Query(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := storage.LogFilter{Label: query.Get("label")}

	if subjectStr := query.Get("subject"); subjectStr != "" {
		subject, err := strconv.ParseUint(subjectStr, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid subject parameter")
			return
		}
		filter.SubjectID = subject
	}

	if sinceStr := query.Get("since"); sinceStr != "" {
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid since parameter (expected RFC3339)")
			return
		}
		filter.Since = &since
	}

	limit, ok := parseLimit(query.Get("limit"), defaultHistoryLimit, maxHistoryLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid limit parameter")
		return
	}
	filter.Limit = limit

	entries, err := h.stats.History(r.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to query usage log")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}
