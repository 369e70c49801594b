package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/goodtune/playtime/internal/storage"
	"github.com/goodtune/playtime/internal/usage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const (
	defaultLeaderboardSize = 10
	maxLeaderboardSize     = 1000
	defaultLabelMatches    = 25
	maxLabelMatches        = 100
)

// RecordsHandler serves usage records, leaderboards and label search.
type RecordsHandler struct {
	stats  *usage.Stats
	logger zerolog.Logger
}

// NewRecordsHandler creates a new records handler.
func NewRecordsHandler(stats *usage.Stats, logger zerolog.Logger) *RecordsHandler {
	return &RecordsHandler{
		stats:  stats,
		logger: logger.With().Str("handler", "records").Logger(),
	}
}

// List returns every usage record.
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.stats.Records(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list usage records")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve records")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

// labelVar returns the decoded {label} route variable. The router matches on
// the escaped path, so labels may contain an encoded slash.
func labelVar(w http.ResponseWriter, r *http.Request) (string, bool) {
	label, err := url.PathUnescape(mux.Vars(r)["label"])
	if err != nil || label == "" {
		writeError(w, http.StatusBadRequest, "Invalid activity label")
		return "", false
	}
	return label, true
}

// Get returns the usage record for one label.
func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	label, ok := labelVar(w, r)
	if !ok {
		return
	}

	record, err := h.stats.Record(r.Context(), label)
	if err != nil {
		h.recordError(w, label, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"label":            record.Label,
		"overall_minutes":  record.OverallMinutes,
		"overall":          usage.FormatMinutes(record.OverallMinutes, false),
		"users":            len(record.PerUserMinutes),
		"per_user_minutes": record.PerUserMinutes,
	})
}

// Leaderboard returns the top subjects for one label.
func (h *RecordsHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	label, ok := labelVar(w, r)
	if !ok {
		return
	}

	limit, ok := parseLimit(r.URL.Query().Get("limit"), defaultLeaderboardSize, maxLeaderboardSize)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid limit parameter")
		return
	}

	entries, err := h.stats.Leaderboard(r.Context(), label, limit)
	if err != nil {
		h.recordError(w, label, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"label":   label,
		"entries": entries,
		"count":   len(entries),
	})
}

// UserMinutes returns one subject's minutes on one label.
func (h *RecordsHandler) UserMinutes(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	label, ok := labelVar(w, r)
	if !ok {
		return
	}

	subject, err := strconv.ParseUint(vars["subject"], 10, 64)
	if err != nil || subject == 0 {
		writeError(w, http.StatusBadRequest, "Invalid subject id")
		return
	}

	minutes, found, err := h.stats.UserMinutes(r.Context(), label, subject)
	if err != nil {
		h.recordError(w, label, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Subject %d has no time recorded for %s", subject, label))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"label":      label,
		"subject_id": subject,
		"minutes":    minutes,
		"formatted":  usage.FormatMinutes(minutes, false),
	})
}

// Labels returns recorded labels matching the q parameter.
func (h *RecordsHandler) Labels(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit, ok := parseLimit(query.Get("limit"), defaultLabelMatches, maxLabelMatches)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid limit parameter")
		return
	}

	labels, err := h.stats.SearchLabels(r.Context(), query.Get("q"), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to search labels")
		writeError(w, http.StatusInternalServerError, "Failed to search labels")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"labels": labels,
		"count":  len(labels),
	})
}

func (h *RecordsHandler) recordError(w http.ResponseWriter, label string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Activity `%s` has no available records.", label))
		return
	}
	h.logger.Error().Err(err).Str("label", label).Msg("Failed to get usage record")
	writeError(w, http.StatusInternalServerError, "Failed to retrieve record")
}
