package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/goodtune/playtime/internal/presence"
	"github.com/rs/zerolog"
)

// SessionsHandler exposes the in-memory open sessions.
type SessionsHandler struct {
	store  *presence.SessionStore
	now    func() time.Time
	logger zerolog.Logger
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(store *presence.SessionStore, logger zerolog.Logger) *SessionsHandler {
	return &SessionsHandler{
		store:  store,
		now:    time.Now,
		logger: logger.With().Str("handler", "sessions").Logger(),
	}
}

type openSession struct {
	SubjectID      uint64    `json:"subject_id"`
	Label          string    `json:"label"`
	StartedAt      time.Time `json:"started_at"`
	ElapsedSeconds int64     `json:"elapsed_seconds"`
}

// List returns every open session, ordered by subject then start time.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	snapshot := h.store.Snapshot()

	sessions := make([]openSession, 0, len(snapshot))
	for subject, open := range snapshot {
		for _, s := range open {
			sessions = append(sessions, openSession{
				SubjectID:      uint64(subject),
				Label:          s.Label,
				StartedAt:      s.StartedAt,
				ElapsedSeconds: int64(now.Sub(s.StartedAt).Seconds()),
			})
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].SubjectID != sessions[j].SubjectID {
			return sessions[i].SubjectID < sessions[j].SubjectID
		}
		if !sessions[i].StartedAt.Equal(sessions[j].StartedAt) {
			return sessions[i].StartedAt.Before(sessions[j].StartedAt)
		}
		return sessions[i].Label < sessions[j].Label
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
		"subjects": len(snapshot),
	})
}
