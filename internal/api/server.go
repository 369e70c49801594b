// Package api serves a read-only JSON view of recorded usage and open sessions.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/goodtune/playtime/internal/presence"
	"github.com/goodtune/playtime/internal/usage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Server is the API HTTP server.
type Server struct {
	server   *http.Server
	router   *mux.Router
	listener net.Listener
	logger   zerolog.Logger
}

// NewServer creates a new API server listening on addr.
func NewServer(addr string, stats *usage.Stats, sessions *presence.SessionStore, logger zerolog.Logger) *Server {
	router := mux.NewRouter().UseEncodedPath()

	s := &Server{
		router: router,
		logger: logger.With().Str("component", "api").Logger(),
	}
	s.setupRoutes(stats, sessions)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes(stats *usage.Stats, sessions *presence.SessionStore) {
	s.router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
	}).Methods("GET")

	records := NewRecordsHandler(stats, s.logger)
	s.router.HandleFunc("/api/records", records.List).Methods("GET")
	s.router.HandleFunc("/api/records/{label}", records.Get).Methods("GET")
	s.router.HandleFunc("/api/records/{label}/leaderboard", records.Leaderboard).Methods("GET")
	s.router.HandleFunc("/api/records/{label}/users/{subject}", records.UserMinutes).Methods("GET")
	s.router.HandleFunc("/api/labels", records.Labels).Methods("GET")

	history := NewHistoryHandler(stats, s.logger)
	s.router.HandleFunc("/api/log", history.Query).Methods("GET")

	open := NewSessionsHandler(sessions, s.logger)
	s.router.HandleFunc("/api/sessions", open.List).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "No such endpoint")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetListener sets a pre-created listener for systemd socket activation.
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start serves in the background.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting API server")

	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated API listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}

	return nil
}
