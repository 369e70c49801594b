package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Presence metrics
	PresenceEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playtime_presence_events_total",
			Help: "Total presence notifications handled",
		},
		[]string{"result"},
	)

	SessionsOpenedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playtime_sessions_opened_total",
			Help: "Total tracked sessions opened",
		},
	)

	SessionsClosedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playtime_sessions_closed_total",
			Help: "Total tracked sessions closed",
		},
	)

	OpenSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "playtime_open_sessions",
			Help: "Number of sessions currently being timed",
		},
	)

	// Usage metrics
	SessionsSuppressedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playtime_sessions_suppressed_total",
			Help: "Closed sessions dropped for being shorter than the minimum duration",
		},
	)

	MinutesRecordedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playtime_usage_minutes_recorded_total",
			Help: "Total usage minutes committed to storage",
		},
	)

	WriteRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playtime_usage_write_retries_total",
			Help: "Failed usage write attempts that were retried",
		},
	)

	WriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playtime_usage_write_failures_total",
			Help: "Usage writes abandoned after retries were exhausted",
		},
	)

	RecordCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playtime_record_cache_lookups_total",
			Help: "Usage record cache lookups",
		},
		[]string{"result"},
	)

	// Feed metrics
	FeedMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playtime_feed_messages_total",
			Help: "Total feed messages received",
		},
		[]string{"source", "result"},
	)

	ReportsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playtime_reports_published_total",
			Help: "Status reports published",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		PresenceEventsTotal,
		SessionsOpenedTotal,
		SessionsClosedTotal,
		OpenSessions,
		SessionsSuppressedTotal,
		MinutesRecordedTotal,
		WriteRetriesTotal,
		WriteFailuresTotal,
		RecordCacheLookups,
		FeedMessagesTotal,
		ReportsPublishedTotal,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // pre-created listener for socket activation
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Handler returns the HTTP handler serving /metrics and /health.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
