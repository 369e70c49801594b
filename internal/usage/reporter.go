package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/goodtune/playtime/internal/metrics"
	"github.com/goodtune/playtime/internal/storage"
	"github.com/rs/zerolog"
)

const (
	DefaultReportInterval = 10 * time.Minute
	DefaultReportTemplate = "casino game: %s"
)

// Publisher delivers a status line somewhere visible.
type Publisher interface {
	Publish(ctx context.Context, text string) error
}

// LogPublisher writes status lines to the log.
type LogPublisher struct {
	Logger zerolog.Logger
}

// Publish logs text at info level.
func (p LogPublisher) Publish(_ context.Context, text string) error {
	p.Logger.Info().Str("status", text).Msg("Status report")
	return nil
}

// ReporterConfig holds reporter configuration
type ReporterConfig struct {
	Label    string
	Interval time.Duration
	Template string
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithReporterClock sets the clock driving the report ticker.
func WithReporterClock(clock quartz.Clock) ReporterOption {
	return func(r *Reporter) {
		r.clock = clock
	}
}

// Reporter periodically publishes the overall time recorded for one label.
type Reporter struct {
	stats     *Stats
	publisher Publisher
	config    ReporterConfig
	clock     quartz.Clock
	logger    zerolog.Logger
	stopChan  chan struct{}
	done      chan struct{}
}

// NewReporter creates a new status reporter
func NewReporter(stats *Stats, publisher Publisher, config ReporterConfig, logger zerolog.Logger, opts ...ReporterOption) *Reporter {
	if config.Interval <= 0 {
		config.Interval = DefaultReportInterval
	}
	if config.Template == "" {
		config.Template = DefaultReportTemplate
	}

	r := &Reporter{
		stats:     stats,
		publisher: publisher,
		config:    config,
		clock:     quartz.NewReal(),
		logger:    logger.With().Str("component", "reporter").Logger(),
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins reporting in the background
func (r *Reporter) Start(ctx context.Context) {
	go r.run(ctx)
	r.logger.Info().
		Str("label", r.config.Label).
		Dur("interval", r.config.Interval).
		Msg("Status reporter started")
}

// Stop stops the reporter and waits for it to exit
func (r *Reporter) Stop() {
	close(r.stopChan)
	<-r.done
	r.logger.Info().Msg("Status reporter stopped")
}

// run is the main reporter loop
func (r *Reporter) run(ctx context.Context) {
	defer close(r.done)

	ticker := r.clock.NewTicker(r.config.Interval, "reporter")
	defer ticker.Stop()

	r.Report(ctx)
	for {
		select {
		case <-ticker.C:
			r.Report(ctx)
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Report publishes the current total once. A label with no record yet is skipped.
func (r *Reporter) Report(ctx context.Context) {
	record, err := r.stats.Record(ctx, r.config.Label)
	if errors.Is(err, storage.ErrNotFound) {
		r.logger.Debug().Str("label", r.config.Label).Msg("No record to report yet")
		return
	}
	if err != nil {
		metrics.ReportsPublishedTotal.WithLabelValues("error").Inc()
		r.logger.Error().Err(err).Str("label", r.config.Label).Msg("Failed to read usage record")
		return
	}

	text := fmt.Sprintf(r.config.Template, FormatMinutes(record.OverallMinutes, false))
	if err := r.publisher.Publish(ctx, text); err != nil {
		metrics.ReportsPublishedTotal.WithLabelValues("error").Inc()
		r.logger.Error().Err(err).Str("status", text).Msg("Failed to publish status")
		return
	}
	metrics.ReportsPublishedTotal.WithLabelValues("ok").Inc()
}
