package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/playtime/internal/api"
	"github.com/goodtune/playtime/internal/config"
	"github.com/goodtune/playtime/internal/feed"
	"github.com/goodtune/playtime/internal/metrics"
	"github.com/goodtune/playtime/internal/presence"
	redisstore "github.com/goodtune/playtime/internal/storage/redis"
	"github.com/goodtune/playtime/internal/systemd"
	"github.com/goodtune/playtime/internal/usage"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start Playtime server",
	Long:  `Start the Playtime server: consume the presence feed, record sessions, and serve the API and metrics endpoints.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting Playtime")

	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	store, err := openStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("path", cfg.Storage.Path).
		Msg("Storage initialized")

	cache := newRecordCache(cfg.Cache)
	aggregator := usage.NewAggregator(
		store.Usage(),
		usage.Config{
			MinSessionDuration: parseDuration(cfg.Tracking.MinSessionDuration, usage.DefaultMinSessionDuration),
			Retry: usage.RetryConfig{
				InitialInterval: parseDuration(cfg.Tracking.WriteRetry.InitialInterval, usage.DefaultRetryInitialInterval),
				MaxInterval:     parseDuration(cfg.Tracking.WriteRetry.MaxInterval, usage.DefaultRetryMaxInterval),
				MaxElapsedTime:  parseDuration(cfg.Tracking.WriteRetry.MaxElapsedTime, usage.DefaultRetryMaxElapsedTime),
			},
		},
		logger,
		usage.WithRecordCache(cache),
	)
	dispatcher := usage.NewDispatcher(aggregator, cfg.Tracking.QueueSize, logger)

	sessions := presence.NewSessionStore()
	handler := presence.NewHandler(sessions, newFilter(cfg.Tracking), dispatcher, logger)
	stats := usage.NewStats(store.Usage(), cache, logger)

	logger.Info().
		Strs("denylist", cfg.Tracking.Denylist).
		Strs("eligible_kinds", cfg.Tracking.EligibleKinds).
		Str("min_session_duration", cfg.Tracking.MinSessionDuration).
		Msg("Presence tracking initialized")

	// One redis client serves both the feed and the status publisher.
	var feedClient *redis.Client
	if cfg.Feed.Type == "redis" || (cfg.Reporter.Enabled && cfg.Reporter.Channel != "") {
		feedClient, err = redisstore.NewClient(cfg.Feed.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to feed redis: %w", err)
		}
		defer func() { _ = feedClient.Close() }()
	}

	source, closeSource, err := newSource(cfg.Feed, feedClient, handler, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feedDone := make(chan error, 1)
	go func() {
		feedDone <- source.Run(ctx)
	}()

	var reporter *usage.Reporter
	if cfg.Reporter.Enabled {
		var publisher usage.Publisher = usage.LogPublisher{Logger: logger}
		if feedClient != nil && cfg.Reporter.Channel != "" {
			publisher = feed.NewRedisPublisher(feedClient, cfg.Reporter.Channel)
		}
		reporter = usage.NewReporter(stats, publisher, usage.ReporterConfig{
			Label:    cfg.Reporter.Label,
			Interval: parseDuration(cfg.Reporter.Interval, usage.DefaultReportInterval),
			Template: cfg.Reporter.Template,
		}, logger)
		reporter.Start(ctx)
	}

	var apiServer *api.Server
	if cfg.Server.APIEnabled {
		apiAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort)
		apiServer = api.NewServer(apiAddr, stats, sessions, logger)
		if sdListeners.Activated && sdListeners.API != nil {
			apiServer.SetListener(sdListeners.API)
		}
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API Server: %w", err)
		}
	}

	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, logger)
	if sdListeners.Activated && sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}
	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start Metrics Server: %w", err)
	}

	logger.Info().Msg("Playtime startup complete")
	logger.Info().Msgf("Feed: %s", cfg.Feed.Type)
	if apiServer != nil {
		logger.Info().Msgf("API: http://%s:%d/api", cfg.Server.BindAddress, cfg.Server.APIPort)
	}
	logger.Info().Msgf("Metrics: http://%s:%d/metrics", cfg.Server.BindAddress, cfg.Server.MetricsPort)

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}
	startWatchdog(ctx, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received, gracefully stopping...")
	case err := <-feedDone:
		feedDone = nil
		if err != nil {
			logger.Error().Err(err).Msg("Presence feed failed")
			runErr = err
		} else {
			logger.Info().Msg("Presence feed finished")
		}
	}

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	cancel()
	if feedDone != nil {
		<-feedDone
	}

	// Sessions still open at shutdown are closed now so their time is kept.
	flushOpenSessions(handler, logger)
	dispatcher.Close()

	if reporter != nil {
		reporter.Stop()
	}

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping API Server")
		}
	}

	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping Metrics Server")
	}

	if failures := dispatcher.Failures(); failures > 0 {
		logger.Warn().Int64("failures", failures).Msg("Some sessions could not be recorded")
	}
	logger.Info().Msg("Playtime stopped")
	return runErr
}

// newSource builds the configured presence feed. The returned func releases
// anything the source opened.
func newSource(cfg config.FeedConfig, client *redis.Client, handler feed.EventHandler, logger zerolog.Logger) (feed.Source, func(), error) {
	switch cfg.Type {
	case "redis":
		return feed.NewRedisSource(client, cfg.Channel, handler, logger), func() {}, nil
	case "stdin":
		if cfg.Path == "" || cfg.Path == "-" {
			return feed.NewReaderSource(os.Stdin, handler, logger), func() {}, nil
		}
		f, err := os.Open(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open feed file: %w", err)
		}
		return feed.NewReaderSource(f, handler, logger), func() { _ = f.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown feed type: %q", cfg.Type)
	}
}

// flushOpenSessions closes every open session at the current time.
func flushOpenSessions(handler *presence.Handler, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	open := handler.Store().Len()
	if open == 0 {
		return
	}
	if err := handler.CloseAll(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to flush open sessions")
		return
	}
	logger.Info().Int("sessions", open).Msg("Flushed open sessions")
}

func startWatchdog(ctx context.Context, logger zerolog.Logger) {
	interval, err := systemd.WatchdogInterval()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read systemd watchdog settings")
		return
	}
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := systemd.NotifyWatchdog(); err != nil {
					logger.Warn().Err(err).Msg("Failed to send systemd watchdog notification")
				}
			}
		}
	}()
}
