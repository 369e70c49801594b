package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/goodtune/playtime/internal/activity"
	"github.com/goodtune/playtime/internal/api"
	"github.com/goodtune/playtime/internal/config"
	"github.com/goodtune/playtime/internal/storage"
	"github.com/goodtune/playtime/internal/storage/bolt"
	redisstore "github.com/goodtune/playtime/internal/storage/redis"
	"github.com/goodtune/playtime/internal/storage/sqlite"
	"github.com/goodtune/playtime/internal/usage"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
	serverURL  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "playtime",
	Short: "Playtime - presence session tracking and usage aggregation",
	Long: `Playtime watches presence notifications, times how long each subject spends
in each tracked activity, and keeps durable per-activity totals with a full
history of every recorded session.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to server command when no subcommand is provided
		return runServer(cmd, args)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to configuration file")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// quietLogger is used by the read-only commands so their output stays clean.
func quietLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// openStore opens the configured storage backend.
func openStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "redis":
		store, err := redisstore.Open(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to open redis storage: %w", err)
		}
		return store, nil
	case "sqlite":
		store, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		return store, nil
	case "bolt", "":
		store, err := bolt.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open bolt storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type: %q", cfg.Type)
	}
}

// newFilter builds the activity filter from tracking configuration.
func newFilter(cfg config.TrackingConfig) *activity.Filter {
	kinds := make([]activity.Kind, 0, len(cfg.EligibleKinds))
	for _, k := range cfg.EligibleKinds {
		kinds = append(kinds, activity.ParseKind(k))
	}
	return activity.NewFilter(cfg.Denylist, kinds)
}

// newRecordCache returns nil when caching is disabled.
func newRecordCache(cfg config.CacheConfig) *usage.RecordCache {
	if cfg.Size <= 0 {
		return nil
	}
	return usage.NewRecordCache(cfg.Size, parseDuration(cfg.TTL, time.Minute))
}

// usageReader answers the read-only commands. *usage.Stats reads storage
// directly and *api.Client asks a running server.
type usageReader interface {
	Record(ctx context.Context, label string) (*storage.UsageRecord, error)
	UserMinutes(ctx context.Context, label string, subject uint64) (int64, bool, error)
	Leaderboard(ctx context.Context, label string, n int) ([]usage.LeaderboardEntry, error)
	History(ctx context.Context, filter storage.LogFilter) ([]storage.LogEntry, error)
	SearchLabels(ctx context.Context, query string, limit int) ([]string, error)
}

// serverPingTimeout bounds the check for a running server.
const serverPingTimeout = 2 * time.Second

// addServerFlag registers --server on a read-only command.
func addServerFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&serverURL, "server", "", "Playtime API URL (default: the local server on server.api_port, falling back to storage)")
}

// openReader loads configuration and returns a reader for a read-only
// command. The caller must call the returned func when done.
func openReader(ctx context.Context) (usageReader, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return newUsageReader(ctx, cfg, serverURL)
}

// newUsageReader prefers a running server, since the server holds the bolt
// file lock for its lifetime. An explicit server must answer. Otherwise the
// local API is tried when enabled and storage is opened when it is not
// reachable.
func newUsageReader(ctx context.Context, cfg *config.Config, server string) (usageReader, func(), error) {
	explicit := server != ""
	if !explicit && cfg.Server.APIEnabled {
		server = localAPIURL(cfg.Server)
	}

	if server != "" {
		client, err := api.NewClient(server, nil)
		if err != nil {
			return nil, nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, serverPingTimeout)
		err = client.Ping(pingCtx)
		cancel()
		if err == nil {
			return client, func() {}, nil
		}
		if explicit {
			return nil, nil, fmt.Errorf("playtime server at %s is not reachable: %w", server, err)
		}
	}

	store, err := openStore(cfg.Storage)
	if err != nil {
		if cfg.Storage.Type == "bolt" || cfg.Storage.Type == "" {
			return nil, nil, fmt.Errorf("%w (if the server is running, enable server.api_enabled or pass --server)", err)
		}
		return nil, nil, err
	}
	return usage.NewStats(store.Usage(), nil, quietLogger()), func() { _ = store.Close() }, nil
}

// localAPIURL maps a wildcard bind address to loopback.
func localAPIURL(cfg config.ServerConfig) string {
	host := cfg.BindAddress
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.APIPort))
}
