package main

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/playtime/internal/config"
	"github.com/spf13/cobra"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the Playtime configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "❌ Configuration validation failed: %v\n", err)
		return err
	}

	// Check for unknown keys (always, not just with -dump)
	unknownKeys, err := config.UnknownKeys(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "✅ Configuration is valid: %s\n", configPath)

	printUnknownKeys(os.Stdout, unknownKeys)

	if validateDump {
		_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
		_, _ = fmt.Fprintln(os.Stdout, "FULL CONFIGURATION (values different from defaults are highlighted)")
		_, _ = fmt.Fprintln(os.Stdout, strings.Repeat("=", 80))

		dumpConfig(os.Stdout, cfg, config.Defaults())
	}

	return nil
}

func printUnknownKeys(w io.Writer, unknownKeys []string) {
	if len(unknownKeys) == 0 {
		return
	}
	red := color.New(color.FgRed, color.Bold)
	_, _ = fmt.Fprintln(w)
	_, _ = red.Fprintf(w, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
	for _, key := range unknownKeys {
		_, _ = red.Fprintf(w, "   - %s\n", key)
	}
	_, _ = fmt.Fprintln(w, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
}

// dumpConfig dumps configuration with color highlighting for non-default values
func dumpConfig(w io.Writer, cfg, defaultCfg *config.Config) {
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan, color.Bold)

	field := func(name string, value, defaultValue interface{}) {
		dumpField(w, name, value, defaultValue, yellow, green)
	}

	_, _ = cyan.Fprintln(w, "\n[server]")
	field("  bind_address", cfg.Server.BindAddress, defaultCfg.Server.BindAddress)
	field("  metrics_port", cfg.Server.MetricsPort, defaultCfg.Server.MetricsPort)
	field("  api_port", cfg.Server.APIPort, defaultCfg.Server.APIPort)
	field("  api_enabled", cfg.Server.APIEnabled, defaultCfg.Server.APIEnabled)

	_, _ = cyan.Fprintln(w, "\n[storage]")
	field("  type", cfg.Storage.Type, defaultCfg.Storage.Type)
	field("  path", cfg.Storage.Path, defaultCfg.Storage.Path)
	_, _ = cyan.Fprintln(w, "  [storage.redis]")
	dumpRedis(w, "    ", cfg.Storage.Redis, defaultCfg.Storage.Redis, yellow, green)

	_, _ = cyan.Fprintln(w, "\n[logging]")
	field("  level", cfg.Logging.Level, defaultCfg.Logging.Level)
	field("  format", cfg.Logging.Format, defaultCfg.Logging.Format)

	_, _ = cyan.Fprintln(w, "\n[tracking]")
	field("  denylist", cfg.Tracking.Denylist, defaultCfg.Tracking.Denylist)
	field("  eligible_kinds", cfg.Tracking.EligibleKinds, defaultCfg.Tracking.EligibleKinds)
	field("  min_session_duration", cfg.Tracking.MinSessionDuration, defaultCfg.Tracking.MinSessionDuration)
	field("  queue_size", cfg.Tracking.QueueSize, defaultCfg.Tracking.QueueSize)
	_, _ = cyan.Fprintln(w, "  [tracking.write_retry]")
	field("    initial_interval", cfg.Tracking.WriteRetry.InitialInterval, defaultCfg.Tracking.WriteRetry.InitialInterval)
	field("    max_interval", cfg.Tracking.WriteRetry.MaxInterval, defaultCfg.Tracking.WriteRetry.MaxInterval)
	field("    max_elapsed_time", cfg.Tracking.WriteRetry.MaxElapsedTime, defaultCfg.Tracking.WriteRetry.MaxElapsedTime)

	_, _ = cyan.Fprintln(w, "\n[feed]")
	field("  type", cfg.Feed.Type, defaultCfg.Feed.Type)
	field("  channel", cfg.Feed.Channel, defaultCfg.Feed.Channel)
	field("  path", cfg.Feed.Path, defaultCfg.Feed.Path)
	_, _ = cyan.Fprintln(w, "  [feed.redis]")
	dumpRedis(w, "    ", cfg.Feed.Redis, defaultCfg.Feed.Redis, yellow, green)

	_, _ = cyan.Fprintln(w, "\n[reporter]")
	field("  enabled", cfg.Reporter.Enabled, defaultCfg.Reporter.Enabled)
	field("  label", cfg.Reporter.Label, defaultCfg.Reporter.Label)
	field("  interval", cfg.Reporter.Interval, defaultCfg.Reporter.Interval)
	field("  template", cfg.Reporter.Template, defaultCfg.Reporter.Template)
	field("  channel", cfg.Reporter.Channel, defaultCfg.Reporter.Channel)

	_, _ = cyan.Fprintln(w, "\n[cache]")
	field("  size", cfg.Cache.Size, defaultCfg.Cache.Size)
	field("  ttl", cfg.Cache.TTL, defaultCfg.Cache.TTL)

	_, _ = fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
}

func dumpRedis(w io.Writer, indent string, cfg, defaultCfg config.RedisConfig, modifiedColor, defaultColor *color.Color) {
	dumpField(w, indent+"host", cfg.Host, defaultCfg.Host, modifiedColor, defaultColor)
	dumpField(w, indent+"port", cfg.Port, defaultCfg.Port, modifiedColor, defaultColor)
	dumpField(w, indent+"password", redactPassword(cfg.Password), redactPassword(defaultCfg.Password), modifiedColor, defaultColor)
	dumpField(w, indent+"db", cfg.DB, defaultCfg.DB, modifiedColor, defaultColor)
	dumpField(w, indent+"pool_size", cfg.PoolSize, defaultCfg.PoolSize, modifiedColor, defaultColor)
	dumpField(w, indent+"min_idle_conns", cfg.MinIdleConns, defaultCfg.MinIdleConns, modifiedColor, defaultColor)
	dumpField(w, indent+"dial_timeout", cfg.DialTimeout, defaultCfg.DialTimeout, modifiedColor, defaultColor)
	dumpField(w, indent+"read_timeout", cfg.ReadTimeout, defaultCfg.ReadTimeout, modifiedColor, defaultColor)
	dumpField(w, indent+"write_timeout", cfg.WriteTimeout, defaultCfg.WriteTimeout, modifiedColor, defaultColor)
}

// dumpField prints a field with color if it differs from default
func dumpField(w io.Writer, name string, value, defaultValue interface{}, modifiedColor, defaultColor *color.Color) {
	isDefault := reflect.DeepEqual(value, defaultValue)

	valueStr := fmt.Sprintf("%v", value)

	if isDefault {
		_, _ = defaultColor.Fprintf(w, "%s = %s\n", name, valueStr)
	} else {
		_, _ = modifiedColor.Fprintf(w, "%s = %s  (modified from default: %v)\n", name, valueStr, defaultValue)
	}
}

// redactPassword redacts password if not empty
func redactPassword(password string) string {
	if password == "" {
		return ""
	}
	return "***REDACTED***"
}
