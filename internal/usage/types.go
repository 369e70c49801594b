package usage

import (
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/playtime/internal/presence"
	"github.com/goodtune/playtime/internal/storage"
)

const (
	// DefaultMinSessionDuration is the shortest session that is counted
	DefaultMinSessionDuration = 60 * time.Second

	DefaultRetryInitialInterval = 500 * time.Millisecond
	DefaultRetryMaxInterval     = 30 * time.Second
	DefaultRetryMaxElapsedTime  = 5 * time.Minute
)

// ErrWriteFailed is returned when a closed session could not be persisted.
var ErrWriteFailed = errors.New("usage: write failed")

// Config holds aggregator configuration
type Config struct {
	MinSessionDuration time.Duration
	Retry              RetryConfig
}

// RetryConfig bounds the exponential backoff for durable writes.
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

func (c *Config) applyDefaults() {
	if c.MinSessionDuration == 0 {
		c.MinSessionDuration = DefaultMinSessionDuration
	}
	if c.Retry.InitialInterval == 0 {
		c.Retry.InitialInterval = DefaultRetryInitialInterval
	}
	if c.Retry.MaxInterval == 0 {
		c.Retry.MaxInterval = DefaultRetryMaxInterval
	}
	if c.Retry.MaxElapsedTime == 0 {
		c.Retry.MaxElapsedTime = DefaultRetryMaxElapsedTime
	}
}

// Outcome describes what happened to one closed session.
type Outcome struct {
	Suppressed bool
	Elapsed    time.Duration
	Minutes    int64
	Record     *storage.UsageRecord
}

// EntryID derives the log entry id for a session. The same session always
// maps to the same id, which lets storage ignore replays.
func EntryID(cs presence.ClosedSession) string {
	return fmt.Sprintf("%d:%d:%s", cs.StartedAt.UnixNano(), uint64(cs.SubjectID), cs.Label)
}

// LeaderboardEntry is one subject's standing for a label.
type LeaderboardEntry struct {
	Rank      int    `json:"rank"`
	SubjectID uint64 `json:"subject_id"`
	Minutes   int64  `json:"minutes"`
}
