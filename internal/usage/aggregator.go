package usage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goodtune/playtime/internal/metrics"
	"github.com/goodtune/playtime/internal/presence"
	"github.com/goodtune/playtime/internal/storage"
	"github.com/rs/zerolog"
)

// Aggregator converts closed sessions into durable minute totals.
type Aggregator struct {
	store  storage.UsageStore
	cache  *RecordCache
	config Config
	logger zerolog.Logger
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithRecordCache writes committed records through to cache.
func WithRecordCache(cache *RecordCache) AggregatorOption {
	return func(a *Aggregator) {
		a.cache = cache
	}
}

// NewAggregator creates a new usage aggregator
func NewAggregator(store storage.UsageStore, config Config, logger zerolog.Logger, opts ...AggregatorOption) *Aggregator {
	config.applyDefaults()

	a := &Aggregator{
		store:  store,
		config: config,
		logger: logger.With().Str("component", "usage-aggregator").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Minutes converts an elapsed duration into whole minutes, rounding halves to even.
func Minutes(elapsed time.Duration) int64 {
	return int64(math.RoundToEven(elapsed.Seconds() / 60))
}

// SessionClosed implements presence.Sink.
func (a *Aggregator) SessionClosed(ctx context.Context, cs presence.ClosedSession) error {
	_, err := a.Record(ctx, cs)
	return err
}

// Record persists one closed session unless it is shorter than the minimum duration.
func (a *Aggregator) Record(ctx context.Context, cs presence.ClosedSession) (Outcome, error) {
	elapsed := cs.Elapsed()
	outcome := Outcome{Elapsed: elapsed}

	if elapsed < 0 || elapsed < a.config.MinSessionDuration {
		outcome.Suppressed = true
		metrics.SessionsSuppressedTotal.Inc()
		a.logger.Debug().
			Uint64("subject_id", uint64(cs.SubjectID)).
			Str("label", cs.Label).
			Dur("elapsed", elapsed).
			Msg("Session below minimum duration, not recorded")
		return outcome, nil
	}

	outcome.Minutes = Minutes(elapsed)
	entry := storage.LogEntry{
		ID:           EntryID(cs),
		Label:        cs.Label,
		SubjectID:    uint64(cs.SubjectID),
		OccurredAt:   cs.ClosedAt,
		MinutesAdded: outcome.Minutes,
	}

	record, err := a.write(ctx, entry)
	if err != nil {
		metrics.WriteFailuresTotal.Inc()
		a.logger.Error().
			Err(err).
			Uint64("subject_id", uint64(cs.SubjectID)).
			Str("label", cs.Label).
			Int64("minutes", outcome.Minutes).
			Time("started_at", cs.StartedAt).
			Time("closed_at", cs.ClosedAt).
			Msg("Failed to record usage")
		return outcome, fmt.Errorf("%w: subject %d label %q: %w", ErrWriteFailed, cs.SubjectID, cs.Label, err)
	}

	outcome.Record = record
	if a.cache != nil {
		a.cache.Add(*record)
	}
	metrics.MinutesRecordedTotal.Add(float64(outcome.Minutes))

	a.logger.Info().
		Uint64("subject_id", uint64(cs.SubjectID)).
		Str("label", cs.Label).
		Int64("minutes", outcome.Minutes).
		Int64("overall_minutes", record.OverallMinutes).
		Msg("Usage recorded")

	return outcome, nil
}

func (a *Aggregator) write(ctx context.Context, entry storage.LogEntry) (*storage.UsageRecord, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = a.config.Retry.InitialInterval
	eb.MaxInterval = a.config.Retry.MaxInterval
	eb.MaxElapsedTime = a.config.Retry.MaxElapsedTime
	bkoff := backoff.WithContext(eb, ctx)

	var record *storage.UsageRecord
	op := func() error {
		r, err := a.store.RecordSession(ctx, entry)
		if err != nil {
			if errors.Is(err, storage.ErrInvalidEntry) {
				return backoff.Permanent(err)
			}
			return err
		}
		record = r
		return nil
	}
	notify := func(err error, next time.Duration) {
		metrics.WriteRetriesTotal.Inc()
		a.logger.Warn().
			Err(err).
			Str("entry_id", entry.ID).
			Dur("retry_in", next).
			Msg("Usage write failed, retrying")
	}

	if err := backoff.RetryNotify(op, bkoff, notify); err != nil {
		return nil, err
	}
	return record, nil
}
