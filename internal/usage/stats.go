package usage

import (
	"context"
	"sort"
	"strings"

	"github.com/goodtune/playtime/internal/storage"
	"github.com/rs/zerolog"
)

// Stats answers read-side questions about recorded usage.
type Stats struct {
	store  storage.UsageStore
	cache  *RecordCache
	logger zerolog.Logger
}

// NewStats creates a stats reader. cache may be nil.
func NewStats(store storage.UsageStore, cache *RecordCache, logger zerolog.Logger) *Stats {
	return &Stats{
		store:  store,
		cache:  cache,
		logger: logger.With().Str("component", "usage-stats").Logger(),
	}
}

// Record returns the usage record for label or storage.ErrNotFound.
func (s *Stats) Record(ctx context.Context, label string) (*storage.UsageRecord, error) {
	if s.cache == nil {
		return s.store.GetRecord(ctx, label)
	}
	if record, ok := s.cache.Get(label); ok {
		return &record, nil
	}

	version := s.cache.Version()
	record, err := s.store.GetRecord(ctx, label)
	if err != nil {
		return nil, err
	}
	s.cache.Fill(*record, version)
	return record, nil
}

// Records returns every usage record ordered by label.
func (s *Stats) Records(ctx context.Context) ([]storage.UsageRecord, error) {
	return s.store.ListRecords(ctx)
}

// UserMinutes returns the minutes subject has accumulated on label. The
// boolean is false when the subject has never been recorded for it.
func (s *Stats) UserMinutes(ctx context.Context, label string, subject uint64) (int64, bool, error) {
	record, err := s.Record(ctx, label)
	if err != nil {
		return 0, false, err
	}
	minutes, ok := record.UserMinutes(subject)
	return minutes, ok, nil
}

// Leaderboard ranks subjects on label by minutes, highest first, ties broken
// by subject id. n <= 0 returns every subject.
func (s *Stats) Leaderboard(ctx context.Context, label string, n int) ([]LeaderboardEntry, error) {
	record, err := s.Record(ctx, label)
	if err != nil {
		return nil, err
	}
	return rank(record, n), nil
}

func rank(record *storage.UsageRecord, n int) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(record.PerUserMinutes))
	for key, minutes := range record.PerUserMinutes {
		subject, err := storage.ParseSubjectKey(key)
		if err != nil {
			continue
		}
		entries = append(entries, LeaderboardEntry{SubjectID: subject, Minutes: minutes})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Minutes != entries[j].Minutes {
			return entries[i].Minutes > entries[j].Minutes
		}
		return entries[i].SubjectID < entries[j].SubjectID
	})

	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// History returns log entries matching filter, most recent first.
func (s *Stats) History(ctx context.Context, filter storage.LogFilter) ([]storage.LogEntry, error) {
	return s.store.QueryLog(ctx, filter)
}

// SearchLabels returns recorded labels containing query, case-insensitively,
// sorted by label. limit <= 0 returns every match.
func (s *Stats) SearchLabels(ctx context.Context, query string, limit int) ([]string, error) {
	records, err := s.store.ListRecords(ctx)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	labels := make([]string, 0)
	for _, record := range records {
		if needle != "" && !strings.Contains(strings.ToLower(record.Label), needle) {
			continue
		}
		labels = append(labels, record.Label)
	}
	sort.Strings(labels)

	if limit > 0 && len(labels) > limit {
		labels = labels[:limit]
	}
	return labels, nil
}
