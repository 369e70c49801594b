package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goodtune/playtime/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStats(t *testing.T) (*Stats, storage.UsageStore) {
	t.Helper()
	ctx := context.Background()
	store := openBolt(t)

	seed := []storage.LogEntry{
		{ID: "1", Label: "Poker", SubjectID: 3, OccurredAt: t0, MinutesAdded: 30},
		{ID: "2", Label: "Poker", SubjectID: 1, OccurredAt: t0.Add(time.Hour), MinutesAdded: 45},
		{ID: "3", Label: "Poker", SubjectID: 2, OccurredAt: t0.Add(2 * time.Hour), MinutesAdded: 30},
		{ID: "4", Label: "Chess", SubjectID: 1, OccurredAt: t0.Add(3 * time.Hour), MinutesAdded: 10},
		{ID: "5", Label: "Video Poker", SubjectID: 4, OccurredAt: t0.Add(4 * time.Hour), MinutesAdded: 5},
	}
	for _, e := range seed {
		_, err := store.RecordSession(ctx, e)
		require.NoError(t, err)
	}

	return NewStats(store, NewRecordCache(16, time.Minute), nop()), store
}

func TestStats_Leaderboard(t *testing.T) {
	stats, _ := seedStats(t)

	board, err := stats.Leaderboard(context.Background(), "Poker", 0)
	require.NoError(t, err)

	assert.Equal(t, []LeaderboardEntry{
		{Rank: 1, SubjectID: 1, Minutes: 45},
		{Rank: 2, SubjectID: 2, Minutes: 30},
		{Rank: 3, SubjectID: 3, Minutes: 30},
	}, board)

	top, err := stats.Leaderboard(context.Background(), "Poker", 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestStats_LeaderboardUnknownLabel(t *testing.T) {
	stats, _ := seedStats(t)

	_, err := stats.Leaderboard(context.Background(), "Backgammon", 10)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestStats_UserMinutes(t *testing.T) {
	stats, _ := seedStats(t)
	ctx := context.Background()

	minutes, ok, err := stats.UserMinutes(ctx, "Poker", 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(45), minutes)

	_, ok, err = stats.UserMinutes(ctx, "Poker", 99)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStats_RecordUsesCache(t *testing.T) {
	stats, store := seedStats(t)
	ctx := context.Background()

	first, err := stats.Record(ctx, "Chess")
	require.NoError(t, err)
	assert.Equal(t, int64(10), first.OverallMinutes)

	// A write that bypasses the cache is not visible until the entry expires.
	_, err = store.RecordSession(ctx, storage.LogEntry{ID: "6", Label: "Chess", SubjectID: 1, OccurredAt: t0, MinutesAdded: 1})
	require.NoError(t, err)

	cached, err := stats.Record(ctx, "Chess")
	require.NoError(t, err)
	assert.Equal(t, int64(10), cached.OverallMinutes)
}

func TestStats_History(t *testing.T) {
	stats, _ := seedStats(t)

	entries, err := stats.History(context.Background(), storage.LogFilter{SubjectID: 1})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Chess", entries[0].Label)
	assert.Equal(t, "Poker", entries[1].Label)
}

func TestStats_SearchLabels(t *testing.T) {
	stats, _ := seedStats(t)
	ctx := context.Background()

	tests := []struct {
		query string
		limit int
		want  []string
	}{
		{"poker", 0, []string{"Poker", "Video Poker"}},
		{"POK", 1, []string{"Poker"}},
		{"", 0, []string{"Chess", "Poker", "Video Poker"}},
		{"go", 0, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := stats.SearchLabels(ctx, tt.query, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecordCache(t *testing.T) {
	cache := NewRecordCache(2, time.Minute)

	_, ok := cache.Get("Chess")
	assert.False(t, ok)

	record := storage.NewUsageRecord("Chess")
	record.Apply(1, 5)
	cache.Add(record)

	got, ok := cache.Get("Chess")
	require.True(t, ok)
	got.PerUserMinutes["1"] = 999

	again, _ := cache.Get("Chess")
	assert.Equal(t, int64(5), again.PerUserMinutes["1"])

	cache.Add(storage.NewUsageRecord("Go"))
	cache.Add(storage.NewUsageRecord("Poker"))
	assert.Equal(t, 2, cache.Len())

	cache.Remove("Poker")
	_, ok = cache.Get("Poker")
	assert.False(t, ok)
}

func TestRecordCache_FillYieldsToWrites(t *testing.T) {
	cache := NewRecordCache(4, time.Minute)

	stale := storage.NewUsageRecord("Chess")
	stale.Apply(1, 10)
	fresh := storage.NewUsageRecord("Chess")
	fresh.Apply(1, 15)

	version := cache.Version()
	cache.Add(fresh)
	assert.False(t, cache.Fill(stale, version))

	got, ok := cache.Get("Chess")
	require.True(t, ok)
	assert.Equal(t, int64(15), got.OverallMinutes)

	assert.True(t, cache.Fill(stale, cache.Version()))
}

// racingStore runs commit once, right after a GetRecord has read from the
// store but before the caller sees the result.
type racingStore struct {
	storage.UsageStore
	commit func()
}

func (s *racingStore) GetRecord(ctx context.Context, label string) (*storage.UsageRecord, error) {
	record, err := s.UsageStore.GetRecord(ctx, label)
	if s.commit != nil {
		commit := s.commit
		s.commit = nil
		commit()
	}
	return record, err
}

func TestStats_ReadDoesNotClobberWriteThrough(t *testing.T) {
	ctx := context.Background()
	store := openBolt(t)
	_, err := store.RecordSession(ctx, storage.LogEntry{ID: "seed", Label: "Chess", SubjectID: 1, OccurredAt: t0, MinutesAdded: 10})
	require.NoError(t, err)

	cache := NewRecordCache(8, time.Minute)
	agg := NewAggregator(store, Config{}, nop(), WithRecordCache(cache))
	racing := &racingStore{UsageStore: store, commit: func() {
		_, err := agg.Record(ctx, closed(2, "Chess", 5*time.Minute))
		require.NoError(t, err)
	}}
	stats := NewStats(racing, cache, nop())

	first, err := stats.Record(ctx, "Chess")
	require.NoError(t, err)
	assert.Equal(t, int64(10), first.OverallMinutes)

	second, err := stats.Record(ctx, "Chess")
	require.NoError(t, err)
	assert.Equal(t, int64(15), second.OverallMinutes)
}

func TestFormatMinutes(t *testing.T) {
	tests := []struct {
		minutes int64
		minimal bool
		want    string
	}{
		{320, false, "5h 20m"},
		{320, true, "5h"},
		{20, false, "20m"},
		{20, true, "20m"},
		{120, false, "2h"},
		{0, false, "0m"},
		{0, true, "0m"},
		{59, false, "59m"},
		{61, false, "1h 1m"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatMinutes(tt.minutes, tt.minimal), "minutes=%d minimal=%v", tt.minutes, tt.minimal)
	}
}
