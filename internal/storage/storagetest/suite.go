// Package storagetest holds behaviour every storage.UsageStore backend must share.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/playtime/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) storage.Store

var base = time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)

// Entry builds a valid log entry.
func Entry(subject uint64, label string, at time.Time, minutes int64) storage.LogEntry {
	return storage.LogEntry{
		ID:           fmt.Sprintf("%d:%d:%s", at.UnixNano(), subject, label),
		Label:        label,
		SubjectID:    subject,
		OccurredAt:   at,
		MinutesAdded: minutes,
	}
}

// Run exercises the usage store contract against the backend built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("GetRecordNotFound", func(t *testing.T) {
		usage := newStore(t).Usage()
		_, err := usage.GetRecord(context.Background(), "Chess")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})

	t.Run("GetOrCreateRecord", func(t *testing.T) {
		ctx := context.Background()
		usage := newStore(t).Usage()

		record, err := usage.GetOrCreateRecord(ctx, "Chess")
		require.NoError(t, err)
		assert.Equal(t, "Chess", record.Label)
		assert.Zero(t, record.OverallMinutes)
		assert.Empty(t, record.PerUserMinutes)

		_, err = usage.RecordSession(ctx, Entry(1, "Chess", base, 5))
		require.NoError(t, err)

		record, err = usage.GetOrCreateRecord(ctx, "Chess")
		require.NoError(t, err)
		assert.Equal(t, int64(5), record.OverallMinutes)

		got, err := usage.GetRecord(ctx, "Chess")
		require.NoError(t, err)
		assert.Equal(t, record, got)
	})

	t.Run("RecordSession", func(t *testing.T) {
		ctx := context.Background()
		usage := newStore(t).Usage()

		record, err := usage.RecordSession(ctx, Entry(42, "Chess", base, 2))
		require.NoError(t, err)
		assert.Equal(t, int64(2), record.OverallMinutes)
		assert.Equal(t, map[string]int64{"42": 2}, record.PerUserMinutes)

		record, err = usage.RecordSession(ctx, Entry(7, "Chess", base.Add(time.Minute), 10))
		require.NoError(t, err)
		assert.Equal(t, int64(12), record.OverallMinutes)
		assert.Equal(t, map[string]int64{"42": 2, "7": 10}, record.PerUserMinutes)

		entries, err := usage.QueryLog(ctx, storage.LogFilter{Label: "Chess"})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, uint64(7), entries[0].SubjectID)
		assert.Equal(t, int64(10), entries[0].MinutesAdded)
		assert.True(t, entries[0].OccurredAt.Equal(base.Add(time.Minute)))
	})

	t.Run("RecordSessionZeroMinutes", func(t *testing.T) {
		ctx := context.Background()
		usage := newStore(t).Usage()

		record, err := usage.RecordSession(ctx, Entry(3, "Go", base, 0))
		require.NoError(t, err)
		assert.Zero(t, record.OverallMinutes)
		minutes, ok := record.UserMinutes(3)
		assert.True(t, ok)
		assert.Zero(t, minutes)

		entries, err := usage.QueryLog(ctx, storage.LogFilter{SubjectID: 3})
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("RecordSessionIdempotent", func(t *testing.T) {
		ctx := context.Background()
		usage := newStore(t).Usage()
		entry := Entry(42, "Chess", base, 2)

		_, err := usage.RecordSession(ctx, entry)
		require.NoError(t, err)
		record, err := usage.RecordSession(ctx, entry)
		require.NoError(t, err)

		assert.Equal(t, int64(2), record.OverallMinutes)
		entries, err := usage.QueryLog(ctx, storage.LogFilter{})
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("RecordSessionInvalid", func(t *testing.T) {
		ctx := context.Background()
		usage := newStore(t).Usage()

		bad := Entry(42, "Chess", base, 2)
		bad.SubjectID = 0
		_, err := usage.RecordSession(ctx, bad)
		assert.True(t, errors.Is(err, storage.ErrInvalidEntry))

		_, err = usage.GetRecord(ctx, "Chess")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})

	t.Run("ListRecords", func(t *testing.T) {
		ctx := context.Background()
		usage := newStore(t).Usage()

		records, err := usage.ListRecords(ctx)
		require.NoError(t, err)
		assert.Empty(t, records)

		for i, label := range []string{"Poker", "Chess", "Go"} {
			_, err := usage.RecordSession(ctx, Entry(1, label, base.Add(time.Duration(i)*time.Second), int64(i+1)))
			require.NoError(t, err)
		}

		records, err = usage.ListRecords(ctx)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "Chess", records[0].Label)
		assert.Equal(t, "Go", records[1].Label)
		assert.Equal(t, "Poker", records[2].Label)
	})

	t.Run("QueryLogFilters", func(t *testing.T) {
		ctx := context.Background()
		usage := newStore(t).Usage()

		seed := []storage.LogEntry{
			Entry(1, "Chess", base, 5),
			Entry(2, "Chess", base.Add(1*time.Hour), 6),
			Entry(1, "Go", base.Add(2*time.Hour), 7),
			Entry(1, "Chess", base.Add(3*time.Hour), 8),
		}
		for _, e := range seed {
			_, err := usage.RecordSession(ctx, e)
			require.NoError(t, err)
		}

		since := base.Add(90 * time.Minute)
		tests := []struct {
			name    string
			filter  storage.LogFilter
			minutes []int64
		}{
			{"all newest first", storage.LogFilter{}, []int64{8, 7, 6, 5}},
			{"by subject", storage.LogFilter{SubjectID: 1}, []int64{8, 7, 5}},
			{"by label", storage.LogFilter{Label: "Chess"}, []int64{8, 6, 5}},
			{"subject and label", storage.LogFilter{SubjectID: 1, Label: "Chess"}, []int64{8, 5}},
			{"since", storage.LogFilter{Since: &since}, []int64{8, 7}},
			{"limit", storage.LogFilter{Limit: 2}, []int64{8, 7}},
			{"no match", storage.LogFilter{SubjectID: 99}, nil},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				entries, err := usage.QueryLog(ctx, tt.filter)
				require.NoError(t, err)
				var got []int64
				for _, e := range entries {
					got = append(got, e.MinutesAdded)
				}
				assert.Equal(t, tt.minutes, got)
			})
		}
	})

	t.Run("LogSumsMatchTotals", func(t *testing.T) {
		ctx := context.Background()
		usage := newStore(t).Usage()

		for i := 0; i < 20; i++ {
			label := []string{"Chess", "Go", "Poker"}[i%3]
			_, err := usage.RecordSession(ctx, Entry(uint64(i%4+1), label, base.Add(time.Duration(i)*time.Minute), int64(i)))
			require.NoError(t, err)
		}

		assertTotalsConsistent(t, usage)
	})

	t.Run("ConcurrentRecordSession", func(t *testing.T) {
		ctx := context.Background()
		usage := newStore(t).Usage()

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := usage.RecordSession(ctx, Entry(uint64(i%3+1), "Chess", base.Add(time.Duration(i)*time.Second), 3))
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		record, err := usage.GetRecord(ctx, "Chess")
		require.NoError(t, err)
		assert.Equal(t, int64(48), record.OverallMinutes)
		assertTotalsConsistent(t, usage)
	})
}

func assertTotalsConsistent(t *testing.T, usage storage.UsageStore) {
	t.Helper()
	ctx := context.Background()

	records, err := usage.ListRecords(ctx)
	require.NoError(t, err)

	for _, record := range records {
		var perUser int64
		for _, m := range record.PerUserMinutes {
			perUser += m
		}
		assert.Equal(t, record.OverallMinutes, perUser, "per-user sum for %s", record.Label)

		entries, err := usage.QueryLog(ctx, storage.LogFilter{Label: record.Label})
		require.NoError(t, err)
		var logged int64
		for _, e := range entries {
			logged += e.MinutesAdded
		}
		assert.Equal(t, record.OverallMinutes, logged, "log sum for %s", record.Label)
	}
}
