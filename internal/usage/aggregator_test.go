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

func TestMinutes(t *testing.T) {
	tests := []struct {
		elapsed time.Duration
		want    int64
	}{
		{0, 0},
		{29 * time.Second, 0},
		{30 * time.Second, 0}, // half rounds to even
		{31 * time.Second, 1},
		{90 * time.Second, 2}, // 1.5 rounds to even
		{125 * time.Second, 2},
		{150 * time.Second, 2}, // 2.5 rounds to even
		{210 * time.Second, 4}, // 3.5 rounds to even
		{time.Hour + 20*time.Minute, 80},
	}

	for _, tt := range tests {
		t.Run(tt.elapsed.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Minutes(tt.elapsed))
		})
	}
}

func TestAggregator_RecordsSession(t *testing.T) {
	ctx := context.Background()
	store := openBolt(t)
	agg := NewAggregator(store, Config{}, nop())

	outcome, err := agg.Record(ctx, closed(42, "Chess", 125*time.Second))
	require.NoError(t, err)
	assert.False(t, outcome.Suppressed)
	assert.Equal(t, int64(2), outcome.Minutes)
	require.NotNil(t, outcome.Record)
	assert.Equal(t, int64(2), outcome.Record.OverallMinutes)

	record, err := store.GetRecord(ctx, "Chess")
	require.NoError(t, err)
	assert.Equal(t, int64(2), record.OverallMinutes)
	assert.Equal(t, map[string]int64{"42": 2}, record.PerUserMinutes)

	entries, err := store.QueryLog(ctx, storage.LogFilter{SubjectID: 42})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Chess", entries[0].Label)
	assert.Equal(t, int64(2), entries[0].MinutesAdded)
	assert.True(t, entries[0].OccurredAt.Equal(t0.Add(125*time.Second)))
}

func TestAggregator_Suppression(t *testing.T) {
	tests := []struct {
		name      string
		threshold time.Duration
		elapsed   time.Duration
		suppress  bool
	}{
		{"under default threshold", 0, 59 * time.Second, true},
		{"at default threshold", 0, 60 * time.Second, false},
		{"negative elapsed", 0, -time.Minute, true},
		{"custom threshold", 2 * time.Minute, 90 * time.Second, true},
		{"low threshold records zero minutes", 10 * time.Second, 20 * time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := openBolt(t)
			agg := NewAggregator(store, Config{MinSessionDuration: tt.threshold}, nop())

			outcome, err := agg.Record(ctx, closed(1, "Go", tt.elapsed))
			require.NoError(t, err)
			assert.Equal(t, tt.suppress, outcome.Suppressed)

			_, err = store.GetRecord(ctx, "Go")
			if tt.suppress {
				assert.True(t, errors.Is(err, storage.ErrNotFound))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAggregator_ZeroMinuteSessionIsLogged(t *testing.T) {
	ctx := context.Background()
	store := openBolt(t)
	agg := NewAggregator(store, Config{MinSessionDuration: 10 * time.Second}, nop())

	outcome, err := agg.Record(ctx, closed(1, "Go", 20*time.Second))
	require.NoError(t, err)
	assert.Zero(t, outcome.Minutes)

	entries, err := store.QueryLog(ctx, storage.LogFilter{Label: "Go"})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAggregator_RetryThenSuccess(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{UsageStore: openBolt(t), failures: 2}
	agg := NewAggregator(store, Config{Retry: fastRetry}, nop())

	outcome, err := agg.Record(ctx, closed(42, "Chess", 125*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), outcome.Record.OverallMinutes)
	assert.Equal(t, 3, store.Calls())
}

func TestAggregator_RetryExhausted(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{UsageStore: openBolt(t), failures: 1 << 30}
	agg := NewAggregator(store, Config{Retry: fastRetry}, nop())

	_, err := agg.Record(ctx, closed(42, "Chess", 125*time.Second))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWriteFailed))
	assert.Greater(t, store.Calls(), 1)

	_, err = store.UsageStore.GetRecord(ctx, "Chess")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestAggregator_InvalidEntryNotRetried(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{UsageStore: openBolt(t), failures: 1 << 30, err: storage.ErrInvalidEntry}
	agg := NewAggregator(store, Config{Retry: fastRetry}, nop())

	_, err := agg.Record(ctx, closed(42, "Chess", 125*time.Second))
	assert.True(t, errors.Is(err, ErrWriteFailed))
	assert.True(t, errors.Is(err, storage.ErrInvalidEntry))
	assert.Equal(t, 1, store.Calls())
}

func TestAggregator_ContextCancelledStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := &flakyStore{UsageStore: openBolt(t), failures: 1 << 30}
	agg := NewAggregator(store, Config{Retry: RetryConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		MaxElapsedTime:  time.Hour,
	}}, nop())

	_, err := agg.Record(ctx, closed(42, "Chess", 125*time.Second))
	assert.True(t, errors.Is(err, ErrWriteFailed))
}

func TestAggregator_ReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := openBolt(t)
	agg := NewAggregator(store, Config{}, nop())

	cs := closed(42, "Chess", 125*time.Second)
	_, err := agg.Record(ctx, cs)
	require.NoError(t, err)
	outcome, err := agg.Record(ctx, cs)
	require.NoError(t, err)

	assert.Equal(t, int64(2), outcome.Record.OverallMinutes)
}

func TestAggregator_WritesThroughCache(t *testing.T) {
	ctx := context.Background()
	cache := NewRecordCache(8, time.Minute)
	agg := NewAggregator(openBolt(t), Config{}, nop(), WithRecordCache(cache))

	_, err := agg.Record(ctx, closed(42, "Chess", 5*time.Minute))
	require.NoError(t, err)

	record, ok := cache.Get("Chess")
	require.True(t, ok)
	assert.Equal(t, int64(5), record.OverallMinutes)
}

func TestEntryIDDeterministic(t *testing.T) {
	a := closed(42, "Chess", time.Minute)
	b := closed(42, "Chess", 2*time.Minute)
	c := closed(43, "Chess", time.Minute)

	assert.Equal(t, EntryID(a), EntryID(b))
	assert.NotEqual(t, EntryID(a), EntryID(c))
}
