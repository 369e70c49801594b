package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/goodtune/playtime/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanPublisher struct {
	texts chan string
	err   error
}

func (p *chanPublisher) Publish(_ context.Context, text string) error {
	p.texts <- text
	return p.err
}

func receive(ctx context.Context, t *testing.T, c <-chan string) string {
	t.Helper()
	select {
	case s := <-c:
		return s
	case <-ctx.Done():
		t.Fatal("timed out waiting for status")
		return ""
	}
}

func TestReporter_PublishesOnTick(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := openBolt(t)
	_, err := store.RecordSession(ctx, storage.LogEntry{ID: "1", Label: "Poker", SubjectID: 1, OccurredAt: t0, MinutesAdded: 320})
	require.NoError(t, err)

	clock := quartz.NewMock(t)
	pub := &chanPublisher{texts: make(chan string, 4)}
	reporter := NewReporter(NewStats(store, nil, nop()), pub, ReporterConfig{Label: "Poker"}, nop(), WithReporterClock(clock))

	trap := clock.Trap().NewTicker("reporter")
	defer trap.Close()

	reporter.Start(ctx)
	call := trap.MustWait(ctx)
	call.MustRelease(ctx)
	assert.Equal(t, DefaultReportInterval, call.Duration)

	assert.Equal(t, "casino game: 5h 20m", receive(ctx, t, pub.texts))

	_, err = store.RecordSession(ctx, storage.LogEntry{ID: "2", Label: "Poker", SubjectID: 2, OccurredAt: t0, MinutesAdded: 40})
	require.NoError(t, err)

	clock.Advance(DefaultReportInterval).MustWait(ctx)
	assert.Equal(t, "casino game: 6h", receive(ctx, t, pub.texts))

	reporter.Stop()
}

func TestReporter_SkipsMissingRecord(t *testing.T) {
	ctx := context.Background()
	pub := &chanPublisher{texts: make(chan string, 1)}
	reporter := NewReporter(NewStats(openBolt(t), nil, nop()), pub, ReporterConfig{Label: "Nothing", Template: "now: %s"}, nop())

	reporter.Report(ctx)
	assert.Empty(t, pub.texts)
}

func TestReporter_PublishErrorIsNotFatal(t *testing.T) {
	ctx := context.Background()
	store := openBolt(t)
	_, err := store.RecordSession(ctx, storage.LogEntry{ID: "1", Label: "Go", SubjectID: 1, OccurredAt: t0, MinutesAdded: 15})
	require.NoError(t, err)

	pub := &chanPublisher{texts: make(chan string, 2), err: errors.New("rate limited")}
	reporter := NewReporter(NewStats(store, nil, nop()), pub, ReporterConfig{Label: "Go", Template: "go: %s"}, nop())

	reporter.Report(ctx)
	reporter.Report(ctx)
	assert.Len(t, pub.texts, 2)
	assert.Equal(t, "go: 15m", <-pub.texts)
}
