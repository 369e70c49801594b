package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/goodtune/playtime/internal/activity"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	closed []ClosedSession
	ctxErr []error
	fail   map[string]error
}

func (s *recordingSink) SessionClosed(ctx context.Context, cs ClosedSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, cs)
	s.ctxErr = append(s.ctxErr, ctx.Err())
	return s.fail[cs.Label]
}

func (s *recordingSink) sessions() []ClosedSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ClosedSession(nil), s.closed...)
}

func newTestHandler(t *testing.T) (*Handler, *recordingSink, *quartz.Mock) {
	t.Helper()
	clock := quartz.NewMock(t)
	clock.Set(t0)
	sink := &recordingSink{}
	filter := activity.NewFilter([]string{"Spotify"}, nil)
	h := NewHandler(NewSessionStore(), filter, sink, zerolog.Nop(), WithClock(clock))
	return h, sink, clock
}

func playing(names ...string) []activity.Activity {
	out := make([]activity.Activity, 0, len(names))
	for _, n := range names {
		out = append(out, activity.Activity{Name: n, Kind: activity.KindPlaying})
	}
	return out
}

func TestHandler_SingleSession(t *testing.T) {
	ctx := context.Background()
	h, sink, clock := newTestHandler(t)

	require.NoError(t, h.Handle(ctx, Event{SubjectID: 42, After: playing("Chess")}))
	assert.Len(t, h.Store().Sessions(42), 1)

	clock.Advance(125 * time.Second).MustWait(ctx)

	require.NoError(t, h.Handle(ctx, Event{SubjectID: 42, Before: playing("Chess")}))
	assert.Equal(t, 0, h.Store().Len())

	closed := sink.sessions()
	require.Len(t, closed, 1)
	assert.Equal(t, SubjectID(42), closed[0].SubjectID)
	assert.Equal(t, "Chess", closed[0].Label)
	assert.Equal(t, 125*time.Second, closed[0].Elapsed())
}

func TestHandler_OverlappingActivities(t *testing.T) {
	ctx := context.Background()
	h, sink, clock := newTestHandler(t)

	require.NoError(t, h.Handle(ctx, Event{SubjectID: 7, After: playing("A")}))
	clock.Advance(10 * time.Minute).MustWait(ctx)

	require.NoError(t, h.Handle(ctx, Event{SubjectID: 7, Before: playing("A"), After: playing("A", "B")}))
	assert.Empty(t, sink.sessions())
	clock.Advance(5 * time.Minute).MustWait(ctx)

	require.NoError(t, h.Handle(ctx, Event{SubjectID: 7, Before: playing("A", "B"), After: playing("B")}))

	closed := sink.sessions()
	require.Len(t, closed, 1)
	assert.Equal(t, "A", closed[0].Label)
	assert.Equal(t, 15*time.Minute, closed[0].Elapsed())

	open := h.Store().Sessions(7)
	require.Len(t, open, 1)
	assert.Equal(t, "B", open[0].Label)
	assert.Equal(t, t0.Add(10*time.Minute), open[0].StartedAt)
}

func TestHandler_MalformedEvent(t *testing.T) {
	h, sink, _ := newTestHandler(t)

	err := h.Handle(context.Background(), Event{After: playing("Chess")})
	assert.True(t, errors.Is(err, ErrMalformedEvent))
	assert.Equal(t, 0, h.Store().Len())
	assert.Empty(t, sink.sessions())
}

func TestHandler_IgnoredEvents(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
	}{
		{"bot", Event{SubjectID: 3, Bot: true, After: playing("Chess")}},
		{"both empty", Event{SubjectID: 3}},
		{"denylisted only", Event{SubjectID: 3, After: []activity.Activity{{Name: "Spotify", Kind: activity.KindListening}}}},
		{"ineligible kinds", Event{SubjectID: 3, After: []activity.Activity{{Name: "Busy", Kind: activity.KindCustom}}}},
		{"no eligible on either side", Event{
			SubjectID: 3,
			Before:    []activity.Activity{{Name: "Spotify"}},
			After:     []activity.Activity{{Name: "Spotify"}, {Name: "Busy", Kind: activity.KindCustom}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, sink, _ := newTestHandler(t)
			require.NoError(t, h.Handle(context.Background(), tt.ev))
			assert.Equal(t, 0, h.Store().Len())
			assert.Empty(t, sink.sessions())
		})
	}
}

func TestHandler_DenylistedNeverOpens(t *testing.T) {
	ctx := context.Background()
	h, _, _ := newTestHandler(t)

	require.NoError(t, h.Handle(ctx, Event{SubjectID: 1, After: playing("Spotify", "Chess")}))
	require.NoError(t, h.Handle(ctx, Event{SubjectID: 1, Before: playing("Spotify", "Chess"), After: playing("Spotify", "Go")}))

	for _, sess := range h.Store().Sessions(1) {
		assert.NotEqual(t, "Spotify", sess.Label)
	}
	assert.Len(t, h.Store().Sessions(1), 1)
}

func TestHandler_IneligibleBeforeEligibleAfter(t *testing.T) {
	h, _, _ := newTestHandler(t)

	err := h.Handle(context.Background(), Event{
		SubjectID: 4,
		Before:    []activity.Activity{{Name: "Spotify"}},
		After:     playing("Chess"),
	})
	require.NoError(t, err)
	assert.Len(t, h.Store().Sessions(4), 1)
}

func TestHandler_UnchangedKeepsStart(t *testing.T) {
	ctx := context.Background()
	h, sink, clock := newTestHandler(t)

	require.NoError(t, h.Handle(ctx, Event{SubjectID: 8, After: playing("Chess")}))
	clock.Advance(time.Minute).MustWait(ctx)
	require.NoError(t, h.Handle(ctx, Event{SubjectID: 8, Before: playing("Chess"), After: playing("Chess")}))
	// Repeated start notification must not reset the clock.
	require.NoError(t, h.Handle(ctx, Event{SubjectID: 8, After: playing("Chess")}))

	assert.Empty(t, sink.sessions())
	assert.Equal(t, t0, h.Store().Sessions(8)[0].StartedAt)
}

func TestHandler_StopClosesEverything(t *testing.T) {
	ctx := context.Background()
	h, sink, clock := newTestHandler(t)

	require.NoError(t, h.Handle(ctx, Event{SubjectID: 5, After: playing("A", "B")}))
	clock.Advance(2 * time.Minute).MustWait(ctx)
	require.NoError(t, h.Handle(ctx, Event{SubjectID: 5, Before: []activity.Activity{{Name: "whatever"}}}))

	closed := sink.sessions()
	require.Len(t, closed, 2)
	assert.Equal(t, "A", closed[0].Label)
	assert.Equal(t, "B", closed[1].Label)
	assert.Equal(t, 0, h.Store().Subjects())
}

func TestHandler_SinkErrorsJoined(t *testing.T) {
	ctx := context.Background()
	h, sink, _ := newTestHandler(t)
	errBoom := errors.New("boom")
	sink.fail = map[string]error{"A": errBoom}

	require.NoError(t, h.Handle(ctx, Event{SubjectID: 6, After: playing("A", "B")}))
	err := h.Handle(ctx, Event{SubjectID: 6, Before: playing("A", "B")})

	assert.ErrorIs(t, err, errBoom)
	assert.Len(t, sink.sessions(), 2)
}

func TestHandler_CancelledContextStillDelivers(t *testing.T) {
	h, sink, clock := newTestHandler(t)

	require.NoError(t, h.Handle(context.Background(), Event{SubjectID: 9, After: playing("Chess")}))
	clock.Advance(5 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, h.Handle(ctx, Event{SubjectID: 9, Before: playing("Chess")}))

	require.Len(t, sink.sessions(), 1)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.NoError(t, sink.ctxErr[0])
}

func TestHandler_NilSink(t *testing.T) {
	ctx := context.Background()
	h := NewHandler(NewSessionStore(), activity.NewFilter(nil, nil), nil, zerolog.Nop())

	require.NoError(t, h.Handle(ctx, Event{SubjectID: 1, After: playing("A")}))
	require.NoError(t, h.Handle(ctx, Event{SubjectID: 1, Before: playing("A")}))
	assert.Equal(t, 0, h.Store().Len())
}

func TestHandler_CloseAll(t *testing.T) {
	ctx := context.Background()
	h, sink, clock := newTestHandler(t)

	require.NoError(t, h.Handle(ctx, Event{SubjectID: 1, After: playing("Chess")}))
	require.NoError(t, h.Handle(ctx, Event{SubjectID: 2, After: playing("Go", "Poker")}))
	clock.Advance(3 * time.Minute)

	require.NoError(t, h.CloseAll(ctx))
	assert.Equal(t, 0, h.Store().Len())

	got := sink.sessions()
	require.Len(t, got, 3)
	for _, cs := range got {
		assert.Equal(t, 3*time.Minute, cs.Elapsed())
	}
}
