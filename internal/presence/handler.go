package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/goodtune/playtime/internal/activity"
	"github.com/goodtune/playtime/internal/metrics"
	"github.com/rs/zerolog"
)

// ErrMalformedEvent is returned for notifications that lack a subject.
var ErrMalformedEvent = errors.New("presence: malformed event")

// Event is one presence notification: a subject's activities before and after a change.
type Event struct {
	SubjectID SubjectID
	Bot       bool
	Before    []activity.Activity
	After     []activity.Activity
}

// ClosedSession is emitted whenever a tracked session ends.
type ClosedSession struct {
	SubjectID SubjectID
	Label     string
	StartedAt time.Time
	ClosedAt  time.Time
}

// Elapsed returns how long the session was open.
func (c ClosedSession) Elapsed() time.Duration {
	return c.ClosedAt.Sub(c.StartedAt)
}

// Sink receives closed sessions.
type Sink interface {
	SessionClosed(ctx context.Context, session ClosedSession) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, session ClosedSession) error

// SessionClosed calls f.
func (f SinkFunc) SessionClosed(ctx context.Context, session ClosedSession) error {
	return f(ctx, session)
}

// Option configures a Handler.
type Option func(*Handler)

// WithClock sets the clock used to timestamp sessions.
func WithClock(clock quartz.Clock) Option {
	return func(h *Handler) {
		h.clock = clock
	}
}

// Handler turns presence notifications into session opens and closes.
type Handler struct {
	store  *SessionStore
	filter *activity.Filter
	sink   Sink
	clock  quartz.Clock
	logger zerolog.Logger
}

// NewHandler creates a presence handler. sink may be nil, in which case
// closed sessions are only logged.
func NewHandler(store *SessionStore, filter *activity.Filter, sink Sink, logger zerolog.Logger, opts ...Option) *Handler {
	h := &Handler{
		store:  store,
		filter: filter,
		sink:   sink,
		clock:  quartz.NewReal(),
		logger: logger.With().Str("component", "presence").Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Store returns the session store the handler mutates.
func (h *Handler) Store() *SessionStore {
	return h.store
}

// Handle applies one presence notification.
func (h *Handler) Handle(ctx context.Context, ev Event) error {
	if ev.SubjectID == 0 {
		metrics.PresenceEventsTotal.WithLabelValues("malformed").Inc()
		return fmt.Errorf("%w: missing subject id", ErrMalformedEvent)
	}
	if ev.Bot {
		metrics.PresenceEventsTotal.WithLabelValues("bot").Inc()
		return nil
	}

	switch {
	case len(ev.Before) == 0 && len(ev.After) == 0:
		metrics.PresenceEventsTotal.WithLabelValues("ignored").Inc()
		return nil

	case len(ev.Before) == 0:
		h.openAll(ev.SubjectID, h.filter.StripIneligible(ev.After))
		metrics.PresenceEventsTotal.WithLabelValues("started").Inc()
		return nil

	case len(ev.After) == 0:
		now := h.clock.Now()
		closed := h.store.CloseAll(ev.SubjectID)
		metrics.PresenceEventsTotal.WithLabelValues("stopped").Inc()
		return h.emit(ctx, ev.SubjectID, closed, now)
	}

	before := h.filter.StripIneligible(ev.Before)
	after := h.filter.StripIneligible(ev.After)
	if len(before) == 0 && len(after) == 0 {
		metrics.PresenceEventsTotal.WithLabelValues("ignored").Inc()
		return nil
	}

	delta := activity.Reconcile(before, after)
	if delta.Unchanged {
		metrics.PresenceEventsTotal.WithLabelValues("unchanged").Inc()
		return nil
	}

	now := h.clock.Now()
	closed, opened := h.store.Apply(ev.SubjectID, delta.Remove, delta.Add, now)
	h.recordOpened(ev.SubjectID, opened)
	metrics.PresenceEventsTotal.WithLabelValues("changed").Inc()

	return h.emit(ctx, ev.SubjectID, closed, now)
}

// CloseAll ends every open session for every subject at the current time.
// Used on shutdown so time already spent is not lost.
func (h *Handler) CloseAll(ctx context.Context) error {
	now := h.clock.Now()

	var errs []error
	for subject := range h.store.Snapshot() {
		closed := h.store.CloseAll(subject)
		if err := h.emit(ctx, subject, closed, now); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Handler) openAll(subject SubjectID, eligible []activity.Activity) {
	now := h.clock.Now()
	opened := make([]Session, 0, len(eligible))
	for _, a := range eligible {
		if h.store.Open(subject, a.Name, now) {
			opened = append(opened, Session{Label: a.Name, StartedAt: now})
		}
	}
	h.recordOpened(subject, opened)
}

func (h *Handler) recordOpened(subject SubjectID, opened []Session) {
	for _, sess := range opened {
		metrics.SessionsOpenedTotal.Inc()
		h.logger.Debug().
			Uint64("subject_id", uint64(subject)).
			Str("label", sess.Label).
			Time("started_at", sess.StartedAt).
			Msg("Session opened")
	}
	metrics.OpenSessions.Set(float64(h.store.Len()))
}

// emit forwards closed sessions to the sink. It runs after the store lock is
// released and keeps going when an individual delivery fails. The sessions
// are already gone from the store, so delivery ignores cancellation of ctx.
func (h *Handler) emit(ctx context.Context, subject SubjectID, closed []Session, at time.Time) error {
	metrics.OpenSessions.Set(float64(h.store.Len()))
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for _, sess := range closed {
		cs := ClosedSession{
			SubjectID: subject,
			Label:     sess.Label,
			StartedAt: sess.StartedAt,
			ClosedAt:  at,
		}
		metrics.SessionsClosedTotal.Inc()
		h.logger.Debug().
			Uint64("subject_id", uint64(subject)).
			Str("label", cs.Label).
			Dur("elapsed", cs.Elapsed()).
			Msg("Session closed")

		if h.sink == nil {
			continue
		}
		if err := h.sink.SessionClosed(ctx, cs); err != nil {
			errs = append(errs, fmt.Errorf("deliver %q for subject %d: %w", cs.Label, subject, err))
		}
	}
	return errors.Join(errs...)
}
