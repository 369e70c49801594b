package usage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/goodtune/playtime/internal/presence"
	"github.com/rs/zerolog"
)

// ErrDispatcherClosed is returned when a session arrives after Close.
var ErrDispatcherClosed = errors.New("usage: dispatcher closed")

// Recorder persists one closed session.
type Recorder interface {
	Record(ctx context.Context, cs presence.ClosedSession) (Outcome, error)
}

// Dispatcher queues closed sessions so presence handling never waits on storage.
type Dispatcher struct {
	recorder Recorder
	queue    chan presence.ClosedSession
	logger   zerolog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	failures atomic.Int64
}

// NewDispatcher starts a dispatcher with a queue of size entries.
func NewDispatcher(recorder Recorder, size int, logger zerolog.Logger) *Dispatcher {
	if size < 0 {
		size = 0
	}
	d := &Dispatcher{
		recorder: recorder,
		queue:    make(chan presence.ClosedSession, size),
		logger:   logger.With().Str("component", "usage-dispatcher").Logger(),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// SessionClosed implements presence.Sink by enqueueing the session. A session
// is always accepted while the queue has room, even if ctx is already done;
// ctx only bounds the wait for a full queue.
func (d *Dispatcher) SessionClosed(ctx context.Context, cs presence.ClosedSession) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- cs:
		return nil
	default:
	}

	select {
	case d.queue <- cs:
		return nil
	case <-ctx.Done():
		d.logger.Error().
			Err(ctx.Err()).
			Uint64("subject_id", uint64(cs.SubjectID)).
			Str("label", cs.Label).
			Time("started_at", cs.StartedAt).
			Time("closed_at", cs.ClosedAt).
			Msg("Dropped closed session, queue full")
		return ctx.Err()
	}
}

// Close stops accepting sessions, drains the queue and waits for the worker.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.done
	d.logger.Info().Int64("failures", d.failures.Load()).Msg("Usage dispatcher stopped")
}

// Failures returns how many queued sessions could not be recorded.
func (d *Dispatcher) Failures() int64 {
	return d.failures.Load()
}

// Pending returns the number of queued sessions.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for cs := range d.queue {
		// The aggregator logs failures with full context.
		if _, err := d.recorder.Record(context.Background(), cs); err != nil {
			d.failures.Add(1)
		}
	}
}
