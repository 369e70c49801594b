// Package feed delivers presence notifications from external transports to a
// presence handler, and publishes status lines back out.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/goodtune/playtime/internal/activity"
	"github.com/goodtune/playtime/internal/metrics"
	"github.com/goodtune/playtime/internal/presence"
	"github.com/rs/zerolog"
)

// EventHandler consumes decoded presence events.
type EventHandler interface {
	Handle(ctx context.Context, ev presence.Event) error
}

// Source is a running feed.
type Source interface {
	Run(ctx context.Context) error
}

type wireActivity struct {
	Name string `json:"name"`
	Kind string `json:"kind,omitempty"`
}

type envelope struct {
	SubjectID *uint64        `json:"subject_id"`
	Bot       bool           `json:"bot"`
	Before    []wireActivity `json:"before"`
	After     []wireActivity `json:"after"`
}

// Decode parses one JSON presence notification.
func Decode(data []byte) (presence.Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return presence.Event{}, fmt.Errorf("decode presence message: %w", err)
	}
	if env.SubjectID == nil {
		return presence.Event{}, fmt.Errorf("%w: missing subject_id", presence.ErrMalformedEvent)
	}

	return presence.Event{
		SubjectID: presence.SubjectID(*env.SubjectID),
		Bot:       env.Bot,
		Before:    fromWire(env.Before),
		After:     fromWire(env.After),
	}, nil
}

// Encode renders ev in the wire format Decode accepts.
func Encode(ev presence.Event) ([]byte, error) {
	id := uint64(ev.SubjectID)
	data, err := json.Marshal(envelope{
		SubjectID: &id,
		Bot:       ev.Bot,
		Before:    toWire(ev.Before),
		After:     toWire(ev.After),
	})
	if err != nil {
		return nil, fmt.Errorf("encode presence message: %w", err)
	}
	return data, nil
}

func fromWire(in []wireActivity) []activity.Activity {
	if len(in) == 0 {
		return nil
	}
	out := make([]activity.Activity, 0, len(in))
	for _, a := range in {
		out = append(out, activity.Activity{Name: a.Name, Kind: activity.ParseKind(a.Kind)})
	}
	return out
}

func toWire(in []activity.Activity) []wireActivity {
	out := make([]wireActivity, 0, len(in))
	for _, a := range in {
		out = append(out, wireActivity{Name: a.Name, Kind: string(a.Kind)})
	}
	return out
}

// dispatch decodes one message and hands it to handler. Bad input is logged
// and counted; it never stops the feed.
func dispatch(ctx context.Context, handler EventHandler, source string, data []byte, logger zerolog.Logger) {
	ev, err := Decode(data)
	if err != nil {
		result := "undecodable"
		if errors.Is(err, presence.ErrMalformedEvent) {
			result = "malformed"
		}
		metrics.FeedMessagesTotal.WithLabelValues(source, result).Inc()
		logger.Warn().Err(err).Int("size", len(data)).Msg("Dropping presence message")
		return
	}

	if err := handler.Handle(ctx, ev); err != nil {
		if errors.Is(err, presence.ErrMalformedEvent) {
			metrics.FeedMessagesTotal.WithLabelValues(source, "malformed").Inc()
			logger.Warn().Err(err).Msg("Dropping malformed presence event")
			return
		}
		metrics.FeedMessagesTotal.WithLabelValues(source, "error").Inc()
		logger.Error().Err(err).Uint64("subject_id", uint64(ev.SubjectID)).Msg("Failed to handle presence event")
		return
	}

	metrics.FeedMessagesTotal.WithLabelValues(source, "ok").Inc()
}
