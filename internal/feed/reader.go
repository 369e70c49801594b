package feed

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

const maxLineSize = 1 << 20

// ReaderSource consumes newline-delimited JSON presence notifications.
type ReaderSource struct {
	reader  io.Reader
	handler EventHandler
	logger  zerolog.Logger
}

// NewReaderSource creates a source reading r until EOF.
func NewReaderSource(r io.Reader, handler EventHandler, logger zerolog.Logger) *ReaderSource {
	return &ReaderSource{
		reader:  r,
		handler: handler,
		logger:  logger.With().Str("component", "feed").Str("source", "reader").Logger(),
	}
}

// Run handles each line in order. It returns nil at EOF or when ctx is done.
func (s *ReaderSource) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lines := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		lines++
		dispatch(ctx, s.handler, "reader", line, s.logger)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read presence feed: %w", err)
	}

	s.logger.Info().Int("messages", lines).Msg("Presence feed exhausted")
	return nil
}
