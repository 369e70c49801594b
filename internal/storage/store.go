package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// ErrInvalidEntry is returned when a log entry cannot be recorded as given.
var ErrInvalidEntry = errors.New("storage: invalid log entry")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Usage() UsageStore
}

// UsageStore manages aggregated usage records and the append-only usage log.
type UsageStore interface {
	// GetRecord returns the record for label or ErrNotFound.
	GetRecord(ctx context.Context, label string) (*UsageRecord, error)
	// GetOrCreateRecord returns the record for label, creating an empty one if needed.
	GetOrCreateRecord(ctx context.Context, label string) (*UsageRecord, error)
	// ListRecords returns every record, ordered by label.
	ListRecords(ctx context.Context) ([]UsageRecord, error)
	// RecordSession adds entry.MinutesAdded to the label's overall and per-subject
	// totals and appends entry to the log, as one atomic unit. Recording an entry
	// whose ID is already present is a no-op that returns the current record.
	RecordSession(ctx context.Context, entry LogEntry) (*UsageRecord, error)
	// QueryLog returns log entries matching filter, most recent first.
	QueryLog(ctx context.Context, filter LogFilter) ([]LogEntry, error)
}
