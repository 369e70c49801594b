package storage

import (
	"fmt"
	"strconv"
	"time"
)

// UsageRecord is the accumulated usage for one activity label.
type UsageRecord struct {
	Label          string           `json:"label"`
	OverallMinutes int64            `json:"overall_minutes"`
	PerUserMinutes map[string]int64 `json:"per_user_minutes"`
}

// NewUsageRecord returns an empty record for label.
func NewUsageRecord(label string) UsageRecord {
	return UsageRecord{
		Label:          label,
		PerUserMinutes: make(map[string]int64),
	}
}

// Apply adds minutes for subjectID to both totals.
func (r *UsageRecord) Apply(subjectID uint64, minutes int64) {
	if r.PerUserMinutes == nil {
		r.PerUserMinutes = make(map[string]int64)
	}
	r.OverallMinutes += minutes
	r.PerUserMinutes[SubjectKey(subjectID)] += minutes
}

// UserMinutes returns the minutes accumulated by subjectID.
func (r *UsageRecord) UserMinutes(subjectID uint64) (int64, bool) {
	m, ok := r.PerUserMinutes[SubjectKey(subjectID)]
	return m, ok
}

// LogEntry is one immutable session-close contribution to a UsageRecord.
type LogEntry struct {
	ID           string    `json:"id"`
	Label        string    `json:"label"`
	SubjectID    uint64    `json:"subject_id"`
	OccurredAt   time.Time `json:"occurred_at"`
	MinutesAdded int64     `json:"minutes_added"`
}

// Validate checks the fields every backend relies on.
func (e LogEntry) Validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidEntry)
	case e.Label == "":
		return fmt.Errorf("%w: missing label", ErrInvalidEntry)
	case e.SubjectID == 0:
		return fmt.Errorf("%w: missing subject id", ErrInvalidEntry)
	case e.OccurredAt.IsZero():
		return fmt.Errorf("%w: missing occurred_at", ErrInvalidEntry)
	case e.MinutesAdded < 0:
		return fmt.Errorf("%w: negative minutes %d", ErrInvalidEntry, e.MinutesAdded)
	}
	return nil
}

// LogFilter defines criteria for querying the usage log.
type LogFilter struct {
	SubjectID uint64 // zero matches every subject
	Label     string
	Since     *time.Time
	Limit     int // zero or negative means no limit
}

// Matches reports whether entry satisfies the filter.
func (f LogFilter) Matches(entry LogEntry) bool {
	if f.SubjectID != 0 && entry.SubjectID != f.SubjectID {
		return false
	}
	if f.Label != "" && entry.Label != f.Label {
		return false
	}
	if f.Since != nil && entry.OccurredAt.Before(*f.Since) {
		return false
	}
	return true
}

// SubjectKey renders a subject id the way per-user maps are keyed.
func SubjectKey(subjectID uint64) string {
	return strconv.FormatUint(subjectID, 10)
}

// ParseSubjectKey is the inverse of SubjectKey.
func ParseSubjectKey(key string) (uint64, error) {
	id, err := strconv.ParseUint(key, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid subject id %q: %w", key, err)
	}
	return id, nil
}
