package redis

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goodtune/playtime/internal/storage"
)

const (
	keyRecords   = "playtime:records"
	keyLog       = "playtime:log"
	userPrefix   = "user:"
	fieldLabel   = "label"
	fieldOverall = "overall_minutes"
)

func recordKey(label string) string {
	return fmt.Sprintf("playtime:record:%s", label)
}

func entryKey(id string) string {
	return fmt.Sprintf("playtime:entry:%s", id)
}

func subjectLogKey(subjectID uint64) string {
	return fmt.Sprintf("playtime:log:subject:%d", subjectID)
}

func labelLogKey(label string) string {
	return fmt.Sprintf("playtime:log:label:%s", label)
}

func userField(subjectID uint64) string {
	return userPrefix + storage.SubjectKey(subjectID)
}

// parseUsageRecord converts a Redis hash to UsageRecord
func parseUsageRecord(data map[string]string) (*storage.UsageRecord, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	record := storage.NewUsageRecord(data[fieldLabel])
	for field, value := range data {
		switch {
		case field == fieldOverall:
			overall, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse overall_minutes: %w", err)
			}
			record.OverallMinutes = overall
		case strings.HasPrefix(field, userPrefix):
			minutes, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", field, err)
			}
			record.PerUserMinutes[strings.TrimPrefix(field, userPrefix)] = minutes
		}
	}

	return &record, nil
}

// pairsToMap converts a flat HGETALL reply from a script into a map.
func pairsToMap(reply any) (map[string]string, error) {
	items, ok := reply.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected script reply %T", reply)
	}
	if len(items)%2 != 0 {
		return nil, fmt.Errorf("odd number of hash fields in script reply")
	}

	data := make(map[string]string, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		key, ok := items[i].(string)
		if !ok {
			return nil, fmt.Errorf("unexpected hash field %T", items[i])
		}
		switch v := items[i+1].(type) {
		case string:
			data[key] = v
		case int64:
			data[key] = strconv.FormatInt(v, 10)
		default:
			return nil, fmt.Errorf("unexpected hash value %T", v)
		}
	}
	return data, nil
}

// parseLogEntry converts a Redis hash to LogEntry
func parseLogEntry(data map[string]string) (*storage.LogEntry, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	occurredAt, err := time.Parse(time.RFC3339Nano, data["occurred_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse occurred_at: %w", err)
	}

	subjectID, err := storage.ParseSubjectKey(data["subject_id"])
	if err != nil {
		return nil, err
	}

	minutes, err := strconv.ParseInt(data["minutes_added"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse minutes_added: %w", err)
	}

	return &storage.LogEntry{
		ID:           data["id"],
		Label:        data["label"],
		SubjectID:    subjectID,
		OccurredAt:   occurredAt,
		MinutesAdded: minutes,
	}, nil
}
