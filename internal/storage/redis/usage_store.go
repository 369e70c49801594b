package redis

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/goodtune/playtime/internal/storage"
	"github.com/redis/go-redis/v9"
)

const logPageSize = 100

var recordSession = redis.NewScript(recordSessionScript)

type usageStore struct {
	client *redis.Client
}

// GetRecord retrieves the usage record for a label
func (s *usageStore) GetRecord(ctx context.Context, label string) (*storage.UsageRecord, error) {
	data, err := s.client.HGetAll(ctx, recordKey(label)).Result()
	if err != nil {
		return nil, err
	}
	return parseUsageRecord(data)
}

// GetOrCreateRecord retrieves a usage record, creating an empty one if absent
func (s *usageStore) GetOrCreateRecord(ctx context.Context, label string) (*storage.UsageRecord, error) {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, recordKey(label), fieldLabel, label)
		pipe.HSetNX(ctx, recordKey(label), fieldOverall, 0)
		pipe.SAdd(ctx, keyRecords, label)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetRecord(ctx, label)
}

// ListRecords returns every usage record ordered by label
func (s *usageStore) ListRecords(ctx context.Context) ([]storage.UsageRecord, error) {
	labels, err := s.client.SMembers(ctx, keyRecords).Result()
	if err != nil {
		return nil, err
	}

	if len(labels) == 0 {
		return []storage.UsageRecord{}, nil
	}
	sort.Strings(labels)

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(labels))
	for i, label := range labels {
		cmds[i] = pipe.HGetAll(ctx, recordKey(label))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	records := make([]storage.UsageRecord, 0, len(labels))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		record, err := parseUsageRecord(data)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}

	return records, nil
}

// RecordSession applies a log entry to its record atomically via Lua
func (s *usageStore) RecordSession(ctx context.Context, entry storage.LogEntry) (*storage.UsageRecord, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	keys := []string{
		recordKey(entry.Label),
		keyRecords,
		entryKey(entry.ID),
		keyLog,
		subjectLogKey(entry.SubjectID),
		labelLogKey(entry.Label),
	}
	args := []interface{}{
		entry.Label,
		userField(entry.SubjectID),
		entry.MinutesAdded,
		entry.ID,
		storage.SubjectKey(entry.SubjectID),
		entry.OccurredAt.UTC().Format(time.RFC3339Nano),
		entry.OccurredAt.UnixMilli(),
	}

	reply, err := recordSession.Run(ctx, s.client, keys, args...).Result()
	if err != nil {
		return nil, err
	}

	data, err := pairsToMap(reply)
	if err != nil {
		return nil, err
	}
	return parseUsageRecord(data)
}

// QueryLog returns matching log entries, most recent first
func (s *usageStore) QueryLog(ctx context.Context, filter storage.LogFilter) ([]storage.LogEntry, error) {
	index := keyLog
	switch {
	case filter.Label != "":
		index = labelLogKey(filter.Label)
	case filter.SubjectID != 0:
		index = subjectLogKey(filter.SubjectID)
	}

	minScore := "-inf"
	if filter.Since != nil {
		minScore = strconv.FormatInt(filter.Since.UnixMilli(), 10)
	}

	entries := make([]storage.LogEntry, 0)
	for offset := int64(0); ; offset += logPageSize {
		ids, err := s.client.ZRevRangeByScore(ctx, index, &redis.ZRangeBy{
			Min:    minScore,
			Max:    "+inf",
			Offset: offset,
			Count:  logPageSize,
		}).Result()
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			break
		}

		page, err := s.loadEntries(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, entry := range page {
			if !filter.Matches(entry) {
				continue
			}
			entries = append(entries, entry)
			if filter.Limit > 0 && len(entries) >= filter.Limit {
				return entries, nil
			}
		}

		if len(ids) < logPageSize {
			break
		}
	}

	return entries, nil
}

func (s *usageStore) loadEntries(ctx context.Context, ids []string) ([]storage.LogEntry, error) {
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, entryKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	entries := make([]storage.LogEntry, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		entry, err := parseLogEntry(data)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}
