package bolt

import (
	"context"
	"fmt"

	"github.com/goodtune/playtime/internal/storage"
	"go.etcd.io/bbolt"
)

type usageStore struct {
	db *bbolt.DB
}

func (s *usageStore) GetRecord(ctx context.Context, label string) (*storage.UsageRecord, error) {
	record, err := getBucketValue[storage.UsageRecord](ctx, s.db, bucketRecords, label)
	if err != nil {
		return nil, err
	}
	normalize(record)
	return record, nil
}

func (s *usageStore) GetOrCreateRecord(ctx context.Context, label string) (*storage.UsageRecord, error) {
	var record storage.UsageRecord
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketRecords))
		if b == nil {
			return fmt.Errorf("usage records bucket missing")
		}
		found, err := loadRecord(b, label, &record)
		if err != nil || found {
			return err
		}
		record = storage.NewUsageRecord(label)
		return putValue(b, label, record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *usageStore) ListRecords(ctx context.Context) ([]storage.UsageRecord, error) {
	records, err := listBucket[storage.UsageRecord](ctx, s.db, bucketRecords)
	if err != nil {
		return nil, err
	}
	for i := range records {
		normalize(&records[i])
	}
	return records, nil
}

func (s *usageStore) RecordSession(ctx context.Context, entry storage.LogEntry) (*storage.UsageRecord, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	var record storage.UsageRecord
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		records := tx.Bucket([]byte(bucketRecords))
		logs := tx.Bucket([]byte(bucketLog))
		ids := tx.Bucket([]byte(bucketLogIDs))
		if records == nil || logs == nil || ids == nil {
			return fmt.Errorf("usage buckets missing")
		}

		found, err := loadRecord(records, entry.Label, &record)
		if err != nil {
			return err
		}
		if !found {
			record = storage.NewUsageRecord(entry.Label)
		}

		if ids.Get([]byte(entry.ID)) != nil {
			// Already applied by an earlier attempt.
			return nil
		}

		record.Apply(entry.SubjectID, entry.MinutesAdded)
		if err := putValue(records, entry.Label, record); err != nil {
			return err
		}

		key := logKey(entry.OccurredAt, entry.ID)
		if err := putValue(logs, key, entry); err != nil {
			return err
		}
		return ids.Put([]byte(entry.ID), []byte(key))
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *usageStore) QueryLog(ctx context.Context, filter storage.LogFilter) ([]storage.LogEntry, error) {
	entries := make([]storage.LogEntry, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketLog))
		if b == nil {
			return nil
		}

		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var entry storage.LogEntry
			if err := unmarshal(v, &entry); err != nil {
				return err
			}
			// Keys are time ordered so nothing older can match.
			if filter.Since != nil && entry.OccurredAt.Before(*filter.Since) {
				break
			}
			if !filter.Matches(entry) {
				continue
			}
			entries = append(entries, entry)
			if filter.Limit > 0 && len(entries) >= filter.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func loadRecord(b *bbolt.Bucket, label string, out *storage.UsageRecord) (bool, error) {
	data := b.Get([]byte(label))
	if data == nil {
		return false, nil
	}
	if err := unmarshal(data, out); err != nil {
		return false, err
	}
	normalize(out)
	return true, nil
}

func normalize(record *storage.UsageRecord) {
	if record.PerUserMinutes == nil {
		record.PerUserMinutes = make(map[string]int64)
	}
}
