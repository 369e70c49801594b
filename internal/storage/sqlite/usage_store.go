package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goodtune/playtime/internal/storage"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type usageStore struct {
	db *sql.DB
}

func (s *usageStore) GetRecord(ctx context.Context, label string) (*storage.UsageRecord, error) {
	return readRecord(ctx, s.db, label)
}

func (s *usageStore) GetOrCreateRecord(ctx context.Context, label string) (*storage.UsageRecord, error) {
	if _, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO usage_records (label, overall_minutes) VALUES (?, 0)", label); err != nil {
		return nil, fmt.Errorf("create usage record: %w", err)
	}
	return readRecord(ctx, s.db, label)
}

func (s *usageStore) ListRecords(ctx context.Context) ([]storage.UsageRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT label, overall_minutes FROM usage_records ORDER BY label")
	if err != nil {
		return nil, fmt.Errorf("list usage records: %w", err)
	}

	records := make([]storage.UsageRecord, 0)
	index := make(map[string]int)
	for rows.Next() {
		record := storage.NewUsageRecord("")
		if err := rows.Scan(&record.Label, &record.OverallMinutes); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		index[record.Label] = len(records)
		records = append(records, record)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	users, err := s.db.QueryContext(ctx, "SELECT label, subject_id, minutes FROM usage_user_minutes")
	if err != nil {
		return nil, fmt.Errorf("list user minutes: %w", err)
	}
	defer func() { _ = users.Close() }()

	for users.Next() {
		var label, subject string
		var minutes int64
		if err := users.Scan(&label, &subject, &minutes); err != nil {
			return nil, fmt.Errorf("scan user minutes: %w", err)
		}
		if i, ok := index[label]; ok {
			records[i].PerUserMinutes[subject] = minutes
		}
	}
	return records, users.Err()
}

func (s *usageStore) RecordSession(ctx context.Context, entry storage.LogEntry) (*storage.UsageRecord, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	subject := storage.SubjectKey(entry.SubjectID)

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO usage_log (id, label, subject_id, occurred_at, minutes_added)
		VALUES (?, ?, ?, ?, ?)
	`, entry.ID, entry.Label, subject, entry.OccurredAt.UnixNano(), entry.MinutesAdded)
	if err != nil {
		return nil, fmt.Errorf("append usage log: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if inserted == 0 {
		// Already applied by an earlier attempt.
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO usage_records (label, overall_minutes) VALUES (?, 0)", entry.Label); err != nil {
			return nil, fmt.Errorf("create usage record: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO usage_records (label, overall_minutes) VALUES (?, ?)
			ON CONFLICT(label) DO UPDATE SET overall_minutes = overall_minutes + excluded.overall_minutes
		`, entry.Label, entry.MinutesAdded); err != nil {
			return nil, fmt.Errorf("update usage record: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO usage_user_minutes (label, subject_id, minutes) VALUES (?, ?, ?)
			ON CONFLICT(label, subject_id) DO UPDATE SET minutes = minutes + excluded.minutes
		`, entry.Label, subject, entry.MinutesAdded); err != nil {
			return nil, fmt.Errorf("update user minutes: %w", err)
		}
	}

	record, err := readRecord(ctx, tx, entry.Label)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit usage record: %w", err)
	}
	return record, nil
}

func (s *usageStore) QueryLog(ctx context.Context, filter storage.LogFilter) ([]storage.LogEntry, error) {
	var (
		where []string
		args  []any
	)
	if filter.SubjectID != 0 {
		where = append(where, "subject_id = ?")
		args = append(args, storage.SubjectKey(filter.SubjectID))
	}
	if filter.Label != "" {
		where = append(where, "label = ?")
		args = append(args, filter.Label)
	}
	if filter.Since != nil {
		where = append(where, "occurred_at >= ?")
		args = append(args, filter.Since.UnixNano())
	}

	query := "SELECT id, label, subject_id, occurred_at, minutes_added FROM usage_log"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurred_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]storage.LogEntry, 0)
	for rows.Next() {
		var (
			entry    storage.LogEntry
			subject  string
			occurred int64
		)
		if err := rows.Scan(&entry.ID, &entry.Label, &subject, &occurred, &entry.MinutesAdded); err != nil {
			return nil, fmt.Errorf("scan usage log: %w", err)
		}
		if entry.SubjectID, err = storage.ParseSubjectKey(subject); err != nil {
			return nil, err
		}
		entry.OccurredAt = time.Unix(0, occurred).UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func readRecord(ctx context.Context, q querier, label string) (*storage.UsageRecord, error) {
	record := storage.NewUsageRecord(label)
	err := q.QueryRowContext(ctx,
		"SELECT overall_minutes FROM usage_records WHERE label = ?", label).Scan(&record.OverallMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get usage record: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		"SELECT subject_id, minutes FROM usage_user_minutes WHERE label = ?", label)
	if err != nil {
		return nil, fmt.Errorf("get user minutes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var subject string
		var minutes int64
		if err := rows.Scan(&subject, &minutes); err != nil {
			return nil, fmt.Errorf("scan user minutes: %w", err)
		}
		record.PerUserMinutes[subject] = minutes
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &record, nil
}
