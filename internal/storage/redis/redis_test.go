package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/playtime/internal/config"
	"github.com/goodtune/playtime/internal/storage"
	"github.com/goodtune/playtime/internal/storage/storagetest"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	// Host carries the full miniredis address, so Port stays zero.
	cfg := config.RedisConfig{
		Host:         mr.Addr(),
		Port:         0,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store, mr
}

func TestUsageStoreConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		store, _ := setupTestStore(t)
		return store
	})
}

func TestOpen_InvalidTimeout(t *testing.T) {
	_, err := Open(config.RedisConfig{Host: "localhost", DialTimeout: "soon", ReadTimeout: "1s", WriteTimeout: "1s"})
	if err == nil {
		t.Fatal("expected error for invalid dial_timeout")
	}
}

func TestOpen_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Open(config.RedisConfig{Host: addr, DialTimeout: "100ms", ReadTimeout: "100ms", WriteTimeout: "100ms"})
	if err == nil {
		t.Fatal("expected error connecting to a stopped server")
	}
}

func TestUsageStore_RecordSessionKeys(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	entry := storagetest.Entry(42, "Chess", at, 2)
	if _, err := store.Usage().RecordSession(ctx, entry); err != nil {
		t.Fatalf("RecordSession failed: %v", err)
	}

	if got := mr.HGet("playtime:record:Chess", "overall_minutes"); got != "2" {
		t.Errorf("Expected overall_minutes 2, got %q", got)
	}
	if got := mr.HGet("playtime:record:Chess", "user:42"); got != "2" {
		t.Errorf("Expected user:42 2, got %q", got)
	}

	members, err := mr.Members("playtime:records")
	if err != nil || len(members) != 1 || members[0] != "Chess" {
		t.Errorf("Expected records set [Chess], got %v (err %v)", members, err)
	}

	for _, key := range []string{"playtime:log", "playtime:log:subject:42", "playtime:log:label:Chess"} {
		score, err := mr.ZScore(key, entry.ID)
		if err != nil {
			t.Errorf("Expected %s to index %s: %v", key, entry.ID, err)
			continue
		}
		if int64(score) != at.UnixMilli() {
			t.Errorf("Expected score %d in %s, got %f", at.UnixMilli(), key, score)
		}
	}

	if got := mr.HGet(entryKey(entry.ID), "minutes_added"); got != "2" {
		t.Errorf("Expected minutes_added 2, got %q", got)
	}
}

func TestUsageStore_GetRecordCorrupt(t *testing.T) {
	store, mr := setupTestStore(t)

	mr.HSet("playtime:record:Chess", "label", "Chess", "overall_minutes", "lots")

	if _, err := store.Usage().GetRecord(context.Background(), "Chess"); err == nil {
		t.Fatal("expected parse error for corrupt record")
	}
}
