package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a miniredis instance for testing Lua scripts
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func runRecordScript(ctx context.Context, t *testing.T, client *redis.Client, id string, subject string, minutes int64, score int64) map[string]string {
	t.Helper()

	keys := []string{
		"playtime:record:Poker",
		"playtime:records",
		"playtime:entry:" + id,
		"playtime:log",
		"playtime:log:subject:" + subject,
		"playtime:log:label:Poker",
	}
	args := []interface{}{"Poker", "user:" + subject, minutes, id, subject, "2024-01-01T00:00:00Z", score}

	reply, err := redis.NewScript(recordSessionScript).Run(ctx, client, keys, args...).Result()
	if err != nil {
		t.Fatalf("Script execution failed: %v", err)
	}
	data, err := pairsToMap(reply)
	if err != nil {
		t.Fatalf("Failed to decode script reply: %v", err)
	}
	return data
}

func TestRecordSessionScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	tests := []struct {
		name        string
		id          string
		subject     string
		minutes     int64
		wantOverall string
		wantUser    string
		wantLogSize int
	}{
		{
			name:        "first entry creates record",
			id:          "1000:5:Poker",
			subject:     "5",
			minutes:     12,
			wantOverall: "12",
			wantUser:    "12",
			wantLogSize: 1,
		},
		{
			name:        "second subject adds to overall",
			id:          "2000:6:Poker",
			subject:     "6",
			minutes:     3,
			wantOverall: "15",
			wantUser:    "3",
			wantLogSize: 2,
		},
		{
			name:        "replayed entry is skipped",
			id:          "1000:5:Poker",
			subject:     "5",
			minutes:     12,
			wantOverall: "15",
			wantUser:    "12",
			wantLogSize: 2,
		},
		{
			name:        "zero minutes still logged",
			id:          "3000:5:Poker",
			subject:     "5",
			minutes:     0,
			wantOverall: "15",
			wantUser:    "12",
			wantLogSize: 3,
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := runRecordScript(ctx, t, client, tt.id, tt.subject, tt.minutes, int64(1000*(i+1)))

			if data["label"] != "Poker" {
				t.Errorf("Expected label Poker, got %q", data["label"])
			}
			if data["overall_minutes"] != tt.wantOverall {
				t.Errorf("Expected overall %s, got %s", tt.wantOverall, data["overall_minutes"])
			}
			if data["user:"+tt.subject] != tt.wantUser {
				t.Errorf("Expected user minutes %s, got %s", tt.wantUser, data["user:"+tt.subject])
			}

			members, err := mr.ZMembers("playtime:log")
			if err != nil {
				t.Fatalf("Failed to read log index: %v", err)
			}
			if len(members) != tt.wantLogSize {
				t.Errorf("Expected %d log entries, got %d", tt.wantLogSize, len(members))
			}
		})
	}
}

func TestPairsToMap(t *testing.T) {
	data, err := pairsToMap([]interface{}{"label", "Go", "overall_minutes", int64(4)})
	if err != nil {
		t.Fatalf("pairsToMap failed: %v", err)
	}
	if data["label"] != "Go" || data["overall_minutes"] != "4" {
		t.Errorf("Unexpected map: %v", data)
	}

	if _, err := pairsToMap([]interface{}{"odd"}); err == nil {
		t.Error("Expected error for odd reply")
	}
	if _, err := pairsToMap("OK"); err == nil {
		t.Error("Expected error for non-array reply")
	}
}
