package usage

import (
	"maps"
	"sync"
	"time"

	"github.com/goodtune/playtime/internal/metrics"
	"github.com/goodtune/playtime/internal/storage"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// RecordCache keeps recently read or written usage records by label.
//
// Writes go through Add. Reads that miss and go to the store fill the cache
// with Fill, which never replaces a record written after the read started.
type RecordCache struct {
	lru *expirable.LRU[string, storage.UsageRecord]

	mu     sync.Mutex
	writes uint64
}

// NewRecordCache creates a cache holding at most size records for ttl each.
func NewRecordCache(size int, ttl time.Duration) *RecordCache {
	return &RecordCache{
		lru: expirable.NewLRU[string, storage.UsageRecord](size, nil, ttl),
	}
}

// Get returns a copy of the cached record for label.
func (c *RecordCache) Get(label string) (storage.UsageRecord, bool) {
	record, ok := c.lru.Get(label)
	if !ok {
		metrics.RecordCacheLookups.WithLabelValues("miss").Inc()
		return storage.UsageRecord{}, false
	}
	metrics.RecordCacheLookups.WithLabelValues("hit").Inc()
	return clone(record), true
}

// Add stores a copy of a freshly committed record.
func (c *RecordCache) Add(record storage.UsageRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	c.lru.Add(record.Label, clone(record))
}

// Version returns the number of writes so far. Take it before reading a
// record from the store and pass it to Fill.
func (c *RecordCache) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

// Fill caches a record read from the store, unless Add ran since version was
// taken. It reports whether the record was cached.
func (c *RecordCache) Fill(record storage.UsageRecord, version uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writes != version {
		return false
	}
	c.lru.Add(record.Label, clone(record))
	return true
}

// Remove drops label from the cache.
func (c *RecordCache) Remove(label string) {
	c.lru.Remove(label)
}

// Len returns the number of cached records.
func (c *RecordCache) Len() int {
	return c.lru.Len()
}

func clone(record storage.UsageRecord) storage.UsageRecord {
	record.PerUserMinutes = maps.Clone(record.PerUserMinutes)
	return record
}
