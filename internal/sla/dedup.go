package sla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"protocolo-municipal/internal/calendar"
	"protocolo-municipal/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// dedupTTL outlives the day the key refers to, with margin for timezones.
const dedupTTL = 48 * time.Hour

func dedupKey(recordID int64, level Level, day time.Time) string {
	return fmt.Sprintf("sla:alert:%d:%s:%s", recordID, level, calendar.Format(day))
}

// MemoryDeduper is an in-process Deduper. It only deduplicates within one
// process; use RedisDeduper when several workers sweep concurrently.
// Keys are grouped per day and days before the one being claimed are
// dropped, so a long-running API keeps at most one day of keys.
type MemoryDeduper struct {
	mu   sync.Mutex
	days map[string]map[string]struct{}
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{days: make(map[string]map[string]struct{})}
}

func (m *MemoryDeduper) Claim(ctx context.Context, recordID int64, level Level, day time.Time) (bool, error) {
	today := calendar.Format(day)
	key := dedupKey(recordID, level, day)
	m.mu.Lock()
	defer m.mu.Unlock()
	for d := range m.days {
		// YYYY-MM-DD sorts chronologically.
		if d < today {
			delete(m.days, d)
		}
	}
	seen, ok := m.days[today]
	if !ok {
		seen = make(map[string]struct{})
		m.days[today] = seen
	}
	if _, ok := seen[key]; ok {
		return false, nil
	}
	seen[key] = struct{}{}
	return true, nil
}

func (m *MemoryDeduper) keys() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, seen := range m.days {
		n += len(seen)
	}
	return n
}

// RedisDeduper claims alert keys with SET NX so concurrent sweeps agree.
type RedisDeduper struct {
	rdb *redis.Client
}

func NewRedisDeduper(rdb *redis.Client) *RedisDeduper {
	return &RedisDeduper{rdb: rdb}
}

func (r *RedisDeduper) Claim(ctx context.Context, recordID int64, level Level, day time.Time) (bool, error) {
	return utils.ClaimOnce(ctx, r.rdb, dedupKey(recordID, level, day), dedupTTL)
}
