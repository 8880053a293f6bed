package cache

import (
	"sync/atomic"
	"time"
)

// counters 캐시별 누적 지표
type counters struct {
	hits            atomic.Int64
	misses          atomic.Int64
	refreshes       atomic.Int64
	refreshFailures atomic.Int64
}

// CacheStats 캐시 통계 정보를 나타냅니다
type CacheStats struct {
	Name            string
	Entries         int
	Hits            int64
	Misses          int64
	Refreshes       int64
	RefreshFailures int64
	Age             time.Duration
	Populated       bool
}

// HitRate 적중률 (0~1)
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (c *snapshotCache[T]) statsWith(entries int) CacheStats {
	stats := CacheStats{
		Name:            c.name,
		Entries:         entries,
		Hits:            c.stats.hits.Load(),
		Misses:          c.stats.misses.Load(),
		Refreshes:       c.stats.refreshes.Load(),
		RefreshFailures: c.stats.refreshFailures.Load(),
	}
	if s := c.snapshot(); s != nil {
		stats.Populated = true
		stats.Age = c.age(s)
	}
	return stats
}
