package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ssugameworks/ratedvc/telemetry"
	"github.com/ssugameworks/ratedvc/utils"
)

// snapshot 한 번의 갱신으로 만들어진 불변 데이터
type snapshot[T any] struct {
	data        T
	refreshedAt time.Time
}

// snapshotCache 원자적 교체 방식의 공통 캐시. 읽기는 잠금 없이 현재 스냅샷만 참조하고
// 쓰기(refresh, patch)는 refreshMu로 한 번에 하나씩 수행합니다
type snapshotCache[T any] struct {
	name      string
	ttl       time.Duration
	now       func() time.Time
	load      func(ctx context.Context) (T, error)
	current   atomic.Pointer[snapshot[T]]
	refreshMu sync.Mutex
	stats     *counters
}

func newSnapshotCache[T any](name string, ttl time.Duration, load func(ctx context.Context) (T, error)) *snapshotCache[T] {
	return &snapshotCache[T]{
		name:  name,
		ttl:   ttl,
		now:   time.Now,
		load:  load,
		stats: &counters{},
	}
}

// snapshot 현재 스냅샷. 한 번도 채워지지 않았으면 nil
func (c *snapshotCache[T]) snapshot() *snapshot[T] {
	return c.current.Load()
}

func (c *snapshotCache[T]) age(s *snapshot[T]) time.Duration {
	return c.now().Sub(s.refreshedAt)
}

// refresh forced이거나 TTL이 지났으면 전체를 다시 읽어 스냅샷을 교체합니다.
// 실패하면 이전 스냅샷을 유지하고 로그만 남기며, 이전 스냅샷이 없을 때만 오류를 반환합니다
func (c *snapshotCache[T]) refresh(ctx context.Context, forced bool) (bool, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	previous := c.current.Load()
	if !forced && previous != nil && c.age(previous) < c.ttl {
		return false, nil
	}

	started := c.now()
	data, err := c.load(ctx)
	if err != nil {
		telemetry.CacheRefreshes.WithLabelValues(c.name, telemetry.OutcomeFailed).Inc()
		c.stats.refreshFailures.Add(1)
		if previous == nil {
			utils.Error("Initial %s cache population failed: %v", c.name, err)
			return false, err
		}
		utils.Warn("Refreshing %s cache failed, serving snapshot from %s: %v",
			c.name, utils.FormatDateTime(previous.refreshedAt), err)
		return false, nil
	}

	c.current.Store(&snapshot[T]{data: data, refreshedAt: started})
	telemetry.CacheRefreshes.WithLabelValues(c.name, telemetry.OutcomeSuccess).Inc()
	c.stats.refreshes.Add(1)
	utils.Debug("Refreshed %s cache (forced: %t)", c.name, forced)
	return true, nil
}

// install 외부에서 만든 스냅샷을 설치합니다 (영속화된 스냅샷 복원, 단건 추가)
func (c *snapshotCache[T]) install(data T, refreshedAt time.Time) {
	c.current.Store(&snapshot[T]{data: data, refreshedAt: refreshedAt})
}

// patch 현재 스냅샷을 복사해 수정한 새 스냅샷으로 교체합니다. 갱신 시각은 유지됩니다
func (c *snapshotCache[T]) patch(fn func(current *snapshot[T]) (T, bool)) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	current := c.current.Load()
	data, ok := fn(current)
	if !ok {
		return
	}
	refreshedAt := time.Time{}
	if current != nil {
		refreshedAt = current.refreshedAt
	}
	c.current.Store(&snapshot[T]{data: data, refreshedAt: refreshedAt})
}

func (c *snapshotCache[T]) recordLookup(status Status, stale bool) {
	outcome := telemetry.OutcomeHit
	switch status {
	case NotFound:
		outcome = telemetry.OutcomeMiss
		c.stats.misses.Add(1)
	case NotCached:
		outcome = telemetry.OutcomeNotCached
		c.stats.misses.Add(1)
	default:
		c.stats.hits.Add(1)
		if stale {
			outcome = telemetry.OutcomeStale
		}
	}
	telemetry.CacheLookups.WithLabelValues(c.name, outcome).Inc()
}
