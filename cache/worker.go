package cache

import (
	"context"
	"time"

	"github.com/ssugameworks/ratedvc/utils"
)

// Refresher 주기적으로 갱신할 캐시
type Refresher interface {
	Refresh(ctx context.Context, forced bool) error
}

// StartRefreshWorker 대회/문제 캐시의 TTL 갱신과 모니터링 중인 순위표 갱신을 주기적으로 수행합니다
func StartRefreshWorker(interval time.Duration, ranklists *RanklistCache, refreshers ...Refresher) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				for _, r := range refreshers {
					if err := r.Refresh(ctx, false); err != nil {
						utils.Warn("Periodic cache refresh failed: %v", err)
					}
				}
				if ranklists != nil {
					ranklists.RefreshMonitored(ctx)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return cancel
}
