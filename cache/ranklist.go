package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ssugameworks/ratedvc/constants"
	"github.com/ssugameworks/ratedvc/errors"
	"github.com/ssugameworks/ratedvc/interfaces"
	"github.com/ssugameworks/ratedvc/models"
	"github.com/ssugameworks/ratedvc/telemetry"
	"github.com/ssugameworks/ratedvc/utils"
)

// MonitorState 순위표 모니터링 상태
type MonitorState string

const (
	Unmonitored MonitorState = "UNMONITORED"
	Monitored   MonitorState = "MONITORED"
	Frozen      MonitorState = "FROZEN"
)

// monitorEntry 모니터링 중인 순위표. 교체만 하고 수정하지 않습니다
type monitorEntry struct {
	state       MonitorState
	ranklist    *models.Ranklist
	refreshedAt time.Time
}

// RanklistCache 진행 중이거나 막 끝난 대회의 순위표를 주기적으로 갱신하고,
// 그 외 대회의 순위표는 요청 시 즉석에서 생성합니다
type RanklistCache struct {
	contests *ContestCache
	source   interfaces.StandingsSource
	now      func() time.Time

	monitored atomic.Pointer[map[int]*monitorEntry]
	writeMu   sync.Mutex
	stats     counters
}

// NewRanklistCache 새로운 RanklistCache 인스턴스를 생성합니다
func NewRanklistCache(contests *ContestCache, source interfaces.StandingsSource) *RanklistCache {
	c := &RanklistCache{contests: contests, source: source, now: time.Now}
	empty := make(map[int]*monitorEntry)
	c.monitored.Store(&empty)
	return c
}

func (c *RanklistCache) entries() map[int]*monitorEntry {
	return *c.monitored.Load()
}

// State 대회의 모니터링 상태
func (c *RanklistCache) State(contestID int) MonitorState {
	if entry, ok := c.entries()[contestID]; ok {
		return entry.state
	}
	return Unmonitored
}

// Lookup 모니터링 중인 순위표를 찾습니다. 없으면 NotCached (RanklistNotMonitored)
func (c *RanklistCache) Lookup(contestID int) Lookup[*models.Ranklist] {
	entry, ok := c.entries()[contestID]
	if !ok {
		c.stats.misses.Add(1)
		telemetry.CacheLookups.WithLabelValues("ranklist", telemetry.OutcomeNotCached).Inc()
		return missing[*models.Ranklist](NotCached, errors.NewRanklistNotMonitoredError(contestID))
	}

	c.stats.hits.Add(1)
	telemetry.CacheLookups.WithLabelValues("ranklist", telemetry.OutcomeHit).Inc()
	age := c.now().Sub(entry.refreshedAt)
	stale := entry.state == Monitored && age >= 2*constants.MonitorRefreshInterval
	return Lookup[*models.Ranklist]{Value: entry.ranklist, Status: Found, Age: age, Stale: stale}
}

// Get 모니터링 중인 순위표
func (c *RanklistCache) Get(contestID int) (*models.Ranklist, error) {
	return c.Lookup(contestID).Unwrap()
}

// Monitor 대회가 진행 중이거나 종료 후 MonitorGrace 이내이면 모니터링을 시작하고 순위표를 반환합니다.
// 이미 모니터링 중이면 캐시된 순위표를 반환합니다
func (c *RanklistCache) Monitor(ctx context.Context, contestID int) (*models.Ranklist, error) {
	if entry, ok := c.entries()[contestID]; ok {
		return entry.ranklist, nil
	}

	contest, err := c.contests.Fetch(ctx, contestID)
	if err != nil {
		return nil, err
	}

	now := c.now()
	switch contest.Phase(now) {
	case models.PhaseBefore:
		return nil, errors.NewValidationError("CONTEST_NOT_STARTED",
			fmt.Sprintf("contest %d has not started", contestID),
			fmt.Sprintf("`%s` 대회가 아직 시작되지 않았습니다.", contest.Name))
	case models.PhaseFinished:
		if contest.FinishedFor(now) > constants.MonitorGrace {
			return nil, errors.NewRanklistNotMonitoredError(contestID)
		}
	}

	ranklist, err := c.build(ctx, contest)
	if err != nil {
		return nil, err
	}

	state := c.nextState(contest, ranklist, now)
	c.store(contestID, &monitorEntry{state: state, ranklist: ranklist, refreshedAt: now})
	utils.Info("Started monitoring ranklist of contest %d (%s)", contestID, state)
	return ranklist, nil
}

// RefreshMonitored MONITORED 상태의 순위표를 모두 다시 생성합니다.
// 종료 후 레이팅 변화가 게시되었거나 더 기다릴 필요가 없는 대회는 FROZEN으로 전환합니다
func (c *RanklistCache) RefreshMonitored(ctx context.Context) {
	for contestID, entry := range c.entries() {
		if entry.state != Monitored {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		contest := entry.ranklist.Contest
		ranklist, err := c.build(ctx, contest)
		if err != nil {
			c.stats.refreshFailures.Add(1)
			telemetry.CacheRefreshes.WithLabelValues("ranklist", telemetry.OutcomeFailed).Inc()
			utils.Warn("Refreshing monitored ranklist of contest %d failed, keeping previous: %v", contestID, err)
			continue
		}

		now := c.now()
		state := c.nextState(contest, ranklist, now)
		c.store(contestID, &monitorEntry{state: state, ranklist: ranklist, refreshedAt: now})
		c.stats.refreshes.Add(1)
		telemetry.CacheRefreshes.WithLabelValues("ranklist", telemetry.OutcomeSuccess).Inc()
		if state == Frozen {
			utils.Info("Froze ranklist of contest %d (rated: %t)", contestID, ranklist.IsRated)
		}
	}
	c.publishGauges()
}

// nextState 종료된 대회는 레이팅 변화가 게시되었을 때, 레이팅 정보가 전혀 없는 채로
// UnratedFreezeAfter가 지났을 때, 또는 MonitorGrace가 지났을 때 고정됩니다
func (c *RanklistCache) nextState(contest *models.Contest, ranklist *models.Ranklist, now time.Time) MonitorState {
	if contest.Phase(now) != models.PhaseFinished {
		return Monitored
	}
	finishedFor := contest.FinishedFor(now)
	switch {
	case ranklist.IsRated:
		return Frozen
	case len(ranklist.Field) == 0 && finishedFor >= constants.UnratedFreezeAfter:
		return Frozen
	case finishedFor >= constants.MonitorGrace:
		return Frozen
	default:
		return Monitored
	}
}

func (c *RanklistCache) store(contestID int, entry *monitorEntry) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	current := c.entries()
	next := make(map[int]*monitorEntry, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[contestID] = entry
	c.monitored.Store(&next)
}

// Generate 모니터링 여부와 관계없이 저지에서 순위표를 새로 만듭니다. 모니터링 캐시는 읽지도 바꾸지도 않습니다
func (c *RanklistCache) Generate(ctx context.Context, contestID int) (*models.Ranklist, error) {
	contest, err := c.contests.Fetch(ctx, contestID)
	if err != nil {
		return nil, err
	}
	return c.build(ctx, contest)
}

// GenerateForSubset VC 정산용 순위표. handles에 속한 VIRTUAL 참가자 줄만 남기고,
// 퍼포먼스 계산 기준이 되는 공식 참가자 정보(Field)는 그대로 유지합니다
func (c *RanklistCache) GenerateForSubset(ctx context.Context, contestID int, handles []string) (*models.Ranklist, error) {
	contest, err := c.contests.Fetch(ctx, contestID)
	if err != nil {
		return nil, err
	}

	standings, err := c.source.FetchStandings(ctx, contestID)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(handles))
	for _, handle := range handles {
		allowed[strings.ToLower(handle)] = true
	}

	rows := make([]models.StandingRow, 0, len(handles))
	for _, row := range standings.Rows {
		if row.Party.ParticipantType != models.ParticipantVirtual {
			continue
		}
		if !allowed[strings.ToLower(row.Handle())] {
			continue
		}
		rows = append(rows, row)
	}

	utils.Debug("Generated subset ranklist of contest %d: %d/%d handles present", contestID, len(rows), len(handles))
	return models.NewRanklist(contest, rows, nil, standings.Field, c.now()), nil
}

func (c *RanklistCache) build(ctx context.Context, contest *models.Contest) (*models.Ranklist, error) {
	standings, err := c.source.FetchStandings(ctx, contest.ID)
	if err != nil {
		return nil, err
	}
	return models.NewRanklist(contest, standings.Rows, standings.Deltas, standings.Field, c.now()), nil
}

// MonitoredContests 상태별 대회 ID 목록 (정렬됨)
func (c *RanklistCache) MonitoredContests(state MonitorState) []int {
	var ids []int
	for id, entry := range c.entries() {
		if entry.state == state {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

func (c *RanklistCache) publishGauges() {
	counts := map[MonitorState]int{Monitored: 0, Frozen: 0}
	for _, entry := range c.entries() {
		counts[entry.state]++
	}
	for state, count := range counts {
		telemetry.MonitoredRanklists.WithLabelValues(string(state)).Set(float64(count))
	}
}

// Stats 캐시 통계
func (c *RanklistCache) Stats() CacheStats {
	return CacheStats{
		Name:            "ranklist",
		Entries:         len(c.entries()),
		Hits:            c.stats.hits.Load(),
		Misses:          c.stats.misses.Load(),
		Refreshes:       c.stats.refreshes.Load(),
		RefreshFailures: c.stats.refreshFailures.Load(),
		Populated:       true,
	}
}
