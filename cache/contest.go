package cache

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ssugameworks/ratedvc/constants"
	"github.com/ssugameworks/ratedvc/errors"
	"github.com/ssugameworks/ratedvc/interfaces"
	"github.com/ssugameworks/ratedvc/models"
	"github.com/ssugameworks/ratedvc/utils"
)

// ContestSnapshot 영속화되는 대회 목록 스냅샷
type ContestSnapshot struct {
	QueryTime time.Time         `json:"querytime"`
	Objects   []*models.Contest `json:"objects"`
}

// SnapshotStore 대회 스냅샷을 프로세스 밖에 보관합니다
type SnapshotStore interface {
	// LoadContests 저장된 스냅샷이 없으면 nil, nil
	LoadContests(ctx context.Context) (*ContestSnapshot, error)
	SaveContests(ctx context.Context, snapshot *ContestSnapshot) error
}

type contestData struct {
	byID   map[int]*models.Contest
	sorted []*models.Contest
}

// ContestCache 대회 목록 캐시
type ContestCache struct {
	*snapshotCache[contestData]
	source interfaces.ContestSource
	store  SnapshotStore
}

// NewContestCache 새로운 ContestCache 인스턴스를 생성합니다. store는 nil일 수 있습니다
func NewContestCache(source interfaces.ContestSource, store SnapshotStore, ttl time.Duration) *ContestCache {
	if ttl <= 0 {
		ttl = constants.ContestCacheTTL
	}
	c := &ContestCache{source: source, store: store}
	c.snapshotCache = newSnapshotCache("contest", ttl, c.load)
	return c
}

// Init 저장된 스냅샷을 복원하고, 없거나 TTL이 지났으면 새로 가져옵니다
func (c *ContestCache) Init(ctx context.Context) error {
	if c.store != nil {
		saved, err := c.store.LoadContests(ctx)
		switch {
		case err != nil:
			utils.Warn("Failed to load persisted contest snapshot: %v", err)
		case saved != nil:
			c.install(indexContests(saved.Objects), saved.QueryTime)
			utils.Info("Restored %d contests from snapshot taken at %s",
				len(saved.Objects), utils.FormatDateTime(saved.QueryTime))
		}
	}
	return c.Refresh(ctx, false)
}

// Refresh forced이거나 TTL이 지났으면 대회 목록을 다시 가져옵니다
func (c *ContestCache) Refresh(ctx context.Context, forced bool) error {
	_, err := c.refresh(ctx, forced)
	return err
}

func (c *ContestCache) load(ctx context.Context) (contestData, error) {
	contests, err := c.source.FetchContests(ctx)
	if err != nil {
		return contestData{}, err
	}

	if c.store != nil {
		snapshot := &ContestSnapshot{QueryTime: c.now(), Objects: contests}
		if err := c.store.SaveContests(ctx, snapshot); err != nil {
			utils.Warn("Failed to persist contest snapshot: %v", err)
		}
	}
	return indexContests(contests), nil
}

func indexContests(contests []*models.Contest) contestData {
	data := contestData{
		byID:   make(map[int]*models.Contest, len(contests)),
		sorted: make([]*models.Contest, 0, len(contests)),
	}
	for _, contest := range contests {
		if contest == nil {
			continue
		}
		if _, dup := data.byID[contest.ID]; dup {
			continue
		}
		data.byID[contest.ID] = contest
		data.sorted = append(data.sorted, contest)
	}
	sort.SliceStable(data.sorted, func(i, j int) bool {
		return data.sorted[i].StartTimeSeconds < data.sorted[j].StartTimeSeconds
	})
	return data
}

// Lookup 캐시에서만 대회를 찾습니다
func (c *ContestCache) Lookup(contestID int) Lookup[*models.Contest] {
	s := c.snapshot()
	if s == nil {
		c.recordLookup(NotCached, false)
		return missing[*models.Contest](NotCached, errors.NewSystemError("CONTEST_CACHE_EMPTY",
			"contest cache has not been populated", nil))
	}

	contest, ok := s.data.byID[contestID]
	if !ok {
		c.recordLookup(NotFound, false)
		return missing[*models.Contest](NotFound, contestNotFound(contestID))
	}

	result := found(contest, c.age(s), c.ttl)
	c.recordLookup(Found, result.Stale)
	return result
}

// Get 캐시에서 대회를 찾습니다
func (c *ContestCache) Get(contestID int) (*models.Contest, error) {
	return c.Lookup(contestID).Unwrap()
}

// Fetch 캐시에 없으면 저지에서 단건 조회합니다. 조회 결과는 다음 갱신 전까지 스냅샷에 추가됩니다
func (c *ContestCache) Fetch(ctx context.Context, contestID int) (*models.Contest, error) {
	if result := c.Lookup(contestID); result.OK() {
		return result.Value, nil
	}

	contest, err := c.source.FetchContest(ctx, contestID)
	if err != nil {
		return nil, err
	}

	c.patch(func(current *snapshot[contestData]) (contestData, bool) {
		var contests []*models.Contest
		if current != nil {
			if _, exists := current.data.byID[contest.ID]; exists {
				return contestData{}, false
			}
			contests = append(contests, current.data.sorted...)
		}
		contests = append(contests, contest)
		return indexContests(contests), true
	})
	return contest, nil
}

// Contests 시작 시각 순으로 정렬된 대회 중 filter를 통과하는 것만 반환합니다
func (c *ContestCache) Contests(filter func(*models.Contest) bool) []*models.Contest {
	s := c.snapshot()
	if s == nil {
		return nil
	}
	var result []*models.Contest
	for _, contest := range s.data.sorted {
		if filter == nil || filter(contest) {
			result = append(result, contest)
		}
	}
	return result
}

// ContestsInPhase now 기준으로 해당 단계에 있는 대회 목록
func (c *ContestCache) ContestsInPhase(phase models.Phase) []*models.Contest {
	now := c.now()
	return c.Contests(func(contest *models.Contest) bool {
		return contest.Phase(now) == phase
	})
}

// Stats 캐시 통계
func (c *ContestCache) Stats() CacheStats {
	entries := 0
	if s := c.snapshot(); s != nil {
		entries = len(s.data.byID)
	}
	return c.statsWith(entries)
}

func contestNotFound(contestID int) error {
	return errors.NewNotFoundError("CONTEST_NOT_FOUND",
		fmt.Sprintf("contest %d not found", contestID),
		fmt.Sprintf("대회 %d를 찾을 수 없습니다.", contestID))
}
