package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/ssugameworks/ratedvc/constants"
	"github.com/ssugameworks/ratedvc/errors"
	"github.com/ssugameworks/ratedvc/interfaces"
	"github.com/ssugameworks/ratedvc/models"
	"github.com/ssugameworks/ratedvc/utils"
)

// problemData 문제 스냅샷. problemsets에 키가 있으면 (비어 있더라도) 캐시된 것입니다
type problemData struct {
	byKey       map[models.ProblemKey]models.Problem
	problemsets map[int][]models.Problem
}

// ProblemCache 문제와 대회별 문제 목록 캐시
type ProblemCache struct {
	*snapshotCache[problemData]
	source interfaces.ProblemSource
}

// NewProblemCache 새로운 ProblemCache 인스턴스를 생성합니다
func NewProblemCache(source interfaces.ProblemSource, ttl time.Duration) *ProblemCache {
	if ttl <= 0 {
		ttl = constants.ProblemCacheTTL
	}
	c := &ProblemCache{source: source}
	c.snapshotCache = newSnapshotCache("problem", ttl, c.load)
	return c
}

// Refresh forced이거나 TTL이 지났으면 전체 문제 목록을 다시 가져옵니다
func (c *ProblemCache) Refresh(ctx context.Context, forced bool) error {
	_, err := c.refresh(ctx, forced)
	return err
}

func (c *ProblemCache) load(ctx context.Context) (problemData, error) {
	problems, err := c.source.FetchProblems(ctx)
	if err != nil {
		return problemData{}, err
	}

	data := buildProblemData(problems)

	// 전체 목록에 없는 대회의 문제 목록은 이전 스냅샷에서 이어받습니다
	if previous := c.snapshot(); previous != nil {
		for contestID, problemset := range previous.data.problemsets {
			if _, ok := data.problemsets[contestID]; ok {
				continue
			}
			data.problemsets[contestID] = problemset
			for _, p := range problemset {
				data.byKey[p.Key()] = p
			}
		}
	}
	return data, nil
}

func buildProblemData(problems []models.Problem) problemData {
	data := problemData{
		byKey:       make(map[models.ProblemKey]models.Problem, len(problems)),
		problemsets: make(map[int][]models.Problem),
	}
	for _, p := range problems {
		if _, dup := data.byKey[p.Key()]; dup {
			continue
		}
		data.byKey[p.Key()] = p
		data.problemsets[p.ContestID] = append(data.problemsets[p.ContestID], p)
	}
	return data
}

// LookupProblemset 대회의 문제 목록을 찾습니다. 캐시된 적 없으면 NotCached
func (c *ProblemCache) LookupProblemset(contestID int) Lookup[[]models.Problem] {
	s := c.snapshot()
	if s == nil {
		c.recordLookup(NotCached, false)
		return missing[[]models.Problem](NotCached, errors.NewProblemsetNotCachedError(contestID))
	}
	problemset, ok := s.data.problemsets[contestID]
	if !ok {
		c.recordLookup(NotCached, false)
		return missing[[]models.Problem](NotCached, errors.NewProblemsetNotCachedError(contestID))
	}

	result := found(problemset, c.age(s), c.ttl)
	c.recordLookup(Found, result.Stale)
	return result
}

// GetProblemset 대회의 문제 목록
func (c *ProblemCache) GetProblemset(contestID int) ([]models.Problem, error) {
	return c.LookupProblemset(contestID).Unwrap()
}

// Lookup 문제 하나를 찾습니다. 대회 문제 목록이 캐시되었는데 인덱스가 없으면 NotFound
func (c *ProblemCache) Lookup(contestID int, index string) Lookup[models.Problem] {
	problemset := c.LookupProblemset(contestID)
	if !problemset.OK() {
		return missing[models.Problem](problemset.Status, problemset.Err())
	}
	for _, p := range problemset.Value {
		if p.Index == index {
			return Lookup[models.Problem]{Value: p, Status: Found, Stale: problemset.Stale, Age: problemset.Age}
		}
	}
	return missing[models.Problem](NotFound, errors.NewNotFoundError("PROBLEM_NOT_FOUND",
		fmt.Sprintf("problem %d%s not found", contestID, index),
		fmt.Sprintf("문제 %d%s를 찾을 수 없습니다.", contestID, index)))
}

// Get 문제 하나
func (c *ProblemCache) Get(contestID int, index string) (models.Problem, error) {
	return c.Lookup(contestID, index).Unwrap()
}

// CacheProblemset 한 대회의 문제 목록을 저지에서 가져와 캐시에 추가합니다.
// 종료된 대회의 문제는 바뀌지 않으므로 이미 캐시되어 있으면 다시 가져오지 않습니다
func (c *ProblemCache) CacheProblemset(ctx context.Context, contestID int) ([]models.Problem, error) {
	if existing := c.LookupProblemset(contestID); existing.OK() {
		return existing.Value, nil
	}

	problems, err := c.source.FetchContestProblems(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if problems == nil {
		problems = []models.Problem{}
	}

	c.patch(func(current *snapshot[problemData]) (problemData, bool) {
		next := problemData{
			byKey:       make(map[models.ProblemKey]models.Problem),
			problemsets: make(map[int][]models.Problem),
		}
		if current != nil {
			for k, v := range current.data.byKey {
				next.byKey[k] = v
			}
			for k, v := range current.data.problemsets {
				next.problemsets[k] = v
			}
		}
		next.problemsets[contestID] = problems
		for _, p := range problems {
			next.byKey[p.Key()] = p
		}
		return next, true
	})

	utils.Debug("Cached problemset of contest %d (%d problems)", contestID, len(problems))
	return problems, nil
}

// Problems filter를 통과하는 모든 문제
func (c *ProblemCache) Problems(filter func(models.Problem) bool) []models.Problem {
	s := c.snapshot()
	if s == nil {
		return nil
	}
	var result []models.Problem
	for _, p := range s.data.byKey {
		if filter == nil || filter(p) {
			result = append(result, p)
		}
	}
	return result
}

// Stats 캐시 통계
func (c *ProblemCache) Stats() CacheStats {
	entries := 0
	if s := c.snapshot(); s != nil {
		entries = len(s.data.byKey)
	}
	return c.statsWith(entries)
}
