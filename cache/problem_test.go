package cache

import (
	"context"
	"testing"

	"github.com/ssugameworks/ratedvc/constants"
	"github.com/ssugameworks/ratedvc/errors"
	"github.com/ssugameworks/ratedvc/models"
)

func newProblemCache(judge *fakeJudge, clock *fakeClock) *ProblemCache {
	c := NewProblemCache(judge, constants.ProblemCacheTTL)
	c.now = clock.Now
	return c
}

func TestProblemCache_NotCachedVersusNotFound(t *testing.T) {
	judge := &fakeJudge{
		problems: []models.Problem{
			{ContestID: 1, Index: "A", Name: "Alpha"},
			{ContestID: 1, Index: "B", Name: "Beta"},
		},
		problemsets: map[int][]models.Problem{
			2: {},
		},
	}
	cache := newProblemCache(judge, newFakeClock())
	ctx := context.Background()

	if err := cache.Refresh(ctx, false); err != nil {
		t.Fatalf("갱신 실패: %v", err)
	}

	if _, err := cache.Get(1, "A"); err != nil {
		t.Errorf("문제 1A를 찾을 수 없습니다: %v", err)
	}
	if _, err := cache.Get(1, "Z"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("캐시된 대회의 없는 문제는 NotFound여야 합니다: %v", err)
	}

	_, err := cache.GetProblemset(2)
	if !errors.Is(err, errors.ErrProblemsetNotCached) {
		t.Errorf("캐시되지 않은 대회는 ProblemsetNotCached여야 합니다: %v", err)
	}
	if errors.Is(err, errors.ErrNotFound) {
		t.Error("NotCached와 NotFound는 구분되어야 합니다")
	}

	problems, err := cache.CacheProblemset(ctx, 2)
	if err != nil {
		t.Fatalf("CacheProblemset 실패: %v", err)
	}
	if len(problems) != 0 {
		t.Errorf("빈 문제 목록이어야 합니다: %v", problems)
	}
	result := cache.LookupProblemset(2)
	if !result.OK() || len(result.Value) != 0 {
		t.Errorf("캐시되었지만 비어 있는 문제 목록은 Found여야 합니다: %s", result.Status)
	}
}

func TestProblemCache_RefreshKeepsIndividuallyCachedProblemsets(t *testing.T) {
	judge := &fakeJudge{
		problems:    []models.Problem{{ContestID: 1, Index: "A", Name: "Alpha"}},
		problemsets: map[int][]models.Problem{5: {{ContestID: 5, Index: "C", Name: "Gamma"}}},
	}
	cache := newProblemCache(judge, newFakeClock())
	ctx := context.Background()

	cache.Refresh(ctx, false)
	if _, err := cache.CacheProblemset(ctx, 5); err != nil {
		t.Fatalf("CacheProblemset 실패: %v", err)
	}
	if err := cache.Refresh(ctx, true); err != nil {
		t.Fatalf("강제 갱신 실패: %v", err)
	}

	if _, err := cache.Get(5, "C"); err != nil {
		t.Errorf("전체 갱신 후에도 개별로 캐시한 문제가 남아 있어야 합니다: %v", err)
	}
	if _, _, calls, _ := judge.calls(); calls != 2 {
		t.Errorf("전체 문제 조회는 2번이어야 합니다: %d", calls)
	}
}

func TestProblemCache_Problems(t *testing.T) {
	rating := 1600
	judge := &fakeJudge{problems: []models.Problem{
		{ContestID: 1, Index: "A", Name: "Alpha", Tags: []string{"math"}},
		{ContestID: 1, Index: "B", Name: "Beta", Rating: &rating, Tags: []string{"dp"}},
		{ContestID: 1, Index: "B", Name: "Duplicate"},
	}}
	cache := newProblemCache(judge, newFakeClock())
	cache.Refresh(context.Background(), false)

	dp := cache.Problems(func(p models.Problem) bool { return p.HasTag("dp") })
	if len(dp) != 1 || dp[0].Name != "Beta" {
		t.Errorf("dp 태그 문제는 Beta 하나여야 합니다: %v", dp)
	}
	if stats := cache.Stats(); stats.Entries != 2 {
		t.Errorf("중복을 제외하고 2문제여야 합니다: %d", stats.Entries)
	}
}
