package interfaces

import (
	"context"

	"github.com/ssugameworks/ratedvc/models"
)

// ContestSource 저지의 대회 목록을 제공합니다
type ContestSource interface {
	FetchContests(ctx context.Context) ([]*models.Contest, error)
	FetchContest(ctx context.Context, contestID int) (*models.Contest, error)
}

// ProblemSource 저지의 문제 목록을 제공합니다
type ProblemSource interface {
	FetchProblems(ctx context.Context) ([]models.Problem, error)
	FetchContestProblems(ctx context.Context, contestID int) ([]models.Problem, error)
}

// StandingsSource 대회 순위 원본을 제공합니다
type StandingsSource interface {
	FetchStandings(ctx context.Context, contestID int) (*models.Standings, error)
}

// JudgeSource 세 가지 원본을 모두 제공하는 저지 클라이언트
type JudgeSource interface {
	ContestSource
	ProblemSource
	StandingsSource
}
