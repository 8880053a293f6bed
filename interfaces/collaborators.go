package interfaces

import (
	"context"

	"github.com/ssugameworks/ratedvc/models"
)

// IdentityLookup 참가자 ID를 저지 핸들로 변환합니다. 알 수 없으면 ok=false
type IdentityLookup interface {
	HandleFor(ctx context.Context, participantID, groupID string) (handle string, ok bool, err error)
}

// SubmissionStatus 채점 대기 중인 제출이 있는지 확인합니다
type SubmissionStatus interface {
	PendingJudgement(ctx context.Context, handle string, contestID int, window models.TimeWindow) (bool, error)
}

// Notifier 정산 결과를 외부로 알립니다
type Notifier interface {
	VCStandings(ctx context.Context, vc *models.VirtualContest, ranklist *models.Ranklist) error
	VCResults(ctx context.Context, result *models.SettlementResult) error
}

// RanklistGenerator VC 정산용 순위표를 만듭니다
type RanklistGenerator interface {
	GenerateForSubset(ctx context.Context, contestID int, handles []string) (*models.Ranklist, error)
}

// ContestFetcher 캐시에 없으면 원격에서 대회 하나를 가져옵니다
type ContestFetcher interface {
	Fetch(ctx context.Context, contestID int) (*models.Contest, error)
}

// RanklistReader 대회 전체 순위표를 만듭니다
type RanklistReader interface {
	Generate(ctx context.Context, contestID int) (*models.Ranklist, error)
}

// SubmissionHistory 대회에 제출한 적이 있는지 확인합니다
type SubmissionHistory interface {
	HasSubmissions(ctx context.Context, handle string, contestID int) (bool, error)
}
