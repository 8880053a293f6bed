package interfaces

import (
	"context"

	"github.com/ssugameworks/ratedvc/models"
)

// VCTx 한 트랜잭션 안에서 수행하는 VC 정산 작업입니다.
// Firestore 트랜잭션 제약 때문에 모든 읽기는 쓰기보다 먼저 수행해야 합니다
type VCTx interface {
	GetVC(ctx context.Context, vcID int64) (*models.VirtualContest, error)
	GetRating(ctx context.Context, participantID string) (int, error)
	AppendRatingRecord(ctx context.Context, vcID int64, participantID string, newRating int) error
	SetVCStatus(ctx context.Context, vcID int64, status models.VCStatus) error
	RemoveParticipant(ctx context.Context, vcID int64, participantID string) error
}

// VCStore 가상 대회와 레이팅 이력 저장소입니다
type VCStore interface {
	ListOngoingVCIDs(ctx context.Context) ([]int64, error)
	GetVC(ctx context.Context, vcID int64) (*models.VirtualContest, error)
	// RunInTx fn을 하나의 트랜잭션으로 실행합니다. fn이 오류를 반환하면 아무것도 반영되지 않습니다
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx VCTx) error) error

	CreateVC(ctx context.Context, vc *models.VirtualContest) (int64, error)
	// OngoingVCFor 참가자가 진행 중인 VC ID를 반환합니다. 없으면 0
	OngoingVCFor(ctx context.Context, participantID string) (int64, error)
	GetRating(ctx context.Context, participantID string) (int, error)
	RatingHistory(ctx context.Context, participantID string) ([]models.RatingRecord, error)
	ListRatings(ctx context.Context) (map[string]int, error)

	Close() error
}
