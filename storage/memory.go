package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ssugameworks/ratedvc/constants"
	"github.com/ssugameworks/ratedvc/errors"
	"github.com/ssugameworks/ratedvc/interfaces"
	"github.com/ssugameworks/ratedvc/models"
)

// memoryState MemoryStore가 보관하는 전체 상태. 트랜잭션마다 복사본을 만들어 작업합니다
type memoryState struct {
	nextID  int64
	vcs     map[int64]*models.VirtualContest
	history []models.RatingRecord
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		nextID:  s.nextID,
		vcs:     make(map[int64]*models.VirtualContest, len(s.vcs)),
		history: append([]models.RatingRecord(nil), s.history...),
	}
	for id, vc := range s.vcs {
		c.vcs[id] = copyVC(vc)
	}
	return c
}

func copyVC(vc *models.VirtualContest) *models.VirtualContest {
	c := *vc
	c.ParticipantIDs = append([]string(nil), vc.ParticipantIDs...)
	return &c
}

// MemoryStore 테스트/개발용 비영구 VC 저장소 구현
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
}

// NewMemoryStore 새 인메모리 저장소 생성
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memoryState{nextID: 1, vcs: make(map[int64]*models.VirtualContest)},
	}
}

// ListOngoingVCIDs 진행 중인 VC ID를 오름차순으로 반환합니다
func (s *MemoryStore) ListOngoingVCIDs(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0)
	for id, vc := range s.state.vcs {
		if vc.Status == models.VCOngoing {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// GetVC VC 조회 (사본 반환)
func (s *MemoryStore) GetVC(ctx context.Context, vcID int64) (*models.VirtualContest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getVC(vcID)
}

// RunInTx 상태 사본 위에서 fn을 실행하고 성공했을 때만 반영합니다. 트랜잭션은 직렬로 실행됩니다
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx interfaces.VCTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(ctx, &memoryTx{state: working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

// CreateVC VC를 저장하고 새 ID를 반환합니다
func (s *MemoryStore) CreateVC(ctx context.Context, vc *models.VirtualContest) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyVC(vc)
	stored.ID = s.state.nextID
	s.state.nextID++
	if stored.Status == "" {
		stored.Status = models.VCOngoing
	}
	s.state.vcs[stored.ID] = stored
	return stored.ID, nil
}

// OngoingVCFor 참가자가 진행 중인 VC ID. 없으면 0
func (s *MemoryStore) OngoingVCFor(ctx context.Context, participantID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found int64
	for id, vc := range s.state.vcs {
		if vc.Status == models.VCOngoing && vc.HasParticipant(participantID) && (found == 0 || id < found) {
			found = id
		}
	}
	return found, nil
}

// GetRating 최신 레이팅. 이력이 없으면 기본 레이팅
func (s *MemoryStore) GetRating(ctx context.Context, participantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.rating(participantID), nil
}

// RatingHistory 참가자의 레이팅 이력 (반영 순서)
func (s *MemoryStore) RatingHistory(ctx context.Context, participantID string) ([]models.RatingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]models.RatingRecord, 0)
	for _, r := range s.state.history {
		if r.ParticipantID == participantID {
			records = append(records, r)
		}
	}
	return records, nil
}

// ListRatings 이력이 있는 참가자 전원의 최신 레이팅
func (s *MemoryStore) ListRatings(ctx context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ratings := make(map[string]int)
	for _, r := range s.state.history {
		ratings[r.ParticipantID] = r.NewRating
	}
	return ratings, nil
}

// Close no-op
func (s *MemoryStore) Close() error { return nil }

func (s *memoryState) getVC(vcID int64) (*models.VirtualContest, error) {
	vc, ok := s.vcs[vcID]
	if !ok {
		return nil, vcNotFound(vcID)
	}
	return copyVC(vc), nil
}

func (s *memoryState) rating(participantID string) int {
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].ParticipantID == participantID {
			return s.history[i].NewRating
		}
	}
	return constants.DefaultRating
}

// memoryTx 복사된 상태에 대한 트랜잭션 뷰
type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) GetVC(ctx context.Context, vcID int64) (*models.VirtualContest, error) {
	return t.state.getVC(vcID)
}

func (t *memoryTx) GetRating(ctx context.Context, participantID string) (int, error) {
	return t.state.rating(participantID), nil
}

func (t *memoryTx) AppendRatingRecord(ctx context.Context, vcID int64, participantID string, newRating int) error {
	if _, ok := t.state.vcs[vcID]; !ok {
		return vcNotFound(vcID)
	}
	t.state.history = append(t.state.history, models.RatingRecord{
		VCID:          vcID,
		ParticipantID: participantID,
		NewRating:     newRating,
	})
	return nil
}

func (t *memoryTx) SetVCStatus(ctx context.Context, vcID int64, status models.VCStatus) error {
	vc, ok := t.state.vcs[vcID]
	if !ok {
		return vcNotFound(vcID)
	}
	vc.Status = status
	return nil
}

func (t *memoryTx) RemoveParticipant(ctx context.Context, vcID int64, participantID string) error {
	vc, ok := t.state.vcs[vcID]
	if !ok {
		return vcNotFound(vcID)
	}
	vc.ParticipantIDs = removeString(vc.ParticipantIDs, participantID)
	return nil
}

func removeString(ids []string, target string) []string {
	kept := ids[:0]
	for _, id := range ids {
		if id != target {
			kept = append(kept, id)
		}
	}
	return kept
}

func vcNotFound(vcID int64) error {
	return errors.NewNotFoundError("VC_NOT_FOUND",
		fmt.Sprintf("virtual contest %d not found", vcID),
		"가상 대회를 찾을 수 없습니다.")
}
