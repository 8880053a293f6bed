package vc

import (
	"context"
	"fmt"
	"time"

	"github.com/ssugameworks/ratedvc/config"
	"github.com/ssugameworks/ratedvc/constants"
	"github.com/ssugameworks/ratedvc/errors"
	"github.com/ssugameworks/ratedvc/interfaces"
	"github.com/ssugameworks/ratedvc/models"
	"github.com/ssugameworks/ratedvc/utils"
)

// Service 레이팅 VC 생성과 참가 취소를 담당합니다
type Service struct {
	store       interfaces.VCStore
	contests    interfaces.ContestFetcher
	ranklists   interfaces.RanklistReader
	identity    interfaces.IdentityLookup
	submissions interfaces.SubmissionHistory

	extraTime       time.Duration
	minRated        int
	maxParticipants int
}

// NewService VC 서비스를 생성합니다
func NewService(store interfaces.VCStore, contests interfaces.ContestFetcher, ranklists interfaces.RanklistReader,
	identity interfaces.IdentityLookup, submissions interfaces.SubmissionHistory, cfg config.SchedulerConfig) *Service {
	s := &Service{
		store:           store,
		contests:        contests,
		ranklists:       ranklists,
		identity:        identity,
		submissions:     submissions,
		extraTime:       cfg.ExtraTime,
		minRated:        cfg.MinRated,
		maxParticipants: constants.MaxVCParticipants,
	}
	if s.extraTime <= 0 {
		s.extraTime = constants.VCExtraTime
	}
	if s.minRated <= 0 {
		s.minRated = constants.MinRatedContestants
	}
	return s
}

// CreateRequest VC 생성 요청
type CreateRequest struct {
	ContestID      int
	GroupID        string
	ParticipantIDs []string
}

// Create 끝난 레이팅 대회를 가상으로 다시 치르는 VC를 만듭니다.
// 종료 시각은 now + 대회 시간 + 추가 시간입니다
func (s *Service) Create(ctx context.Context, req CreateRequest, now time.Time) (*models.VirtualContest, error) {
	participants, err := s.validateParticipants(req.ParticipantIDs)
	if err != nil {
		return nil, err
	}

	contest, err := s.contests.Fetch(ctx, req.ContestID)
	if err != nil {
		return nil, err
	}
	if contest.Phase(now) != models.PhaseFinished {
		return nil, errors.NewValidationError("CONTEST_NOT_FINISHED",
			fmt.Sprintf("contest %d is %s", contest.ID, contest.Phase(now)),
			"끝난 대회만 가상 대회로 진행할 수 있습니다.")
	}

	ranklist, err := s.ranklists.Generate(ctx, req.ContestID)
	if err != nil {
		return nil, err
	}
	if rated := len(ranklist.DeltaByHandle); rated < s.minRated {
		return nil, errors.NewValidationError("CONTEST_NOT_RATED",
			fmt.Sprintf("contest %d is rated for %d contestants, need %d", contest.ID, rated, s.minRated),
			fmt.Sprintf("레이팅이 반영된 참가자가 %d명 이상인 대회만 가능합니다.", s.minRated))
	}

	for _, pid := range participants {
		if err := s.checkEligible(ctx, pid, req.GroupID, req.ContestID); err != nil {
			return nil, err
		}
	}

	vc := &models.VirtualContest{
		ContestID:      req.ContestID,
		GroupID:        req.GroupID,
		StartTime:      now,
		FinishTime:     now.Add(contest.Duration() + s.extraTime),
		Status:         models.VCOngoing,
		ParticipantIDs: participants,
	}
	id, err := s.store.CreateVC(ctx, vc)
	if err != nil {
		return nil, err
	}
	vc.ID = id

	utils.Info("VC %d created: contest %d, %d participants, finishes at %s",
		id, req.ContestID, len(participants), utils.FormatDateTime(vc.FinishTime))
	return vc, nil
}

// validateParticipants 빈 ID와 중복을 거르고 인원 제한을 확인합니다
func (s *Service) validateParticipants(ids []string) ([]string, error) {
	seen := make(map[string]bool, len(ids))
	participants := make([]string, 0, len(ids))
	for _, id := range ids {
		id = utils.SanitizeString(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		participants = append(participants, id)
	}

	if len(participants) == 0 {
		return nil, errors.NewValidationError("NO_PARTICIPANTS", "no participants", "참가자가 없습니다.")
	}
	if len(participants) > s.maxParticipants {
		return nil, errors.NewValidationError("TOO_MANY_PARTICIPANTS",
			fmt.Sprintf("%d participants exceed limit %d", len(participants), s.maxParticipants),
			fmt.Sprintf("참가자는 최대 %d명까지 가능합니다.", s.maxParticipants))
	}
	return participants, nil
}

// checkEligible 진행 중인 VC가 없고, 핸들이 확인되며, 해당 대회에 제출한 적이 없어야 합니다
func (s *Service) checkEligible(ctx context.Context, participantID, groupID string, contestID int) error {
	ongoing, err := s.store.OngoingVCFor(ctx, participantID)
	if err != nil {
		return err
	}
	if ongoing != 0 {
		return errors.NewConflictError("ALREADY_IN_VC",
			fmt.Sprintf("participant %s is in ongoing VC %d", participantID, ongoing),
			"이미 진행 중인 가상 대회에 참가하고 있습니다.")
	}

	handle, ok, err := s.identity.HandleFor(ctx, participantID, groupID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NewValidationError("HANDLE_NOT_REGISTERED",
			fmt.Sprintf("participant %s has no handle", participantID),
			"등록된 핸들이 없습니다.")
	}

	submitted, err := s.submissions.HasSubmissions(ctx, handle, contestID)
	if err != nil {
		return err
	}
	if submitted {
		return errors.NewValidationError("ALREADY_SUBMITTED",
			fmt.Sprintf("%s already submitted to contest %d", handle, contestID),
			"이미 제출한 적이 있는 대회입니다.")
	}
	return nil
}

// Unregister 참가자를 진행 중인 VC에서 뺍니다. 반환값은 해당 VC ID
func (s *Service) Unregister(ctx context.Context, participantID string) (int64, error) {
	vcID, err := s.store.OngoingVCFor(ctx, participantID)
	if err != nil {
		return 0, err
	}
	if vcID == 0 {
		return 0, errors.NewNotFoundError("NOT_IN_VC",
			fmt.Sprintf("participant %s has no ongoing VC", participantID),
			"진행 중인 가상 대회가 없습니다.")
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx interfaces.VCTx) error {
		vc, err := tx.GetVC(ctx, vcID)
		if err != nil {
			return err
		}
		if vc.IsFinished() {
			return errors.NewConflictError("VC_ALREADY_FINISHED",
				fmt.Sprintf("VC %d finished before unregistering %s", vcID, participantID),
				"이미 정산된 가상 대회입니다.")
		}
		return tx.RemoveParticipant(ctx, vcID, participantID)
	})
	if err != nil {
		return 0, err
	}

	utils.Info("Participant %s left VC %d", participantID, vcID)
	return vcID, nil
}
