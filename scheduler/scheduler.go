package scheduler

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ssugameworks/ratedvc/config"
	"github.com/ssugameworks/ratedvc/constants"
	"github.com/ssugameworks/ratedvc/errors"
	"github.com/ssugameworks/ratedvc/interfaces"
	"github.com/ssugameworks/ratedvc/models"
	"github.com/ssugameworks/ratedvc/rating"
	"github.com/ssugameworks/ratedvc/telemetry"
	"github.com/ssugameworks/ratedvc/utils"
)

// Outcome VC 하나에 대한 한 번의 정산 시도 결과
type Outcome string

const (
	OutcomeSettled  Outcome = telemetry.OutcomeSettled
	OutcomeDeferred Outcome = telemetry.OutcomeDeferred
	OutcomeSkipped  Outcome = telemetry.OutcomeSkipped
	OutcomeFailed   Outcome = telemetry.OutcomeFailed
)

// errAlreadySettled 트랜잭션 안에서 다시 읽은 VC가 이미 FINISHED인 경우
var errAlreadySettled = stderrors.New("virtual contest already settled")

// Dependencies 스케줄러가 사용하는 협력 객체
type Dependencies struct {
	Store       interfaces.VCStore
	Identity    interfaces.IdentityLookup
	Submissions interfaces.SubmissionStatus
	Ranklists   interfaces.RanklistGenerator
	Engine      *rating.Engine
	// Notifier 선택 사항. nil이면 알림을 보내지 않습니다
	Notifier interfaces.Notifier
	// Now 테스트용 시계. nil이면 time.Now
	Now func() time.Time
	// OnTick tick이 끝날 때마다 호출됩니다 (선택)
	OnTick func(report *TickReport)
}

// TickReport 한 번의 tick 결과 요약
type TickReport struct {
	TickID   string
	Outcomes map[int64]Outcome
	Results  []*models.SettlementResult
	Duration time.Duration
}

// Count outcome인 VC 수
func (r *TickReport) Count(outcome Outcome) int {
	n := 0
	for _, o := range r.Outcomes {
		if o == outcome {
			n++
		}
	}
	return n
}

// Scheduler 진행 중인 VC를 주기적으로 확인하고 끝난 VC를 정산합니다.
// tick은 고정 지연으로 실행되며 서로 겹치지 않습니다
type Scheduler struct {
	deps       Dependencies
	interval   time.Duration
	txAttempts int
	runOnStart bool

	tickMu    sync.Mutex
	startOnce sync.Once
	stopOnce  sync.Once
	stopChan  chan struct{}
	doneChan  chan struct{}
	started   atomic.Bool
}

// NewScheduler 스케줄러를 생성합니다. Start를 호출해야 동작합니다
func NewScheduler(deps Dependencies, cfg config.SchedulerConfig) *Scheduler {
	if deps.Engine == nil {
		deps.Engine = rating.NewEngine()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = constants.SettlementInterval
	}
	attempts := cfg.TxAttempts
	if attempts <= 0 {
		attempts = constants.SettlementTxAttempts
	}
	return &Scheduler{
		deps:       deps,
		interval:   interval,
		txAttempts: attempts,
		runOnStart: cfg.RunOnStart,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}
}

// Start 백그라운드 루프를 시작합니다. 한 tick이 끝난 뒤 interval만큼 기다렸다가 다음 tick을 실행합니다.
// 두 번째 호출부터는 아무 일도 하지 않습니다
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.started.Store(true)
		go s.loop()
		utils.Info("VC settlement scheduler started (interval %v)", s.interval)
	})
}

func (s *Scheduler) loop() {
	defer close(s.doneChan)

	if s.runOnStart {
		s.Tick(context.Background())
	}

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			s.Tick(context.Background())
			timer.Reset(s.interval)
		case <-s.stopChan:
			return
		}
	}
}

// Stop 루프를 멈춥니다. 진행 중인 tick이 있으면 끝날 때까지 기다립니다
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	if s.started.Load() {
		<-s.doneChan
	}
	utils.Info("VC settlement scheduler stopped")
}

// Tick 진행 중인 VC 전체를 한 번 처리합니다. VC 하나의 실패는 다른 VC에 영향을 주지 않습니다
func (s *Scheduler) Tick(ctx context.Context) *TickReport {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	started := time.Now()
	report := &TickReport{
		TickID:   uuid.NewString(),
		Outcomes: make(map[int64]Outcome),
	}
	defer func() {
		report.Duration = time.Since(started)
		telemetry.SettlementTickDuration.Observe(report.Duration.Seconds())
		if s.deps.OnTick != nil {
			s.deps.OnTick(report)
		}
	}()

	ids, err := s.deps.Store.ListOngoingVCIDs(ctx)
	if err != nil {
		utils.Error("[tick %s] Failed to list ongoing VCs: %v", report.TickID, err)
		return report
	}
	utils.Debug("[tick %s] %d ongoing VCs", report.TickID, len(ids))

	for _, id := range ids {
		outcome, result := s.processVC(ctx, report.TickID, id)
		report.Outcomes[id] = outcome
		if result != nil {
			report.Results = append(report.Results, result)
		}
		telemetry.SettlementTicks.WithLabelValues(string(outcome)).Inc()
	}

	if settled := report.Count(OutcomeSettled); settled > 0 {
		utils.Info("[tick %s] Settled %d of %d VCs", report.TickID, settled, len(ids))
	}
	return report
}

// processVC VC 하나를 처리합니다. panic도 이 VC의 실패로만 취급합니다
func (s *Scheduler) processVC(ctx context.Context, tickID string, vcID int64) (outcome Outcome, result *models.SettlementResult) {
	defer func() {
		if r := recover(); r != nil {
			utils.Error("[tick %s] VC %d panicked: %v", tickID, vcID, r)
			outcome, result = OutcomeFailed, nil
		}
	}()

	vc, err := s.deps.Store.GetVC(ctx, vcID)
	if err != nil {
		utils.Error("[tick %s] Failed to load VC %d: %v", tickID, vcID, err)
		return OutcomeFailed, nil
	}
	if vc.IsFinished() {
		utils.Debug("[tick %s] VC %d already finished, skipping", tickID, vcID)
		return OutcomeSkipped, nil
	}

	handles, resolved := s.resolveHandles(ctx, tickID, vc)

	if !vc.HasElapsed(s.deps.Now()) {
		s.publishStandings(ctx, tickID, vc, handles)
		return OutcomeDeferred, nil
	}

	// 핸들을 모르는 참가자가 있으면 FINISHED로 확정하지 않습니다
	if !resolved {
		utils.Warn("[tick %s] Postponing VC %d: %d of %d participant handles unresolved",
			tickID, vcID, len(vc.ParticipantIDs)-len(handles), len(vc.ParticipantIDs))
		return OutcomeDeferred, nil
	}

	if s.hasPendingJudgement(ctx, tickID, vc, handles) {
		s.publishStandings(ctx, tickID, vc, handles)
		return OutcomeDeferred, nil
	}

	ranklist, err := s.deps.Ranklists.GenerateForSubset(ctx, vc.ContestID, handleList(vc, handles))
	if err != nil {
		utils.Warn("[tick %s] Postponing VC %d: ranklist of contest %d unavailable: %v", tickID, vcID, vc.ContestID, err)
		return OutcomeDeferred, nil
	}
	if len(ranklist.Field) == 0 && len(ranklist.Rows) > 0 {
		utils.Warn("[tick %s] Postponing VC %d: contest %d has no rated reference field yet", tickID, vcID, vc.ContestID)
		return OutcomeDeferred, nil
	}

	result, err = s.settle(ctx, tickID, vcID, handles, ranklist)
	if stderrors.Is(err, errAlreadySettled) {
		utils.Info("[tick %s] VC %d was settled concurrently, skipping", tickID, vcID)
		return OutcomeSkipped, nil
	}
	if err != nil {
		utils.Error("[tick %s] Failed to settle VC %d: %v", tickID, vcID, err)
		return OutcomeFailed, nil
	}

	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.VCResults(ctx, result); err != nil {
			utils.Warn("[tick %s] Failed to announce results of VC %d: %v", tickID, vcID, err)
		}
	}
	return OutcomeSettled, result
}

// resolveHandles 참가자 ID -> 핸들. 확인할 수 없는 참가자가 있으면 resolved=false
func (s *Scheduler) resolveHandles(ctx context.Context, tickID string, vc *models.VirtualContest) (handles map[string]string, resolved bool) {
	handles = make(map[string]string, len(vc.ParticipantIDs))
	for _, pid := range vc.ParticipantIDs {
		handle, ok, err := s.deps.Identity.HandleFor(ctx, pid, vc.GroupID)
		if err != nil {
			utils.Warn("[tick %s] VC %d: handle lookup for %s failed: %v", tickID, vc.ID, pid, err)
			continue
		}
		if !ok || handle == "" {
			utils.Debug("[tick %s] VC %d: participant %s has no handle, skipping", tickID, vc.ID, pid)
			continue
		}
		handles[pid] = handle
	}
	return handles, len(handles) == len(vc.ParticipantIDs)
}

// hasPendingJudgement VC 구간 안에 채점이 끝나지 않은 제출이 하나라도 있으면 true.
// 확인에 실패해도 true로 보고 다음 tick으로 미룹니다
func (s *Scheduler) hasPendingJudgement(ctx context.Context, tickID string, vc *models.VirtualContest, handles map[string]string) bool {
	window := vc.Window()
	for _, pid := range vc.ParticipantIDs {
		handle, ok := handles[pid]
		if !ok {
			continue
		}
		pending, err := s.deps.Submissions.PendingJudgement(ctx, handle, vc.ContestID, window)
		if err != nil {
			utils.Warn("[tick %s] Postponing VC %d: submission status of %s unavailable: %v", tickID, vc.ID, handle, err)
			return true
		}
		if pending {
			utils.Info("[tick %s] Postponing VC %d: %s has pending judgements", tickID, vc.ID, handle)
			return true
		}
	}
	return false
}

func (s *Scheduler) publishStandings(ctx context.Context, tickID string, vc *models.VirtualContest, handles map[string]string) {
	if s.deps.Notifier == nil || len(handles) == 0 {
		return
	}
	ranklist, err := s.deps.Ranklists.GenerateForSubset(ctx, vc.ContestID, handleList(vc, handles))
	if err != nil {
		utils.Debug("[tick %s] No standings for VC %d: %v", tickID, vc.ID, err)
		return
	}
	if err := s.deps.Notifier.VCStandings(ctx, vc, ranklist); err != nil {
		utils.Warn("[tick %s] Failed to publish standings of VC %d: %v", tickID, vc.ID, err)
	}
}

// settle 제거와 레이팅 반영, FINISHED 기록을 한 트랜잭션으로 수행합니다.
// 모든 읽기를 먼저 하고 FINISHED를 마지막에 씁니다
func (s *Scheduler) settle(ctx context.Context, tickID string, vcID int64, handles map[string]string, ranklist *models.Ranklist) (*models.SettlementResult, error) {
	var result *models.SettlementResult

	op := func(ctx context.Context, tx interfaces.VCTx) error {
		vc, err := tx.GetVC(ctx, vcID)
		if err != nil {
			return err
		}
		if vc.IsFinished() {
			return errAlreadySettled
		}
		utils.Debug("[tick %s] VC %d settling", tickID, vcID)

		var removed []string
		var rated []string
		rowHandles := make(map[string]string)
		for _, pid := range vc.ParticipantIDs {
			handle, ok := handles[pid]
			if !ok {
				continue
			}
			row, found := ranklist.GetStandingRow(handle)
			if !found {
				removed = append(removed, pid)
				continue
			}
			rated = append(rated, pid)
			rowHandles[pid] = row.Handle()
		}

		old := make(map[string]int, len(rated))
		priors := make(map[string]int, len(rated))
		for _, pid := range rated {
			r, err := tx.GetRating(ctx, pid)
			if err != nil {
				return fmt.Errorf("read rating of %s: %w", pid, err)
			}
			old[pid] = r
			priors[rowHandles[pid]] = r
		}

		deltas := s.deps.Engine.ComputeDeltas(ranklist, priors)

		for _, pid := range removed {
			if err := tx.RemoveParticipant(ctx, vcID, pid); err != nil {
				return fmt.Errorf("remove %s: %w", pid, err)
			}
		}

		changes := make([]models.RatingChange, 0, len(rated))
		for _, pid := range rated {
			handle := rowHandles[pid]
			newRating := old[pid] + deltas[handle]
			if err := tx.AppendRatingRecord(ctx, vcID, pid, newRating); err != nil {
				return fmt.Errorf("append rating of %s: %w", pid, err)
			}
			changes = append(changes, models.RatingChange{
				ParticipantID: pid,
				Handle:        handle,
				OldRating:     old[pid],
				NewRating:     newRating,
			})
		}

		if err := tx.SetVCStatus(ctx, vcID, models.VCFinished); err != nil {
			return fmt.Errorf("mark finished: %w", err)
		}

		vc.Status = models.VCFinished
		vc.ParticipantIDs = withoutIDs(vc.ParticipantIDs, removed)
		result = &models.SettlementResult{
			VC:        vc,
			Changes:   changes,
			Removed:   removed,
			Ranklist:  ranklist,
			SettledAt: s.deps.Now(),
		}
		return nil
	}

	var err error
	for attempt := 1; attempt <= s.txAttempts; attempt++ {
		err = s.deps.Store.RunInTx(ctx, op)
		if err == nil || errors.TypeOf(err) != errors.TypeConflict {
			break
		}
		utils.Warn("[tick %s] VC %d transaction conflict (attempt %d/%d): %v", tickID, vcID, attempt, s.txAttempts, err)
	}
	if err != nil {
		return nil, err
	}

	utils.Info("[tick %s] VC %d settled: %d rated, %d removed", tickID, vcID, len(result.Changes), len(result.Removed))
	return result, nil
}

// handleList VC 참가자 순서대로 확인된 핸들 목록
func handleList(vc *models.VirtualContest, handles map[string]string) []string {
	list := make([]string, 0, len(handles))
	for _, pid := range vc.ParticipantIDs {
		if handle, ok := handles[pid]; ok {
			list = append(list, handle)
		}
	}
	return list
}

func withoutIDs(ids, removed []string) []string {
	if len(removed) == 0 {
		return ids
	}
	drop := make(map[string]bool, len(removed))
	for _, id := range removed {
		drop[id] = true
	}
	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	return kept
}
