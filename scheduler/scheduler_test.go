package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ssugameworks/ratedvc/config"
	"github.com/ssugameworks/ratedvc/constants"
	"github.com/ssugameworks/ratedvc/errors"
	"github.com/ssugameworks/ratedvc/interfaces"
	"github.com/ssugameworks/ratedvc/models"
	"github.com/ssugameworks/ratedvc/storage"
)

var (
	vcStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	vcEnd   = vcStart.Add(2*time.Hour + 10*time.Minute)
	afterVC = vcEnd.Add(time.Minute)
)

// fakeIdentity 참가자 ID == 핸들 (missing에 있으면 확인 불가)
type fakeIdentity struct {
	missing map[string]bool
}

func (f *fakeIdentity) HandleFor(ctx context.Context, participantID, groupID string) (string, bool, error) {
	if f.missing[participantID] {
		return "", false, nil
	}
	return "h_" + participantID, true, nil
}

type fakeSubmissions struct {
	mu      sync.Mutex
	pending map[string]bool
	err     error
	calls   int
}

func (f *fakeSubmissions) PendingJudgement(ctx context.Context, handle string, contestID int, window models.TimeWindow) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.pending[handle], nil
}

func (f *fakeSubmissions) set(pending map[string]bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending, f.err = pending, err
}

// fakeRanklists contestID별 점수표. points에 없는 핸들은 줄이 없습니다
type fakeRanklists struct {
	mu      sync.Mutex
	points  map[int]map[string]float64
	failFor map[int]error
	noField map[int]bool
	calls   int
	entered chan struct{}
	release chan struct{}
}

func newFakeRanklists() *fakeRanklists {
	return &fakeRanklists{
		points:  make(map[int]map[string]float64),
		failFor: make(map[int]error),
		noField: make(map[int]bool),
	}
}

func (f *fakeRanklists) GenerateForSubset(ctx context.Context, contestID int, handles []string) (*models.Ranklist, error) {
	f.mu.Lock()
	f.calls++
	entered, release := f.entered, f.release
	err := f.failFor[contestID]
	points := f.points[contestID]
	noField := f.noField[contestID]
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
		<-release
	}
	if err != nil {
		return nil, err
	}

	var rows []models.StandingRow
	for _, handle := range handles {
		p, ok := points[strings.ToLower(handle)]
		if !ok {
			continue
		}
		rows = append(rows, models.StandingRow{
			Rank:   1,
			Party:  models.Party{Handles: []string{handle}, ParticipantType: models.ParticipantVirtual},
			Points: p,
		})
	}
	var field []models.FieldEntry
	if !noField {
		field = make([]models.FieldEntry, 10)
	}
	for i := range field {
		field[i] = models.FieldEntry{Handle: fmt.Sprintf("f%d", i), Rating: 1500, Points: float64(i + 1)}
	}
	contest := &models.Contest{ID: contestID, Name: "Round", StartTimeSeconds: vcStart.Unix(), DurationSeconds: 7200}
	return models.NewRanklist(contest, rows, nil, field, afterVC), nil
}

func (f *fakeRanklists) setPoints(contestID int, points map[string]float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points[contestID] = points
}

func (f *fakeRanklists) setFailure(contestID int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failFor, contestID)
		return
	}
	f.failFor[contestID] = err
}

func (f *fakeRanklists) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// countingStore 저장소 호출 횟수를 세고, 필요하면 오류를 주입합니다
type countingStore struct {
	*storage.MemoryStore
	mu          sync.Mutex
	getVCCalls  map[int64]int
	txCalls     int
	extraIDs    []int64
	failGet     map[int64]bool
	conflictsTx int
}

func newCountingStore() *countingStore {
	return &countingStore{
		MemoryStore: storage.NewMemoryStore(),
		getVCCalls:  make(map[int64]int),
		failGet:     make(map[int64]bool),
	}
}

func (s *countingStore) ListOngoingVCIDs(ctx context.Context) ([]int64, error) {
	ids, err := s.MemoryStore.ListOngoingVCIDs(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(ids, s.extraIDs...), err
}

func (s *countingStore) GetVC(ctx context.Context, vcID int64) (*models.VirtualContest, error) {
	s.mu.Lock()
	s.getVCCalls[vcID]++
	fail := s.failGet[vcID]
	s.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("store unavailable")
	}
	return s.MemoryStore.GetVC(ctx, vcID)
}

func (s *countingStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx interfaces.VCTx) error) error {
	s.mu.Lock()
	s.txCalls++
	conflict := s.conflictsTx > 0
	if conflict {
		s.conflictsTx--
	}
	s.mu.Unlock()
	if conflict {
		return errors.NewConflictError("STORE_CONFLICT", "concurrent update", "충돌")
	}
	return s.MemoryStore.RunInTx(ctx, fn)
}

func (s *countingStore) txCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txCalls
}

type recordingNotifier struct {
	mu        sync.Mutex
	standings []int64
	results   []*models.SettlementResult
}

func (n *recordingNotifier) VCStandings(ctx context.Context, vc *models.VirtualContest, ranklist *models.Ranklist) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.standings = append(n.standings, vc.ID)
	return nil
}

func (n *recordingNotifier) VCResults(ctx context.Context, result *models.SettlementResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, result)
	return nil
}

type fixture struct {
	store       *countingStore
	identity    *fakeIdentity
	submissions *fakeSubmissions
	ranklists   *fakeRanklists
	notifier    *recordingNotifier
	scheduler   *Scheduler
	now         time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:       newCountingStore(),
		identity:    &fakeIdentity{missing: map[string]bool{}},
		submissions: &fakeSubmissions{pending: map[string]bool{}},
		ranklists:   newFakeRanklists(),
		notifier:    &recordingNotifier{},
		now:         afterVC,
	}
	f.scheduler = NewScheduler(Dependencies{
		Store:       f.store,
		Identity:    f.identity,
		Submissions: f.submissions,
		Ranklists:   f.ranklists,
		Notifier:    f.notifier,
		Now:         func() time.Time { return f.now },
	}, config.SchedulerConfig{Interval: time.Hour, TxAttempts: 3})
	return f
}

func (f *fixture) createVC(t *testing.T, contestID int, participants ...string) int64 {
	t.Helper()
	id, err := f.store.CreateVC(context.Background(), &models.VirtualContest{
		ContestID:      contestID,
		GroupID:        "g",
		StartTime:      vcStart,
		FinishTime:     vcEnd,
		ParticipantIDs: participants,
	})
	if err != nil {
		t.Fatalf("VC 생성 실패: %v", err)
	}
	return id
}

func (f *fixture) history(t *testing.T, pid string) []models.RatingRecord {
	t.Helper()
	records, err := f.store.RatingHistory(context.Background(), pid)
	if err != nil {
		t.Fatalf("이력 조회 실패: %v", err)
	}
	return records
}

func (f *fixture) vc(t *testing.T, id int64) *models.VirtualContest {
	t.Helper()
	vc, err := f.store.MemoryStore.GetVC(context.Background(), id)
	if err != nil {
		t.Fatalf("VC 조회 실패: %v", err)
	}
	return vc
}

func TestTickDefersWhileJudgementPending(t *testing.T) {
	f := newFixture(t)
	id := f.createVC(t, 100, "p1", "p2")
	f.ranklists.setPoints(100, map[string]float64{"h_p1": 8, "h_p2": 3})
	f.submissions.set(map[string]bool{"h_p1": true, "h_p2": true}, nil)

	report := f.scheduler.Tick(context.Background())

	if report.Outcomes[id] != OutcomeDeferred {
		t.Fatalf("채점 대기 중이면 미뤄야 합니다: %s", report.Outcomes[id])
	}
	if vc := f.vc(t, id); vc.Status != models.VCOngoing || len(vc.ParticipantIDs) != 2 {
		t.Errorf("상태가 바뀌면 안 됩니다: %+v", vc)
	}
	if len(f.history(t, "p1"))+len(f.history(t, "p2")) != 0 {
		t.Error("레이팅 기록이 추가되면 안 됩니다")
	}
	if f.store.txCount() != 0 {
		t.Errorf("트랜잭션이 실행되면 안 됩니다: %d", f.store.txCount())
	}
	if len(f.notifier.standings) != 1 || len(f.notifier.results) != 0 {
		t.Errorf("중간 순위만 알려야 합니다: standings=%v results=%d", f.notifier.standings, len(f.notifier.results))
	}

	// 채점이 끝나면 정산
	f.submissions.set(map[string]bool{}, nil)
	report = f.scheduler.Tick(context.Background())
	if report.Outcomes[id] != OutcomeSettled {
		t.Fatalf("채점이 끝나면 정산되어야 합니다: %s", report.Outcomes[id])
	}
}

func TestTickDefersBeforeFinishTime(t *testing.T) {
	f := newFixture(t)
	id := f.createVC(t, 100, "p1")
	f.ranklists.setPoints(100, map[string]float64{"h_p1": 5})
	f.now = vcEnd.Add(-time.Minute)

	report := f.scheduler.Tick(context.Background())
	if report.Outcomes[id] != OutcomeDeferred {
		t.Fatalf("끝나지 않은 VC는 미뤄야 합니다: %s", report.Outcomes[id])
	}
	if f.submissions.calls != 0 {
		t.Errorf("끝나기 전에는 채점 상태를 확인하지 않아야 합니다: %d", f.submissions.calls)
	}
	if f.vc(t, id).IsFinished() {
		t.Error("끝나지 않은 VC가 정산되었습니다")
	}
}

func TestTickRemovesParticipantWithoutRow(t *testing.T) {
	f := newFixture(t)
	id := f.createVC(t, 100, "p1", "p2", "p3")
	f.ranklists.setPoints(100, map[string]float64{"h_p1": 11, "h_p2": 0})

	report := f.scheduler.Tick(context.Background())
	if report.Outcomes[id] != OutcomeSettled {
		t.Fatalf("정산되어야 합니다: %s", report.Outcomes[id])
	}

	vc := f.vc(t, id)
	if !vc.IsFinished() {
		t.Error("VC가 FINISHED여야 합니다")
	}
	if vc.HasParticipant("p3") || !vc.HasParticipant("p1") || !vc.HasParticipant("p2") {
		t.Errorf("제출이 없는 p3만 제거되어야 합니다: %v", vc.ParticipantIDs)
	}
	if len(f.history(t, "p3")) != 0 {
		t.Error("제거된 참가자는 레이팅 기록이 없어야 합니다")
	}

	p1, p2 := f.history(t, "p1"), f.history(t, "p2")
	if len(p1) != 1 || len(p2) != 1 {
		t.Fatalf("남은 참가자는 정확히 한 번씩 기록되어야 합니다: %v %v", p1, p2)
	}
	if p1[0].NewRating <= constants.DefaultRating || p2[0].NewRating >= constants.DefaultRating {
		t.Errorf("1등은 오르고 꼴등은 내려가야 합니다: %d, %d", p1[0].NewRating, p2[0].NewRating)
	}

	if len(f.notifier.results) != 1 {
		t.Fatalf("결과 알림이 한 번 가야 합니다: %d", len(f.notifier.results))
	}
	result := f.notifier.results[0]
	if len(result.Changes) != 2 || len(result.Removed) != 1 || result.Removed[0] != "p3" {
		t.Errorf("정산 결과가 잘못되었습니다: %+v", result)
	}
	if result.Changes[0].OldRating != constants.DefaultRating || result.Changes[0].Handle != "h_p1" {
		t.Errorf("첫 변화는 p1의 기본 레이팅에서 시작해야 합니다: %+v", result.Changes[0])
	}
}

func TestTickIsIdempotent(t *testing.T) {
	f := newFixture(t)
	id := f.createVC(t, 100, "p1", "p2")
	f.ranklists.setPoints(100, map[string]float64{"h_p1": 7, "h_p2": 4})

	f.scheduler.Tick(context.Background())
	txAfterFirst := f.store.txCount()
	getAfterFirst := f.store.getVCCalls[id]

	report := f.scheduler.Tick(context.Background())
	if _, listed := report.Outcomes[id]; listed {
		t.Errorf("FINISHED VC는 다시 처리되면 안 됩니다: %v", report.Outcomes)
	}
	if f.store.txCount() != txAfterFirst || f.store.getVCCalls[id] != getAfterFirst {
		t.Error("정산된 VC에 대한 저장소 호출이 없어야 합니다")
	}
	if len(f.history(t, "p1")) != 1 || len(f.history(t, "p2")) != 1 {
		t.Error("레이팅 기록이 추가되면 안 됩니다")
	}

	// 오래된 목록에 FINISHED VC가 남아 있어도 건너뜁니다
	f.store.extraIDs = []int64{id}
	calls := f.ranklists.callCount()
	report = f.scheduler.Tick(context.Background())
	if report.Outcomes[id] != OutcomeSkipped {
		t.Errorf("FINISHED VC는 건너뛰어야 합니다: %s", report.Outcomes[id])
	}
	if f.store.txCount() != txAfterFirst || f.ranklists.callCount() != calls {
		t.Error("건너뛴 VC는 트랜잭션과 순위표 조회가 없어야 합니다")
	}
	if len(f.history(t, "p1")) != 1 {
		t.Error("레이팅 기록이 추가되면 안 됩니다")
	}
}

func TestTickPostponesOnFetchFailure(t *testing.T) {
	f := newFixture(t)
	id := f.createVC(t, 100, "p1")
	f.ranklists.setPoints(100, map[string]float64{"h_p1": 5})
	f.ranklists.setFailure(100, errors.NewRequestFailedError("upstream down", nil))

	report := f.scheduler.Tick(context.Background())
	if report.Outcomes[id] != OutcomeDeferred {
		t.Fatalf("조회 실패는 다음 tick으로 미뤄야 합니다: %s", report.Outcomes[id])
	}
	if f.vc(t, id).IsFinished() || f.store.txCount() != 0 {
		t.Error("조회 실패 시 아무것도 기록되면 안 됩니다")
	}

	f.ranklists.setFailure(100, nil)
	report = f.scheduler.Tick(context.Background())
	if report.Outcomes[id] != OutcomeSettled {
		t.Errorf("복구 후에는 정산되어야 합니다: %s", report.Outcomes[id])
	}
}

func TestTickIsolatesFailingVC(t *testing.T) {
	f := newFixture(t)
	broken := f.createVC(t, 100, "p1")
	unreadable := f.createVC(t, 300, "p3")
	healthy := f.createVC(t, 200, "p2")
	f.ranklists.setFailure(100, fmt.Errorf("boom"))
	f.ranklists.setPoints(200, map[string]float64{"h_p2": 5})
	f.store.failGet[unreadable] = true

	report := f.scheduler.Tick(context.Background())

	if report.Outcomes[broken] != OutcomeDeferred {
		t.Errorf("실패한 VC는 미뤄져야 합니다: %s", report.Outcomes[broken])
	}
	if report.Outcomes[unreadable] != OutcomeFailed {
		t.Errorf("읽을 수 없는 VC는 실패여야 합니다: %s", report.Outcomes[unreadable])
	}
	if report.Outcomes[healthy] != OutcomeSettled {
		t.Errorf("다른 VC는 정산되어야 합니다: %s", report.Outcomes[healthy])
	}
	if len(report.Results) != 1 || report.Results[0].VC.ID != healthy {
		t.Errorf("정산 결과는 healthy 하나여야 합니다: %+v", report.Results)
	}
}

func TestTickDefersWhileHandleUnresolved(t *testing.T) {
	f := newFixture(t)
	id := f.createVC(t, 100, "p1", "p2")
	f.identity.missing["p2"] = true
	f.ranklists.setPoints(100, map[string]float64{"h_p1": 6, "h_p2": 9})

	report := f.scheduler.Tick(context.Background())
	if report.Outcomes[id] != OutcomeDeferred {
		t.Fatalf("핸들을 모르는 참가자가 있으면 미뤄야 합니다: %s", report.Outcomes[id])
	}
	vc := f.vc(t, id)
	if vc.Status != models.VCOngoing || !vc.HasParticipant("p2") {
		t.Errorf("VC가 그대로여야 합니다: %+v", vc)
	}
	if len(f.history(t, "p1"))+len(f.history(t, "p2")) != 0 {
		t.Error("레이팅 기록이 추가되면 안 됩니다")
	}
	if f.store.txCount() != 0 {
		t.Errorf("트랜잭션이 실행되면 안 됩니다: %d", f.store.txCount())
	}

	// 명단이 복구되면 모두 정산
	delete(f.identity.missing, "p2")
	report = f.scheduler.Tick(context.Background())
	if report.Outcomes[id] != OutcomeSettled {
		t.Fatalf("핸들이 확인되면 정산되어야 합니다: %s", report.Outcomes[id])
	}
	if len(f.history(t, "p1")) != 1 || len(f.history(t, "p2")) != 1 {
		t.Error("두 참가자 모두 레이팅이 반영되어야 합니다")
	}
}

func TestTickDefersWithoutReferenceField(t *testing.T) {
	f := newFixture(t)
	id := f.createVC(t, 100, "p1", "p2")
	f.ranklists.setPoints(100, map[string]float64{"h_p1": 10, "h_p2": 9})
	f.ranklists.mu.Lock()
	f.ranklists.noField[100] = true
	f.ranklists.mu.Unlock()

	report := f.scheduler.Tick(context.Background())
	if report.Outcomes[id] != OutcomeDeferred {
		t.Fatalf("기준 참가자가 없으면 미뤄야 합니다: %s", report.Outcomes[id])
	}
	if vc := f.vc(t, id); vc.Status != models.VCOngoing {
		t.Errorf("FINISHED로 바뀌면 안 됩니다: %s", vc.Status)
	}
	if len(f.history(t, "p1"))+len(f.history(t, "p2")) != 0 {
		t.Error("레이팅 기록이 추가되면 안 됩니다")
	}

	// 기준 참가자가 채워지면 정산되고, 1등이 더 많이 오릅니다
	f.ranklists.mu.Lock()
	delete(f.ranklists.noField, 100)
	f.ranklists.mu.Unlock()

	report = f.scheduler.Tick(context.Background())
	if report.Outcomes[id] != OutcomeSettled {
		t.Fatalf("정산되어야 합니다: %s", report.Outcomes[id])
	}
	p1, p2 := f.history(t, "p1"), f.history(t, "p2")
	if len(p1) != 1 || len(p2) != 1 {
		t.Fatalf("레이팅 기록이 하나씩이어야 합니다: %v %v", p1, p2)
	}
	if p1[0].NewRating <= p2[0].NewRating {
		t.Errorf("점수가 높은 참가자가 더 높아야 합니다: %d <= %d", p1[0].NewRating, p2[0].NewRating)
	}
}

func TestTickRetriesConflictingTransaction(t *testing.T) {
	f := newFixture(t)
	id := f.createVC(t, 100, "p1")
	f.ranklists.setPoints(100, map[string]float64{"h_p1": 5})
	f.store.conflictsTx = 2

	report := f.scheduler.Tick(context.Background())
	if report.Outcomes[id] != OutcomeSettled {
		t.Fatalf("충돌 후 재시도로 정산되어야 합니다: %s", report.Outcomes[id])
	}
	if f.store.txCount() != 3 {
		t.Errorf("트랜잭션이 3번 시도되어야 합니다: %d", f.store.txCount())
	}
	if len(f.history(t, "p1")) != 1 {
		t.Error("레이팅은 한 번만 반영되어야 합니다")
	}
}

func TestTickGivesUpAfterTxAttempts(t *testing.T) {
	f := newFixture(t)
	id := f.createVC(t, 100, "p1")
	f.ranklists.setPoints(100, map[string]float64{"h_p1": 5})
	f.store.conflictsTx = 5

	report := f.scheduler.Tick(context.Background())
	if report.Outcomes[id] != OutcomeFailed {
		t.Errorf("재시도를 다 쓰면 실패여야 합니다: %s", report.Outcomes[id])
	}
	if f.vc(t, id).IsFinished() {
		t.Error("실패한 VC는 ONGOING으로 남아야 합니다")
	}
}

func TestStopWaitsForInflightTick(t *testing.T) {
	f := newFixture(t)
	id := f.createVC(t, 100, "p1")
	f.ranklists.setPoints(100, map[string]float64{"h_p1": 5})
	f.ranklists.entered = make(chan struct{})
	f.ranklists.release = make(chan struct{})
	f.scheduler.runOnStart = true

	f.scheduler.Start()
	<-f.ranklists.entered

	stopped := make(chan struct{})
	go func() {
		f.scheduler.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("진행 중인 tick이 끝나기 전에 Stop이 반환되었습니다")
	case <-time.After(100 * time.Millisecond):
	}

	close(f.ranklists.release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("tick이 끝난 뒤 Stop이 반환되어야 합니다")
	}

	if !f.vc(t, id).IsFinished() {
		t.Error("진행 중이던 정산이 끝까지 완료되어야 합니다")
	}
}

func TestStopWithoutStart(t *testing.T) {
	f := newFixture(t)
	done := make(chan struct{})
	go func() {
		f.scheduler.Stop()
		f.scheduler.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("시작하지 않은 스케줄러의 Stop은 바로 반환되어야 합니다")
	}
}

func TestTickCallsOnTick(t *testing.T) {
	f := newFixture(t)
	id := f.createVC(t, 100, "p1", "p2")
	f.ranklists.setPoints(100, map[string]float64{"h_p1": 8, "h_p2": 3})
	f.submissions.set(map[string]bool{"h_p1": true, "h_p2": true}, nil)

	var seen []*TickReport
	f.scheduler.deps.OnTick = func(report *TickReport) { seen = append(seen, report) }

	report := f.scheduler.Tick(context.Background())

	if len(seen) != 1 || seen[0] != report {
		t.Fatalf("tick마다 한 번 호출되어야 합니다: %d", len(seen))
	}
	if seen[0].Outcomes[id] != OutcomeDeferred {
		t.Errorf("완료된 결과가 전달되어야 합니다: %+v", seen[0].Outcomes)
	}
}

func TestStartTwiceRunsOneLoop(t *testing.T) {
	f := newFixture(t)
	f.scheduler.runOnStart = true

	var mu sync.Mutex
	ticks := 0
	f.scheduler.deps.OnTick = func(*TickReport) {
		mu.Lock()
		ticks++
		mu.Unlock()
	}

	f.scheduler.Start()
	f.scheduler.Start()

	done := make(chan struct{})
	go func() {
		f.scheduler.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop이 반환되어야 합니다")
	}

	mu.Lock()
	defer mu.Unlock()
	if ticks != 1 {
		t.Errorf("루프는 하나만 실행되어야 합니다: tick %d회", ticks)
	}
}
