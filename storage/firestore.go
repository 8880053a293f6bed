package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/ssugameworks/ratedvc/constants"
	"github.com/ssugameworks/ratedvc/errors"
	"github.com/ssugameworks/ratedvc/interfaces"
	"github.com/ssugameworks/ratedvc/models"
	"github.com/ssugameworks/ratedvc/utils"
)

const (
	collectionVCs      = "virtualContests"
	collectionRatings  = "ratings"
	collectionHistory  = "ratingHistory"
	collectionCounters = "counters"
	counterVCs         = "virtualContests"
)

// 에러 복구 관련 상수
const (
	maxReconnectAttempts = 3
	reconnectDelay       = 2 * time.Second
)

// ratingDoc ratings/{participantId} 문서
type ratingDoc struct {
	ParticipantID string    `firestore:"participantId"`
	Rating        int       `firestore:"rating"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

// historyDoc ratingHistory/{vcId}_{participantId} 문서
type historyDoc struct {
	VCID          int64     `firestore:"vcId"`
	ParticipantID string    `firestore:"participantId"`
	NewRating     int       `firestore:"newRating"`
	AppliedAt     time.Time `firestore:"appliedAt"`
}

// counterDoc VC ID 발급용 카운터
type counterDoc struct {
	Next int64 `firestore:"next"`
}

// FirestoreStore Firestore를 사용하여 VC와 레이팅 이력을 관리하는 저장소입니다.
type FirestoreStore struct {
	client         atomic.Pointer[firestore.Client]
	connect        func(ctx context.Context) (*firestore.Client, error)
	ctx            context.Context
	reconnectMutex sync.Mutex
}

// NewFirestoreStore 새로운 FirestoreStore 인스턴스를 생성하고 Firestore에 연결합니다.
func NewFirestoreStore(ctx context.Context, credentialsJSON, projectID string) (*FirestoreStore, error) {
	utils.Info("Initializing Firestore VC store")

	if credentialsJSON == "" {
		return nil, fmt.Errorf("%s environment variable not set", constants.EnvFirebaseCreds)
	}

	var conf *firebase.Config
	if projectID != "" {
		conf = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, conf, option.WithCredentialsJSON([]byte(credentialsJSON)))
	if err != nil {
		return nil, fmt.Errorf("error initializing app: %v", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firestore client: %v", err)
	}

	utils.Info("Firestore VC store initialized successfully")
	return newFirestoreStore(ctx, client, app.Firestore), nil
}

func newFirestoreStore(ctx context.Context, client *firestore.Client, connect func(ctx context.Context) (*firestore.Client, error)) *FirestoreStore {
	s := &FirestoreStore{connect: connect, ctx: ctx}
	s.client.Store(client)
	return s
}

// db 현재 Firestore 클라이언트. 재연결 중에도 안전하게 읽을 수 있습니다
func (s *FirestoreStore) db() *firestore.Client {
	return s.client.Load()
}

// Ping 카운터 문서를 읽어 연결을 확인합니다
func (s *FirestoreStore) Ping(ctx context.Context) error {
	_, err := s.db().Collection(collectionCounters).Doc(counterVCs).Get(ctx)
	if err != nil && !isNotExist(err) {
		return err
	}
	return nil
}

func (s *FirestoreStore) vcRef(vcID int64) *firestore.DocumentRef {
	return s.db().Collection(collectionVCs).Doc(strconv.FormatInt(vcID, 10))
}

func (s *FirestoreStore) ratingRef(participantID string) *firestore.DocumentRef {
	return s.db().Collection(collectionRatings).Doc(participantID)
}

func (s *FirestoreStore) historyRef(vcID int64, participantID string) *firestore.DocumentRef {
	return s.db().Collection(collectionHistory).Doc(fmt.Sprintf("%d_%s", vcID, participantID))
}

// ListOngoingVCIDs 진행 중인 VC ID 목록
func (s *FirestoreStore) ListOngoingVCIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.executeWithRetry(func() error {
		ids = ids[:0]
		iter := s.db().Collection(collectionVCs).Where("status", "==", string(models.VCOngoing)).Documents(ctx)
		defer iter.Stop()
		for {
			doc, err := iter.Next()
			if err == iterator.Done {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to iterate ongoing VCs: %w", err)
			}
			var vc models.VirtualContest
			if err := doc.DataTo(&vc); err != nil {
				utils.Warn("Skipping malformed VC document %s: %v", doc.Ref.ID, err)
				continue
			}
			ids = append(ids, vc.ID)
		}
	})
	return ids, err
}

// GetVC VC 조회
func (s *FirestoreStore) GetVC(ctx context.Context, vcID int64) (*models.VirtualContest, error) {
	var vc *models.VirtualContest
	err := s.executeWithRetry(func() error {
		doc, err := s.vcRef(vcID).Get(ctx)
		vc, err = decodeVC(vcID, doc, err)
		return err
	})
	return vc, err
}

// RunInTx Firestore 트랜잭션 안에서 fn을 실행합니다. 충돌 시 Firestore가 fn을 다시 실행합니다
func (s *FirestoreStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx interfaces.VCTx) error) error {
	return s.db().RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, &firestoreTx{store: s, tx: tx})
	})
}

// CreateVC 카운터 문서로 ID를 발급하고 VC를 저장합니다
func (s *FirestoreStore) CreateVC(ctx context.Context, vc *models.VirtualContest) (int64, error) {
	var id int64
	err := s.db().RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		counterRef := s.db().Collection(collectionCounters).Doc(counterVCs)
		counter := counterDoc{Next: 1}
		doc, err := tx.Get(counterRef)
		switch {
		case err == nil:
			if err := doc.DataTo(&counter); err != nil {
				return fmt.Errorf("failed to decode VC counter: %w", err)
			}
		case !isNotExist(err):
			return err
		}

		id = counter.Next
		stored := *vc
		stored.ID = id
		if stored.Status == "" {
			stored.Status = models.VCOngoing
		}
		if err := tx.Set(counterRef, counterDoc{Next: id + 1}); err != nil {
			return err
		}
		return tx.Create(s.vcRef(id), stored)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create VC: %w", err)
	}

	utils.Info("Created VC %d for contest %d with %d participants", id, vc.ContestID, len(vc.ParticipantIDs))
	return id, nil
}

// OngoingVCFor 참가자가 진행 중인 VC ID. 없으면 0
func (s *FirestoreStore) OngoingVCFor(ctx context.Context, participantID string) (int64, error) {
	iter := s.db().Collection(collectionVCs).
		Where("status", "==", string(models.VCOngoing)).
		Where("participantIds", "array-contains", participantID).
		Limit(1).Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query ongoing VC for %s: %w", participantID, err)
	}
	var vc models.VirtualContest
	if err := doc.DataTo(&vc); err != nil {
		return 0, fmt.Errorf("failed to decode VC %s: %w", doc.Ref.ID, err)
	}
	return vc.ID, nil
}

// GetRating 현재 레이팅. 문서가 없으면 기본 레이팅
func (s *FirestoreStore) GetRating(ctx context.Context, participantID string) (int, error) {
	doc, err := s.ratingRef(participantID).Get(ctx)
	return decodeRating(doc, err)
}

// RatingHistory 참가자의 레이팅 이력 (VC ID 순)
func (s *FirestoreStore) RatingHistory(ctx context.Context, participantID string) ([]models.RatingRecord, error) {
	iter := s.db().Collection(collectionHistory).
		Where("participantId", "==", participantID).
		OrderBy("vcId", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	records := make([]models.RatingRecord, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate rating history: %w", err)
		}
		var h historyDoc
		if err := doc.DataTo(&h); err != nil {
			utils.Warn("Skipping malformed rating history %s: %v", doc.Ref.ID, err)
			continue
		}
		records = append(records, models.RatingRecord{VCID: h.VCID, ParticipantID: h.ParticipantID, NewRating: h.NewRating})
	}
}

// ListRatings 레이팅 문서가 있는 참가자 전원의 현재 레이팅
func (s *FirestoreStore) ListRatings(ctx context.Context) (map[string]int, error) {
	ratings := make(map[string]int)
	iter := s.db().Collection(collectionRatings).Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return ratings, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate ratings: %w", err)
		}
		var r ratingDoc
		if err := doc.DataTo(&r); err != nil {
			utils.Warn("Skipping malformed rating %s: %v", doc.Ref.ID, err)
			continue
		}
		ratings[doc.Ref.ID] = r.Rating
	}
}

// Close Firestore 클라이언트를 닫습니다
func (s *FirestoreStore) Close() error {
	return s.db().Close()
}

// reconnectFirestore Firestore 클라이언트를 재연결합니다
func (s *FirestoreStore) reconnectFirestore() error {
	s.reconnectMutex.Lock()
	defer s.reconnectMutex.Unlock()

	utils.Warn("Attempting to reconnect to Firestore")

	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		newClient, err := s.connect(s.ctx)
		if err != nil {
			utils.Warn("Firestore reconnection attempt %d/%d failed: %v", attempt, maxReconnectAttempts, err)
			if attempt < maxReconnectAttempts {
				time.Sleep(reconnectDelay * time.Duration(attempt))
			}
			continue
		}

		if old := s.client.Swap(newClient); old != nil {
			old.Close()
		}
		utils.Info("Successfully reconnected to Firestore on attempt %d", attempt)
		return nil
	}

	return fmt.Errorf("failed to reconnect to Firestore after %d attempts", maxReconnectAttempts)
}

// executeWithRetry 읽기 작업을 실행하고 연결 오류면 재연결 후 한 번 더 시도합니다
func (s *FirestoreStore) executeWithRetry(operation func() error) error {
	err := operation()
	if err != nil && isConnectionError(err) {
		utils.Warn("Detected Firestore connection error, attempting reconnection: %v", err)
		if reconnectErr := s.reconnectFirestore(); reconnectErr != nil {
			return fmt.Errorf("operation failed and reconnection failed: %v (original: %v)", reconnectErr, err)
		}
		return operation()
	}
	return err
}

// isConnectionError Firestore 연결 관련 에러인지 확인합니다
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"connection", "network", "unavailable", "deadline exceeded"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// isNotExist Get이 문서 없음으로 실패했는지 확인합니다
func isNotExist(err error) bool {
	return err != nil && strings.Contains(err.Error(), "NotFound")
}

func decodeVC(vcID int64, doc *firestore.DocumentSnapshot, err error) (*models.VirtualContest, error) {
	if doc != nil && !doc.Exists() {
		return nil, vcNotFound(vcID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get VC %d: %w", vcID, err)
	}
	var vc models.VirtualContest
	if err := doc.DataTo(&vc); err != nil {
		return nil, errors.NewSystemError("VC_DECODE_FAILED", fmt.Sprintf("failed to decode VC %d", vcID), err)
	}
	return &vc, nil
}

func decodeRating(doc *firestore.DocumentSnapshot, err error) (int, error) {
	if doc != nil && !doc.Exists() {
		return constants.DefaultRating, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get rating: %w", err)
	}
	var r ratingDoc
	if err := doc.DataTo(&r); err != nil {
		return 0, fmt.Errorf("failed to decode rating %s: %w", doc.Ref.ID, err)
	}
	return r.Rating, nil
}

// firestoreTx VCTx의 Firestore 구현. Firestore는 쓰기 이후의 읽기를 거부합니다
type firestoreTx struct {
	store *FirestoreStore
	tx    *firestore.Transaction
}

func (t *firestoreTx) GetVC(ctx context.Context, vcID int64) (*models.VirtualContest, error) {
	doc, err := t.tx.Get(t.store.vcRef(vcID))
	return decodeVC(vcID, doc, err)
}

func (t *firestoreTx) GetRating(ctx context.Context, participantID string) (int, error) {
	doc, err := t.tx.Get(t.store.ratingRef(participantID))
	return decodeRating(doc, err)
}

func (t *firestoreTx) AppendRatingRecord(ctx context.Context, vcID int64, participantID string, newRating int) error {
	now := time.Now()
	if err := t.tx.Create(t.store.historyRef(vcID, participantID), historyDoc{
		VCID:          vcID,
		ParticipantID: participantID,
		NewRating:     newRating,
		AppliedAt:     now,
	}); err != nil {
		return err
	}
	return t.tx.Set(t.store.ratingRef(participantID), ratingDoc{
		ParticipantID: participantID,
		Rating:        newRating,
		UpdatedAt:     now,
	})
}

func (t *firestoreTx) SetVCStatus(ctx context.Context, vcID int64, status models.VCStatus) error {
	return t.tx.Update(t.store.vcRef(vcID), []firestore.Update{{Path: "status", Value: string(status)}})
}

func (t *firestoreTx) RemoveParticipant(ctx context.Context, vcID int64, participantID string) error {
	return t.tx.Update(t.store.vcRef(vcID), []firestore.Update{
		{Path: "participantIds", Value: firestore.ArrayRemove(participantID)},
	})
}
