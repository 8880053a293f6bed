package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver

	"github.com/ssugameworks/ratedvc/constants"
	"github.com/ssugameworks/ratedvc/errors"
	"github.com/ssugameworks/ratedvc/interfaces"
	"github.com/ssugameworks/ratedvc/models"
	"github.com/ssugameworks/ratedvc/utils"
)

const schema = `
CREATE TABLE IF NOT EXISTS virtual_contests (
	id          BIGSERIAL PRIMARY KEY,
	contest_id  INTEGER     NOT NULL,
	group_id    TEXT        NOT NULL DEFAULT '',
	start_time  TIMESTAMPTZ NOT NULL,
	finish_time TIMESTAMPTZ NOT NULL,
	status      TEXT        NOT NULL
);
CREATE TABLE IF NOT EXISTS vc_participants (
	vc_id          BIGINT NOT NULL REFERENCES virtual_contests(id),
	participant_id TEXT   NOT NULL,
	position       INTEGER NOT NULL,
	PRIMARY KEY (vc_id, participant_id)
);
CREATE TABLE IF NOT EXISTS rating_history (
	id             BIGSERIAL PRIMARY KEY,
	vc_id          BIGINT      NOT NULL REFERENCES virtual_contests(id),
	participant_id TEXT        NOT NULL,
	new_rating     INTEGER     NOT NULL,
	applied_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (vc_id, participant_id)
);
CREATE INDEX IF NOT EXISTS rating_history_participant ON rating_history (participant_id, id);
`

// uniqueViolation PostgreSQL unique 제약 위반 코드
const uniqueViolation = "23505"

// serializationFailure SERIALIZABLE 트랜잭션 직렬화 실패 코드
const serializationFailure = "40001"

// PostgresStore PostgreSQL을 사용하는 VC 저장소입니다
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore 연결을 열고 스키마를 준비합니다
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	utils.Info("Initializing PostgreSQL VC store")

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	utils.Info("PostgreSQL VC store initialized successfully")
	return store, nil
}

// NewPostgresStoreWithDB 이미 열린 DB를 사용합니다. 스키마는 만들지 않습니다
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Ping 헬스체크용 연결 확인
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// queryer *sql.DB와 *sql.Tx 공통 부분
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ListOngoingVCIDs 진행 중인 VC ID 목록
func (s *PostgresStore) ListOngoingVCIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM virtual_contests WHERE status = $1 ORDER BY id`, string(models.VCOngoing))
	if err != nil {
		return nil, fmt.Errorf("PostgresStore.ListOngoingVCIDs: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("PostgresStore.ListOngoingVCIDs: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetVC VC 조회
func (s *PostgresStore) GetVC(ctx context.Context, vcID int64) (*models.VirtualContest, error) {
	return getVC(ctx, s.db, vcID, false)
}

func getVC(ctx context.Context, q queryer, vcID int64, forUpdate bool) (*models.VirtualContest, error) {
	query := `SELECT id, contest_id, group_id, start_time, finish_time, status
	          FROM virtual_contests WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	vc := &models.VirtualContest{}
	var status string
	err := q.QueryRowContext(ctx, query, vcID).Scan(
		&vc.ID, &vc.ContestID, &vc.GroupID, &vc.StartTime, &vc.FinishTime, &status,
	)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, vcNotFound(vcID)
		}
		return nil, classifyPgError("PostgresStore.GetVC", err)
	}
	vc.Status = models.VCStatus(status)
	vc.StartTime = vc.StartTime.UTC()
	vc.FinishTime = vc.FinishTime.UTC()

	rows, err := q.QueryContext(ctx,
		`SELECT participant_id FROM vc_participants WHERE vc_id = $1 ORDER BY position`, vcID)
	if err != nil {
		return nil, classifyPgError("PostgresStore.GetVC participants", err)
	}
	defer rows.Close()

	vc.ParticipantIDs = make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classifyPgError("PostgresStore.GetVC participants", err)
		}
		vc.ParticipantIDs = append(vc.ParticipantIDs, id)
	}
	return vc, rows.Err()
}

// RunInTx SERIALIZABLE 트랜잭션으로 fn을 실행합니다. fn이 실패하면 롤백합니다
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx interfaces.VCTx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("PostgresStore.RunInTx begin: %w", err)
	}

	if err := fn(ctx, &postgresTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			utils.Warn("Rollback failed: %v", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return classifyPgError("PostgresStore.RunInTx commit", err)
	}
	return nil
}

// CreateVC VC와 참가자를 한 트랜잭션으로 저장합니다
func (s *PostgresStore) CreateVC(ctx context.Context, vc *models.VirtualContest) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("PostgresStore.CreateVC begin: %w", err)
	}
	defer tx.Rollback()

	status := vc.Status
	if status == "" {
		status = models.VCOngoing
	}

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO virtual_contests (contest_id, group_id, start_time, finish_time, status)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		vc.ContestID, vc.GroupID, vc.StartTime, vc.FinishTime, string(status),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("PostgresStore.CreateVC: %w", err)
	}

	for i, pid := range vc.ParticipantIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vc_participants (vc_id, participant_id, position) VALUES ($1, $2, $3)`,
			id, pid, i); err != nil {
			return 0, classifyPgError("PostgresStore.CreateVC participant", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("PostgresStore.CreateVC commit: %w", err)
	}
	return id, nil
}

// OngoingVCFor 참가자가 진행 중인 VC ID. 없으면 0
func (s *PostgresStore) OngoingVCFor(ctx context.Context, participantID string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT v.id FROM virtual_contests v
		 JOIN vc_participants p ON p.vc_id = v.id
		 WHERE v.status = $1 AND p.participant_id = $2
		 ORDER BY v.id LIMIT 1`,
		string(models.VCOngoing), participantID,
	).Scan(&id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("PostgresStore.OngoingVCFor: %w", err)
	}
	return id, nil
}

// GetRating 최신 레이팅. 이력이 없으면 기본 레이팅
func (s *PostgresStore) GetRating(ctx context.Context, participantID string) (int, error) {
	return getRating(ctx, s.db, participantID)
}

func getRating(ctx context.Context, q queryer, participantID string) (int, error) {
	var rating int
	err := q.QueryRowContext(ctx,
		`SELECT new_rating FROM rating_history WHERE participant_id = $1 ORDER BY id DESC LIMIT 1`,
		participantID,
	).Scan(&rating)
	if stderrors.Is(err, sql.ErrNoRows) {
		return constants.DefaultRating, nil
	}
	if err != nil {
		return 0, classifyPgError("PostgresStore.GetRating", err)
	}
	return rating, nil
}

// RatingHistory 참가자의 레이팅 이력 (반영 순서)
func (s *PostgresStore) RatingHistory(ctx context.Context, participantID string) ([]models.RatingRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT vc_id, participant_id, new_rating FROM rating_history WHERE participant_id = $1 ORDER BY id`,
		participantID)
	if err != nil {
		return nil, fmt.Errorf("PostgresStore.RatingHistory: %w", err)
	}
	defer rows.Close()

	records := make([]models.RatingRecord, 0)
	for rows.Next() {
		var r models.RatingRecord
		if err := rows.Scan(&r.VCID, &r.ParticipantID, &r.NewRating); err != nil {
			return nil, fmt.Errorf("PostgresStore.RatingHistory: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ListRatings 이력이 있는 참가자 전원의 최신 레이팅
func (s *PostgresStore) ListRatings(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT ON (participant_id) participant_id, new_rating
		 FROM rating_history ORDER BY participant_id, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("PostgresStore.ListRatings: %w", err)
	}
	defer rows.Close()

	ratings := make(map[string]int)
	for rows.Next() {
		var pid string
		var rating int
		if err := rows.Scan(&pid, &rating); err != nil {
			return nil, fmt.Errorf("PostgresStore.ListRatings: %w", err)
		}
		ratings[pid] = rating
	}
	return ratings, rows.Err()
}

// Close 연결 풀을 닫습니다
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// classifyPgError unique 제약 위반과 직렬화 실패를 충돌 오류로 바꿉니다
func classifyPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && (pgErr.Code == uniqueViolation || pgErr.Code == serializationFailure) {
		return errors.NewConflictError("STORE_CONFLICT", fmt.Sprintf("%s: %v", op, err), "동시에 같은 데이터가 변경되었습니다.")
	}
	return fmt.Errorf("%s: %w", op, err)
}

// postgresTx VCTx의 PostgreSQL 구현
type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) GetVC(ctx context.Context, vcID int64) (*models.VirtualContest, error) {
	return getVC(ctx, t.tx, vcID, true)
}

func (t *postgresTx) GetRating(ctx context.Context, participantID string) (int, error) {
	return getRating(ctx, t.tx, participantID)
}

func (t *postgresTx) AppendRatingRecord(ctx context.Context, vcID int64, participantID string, newRating int) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO rating_history (vc_id, participant_id, new_rating) VALUES ($1, $2, $3)`,
		vcID, participantID, newRating)
	if err != nil {
		return classifyPgError("PostgresStore.AppendRatingRecord", err)
	}
	return nil
}

func (t *postgresTx) SetVCStatus(ctx context.Context, vcID int64, status models.VCStatus) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE virtual_contests SET status = $1 WHERE id = $2`, string(status), vcID)
	if err != nil {
		return classifyPgError("PostgresStore.SetVCStatus", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return vcNotFound(vcID)
	}
	return nil
}

func (t *postgresTx) RemoveParticipant(ctx context.Context, vcID int64, participantID string) error {
	_, err := t.tx.ExecContext(ctx,
		`DELETE FROM vc_participants WHERE vc_id = $1 AND participant_id = $2`, vcID, participantID)
	if err != nil {
		return classifyPgError("PostgresStore.RemoveParticipant", err)
	}
	return nil
}
