package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ssugameworks/ratedvc/constants"
	"github.com/ssugameworks/ratedvc/utils"
)

// RedisSnapshotStore 대회 스냅샷을 Redis에 JSON으로 보관합니다
type RedisSnapshotStore struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRedisSnapshotStore Redis에 연결하고 RedisSnapshotStore를 생성합니다
func NewRedisSnapshotStore(ctx context.Context, addr, password string, db int) (*RedisSnapshotStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	utils.Info("Connected to Redis at %s for contest snapshots", addr)
	return NewRedisSnapshotStoreWithClient(rdb), nil
}

// NewRedisSnapshotStoreWithClient 이미 만든 클라이언트로 RedisSnapshotStore를 생성합니다
func NewRedisSnapshotStoreWithClient(rdb *redis.Client) *RedisSnapshotStore {
	return &RedisSnapshotStore{
		rdb: rdb,
		key: constants.ContestSnapshotKey,
		ttl: constants.ContestSnapshotRedisTTL,
	}
}

// LoadContests 저장된 스냅샷을 읽습니다. 없으면 nil, nil
func (s *RedisSnapshotStore) LoadContests(ctx context.Context) (*ContestSnapshot, error) {
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("스냅샷 조회 실패: %w", err)
	}

	var snapshot ContestSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("스냅샷 파싱 실패: %w", err)
	}
	return &snapshot, nil
}

// SaveContests 스냅샷을 저장합니다
func (s *RedisSnapshotStore) SaveContests(ctx context.Context, snapshot *ContestSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("스냅샷 직렬화 실패: %w", err)
	}
	return s.rdb.Set(ctx, s.key, raw, s.ttl).Err()
}

// Ping 연결 상태 확인 (헬스체크용)
func (s *RedisSnapshotStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close 연결을 닫습니다
func (s *RedisSnapshotStore) Close() error {
	return s.rdb.Close()
}
