package storage

import (
	"context"
	"fmt"

	"github.com/ssugameworks/ratedvc/config"
	"github.com/ssugameworks/ratedvc/constants"
	"github.com/ssugameworks/ratedvc/interfaces"
)

// Open 설정된 백엔드로 VC 저장소를 엽니다
func Open(ctx context.Context, cfg config.StorageConfig) (interfaces.VCStore, error) {
	switch cfg.Backend {
	case constants.StorageMemory, "":
		return NewMemoryStore(), nil
	case constants.StorageFirestore:
		return NewFirestoreStore(ctx, cfg.FirebaseCreds, cfg.FirestoreProject)
	case constants.StoragePostgres:
		return NewPostgresStore(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
