package storage

import (
	"context"
	"sync"
	"testing"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
)

// offlineClient 연결을 시도하지 않는 Firestore 클라이언트
func offlineClient(t *testing.T) *firestore.Client {
	t.Helper()
	client, err := firestore.NewClient(context.Background(), "ratedvc-test",
		option.WithoutAuthentication(), option.WithEndpoint("localhost:1"))
	if err != nil {
		t.Fatalf("클라이언트 생성 실패: %v", err)
	}
	return client
}

func TestFirestoreStoreReconnectSwapsClient(t *testing.T) {
	first, second := offlineClient(t), offlineClient(t)
	connects := 0
	store := newFirestoreStore(context.Background(), first, func(ctx context.Context) (*firestore.Client, error) {
		connects++
		return second, nil
	})
	defer store.Close()

	// 재연결 중에도 다른 고루틴이 클라이언트를 읽습니다
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if ref := store.vcRef(int64(j)); ref == nil {
					t.Error("문서 참조가 nil이면 안 됩니다")
					return
				}
			}
		}()
	}

	if err := store.reconnectFirestore(); err != nil {
		t.Fatalf("재연결 실패: %v", err)
	}
	wg.Wait()

	if connects != 1 {
		t.Errorf("한 번만 연결해야 합니다: %d", connects)
	}
	if store.db() != second {
		t.Error("재연결 후에는 새 클라이언트를 사용해야 합니다")
	}
}
