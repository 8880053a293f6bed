package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/ssugameworks/ratedvc/errors"
)

// requestLog 테스트 서버가 받은 요청 기록
type requestLog struct {
	mu      sync.Mutex
	offsets []int
}

func (l *requestLog) add(offset int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.offsets = append(l.offsets, offset)
}

func (l *requestLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fmt.Sprint(l.offsets)
}

func (l *requestLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.offsets)
}

// pagedServer total개의 정수를 offset/limit으로 나눠 제공합니다
func pagedServer(total int, log *requestLog) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		log.add(offset)

		objects := []int{}
		for i := offset; i < total && i < offset+limit; i++ {
			objects = append(objects, i)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"objects": objects})
	}))
}

func TestPagedFetcher_FetchesAllPagesInOrder(t *testing.T) {
	log := &requestLog{}
	server := pagedServer(2500, log)
	defer server.Close()

	fetcher := NewPagedFetcher(newTestClient(server.URL, nil, FixedDelay(1, 0)), 1000)
	objects, err := fetcher.FetchAll(context.Background(), "statistics", Params{"contest_id": "1"})
	if err != nil {
		t.Fatalf("오류가 없어야 합니다: %v", err)
	}

	if len(objects) != 2500 {
		t.Fatalf("2500개를 모두 받아야 합니다. 실제값: %d", len(objects))
	}
	for i, raw := range objects {
		if string(raw) != strconv.Itoa(i) {
			t.Fatalf("%d번째 항목의 순서가 다릅니다: %s", i, raw)
		}
	}
	if log.count() != 3 {
		t.Errorf("페이지 요청은 정확히 3번이어야 합니다. 실제값: %d", log.count())
	}
	if log.String() != "[0 1000 2000]" {
		t.Errorf("offset 순서가 잘못되었습니다: %s", log)
	}
}

func TestPagedFetcher_ExactMultipleRequestsTrailingEmptyPage(t *testing.T) {
	log := &requestLog{}
	server := pagedServer(2000, log)
	defer server.Close()

	fetcher := NewPagedFetcher(newTestClient(server.URL, nil, FixedDelay(1, 0)), 1000)
	objects, err := fetcher.FetchAll(context.Background(), "statistics", nil)
	if err != nil {
		t.Fatalf("오류가 없어야 합니다: %v", err)
	}
	if len(objects) != 2000 || log.count() != 3 {
		t.Errorf("2000개, 3번 요청이어야 합니다. 실제값: %d개, %d번", len(objects), log.count())
	}
}

func TestPagedFetcher_IsRestartable(t *testing.T) {
	log := &requestLog{}
	server := pagedServer(1500, log)
	defer server.Close()

	fetcher := NewPagedFetcher(newTestClient(server.URL, nil, FixedDelay(1, 0)), 1000)
	params := Params{"contest_id": "7"}

	first, err := fetcher.FetchAll(context.Background(), "statistics", params)
	if err != nil {
		t.Fatalf("첫 번째 조회 실패: %v", err)
	}
	second, err := fetcher.FetchAll(context.Background(), "statistics", params)
	if err != nil {
		t.Fatalf("두 번째 조회 실패: %v", err)
	}

	if len(first) != 1500 || len(second) != 1500 {
		t.Errorf("두 번 모두 전체 결과를 받아야 합니다: %d, %d", len(first), len(second))
	}
	if log.String() != "[0 1000 0 1000]" {
		t.Errorf("두 번째 호출은 offset 0부터 시작해야 합니다: %s", log)
	}
	if _, ok := params["offset"]; ok {
		t.Error("호출자의 파라미터를 변경하면 안 됩니다")
	}
}

func TestPagedFetcher_FirstPageFailureSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	fetcher := NewPagedFetcher(newTestClient(server.URL, nil, FixedDelay(1, 0)), 1000)
	if _, err := fetcher.FetchAll(context.Background(), "statistics", nil); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("첫 페이지의 NotFound가 그대로 전달되어야 합니다: %v", err)
	}
}

func TestPagedFetcher_MissingObjectsOnFirstPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"meta": {}}`))
	}))
	defer server.Close()

	fetcher := NewPagedFetcher(newTestClient(server.URL, nil, FixedDelay(1, 0)), 1000)
	if _, err := fetcher.FetchAll(context.Background(), "statistics", nil); !errors.Is(err, errors.ErrRequestFailed) {
		t.Errorf("objects가 없는 첫 페이지는 RequestFailed여야 합니다: %v", err)
	}
}

func TestPagedFetcher_LaterPageFailureIsRequestFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") != "0" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		objects := make([]int, 10)
		json.NewEncoder(w).Encode(map[string]interface{}{"objects": objects})
	}))
	defer server.Close()

	fetcher := NewPagedFetcher(newTestClient(server.URL, nil, FixedDelay(1, 0)), 10)
	_, err := fetcher.FetchAll(context.Background(), "statistics", nil)
	if !errors.Is(err, errors.ErrRequestFailed) {
		t.Errorf("중간 페이지 실패는 RequestFailed여야 합니다: %v", err)
	}
}
