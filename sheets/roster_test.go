package sheets

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func sheet(rows ...[]interface{}) [][]interface{} {
	return rows
}

func TestParseRoster(t *testing.T) {
	values := sheet(
		[]interface{}{"Participant_ID", " handle ", "group_id"},
		[]interface{}{"1001", "tourist", ""},
		[]interface{}{"1002", "Petr", "ssu"},
		[]interface{}{"1002", "petr_alt", "other"},
		[]interface{}{"1003", ""},
		[]interface{}{"", "nobody"},
		[]interface{}{"1004", "bad handle!"},
		[]interface{}{1005, "numeric_id"},
	)

	roster, err := ParseRoster(values)
	if err != nil {
		t.Fatalf("명단 파싱 실패: %v", err)
	}
	if roster.Len() != 4 {
		t.Errorf("유효한 항목은 4개여야 합니다: %d", roster.Len())
	}

	tests := []struct {
		participant string
		group       string
		handle      string
		ok          bool
	}{
		{"1001", "any", "tourist", true},
		{" 1001 ", "", "tourist", true},
		{"1002", "SSU", "Petr", true},
		{"1002", "other", "petr_alt", true},
		{"1002", "unknown", "", false},
		{"1003", "", "", false},
		{"1004", "", "", false},
		{"1005", "", "numeric_id", true},
	}
	for _, test := range tests {
		handle, ok, err := roster.HandleFor(context.Background(), test.participant, test.group)
		if err != nil {
			t.Fatalf("명단 조회는 실패하면 안 됩니다: %v", err)
		}
		if handle != test.handle || ok != test.ok {
			t.Errorf("HandleFor(%q, %q) = (%q, %v), 기대값 (%q, %v)", test.participant, test.group, handle, ok, test.handle, test.ok)
		}
	}
}

func TestParseRosterMissingColumns(t *testing.T) {
	if _, err := ParseRoster(sheet([]interface{}{"handle"})); err == nil {
		t.Error("participant_id 열이 없으면 오류여야 합니다")
	}
	if _, err := ParseRoster(sheet([]interface{}{"participant_id", "name"})); err == nil {
		t.Error("handle 열이 없으면 오류여야 합니다")
	}
	roster, err := ParseRoster(nil)
	if err != nil || roster.Len() != 0 {
		t.Errorf("빈 시트는 빈 명단이어야 합니다: %v", err)
	}
}

type fakeSheet struct {
	mu     sync.Mutex
	values [][]interface{}
	err    error
	reads  int
}

func (f *fakeSheet) read(ctx context.Context) ([][]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	return f.values, nil
}

func TestRosterClientCachesUntilTTL(t *testing.T) {
	src := &fakeSheet{values: sheet(
		[]interface{}{"participant_id", "handle"},
		[]interface{}{"1", "alice"},
	)}
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	client := newRosterClient(src.read)
	client.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		handle, ok, err := client.HandleFor(context.Background(), "1", "")
		if err != nil || !ok || handle != "alice" {
			t.Fatalf("alice여야 합니다: %q %v %v", handle, ok, err)
		}
	}
	if src.reads != 1 {
		t.Errorf("TTL 안에서는 한 번만 읽어야 합니다: %d", src.reads)
	}

	src.values = sheet([]interface{}{"participant_id", "handle"}, []interface{}{"1", "alice2"})
	clock = clock.Add(client.ttl)
	handle, _, _ := client.HandleFor(context.Background(), "1", "")
	if handle != "alice2" || src.reads != 2 {
		t.Errorf("TTL이 지나면 다시 읽어야 합니다: %q (%d회)", handle, src.reads)
	}

	// 다시 읽기에 실패하면 이전 명단을 씁니다
	src.err = fmt.Errorf("quota exceeded")
	clock = clock.Add(client.ttl)
	handle, ok, err := client.HandleFor(context.Background(), "1", "")
	if err != nil || !ok || handle != "alice2" {
		t.Errorf("실패 시 이전 명단을 써야 합니다: %q %v %v", handle, ok, err)
	}
}

func TestRosterClientFirstLoadFailure(t *testing.T) {
	src := &fakeSheet{err: fmt.Errorf("forbidden")}
	client := newRosterClient(src.read)

	if _, _, err := client.HandleFor(context.Background(), "1", ""); err == nil {
		t.Error("명단을 한 번도 읽지 못했다면 오류여야 합니다")
	}
	if err := client.Reload(context.Background()); err == nil {
		t.Error("Reload도 오류를 반환해야 합니다")
	}
}
