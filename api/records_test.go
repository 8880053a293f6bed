package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ssugameworks/ratedvc/errors"
	"github.com/ssugameworks/ratedvc/models"
)

func raws(objects ...string) []json.RawMessage {
	result := make([]json.RawMessage, len(objects))
	for i, o := range objects {
		result[i] = json.RawMessage(o)
	}
	return result
}

func TestDecodeRecords_RejectsMalformed(t *testing.T) {
	records, rejected := decodeRecords[ContestRecord]("contest", raws(
		`{"id": 1, "event": "Codeforces Round 1", "start": "2024-01-01T10:00:00", "duration": 7200}`,
		`{"id": 0, "event": "no id", "start": "2024-01-01T10:00:00", "duration": 7200}`,
		`{"id": 2, "event": "bad start", "start": "yesterday", "duration": 7200}`,
		`{"id": "three"}`,
	))

	if len(records) != 1 || rejected != 3 {
		t.Fatalf("정상 1개, 거부 3개여야 합니다. 실제값: %d, %d", len(records), rejected)
	}

	contest := records[0].ToContest()
	want := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC).Unix()
	if contest.StartTimeSeconds != want {
		t.Errorf("시작 시각이 UTC로 해석되어야 합니다: %d", contest.StartTimeSeconds)
	}
	if contest.Type != models.ContestTypeCF {
		t.Errorf("일반 라운드는 CF 타입이어야 합니다: %s", contest.Type)
	}
}

func TestStatisticsRecord_ParticipantType(t *testing.T) {
	tests := []struct {
		moreFields string
		expected   models.ParticipantType
	}{
		{`{"participant_type": "virtual"}`, models.ParticipantVirtual},
		{`{"participant_type": "OUT_OF_COMPETITION"}`, models.ParticipantOutOfCompetition},
		{`{"participant_type": "contestant"}`, models.ParticipantNormal},
		{`{}`, models.ParticipantNormal},
		{`{"participant_type": 3}`, models.ParticipantNormal},
	}

	for _, test := range tests {
		var rec StatisticsRecord
		if err := json.Unmarshal([]byte(`{"handle": "a", "contest_id": 1, "more_fields": `+test.moreFields+`}`), &rec); err != nil {
			t.Fatalf("역직렬화 실패: %v", err)
		}
		if got := rec.ParticipantType(); got != test.expected {
			t.Errorf("%s -> %s, 예상값 %s", test.moreFields, got, test.expected)
		}
	}
}

func TestParseProblemResult(t *testing.T) {
	tests := []struct {
		raw      string
		points   float64
		accepted bool
		rejected int
	}{
		{`"+"`, 1, true, 0},
		{`"+2"`, 1, true, 2},
		{`"-3"`, 0, false, 3},
		{`750`, 750, true, 0},
		{`"512.5"`, 512.5, true, 0},
		{`"?"`, 0, false, 0},
	}

	for _, test := range tests {
		got := parseProblemResult(json.RawMessage(test.raw))
		if got.Points != test.points || got.Accepted != test.accepted || got.Rejected != test.rejected {
			t.Errorf("%s 해석 결과가 다릅니다: %+v", test.raw, got)
		}
	}
}

func TestBuildStandings(t *testing.T) {
	records, rejected := decodeRecords[StatisticsRecord]("statistics", raws(
		`{"handle": "tourist", "contest_id": 5, "place": 1, "score": 3000, "old_rating": 3700, "new_rating": 3750, "rating_change": 50,
		  "problems": {"B": {"result": "+"}, "A": {"result": "+1"}}}`,
		`{"handle": "petr", "contest_id": 5, "place": 2, "score": 2500, "new_rating": 3100, "rating_change": -20}`,
		`{"handle": "student", "contest_id": 5, "place": 3, "score": 1000, "more_fields": {"participant_type": "virtual"}}`,
		`{"handle": "", "contest_id": 5, "place": 4}`,
		`{"handle": "other", "contest_id": 6, "place": 1}`,
	))
	if rejected != 1 {
		t.Fatalf("핸들이 없는 줄은 거부되어야 합니다. 거부 수: %d", rejected)
	}

	standings := BuildStandings(5, records)

	if len(standings.Rows) != 3 {
		t.Fatalf("다른 대회의 줄은 제외되어야 합니다. 줄 수: %d", len(standings.Rows))
	}
	if len(standings.Field) != 2 {
		t.Fatalf("공식 참가자 2명이 기준이 되어야 합니다. 실제값: %d", len(standings.Field))
	}
	if standings.Field[1].Rating != 3120 {
		t.Errorf("old_rating이 없으면 new_rating - rating_change여야 합니다: %d", standings.Field[1].Rating)
	}
	if standings.Deltas["tourist"] != 50 || standings.Deltas["petr"] != -20 {
		t.Errorf("공식 레이팅 변화량이 잘못되었습니다: %v", standings.Deltas)
	}
	if _, ok := standings.Deltas["student"]; ok {
		t.Error("가상 참가자는 공식 변화량에 포함되면 안 됩니다")
	}

	results := standings.Rows[0].ProblemResults
	if len(results) != 2 || results[0].Index != "A" || results[1].Index != "B" {
		t.Errorf("문제 결과는 인덱스 순으로 정렬되어야 합니다: %+v", results)
	}
}

func TestJudgeClient_FetchContestNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"objects": []}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, nil, FixedDelay(1, 0))
	judge := NewJudgeClient(client, NewPagedFetcher(client, 1000), "codeforces.com")

	if _, err := judge.FetchContest(context.Background(), 99999); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("빈 결과는 NotFound여야 합니다: %v", err)
	}
}

func TestJudgeClient_FetchContestProblems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("with_problems") != "true" {
			t.Errorf("with_problems 파라미터가 필요합니다: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"objects": [{"id": 10, "event": "Round", "start": "2024-01-01T10:00:00", "duration": 60,
			"problems": [{"short": "A", "name": "Alpha", "rating": 800, "tags": ["math"]}, {"short": "", "name": "broken"}]}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, nil, FixedDelay(1, 0))
	judge := NewJudgeClient(client, NewPagedFetcher(client, 1000), "codeforces.com")

	problems, err := judge.FetchContestProblems(context.Background(), 10)
	if err != nil {
		t.Fatalf("오류가 없어야 합니다: %v", err)
	}
	if len(problems) != 1 || problems[0].Index != "A" || *problems[0].Rating != 800 {
		t.Errorf("문제 변환이 잘못되었습니다: %+v", problems)
	}
}

func TestCodeforcesClient_PendingJudgement(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user.status" {
			t.Errorf("경로가 /user.status여야 합니다: %s", r.URL.Path)
		}
		switch r.URL.Query().Get("handle") {
		case "judging":
			w.Write([]byte(`{"status": "OK", "result": [
				{"id": 1, "contestId": 100, "creationTimeSeconds": 1500, "verdict": "TESTING", "problem": {"contestId": 100, "index": "A"}},
				{"id": 2, "contestId": 100, "creationTimeSeconds": 1400, "verdict": "OK", "problem": {"contestId": 100, "index": "B"}}
			]}`))
		case "outside":
			w.Write([]byte(`{"status": "OK", "result": [
				{"id": 3, "contestId": 100, "creationTimeSeconds": 5000, "verdict": "TESTING", "problem": {"contestId": 100, "index": "A"}},
				{"id": 4, "contestId": 200, "creationTimeSeconds": 1500, "verdict": "TESTING", "problem": {"contestId": 200, "index": "A"}}
			]}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"status": "FAILED", "comment": "handle: User with handle nobody not found"}`))
		}
	}))
	defer server.Close()

	caller := NewRateLimitedClient(ClientOptions{
		BaseURL:  server.URL,
		Policy:   FixedDelay(3, 0),
		Limiter:  NewWindowLimiter(1000, time.Second),
		Classify: ClassifyCodeforcesStatus,
	})
	cf := NewCodeforcesClient(caller)
	window := models.TimeWindow{Start: time.Unix(1000, 0), End: time.Unix(2000, 0)}

	pending, err := cf.PendingJudgement(context.Background(), "judging", 100, window)
	if err != nil || !pending {
		t.Errorf("채점 중인 제출이 있어야 합니다: %v, %v", pending, err)
	}

	pending, err = cf.PendingJudgement(context.Background(), "outside", 100, window)
	if err != nil || pending {
		t.Errorf("구간 밖이거나 다른 대회의 제출은 무시해야 합니다: %v, %v", pending, err)
	}

	if _, err := cf.PendingJudgement(context.Background(), "nobody", 100, window); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("없는 핸들은 NotFound여야 합니다: %v", err)
	}

	visited, err := cf.HasSubmissions(context.Background(), "outside", 200)
	if err != nil || !visited {
		t.Errorf("대회 200에 제출 기록이 있어야 합니다: %v, %v", visited, err)
	}
}
