package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ssugameworks/ratedvc/errors"
	"github.com/ssugameworks/ratedvc/models"
	"github.com/ssugameworks/ratedvc/utils"
)

// 저지 API 엔드포인트
const (
	EndpointContest    = "contest"
	EndpointProblem    = "problem"
	EndpointStatistics = "statistics"
)

// JudgeClient 대회, 문제, 순위 원본을 타입이 있는 모델로 제공합니다
type JudgeClient struct {
	caller   Caller
	fetcher  *PagedFetcher
	resource string
}

// NewJudgeClient 새로운 JudgeClient 인스턴스를 생성합니다
func NewJudgeClient(caller Caller, fetcher *PagedFetcher, resource string) *JudgeClient {
	return &JudgeClient{caller: caller, fetcher: fetcher, resource: resource}
}

// FetchContests 리소스의 전체 대회 목록을 가져옵니다
func (j *JudgeClient) FetchContests(ctx context.Context) ([]*models.Contest, error) {
	raws, err := j.fetcher.FetchAll(ctx, EndpointContest, Params{
		"resource": j.resource,
		"order_by": "start",
	})
	if err != nil {
		return nil, err
	}

	records, rejected := decodeRecords[ContestRecord](EndpointContest, raws)
	contests := make([]*models.Contest, 0, len(records))
	for i := range records {
		contests = append(contests, records[i].ToContest())
	}

	utils.Info("Fetched %d contests from judge (%d rejected)", len(contests), rejected)
	return contests, nil
}

// FetchContest 단일 대회를 가져옵니다. 저지에 없으면 NotFound
func (j *JudgeClient) FetchContest(ctx context.Context, contestID int) (*models.Contest, error) {
	record, err := j.fetchContestRecord(ctx, contestID, false)
	if err != nil {
		return nil, err
	}
	return record.ToContest(), nil
}

// FetchProblems 리소스의 전체 문제 목록을 가져옵니다
func (j *JudgeClient) FetchProblems(ctx context.Context) ([]models.Problem, error) {
	raws, err := j.fetcher.FetchAll(ctx, EndpointProblem, Params{"resource": j.resource})
	if err != nil {
		return nil, err
	}

	records, rejected := decodeRecords[ProblemRecord](EndpointProblem, raws)
	problems := make([]models.Problem, 0, len(records))
	for i := range records {
		problems = append(problems, records[i].ToProblems()...)
	}

	utils.Info("Fetched %d problems from judge (%d rejected)", len(problems), rejected)
	return problems, nil
}

// FetchContestProblems 한 대회의 문제 목록을 가져옵니다
func (j *JudgeClient) FetchContestProblems(ctx context.Context, contestID int) ([]models.Problem, error) {
	record, err := j.fetchContestRecord(ctx, contestID, true)
	if err != nil {
		return nil, err
	}
	return record.ToProblems(), nil
}

// FetchStandings 대회의 전체 statistics를 받아 순위 원본을 만듭니다
func (j *JudgeClient) FetchStandings(ctx context.Context, contestID int) (*models.Standings, error) {
	raws, err := j.fetcher.FetchAll(ctx, EndpointStatistics, Params{
		"contest_id":       strconv.Itoa(contestID),
		"order_by":         "place",
		"with_more_fields": "true",
		"with_problems":    "true",
	})
	if err != nil {
		return nil, err
	}

	records, rejected := decodeRecords[StatisticsRecord](EndpointStatistics, raws)
	standings := BuildStandings(contestID, records)

	utils.Debug("Built standings for contest %d: %d rows, %d rated field (%d rejected)",
		contestID, len(standings.Rows), len(standings.Field), rejected)
	return standings, nil
}

// BuildStandings statistics 레코드에서 순위 줄, 기준 참가자, 공식 레이팅 변화량을 만듭니다
func BuildStandings(contestID int, records []StatisticsRecord) *models.Standings {
	standings := &models.Standings{
		ContestID: contestID,
		Rows:      make([]models.StandingRow, 0, len(records)),
		Deltas:    make(map[string]int),
	}

	for i := range records {
		rec := &records[i]
		if rec.ContestID != contestID {
			continue
		}
		row := rec.ToStandingRow(i + 1)
		standings.Rows = append(standings.Rows, row)

		if row.Party.ParticipantType != models.ParticipantNormal {
			continue
		}
		if rec.RatingChange != nil {
			standings.Deltas[rec.Handle] = *rec.RatingChange
		}
		if oldRating, ok := rec.oldRating(); ok {
			standings.Field = append(standings.Field, models.FieldEntry{
				Handle:  rec.Handle,
				Rating:  oldRating,
				Points:  row.Points,
				Penalty: row.Penalty,
			})
		}
	}
	return standings
}

// oldRating 대회 전 레이팅. old_rating이 없으면 new_rating - rating_change로 계산합니다
func (r *StatisticsRecord) oldRating() (int, bool) {
	if r.OldRating != nil {
		return *r.OldRating, true
	}
	if r.NewRating != nil && r.RatingChange != nil {
		return *r.NewRating - *r.RatingChange, true
	}
	return 0, false
}

func (j *JudgeClient) fetchContestRecord(ctx context.Context, contestID int, withProblems bool) (*ContestRecord, error) {
	params := Params{"id": strconv.Itoa(contestID)}
	if withProblems {
		params["with_problems"] = "true"
	}

	body, err := j.caller.Call(ctx, EndpointContest, params)
	if err != nil {
		return nil, err
	}

	var p page
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, errors.NewRequestFailedError("대회 응답 파싱 실패", err)
	}
	if p.Objects == nil {
		return nil, errors.NewRequestFailedError("contest response has no objects", nil)
	}

	records, _ := decodeRecords[ContestRecord](EndpointContest, p.Objects)
	if len(records) == 0 {
		return nil, errors.NewNotFoundError("CONTEST_NOT_FOUND",
			fmt.Sprintf("contest %d not found", contestID),
			fmt.Sprintf("대회 %d를 찾을 수 없습니다.", contestID))
	}
	return &records[0], nil
}
