package api

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ssugameworks/ratedvc/constants"
	"github.com/ssugameworks/ratedvc/errors"
	"github.com/ssugameworks/ratedvc/models"
	"github.com/ssugameworks/ratedvc/utils"
)

// record 수집 경계에서 검증 가능한 저지 응답 객체
type record interface {
	Validate() error
}

// decodeRecords 원본 객체를 타입이 있는 레코드로 변환합니다. 형식이 잘못된 객체는 건너뛰고 개수를 반환합니다
func decodeRecords[T any, PT interface {
	*T
	record
}](kind string, raws []json.RawMessage) ([]T, int) {
	records := make([]T, 0, len(raws))
	rejected := 0
	for i, raw := range raws {
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			rejected++
			utils.Warn("Rejected malformed %s object #%d: %v", kind, i, err)
			continue
		}
		if err := PT(&rec).Validate(); err != nil {
			rejected++
			utils.Warn("Rejected invalid %s object #%d: %v", kind, i, err)
			continue
		}
		records = append(records, rec)
	}
	return records, rejected
}

func invalidRecord(kind, reason string) error {
	return errors.NewValidationError("INVALID_"+strings.ToUpper(kind), kind+": "+reason, "저지 응답 형식이 올바르지 않습니다.")
}

// ContestRecord 저지의 contest 객체
type ContestRecord struct {
	ID       int                 `json:"id"`
	Event    string              `json:"event"`
	Start    string              `json:"start"`
	Duration int64               `json:"duration"`
	Resource string              `json:"resource"`
	Href     string              `json:"href"`
	Problems []ContestProblemRef `json:"problems,omitempty"`
}

// ContestProblemRef with_problems 옵션으로 contest 객체에 포함되는 문제
type ContestProblemRef struct {
	Short  string   `json:"short"`
	Name   string   `json:"name"`
	Rating *int     `json:"rating"`
	Tags   []string `json:"tags"`
}

func (r *ContestRecord) Validate() error {
	if r.ID <= 0 {
		return invalidRecord("contest", "missing id")
	}
	if strings.TrimSpace(r.Event) == "" {
		return invalidRecord("contest", fmt.Sprintf("contest %d has no name", r.ID))
	}
	if r.Duration < 0 {
		return invalidRecord("contest", fmt.Sprintf("contest %d has negative duration", r.ID))
	}
	if _, err := parseJudgeTime(r.Start); err != nil {
		return invalidRecord("contest", fmt.Sprintf("contest %d has bad start %q", r.ID, r.Start))
	}
	return nil
}

// ToContest 도메인 모델로 변환합니다
func (r *ContestRecord) ToContest() *models.Contest {
	start, _ := parseJudgeTime(r.Start)
	return &models.Contest{
		ID:               r.ID,
		Name:             r.Event,
		StartTimeSeconds: start.Unix(),
		DurationSeconds:  r.Duration,
		Type:             contestTypeFor(r.Resource, r.Event),
		Resource:         r.Resource,
		URL:              r.Href,
	}
}

// ToProblems with_problems로 받은 문제 목록을 변환합니다
func (r *ContestRecord) ToProblems() []models.Problem {
	problems := make([]models.Problem, 0, len(r.Problems))
	for _, p := range r.Problems {
		if p.Short == "" {
			continue
		}
		problems = append(problems, models.Problem{
			ContestID: r.ID,
			Index:     p.Short,
			Name:      p.Name,
			Rating:    p.Rating,
			Tags:      p.Tags,
		})
	}
	return problems
}

func contestTypeFor(resource, event string) models.ContestType {
	if resource != "" && resource != constants.JudgeResource {
		return models.ContestTypeExternal
	}
	lower := strings.ToLower(event)
	switch {
	case strings.Contains(lower, "icpc"), strings.Contains(lower, "educational"):
		return models.ContestTypeICPC
	case strings.Contains(lower, "ioi"):
		return models.ContestTypeIOI
	default:
		return models.ContestTypeCF
	}
}

// ProblemRecord 저지의 problem 객체
type ProblemRecord struct {
	ContestIDs []int    `json:"contest_ids"`
	Short      string   `json:"short"`
	Name       string   `json:"name"`
	Rating     *int     `json:"rating"`
	Tags       []string `json:"tags"`
}

func (r *ProblemRecord) Validate() error {
	if len(r.ContestIDs) == 0 {
		return invalidRecord("problem", fmt.Sprintf("problem %q has no contest", r.Name))
	}
	if r.Short == "" {
		return invalidRecord("problem", fmt.Sprintf("problem %q has no index", r.Name))
	}
	if strings.TrimSpace(r.Name) == "" {
		return invalidRecord("problem", "missing name")
	}
	return nil
}

// ToProblems 문제가 속한 대회마다 하나씩 변환합니다
func (r *ProblemRecord) ToProblems() []models.Problem {
	problems := make([]models.Problem, 0, len(r.ContestIDs))
	for _, contestID := range r.ContestIDs {
		problems = append(problems, models.Problem{
			ContestID: contestID,
			Index:     r.Short,
			Name:      r.Name,
			Rating:    r.Rating,
			Tags:      r.Tags,
		})
	}
	return problems
}

// ProblemStat statistics 객체의 문제별 결과
type ProblemStat struct {
	Result json.RawMessage `json:"result"`
}

// StatisticsRecord 저지의 statistics 객체 (순위표 한 줄)
type StatisticsRecord struct {
	AccountID    int                        `json:"account_id"`
	Handle       string                     `json:"handle"`
	ContestID    int                        `json:"contest_id"`
	Place        *int                       `json:"place"`
	Score        float64                    `json:"score"`
	OldRating    *int                       `json:"old_rating"`
	NewRating    *int                       `json:"new_rating"`
	RatingChange *int                       `json:"rating_change"`
	Problems     map[string]ProblemStat     `json:"problems"`
	MoreFields   map[string]json.RawMessage `json:"more_fields"`
}

func (r *StatisticsRecord) Validate() error {
	if strings.TrimSpace(r.Handle) == "" {
		return invalidRecord("statistics", fmt.Sprintf("row for account %d has no handle", r.AccountID))
	}
	if r.ContestID <= 0 {
		return invalidRecord("statistics", fmt.Sprintf("row for %s has no contest", r.Handle))
	}
	if r.Place != nil && *r.Place <= 0 {
		return invalidRecord("statistics", fmt.Sprintf("row for %s has place %d", r.Handle, *r.Place))
	}
	return nil
}

// ParticipantType more_fields.participant_type 값으로 참가 유형을 결정합니다
func (r *StatisticsRecord) ParticipantType() models.ParticipantType {
	raw, ok := r.MoreFields["participant_type"]
	if !ok {
		return models.ParticipantNormal
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return models.ParticipantNormal
	}
	switch strings.ToLower(value) {
	case "virtual":
		return models.ParticipantVirtual
	case "out_of_competition":
		return models.ParticipantOutOfCompetition
	default:
		return models.ParticipantNormal
	}
}

// Penalty more_fields.penalty 값. 없으면 0
func (r *StatisticsRecord) Penalty() int {
	raw, ok := r.MoreFields["penalty"]
	if !ok {
		return 0
	}
	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0
	}
	return int(value)
}

// ToStandingRow 순위표 한 줄로 변환합니다. place가 없으면 fallbackRank를 사용합니다
func (r *StatisticsRecord) ToStandingRow(fallbackRank int) models.StandingRow {
	rank := fallbackRank
	if r.Place != nil {
		rank = *r.Place
	}

	indices := make([]string, 0, len(r.Problems))
	for index := range r.Problems {
		indices = append(indices, index)
	}
	sort.Strings(indices)

	results := make([]models.ProblemResult, 0, len(indices))
	for _, index := range indices {
		result := parseProblemResult(r.Problems[index].Result)
		result.Index = index
		results = append(results, result)
	}

	return models.StandingRow{
		Rank: rank,
		Party: models.Party{
			Handles:         []string{r.Handle},
			ParticipantType: r.ParticipantType(),
		},
		Points:         r.Score,
		Penalty:        r.Penalty(),
		ProblemResults: results,
	}
}

// parseProblemResult "+", "+2", "-3", "?" 또는 숫자 점수를 해석합니다
func parseProblemResult(raw json.RawMessage) models.ProblemResult {
	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return models.ProblemResult{Points: number, Accepted: number > 0}
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return models.ProblemResult{}
	}
	text = strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(text, "+"):
		rejected, _ := strconv.Atoi(strings.TrimPrefix(text, "+"))
		return models.ProblemResult{Points: 1, Accepted: true, Rejected: rejected}
	case strings.HasPrefix(text, "-"):
		rejected, _ := strconv.Atoi(strings.TrimPrefix(text, "-"))
		return models.ProblemResult{Rejected: rejected}
	default:
		if value, err := strconv.ParseFloat(text, 64); err == nil {
			return models.ProblemResult{Points: value, Accepted: value > 0}
		}
		return models.ProblemResult{}
	}
}

func parseJudgeTime(value string) (time.Time, error) {
	return time.ParseInLocation(constants.JudgeTimeFormat, value, time.UTC)
}
