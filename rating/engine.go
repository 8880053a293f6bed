package rating

import (
	"fmt"
	"math"
	"strings"

	"github.com/ssugameworks/ratedvc/constants"
	"github.com/ssugameworks/ratedvc/errors"
	"github.com/ssugameworks/ratedvc/models"
)

// Opponent 가중치가 있는 상대 레이팅
type Opponent struct {
	Rating float64
	Weight float64
}

// Member 팀 레이팅 계산에 쓰이는 구성원 (레이팅, 반복 횟수)
type Member struct {
	Handle string
	Rating int
	Count  int
}

// Engine Elo 기반 레이팅 계산기. 입출력이 없고 같은 입력에 항상 같은 결과를 냅니다
type Engine struct {
	left       float64
	right      float64
	iterations int
	deltaRate  float64
}

// NewEngine 기본 탐색 구간으로 Engine을 생성합니다
func NewEngine() *Engine {
	return &Engine{
		left:       constants.RatingSearchLeft,
		right:      constants.RatingSearchRight,
		iterations: constants.RatingSearchIters,
		deltaRate:  constants.PerformanceDeltaRate,
	}
}

// WinProbability a가 b를 이길 확률
func WinProbability(a, b float64) float64 {
	return 1 / (1 + math.Pow(10, (b-a)/constants.EloScale))
}

// ComposeRating 가중치가 있는 상대 전체를 이길 확률이 50%가 되는 레이팅을 이분 탐색으로 찾습니다
func (e *Engine) ComposeRating(opponents []Opponent) int {
	left, right := e.left, e.right
	for i := 0; i < e.iterations; i++ {
		mid := (left + right) / 2
		probability := 1.0
		for _, o := range opponents {
			probability *= math.Pow(WinProbability(mid, o.Rating), o.Weight)
		}
		if probability < 0.5 {
			left = mid
		} else {
			right = mid
		}
	}
	return int(math.Round((left + right) / 2))
}

// TeamRating 구성원 전원을 한 팀으로 봤을 때의 레이팅
func (e *Engine) TeamRating(members []Member) (int, error) {
	if len(members) == 0 {
		return 0, errors.NewValidationError("EMPTY_TEAM", "team has no members", "팀 구성원이 없습니다.")
	}

	opponents := make([]Opponent, 0, len(members))
	for _, m := range members {
		if m.Count <= 0 {
			return 0, errors.NewValidationError("INVALID_MEMBER_COUNT",
				fmt.Sprintf("member %s has count %d", m.Handle, m.Count),
				"반복 횟수는 1 이상이어야 합니다.")
		}
		opponents = append(opponents, Opponent{Rating: float64(m.Rating), Weight: float64(m.Count)})
	}
	return e.ComposeRating(opponents), nil
}

// ExpectedRank rating인 참가자의 기대 등수 (1 + 각 기준 참가자에게 질 확률의 합)
func ExpectedRank(rating float64, field []models.FieldEntry) float64 {
	rank := 1.0
	for _, f := range field {
		rank += WinProbability(float64(f.Rating), rating)
	}
	return rank
}

// ActualRank 기준 참가자들 사이에서의 실제 등수. 동점은 절반씩 셉니다
func ActualRank(points float64, penalty int, field []models.FieldEntry) float64 {
	rank := 1.0
	for _, f := range field {
		switch {
		case f.Points > points || (f.Points == points && f.Penalty < penalty):
			rank++
		case f.Points == points && f.Penalty == penalty:
			rank += 0.5
		}
	}
	return rank
}

// PerformanceRating 기대 등수가 실제 등수와 같아지는 레이팅.
// 1등과 꼴등은 도달할 수 없는 값이므로 실제 등수를 [1.5, n+0.5]로 제한합니다
func (e *Engine) PerformanceRating(points float64, penalty int, field []models.FieldEntry) int {
	target := ActualRank(points, penalty, field)
	target = math.Max(target, 1.5)
	target = math.Min(target, float64(len(field))+0.5)
	left, right := e.left, e.right
	for i := 0; i < e.iterations; i++ {
		mid := (left + right) / 2
		if ExpectedRank(mid, field) > target {
			left = mid
		} else {
			right = mid
		}
	}
	return int(math.Round((left + right) / 2))
}

// ComputeDeltas VIRTUAL 참가자마다 (퍼포먼스 - 기존 레이팅) * deltaRate를 반올림한 변화량을 계산합니다.
// priors에 없는 핸들은 기본 레이팅을 사용하며, 기준 참가자가 없으면 빈 결과를 반환합니다
func (e *Engine) ComputeDeltas(ranklist *models.Ranklist, priors map[string]int) map[string]int {
	deltas := make(map[string]int)
	if ranklist == nil || len(ranklist.Field) == 0 {
		return deltas
	}

	normalized := make(map[string]int, len(priors))
	for handle, rating := range priors {
		normalized[strings.ToLower(handle)] = rating
	}

	for i := range ranklist.Rows {
		row := &ranklist.Rows[i]
		if row.Party.ParticipantType != models.ParticipantVirtual {
			continue
		}
		handle := row.Handle()
		prior, ok := normalized[strings.ToLower(handle)]
		if !ok {
			prior = constants.DefaultRating
		}
		performance := e.PerformanceRating(row.Points, row.Penalty, ranklist.Field)
		deltas[handle] = int(math.Round(float64(performance-prior) * e.deltaRate))
	}
	return deltas
}
