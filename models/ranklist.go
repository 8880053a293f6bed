package models

import (
	"sort"
	"strings"
	"time"
)

// ParticipantType 참가 유형
type ParticipantType string

const (
	ParticipantNormal           ParticipantType = "NORMAL"
	ParticipantVirtual          ParticipantType = "VIRTUAL"
	ParticipantOutOfCompetition ParticipantType = "OUT_OF_COMPETITION"
)

// Party 순위표 한 줄의 참가 주체
type Party struct {
	Handles         []string        `json:"handles"`
	ParticipantType ParticipantType `json:"participantType"`
}

// ProblemResult 문제별 결과
type ProblemResult struct {
	Index    string  `json:"index"`
	Points   float64 `json:"points"`
	Rejected int     `json:"rejectedAttemptCount"`
	Accepted bool    `json:"accepted"`
}

// StandingRow 순위표의 한 줄
type StandingRow struct {
	Rank           int             `json:"rank"`
	Party          Party           `json:"party"`
	Points         float64         `json:"points"`
	Penalty        int             `json:"penalty"`
	ProblemResults []ProblemResult `json:"problemResults"`
}

// Handle 대표 핸들 (팀이면 첫 번째 멤버)
func (r *StandingRow) Handle() string {
	if len(r.Party.Handles) == 0 {
		return ""
	}
	return r.Party.Handles[0]
}

// FieldEntry 퍼포먼스 계산의 기준이 되는 공식 참가자 (대회 당시 레이팅과 점수)
type FieldEntry struct {
	Handle  string  `json:"handle"`
	Rating  int     `json:"rating"`
	Points  float64 `json:"points"`
	Penalty int     `json:"penalty"`
}

// Ranklist 대회 순위표
type Ranklist struct {
	Contest       *Contest       `json:"contest"`
	Rows          []StandingRow  `json:"rows"`
	IsRated       bool           `json:"isRated"`
	DeltaByHandle map[string]int `json:"deltaByHandle,omitempty"`
	Field         []FieldEntry   `json:"field,omitempty"`
	GeneratedAt   time.Time      `json:"generatedAt"`

	rowIndex map[string]int
}

// NewRanklist 순위표를 생성합니다. 같은 핸들이 여러 줄이면 가장 좋은 순위 한 줄만 남깁니다
func NewRanklist(contest *Contest, rows []StandingRow, deltas map[string]int, field []FieldEntry, generatedAt time.Time) *Ranklist {
	sorted := make([]StandingRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Rank < sorted[j].Rank
	})

	deduped := make([]StandingRow, 0, len(sorted))
	index := make(map[string]int, len(sorted))
	for _, row := range sorted {
		key := strings.ToLower(row.Handle())
		if key == "" {
			continue
		}
		if _, exists := index[key]; exists {
			continue
		}
		index[key] = len(deduped)
		deduped = append(deduped, row)
	}

	return &Ranklist{
		Contest:       contest,
		Rows:          deduped,
		IsRated:       len(deltas) > 0,
		DeltaByHandle: deltas,
		Field:         field,
		GeneratedAt:   generatedAt,
		rowIndex:      index,
	}
}

// GetStandingRow 핸들의 순위표 줄을 찾습니다
func (r *Ranklist) GetStandingRow(handle string) (StandingRow, bool) {
	if r.rowIndex == nil {
		for i := range r.Rows {
			if strings.EqualFold(r.Rows[i].Handle(), handle) {
				return r.Rows[i], true
			}
		}
		return StandingRow{}, false
	}
	i, ok := r.rowIndex[strings.ToLower(handle)]
	if !ok {
		return StandingRow{}, false
	}
	return r.Rows[i], true
}

// GetDelta 핸들의 레이팅 변화량
func (r *Ranklist) GetDelta(handle string) (int, bool) {
	delta, ok := r.DeltaByHandle[handle]
	return delta, ok
}

// Handles 순위표에 있는 모든 대표 핸들
func (r *Ranklist) Handles() []string {
	handles := make([]string, 0, len(r.Rows))
	for i := range r.Rows {
		handles = append(handles, r.Rows[i].Handle())
	}
	return handles
}

// Standings 저지에서 받은 대회 순위 원본 (필터링 전)
type Standings struct {
	ContestID int
	Rows      []StandingRow
	Field     []FieldEntry
	Deltas    map[string]int
}
