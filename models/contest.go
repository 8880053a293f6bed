package models

import "time"

// ContestType 대회 채점 방식
type ContestType string

const (
	ContestTypeCF       ContestType = "CF"
	ContestTypeICPC     ContestType = "ICPC"
	ContestTypeIOI      ContestType = "IOI"
	ContestTypeExternal ContestType = "EXTERNAL"
)

// Phase 대회 진행 단계. 항상 현재 시각으로부터 계산되며 저장하지 않습니다
type Phase string

const (
	PhaseBefore   Phase = "BEFORE"
	PhaseCoding   Phase = "CODING"
	PhaseFinished Phase = "FINISHED"
)

// Contest 저지 대회 정보
type Contest struct {
	ID               int         `json:"id"`
	Name             string      `json:"name"`
	StartTimeSeconds int64       `json:"startTimeSeconds"`
	DurationSeconds  int64       `json:"durationSeconds"`
	Type             ContestType `json:"type"`
	Resource         string      `json:"resource,omitempty"`
	URL              string      `json:"url,omitempty"`
}

// StartTime 대회 시작 시각
func (c *Contest) StartTime() time.Time {
	return time.Unix(c.StartTimeSeconds, 0)
}

// EndTime 대회 종료 시각
func (c *Contest) EndTime() time.Time {
	return time.Unix(c.StartTimeSeconds+c.DurationSeconds, 0)
}

// Duration 대회 진행 시간
func (c *Contest) Duration() time.Duration {
	return time.Duration(c.DurationSeconds) * time.Second
}

// Phase now 기준의 진행 단계를 계산합니다
func (c *Contest) Phase(now time.Time) Phase {
	ts := now.Unix()
	switch {
	case ts < c.StartTimeSeconds:
		return PhaseBefore
	case ts < c.StartTimeSeconds+c.DurationSeconds:
		return PhaseCoding
	default:
		return PhaseFinished
	}
}

// FinishedFor 종료 후 경과 시간. 종료 전이면 0
func (c *Contest) FinishedFor(now time.Time) time.Duration {
	if c.Phase(now) != PhaseFinished {
		return 0
	}
	return now.Sub(c.EndTime())
}

// Problem 대회에 속한 문제
type Problem struct {
	ContestID int      `json:"contestId"`
	Index     string   `json:"index"`
	Name      string   `json:"name"`
	Rating    *int     `json:"rating,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// ProblemKey 문제 식별자 (contestId, index)
type ProblemKey struct {
	ContestID int
	Index     string
}

func (p *Problem) Key() ProblemKey {
	return ProblemKey{ContestID: p.ContestID, Index: p.Index}
}

// HasTag 태그 보유 여부
func (p *Problem) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
