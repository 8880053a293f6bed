package models

import "time"

// VCStatus 가상 대회 상태
type VCStatus string

const (
	VCOngoing  VCStatus = "ONGOING"
	VCFinished VCStatus = "FINISHED"
)

// TimeWindow [Start, End] 구간
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Contains 구간 포함 여부 (양 끝 포함)
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// VirtualContest 레이팅이 반영되는 가상 대회
type VirtualContest struct {
	ID             int64     `json:"id" firestore:"id"`
	ContestID      int       `json:"contestId" firestore:"contestId"`
	GroupID        string    `json:"groupId" firestore:"groupId"`
	StartTime      time.Time `json:"startTime" firestore:"startTime"`
	FinishTime     time.Time `json:"finishTime" firestore:"finishTime"`
	Status         VCStatus  `json:"status" firestore:"status"`
	ParticipantIDs []string  `json:"participantIds" firestore:"participantIds"`
}

// Window VC 진행 구간
func (vc *VirtualContest) Window() TimeWindow {
	return TimeWindow{Start: vc.StartTime, End: vc.FinishTime}
}

// IsFinished 정산 완료 여부
func (vc *VirtualContest) IsFinished() bool {
	return vc.Status == VCFinished
}

// HasElapsed now 기준으로 VC 시간이 끝났는지 확인합니다
func (vc *VirtualContest) HasElapsed(now time.Time) bool {
	return !now.Before(vc.FinishTime)
}

// HasParticipant 참가자 포함 여부
func (vc *VirtualContest) HasParticipant(participantID string) bool {
	for _, id := range vc.ParticipantIDs {
		if id == participantID {
			return true
		}
	}
	return false
}

// RatingRecord 참가자 레이팅 이력의 한 항목
type RatingRecord struct {
	VCID          int64  `json:"vcId" firestore:"vcId"`
	ParticipantID string `json:"participantId" firestore:"participantId"`
	NewRating     int    `json:"newRating" firestore:"newRating"`
}

// RatingChange 정산 결과 한 명분
type RatingChange struct {
	ParticipantID string `json:"participantId"`
	Handle        string `json:"handle"`
	OldRating     int    `json:"oldRating"`
	NewRating     int    `json:"newRating"`
}

// Delta 변화량
func (c RatingChange) Delta() int {
	return c.NewRating - c.OldRating
}

// SettlementResult VC 한 건의 정산 결과
type SettlementResult struct {
	VC        *VirtualContest `json:"vc"`
	Changes   []RatingChange  `json:"changes"`
	Removed   []string        `json:"removed"`
	Ranklist  *Ranklist       `json:"-"`
	SettledAt time.Time       `json:"settledAt"`
}
