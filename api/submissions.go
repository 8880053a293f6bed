package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ssugameworks/ratedvc/constants"
	"github.com/ssugameworks/ratedvc/errors"
	"github.com/ssugameworks/ratedvc/models"
	"github.com/ssugameworks/ratedvc/utils"
)

// Submission Codeforces 제출 정보
type Submission struct {
	ID                  int64  `json:"id"`
	ContestID           int    `json:"contestId"`
	CreationTimeSeconds int64  `json:"creationTimeSeconds"`
	RelativeTimeSeconds int64  `json:"relativeTimeSeconds"`
	Verdict             string `json:"verdict"`
	Problem             struct {
		ContestID int    `json:"contestId"`
		Index     string `json:"index"`
	} `json:"problem"`
}

// IsPending 채점이 끝나지 않은 제출인지 확인합니다
func (s *Submission) IsPending() bool {
	return s.Verdict == "" || s.Verdict == constants.VerdictTesting
}

type codeforcesEnvelope struct {
	Status  string          `json:"status"`
	Comment string          `json:"comment"`
	Result  json.RawMessage `json:"result"`
}

// CodeforcesClient 제출 채점 상태를 조회하는 Codeforces API 클라이언트입니다
type CodeforcesClient struct {
	caller Caller
}

// NewCodeforcesClient 새로운 CodeforcesClient 인스턴스를 생성합니다
func NewCodeforcesClient(caller Caller) *CodeforcesClient {
	return &CodeforcesClient{caller: caller}
}

// ClassifyCodeforcesStatus Codeforces의 "handle ... not found" 응답을 NotFound로 분류합니다
func ClassifyCodeforcesStatus(status int, body []byte) error {
	if status != http.StatusBadRequest {
		return nil
	}
	var envelope codeforcesEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}
	if bytes.Contains(bytes.ToLower([]byte(envelope.Comment)), []byte("not found")) {
		return errors.NewNotFoundError("HANDLE_NOT_FOUND", envelope.Comment, "Codeforces 핸들을 찾을 수 없습니다.")
	}
	return nil
}

// UserStatus 핸들의 최근 제출 목록을 가져옵니다
func (c *CodeforcesClient) UserStatus(ctx context.Context, handle string) ([]Submission, error) {
	if !utils.IsValidHandle(handle) {
		return nil, errors.NewValidationError("INVALID_HANDLE",
			fmt.Sprintf("invalid handle: %s", handle),
			fmt.Sprintf("잘못된 핸들 형식: %s", handle))
	}

	body, err := c.caller.Call(ctx, "user.status", Params{
		"handle": handle,
		"from":   "1",
		"count":  strconv.Itoa(constants.CodeforcesStatusCount),
	})
	if err != nil {
		return nil, err
	}

	var envelope codeforcesEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errors.NewRequestFailedError("제출 목록 파싱 실패", err)
	}
	if envelope.Status != "OK" {
		return nil, errors.NewRequestFailedError("user.status failed: "+envelope.Comment, nil)
	}

	var submissions []Submission
	if err := json.Unmarshal(envelope.Result, &submissions); err != nil {
		return nil, errors.NewRequestFailedError("제출 목록 파싱 실패", err)
	}
	return submissions, nil
}

// PendingJudgement window 안에서 contestID에 낸 제출 중 채점 중인 것이 있는지 확인합니다
func (c *CodeforcesClient) PendingJudgement(ctx context.Context, handle string, contestID int, window models.TimeWindow) (bool, error) {
	submissions, err := c.UserStatus(ctx, handle)
	if err != nil {
		return false, err
	}

	start, end := window.Start.Unix(), window.End.Unix()
	for i := range submissions {
		sub := &submissions[i]
		if sub.ContestID != contestID && sub.Problem.ContestID != contestID {
			continue
		}
		if sub.CreationTimeSeconds < start || sub.CreationTimeSeconds > end {
			continue
		}
		if sub.IsPending() {
			utils.Debug("Submission %d by %s is still being judged", sub.ID, handle)
			return true, nil
		}
	}
	return false, nil
}

// HasSubmissions 핸들이 해당 대회에 제출한 적이 있는지 확인합니다
func (c *CodeforcesClient) HasSubmissions(ctx context.Context, handle string, contestID int) (bool, error) {
	submissions, err := c.UserStatus(ctx, handle)
	if err != nil {
		return false, err
	}
	for i := range submissions {
		if submissions[i].ContestID == contestID || submissions[i].Problem.ContestID == contestID {
			return true, nil
		}
	}
	return false, nil
}
