package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ssugameworks/ratedvc/constants"
	"github.com/ssugameworks/ratedvc/errors"
	"github.com/ssugameworks/ratedvc/telemetry"
	"github.com/ssugameworks/ratedvc/utils"
	"golang.org/x/time/rate"
)

// Params 엔드포인트에 그대로 전달되는 쿼리 파라미터
type Params map[string]string

// Clone 복사본을 반환합니다
func (p Params) Clone() Params {
	clone := make(Params, len(p)+2)
	for k, v := range p {
		clone[k] = v
	}
	return clone
}

func (p Params) encode() string {
	values := url.Values{}
	for k, v := range p {
		values.Set(k, v)
	}
	return values.Encode()
}

// Caller 엔드포인트 호출 인터페이스
type Caller interface {
	Call(ctx context.Context, endpoint string, params Params) (json.RawMessage, error)
}

// StatusClassifier 2xx가 아닌 응답을 오류로 분류합니다. nil을 반환하면 기본 분류를 사용합니다
type StatusClassifier func(status int, body []byte) error

// ClientOptions RateLimitedClient 생성 옵션
type ClientOptions struct {
	BaseURL string
	// APIKey 원본 쿼리 문자열(username=...&api_key=...)로 모든 요청 뒤에 붙습니다
	APIKey     string
	Timeout    time.Duration
	Limiter    *rate.Limiter
	Policy     RetryPolicy
	HTTPClient *http.Client
	Classify   StatusClassifier
}

// RateLimitedClient 호출 한도를 지키며 저지 API를 호출하는 클라이언트입니다
type RateLimitedClient struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	timeout  time.Duration
	limiter  *rate.Limiter
	policy   RetryPolicy
	classify StatusClassifier
}

// NewWindowLimiter window 동안 최대 calls번 호출하도록 간격을 고르게 나눈 limiter를 생성합니다.
// 여러 클라이언트가 같은 외부 한도를 공유한다면 같은 limiter를 넘겨야 합니다
func NewWindowLimiter(calls int, window time.Duration) *rate.Limiter {
	if calls <= 0 {
		calls = 1
	}
	return rate.NewLimiter(rate.Every(window/time.Duration(calls)), 1)
}

// NewRateLimitedClient 새로운 RateLimitedClient 인스턴스를 생성합니다
func NewRateLimitedClient(opts ClientOptions) *RateLimitedClient {
	utils.Debug("Creating new rate limited client for %s", opts.BaseURL)

	if opts.Timeout <= 0 {
		opts.Timeout = constants.APITimeout
	}
	if opts.Limiter == nil {
		opts.Limiter = NewWindowLimiter(constants.APICallsPerWindow, constants.APICallWindow)
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = DefaultRetryPolicy()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}

	return &RateLimitedClient{
		client:   opts.HTTPClient,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		apiKey:   strings.TrimLeft(opts.APIKey, "?&"),
		timeout:  opts.Timeout,
		limiter:  opts.Limiter,
		policy:   opts.Policy,
		classify: opts.Classify,
	}
}

// Call 엔드포인트를 호출하고 응답 본문을 반환합니다.
// 실패 시 RateLimited, RequestFailed, NotFound 중 하나의 오류를 반환합니다
func (c *RateLimitedClient) Call(ctx context.Context, endpoint string, params Params) (json.RawMessage, error) {
	return Retry(ctx, c.policy, endpoint, func(ctx context.Context) (json.RawMessage, error) {
		return c.callOnce(ctx, endpoint, params)
	})
}

// callOnce 호출 슬롯을 기다린 뒤 한 번 요청합니다
func (c *RateLimitedClient) callOnce(ctx context.Context, endpoint string, params Params) (json.RawMessage, error) {
	waitStart := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.NewRequestFailedError("rate limiter wait aborted", err)
	}
	telemetry.RateLimitWait.Observe(time.Since(waitStart).Seconds())

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	requestURL := c.buildURL(endpoint, params)
	utils.Debug("Calling judge API: %s", requestURL)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, errors.NewRequestFailedError("요청 생성 실패", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	telemetry.JudgeRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.JudgeRequests.WithLabelValues(endpoint, telemetry.OutcomeFailed).Inc()
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.NewRequestFailedError(fmt.Sprintf("%s 요청 시간 초과", endpoint), err)
		}
		return nil, errors.NewRequestFailedError(fmt.Sprintf("%s 조회 실패", endpoint), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		telemetry.JudgeRequests.WithLabelValues(endpoint, telemetry.OutcomeFailed).Inc()
		return nil, errors.NewRequestFailedError("응답 읽기 실패", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := c.classifyStatus(endpoint, resp.StatusCode, body)
		telemetry.JudgeRequests.WithLabelValues(endpoint, outcomeOf(err)).Inc()
		return nil, err
	}

	if !json.Valid(body) {
		telemetry.JudgeRequests.WithLabelValues(endpoint, telemetry.OutcomeFailed).Inc()
		return nil, errors.NewRequestFailedError(fmt.Sprintf("%s 응답이 JSON이 아닙니다", endpoint), nil)
	}

	telemetry.JudgeRequests.WithLabelValues(endpoint, telemetry.OutcomeSuccess).Inc()
	return json.RawMessage(body), nil
}

func (c *RateLimitedClient) classifyStatus(endpoint string, status int, body []byte) error {
	if c.classify != nil {
		if err := c.classify(status, body); err != nil {
			return err
		}
	}

	switch {
	case status == http.StatusTooManyRequests:
		utils.Warn("Rate limited by judge API on %s", endpoint)
		return errors.NewRateLimitedError(fmt.Sprintf("%s call limit exceeded", endpoint))
	case status == http.StatusNotFound:
		return errors.NewNotFoundError("JUDGE_NOT_FOUND",
			fmt.Sprintf("%s returned 404", endpoint),
			"요청한 항목을 저지에서 찾을 수 없습니다.")
	default:
		utils.Warn("Judge API returned non-2xx status for %s: %d", endpoint, status)
		return errors.NewRequestFailedError(fmt.Sprintf("API가 상태 코드 %d를 반환했습니다", status), nil)
	}
}

func (c *RateLimitedClient) buildURL(endpoint string, params Params) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteByte('/')
	b.WriteString(strings.Trim(endpoint, "/"))

	query := params.encode()
	if c.apiKey != "" {
		if query != "" {
			query += "&"
		}
		query += c.apiKey
	}
	if query != "" {
		b.WriteByte('?')
		b.WriteString(query)
	}
	return b.String()
}

func outcomeOf(err error) string {
	switch errors.TypeOf(err) {
	case errors.TypeRateLimited:
		return telemetry.OutcomeRateLimited
	case errors.TypeNotFound:
		return telemetry.OutcomeNotFound
	default:
		return telemetry.OutcomeFailed
	}
}
