package api

import (
	"context"
	"time"

	"github.com/ssugameworks/ratedvc/constants"
	"github.com/ssugameworks/ratedvc/errors"
	"github.com/ssugameworks/ratedvc/utils"
)

// RetryPolicy 재시도 정책
type RetryPolicy struct {
	MaxAttempts int
	// Delay attempt번째(1부터) 실패 후 다음 시도까지 기다릴 시간
	Delay func(attempt int) time.Duration
	// RateLimitDelay RateLimited 실패 후의 대기 시간. nil이면 Delay를 사용합니다
	RateLimitDelay func(attempt int) time.Duration
}

// WithRateLimitBackoff RateLimited 실패 후에는 step × attempt만큼 기다리는 정책을 반환합니다
func (p RetryPolicy) WithRateLimitBackoff(step time.Duration) RetryPolicy {
	p.RateLimitDelay = func(attempt int) time.Duration { return step * time.Duration(attempt) }
	return p
}

func (p RetryPolicy) delayFor(attempt int, err error) time.Duration {
	if p.RateLimitDelay != nil && errors.TypeOf(err) == errors.TypeRateLimited {
		return p.RateLimitDelay(attempt)
	}
	if p.Delay != nil {
		return p.Delay(attempt)
	}
	return 0
}

// FixedDelay 매 시도 사이에 같은 시간만큼 기다리는 정책
func FixedDelay(maxAttempts int, delay time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Delay:       func(int) time.Duration { return delay },
	}
}

// JudgeRetryPolicy 일반 실패는 delay만큼, RateLimited는 delay × 시도 횟수만큼 기다립니다
func JudgeRetryPolicy(maxAttempts int, delay time.Duration) RetryPolicy {
	return FixedDelay(maxAttempts, delay).WithRateLimitBackoff(delay)
}

// DefaultRetryPolicy 저지 API 기본 재시도 정책
func DefaultRetryPolicy() RetryPolicy {
	return JudgeRetryPolicy(constants.MaxRetries, constants.RetryDelay)
}

// Retry op를 정책에 따라 재시도합니다. RateLimited, RequestFailed만 재시도하며
// 시도가 모두 실패하면 마지막 오류를 반환합니다
func Retry[T any](ctx context.Context, policy RetryPolicy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !errors.IsRetryable(err) {
			return zero, err
		}

		utils.Info("Try %d/%d at %s failed: %v", attempt, attempts, name, err)
		if attempt == attempts {
			break
		}

		if err := sleep(ctx, policy.delayFor(attempt, err)); err != nil {
			return zero, errors.NewRequestFailedError("retry cancelled: "+name, err)
		}
	}

	utils.Warn("Aborting %s after %d attempts: %v", name, attempts, lastErr)
	return zero, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
