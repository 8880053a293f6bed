package cache

import (
	"time"

	"github.com/ssugameworks/ratedvc/errors"
)

// Status 조회 결과 종류
type Status int

const (
	// Found 캐시에 있음
	Found Status = iota
	// NotFound 저지에도 없는 항목. 다시 시도해도 결과가 같습니다
	NotFound
	// NotCached 논리적으로는 존재하지만 아직 캐시되지 않음. 즉석 생성 경로를 사용해야 합니다
	NotCached
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	case NotCached:
		return "not_cached"
	default:
		return "unknown"
	}
}

// Lookup 예외 없이 분기할 수 있는 캐시 조회 결과
type Lookup[T any] struct {
	Value  T
	Status Status
	// Stale 마지막 갱신이 TTL보다 오래되었지만 갱신에 실패해 이전 값을 제공하는 중
	Stale bool
	Age   time.Duration
	err   error
}

func found[T any](value T, age, ttl time.Duration) Lookup[T] {
	return Lookup[T]{Value: value, Status: Found, Age: age, Stale: ttl > 0 && age >= ttl}
}

func missing[T any](status Status, err error) Lookup[T] {
	return Lookup[T]{Status: status, err: err}
}

// OK 값이 있는지 확인합니다
func (l Lookup[T]) OK() bool {
	return l.Status == Found
}

// Err Found가 아니면 상태에 맞는 오류를 반환합니다
func (l Lookup[T]) Err() error {
	if l.Status == Found {
		return nil
	}
	return l.err
}

// Unwrap 값과 오류 쌍으로 변환합니다
func (l Lookup[T]) Unwrap() (T, error) {
	return l.Value, l.Err()
}

// Warning Stale이면 StaleData 경고를 반환합니다
func (l Lookup[T]) Warning(cacheName string) error {
	if !l.Stale {
		return nil
	}
	return errors.NewStaleDataWarning(cacheName, l.Age)
}
