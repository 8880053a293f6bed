package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType 오류의 종류를 나타냅니다
type ErrorType int

const (
	TypeValidation ErrorType = iota
	TypeRateLimited
	TypeRequestFailed
	TypeNotFound
	TypeNotCached
	TypeNotMonitored
	TypeStaleData
	TypeConflict
	TypeSystem
)

func (t ErrorType) String() string {
	switch t {
	case TypeValidation:
		return "Validation"
	case TypeRateLimited:
		return "RateLimited"
	case TypeRequestFailed:
		return "RequestFailed"
	case TypeNotFound:
		return "NotFound"
	case TypeNotCached:
		return "NotCached"
	case TypeNotMonitored:
		return "NotMonitored"
	case TypeStaleData:
		return "StaleData"
	case TypeConflict:
		return "Conflict"
	case TypeSystem:
		return "System"
	default:
		return "Unknown"
	}
}

// AppError 애플리케이션에서 발생하는 구조화된 오류를 표현합니다
type AppError struct {
	Type     ErrorType
	Code     string
	Message  string
	UserMsg  string
	Internal error
}

func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Internal
}

// Is 같은 Type의 AppError이면 일치하는 것으로 봅니다 (sentinel 비교용)
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Type == e.Type && (t.Code == "" || t.Code == e.Code)
}

// GetUserMessage 사용자에게 표시할 메시지를 반환합니다
func (e *AppError) GetUserMessage() string {
	if e.UserMsg != "" {
		return e.UserMsg
	}
	return e.Message
}

// errors.Is 비교용 sentinel
var (
	ErrRateLimited          = &AppError{Type: TypeRateLimited}
	ErrRequestFailed        = &AppError{Type: TypeRequestFailed}
	ErrNotFound             = &AppError{Type: TypeNotFound}
	ErrProblemsetNotCached  = &AppError{Type: TypeNotCached, Code: "PROBLEMSET_NOT_CACHED"}
	ErrRanklistNotMonitored = &AppError{Type: TypeNotMonitored, Code: "RANKLIST_NOT_MONITORED"}
	ErrStaleData            = &AppError{Type: TypeStaleData}
	ErrConflict             = &AppError{Type: TypeConflict}
)

// 오류 생성 함수들

// NewValidationError 입력값 검증 오류를 생성합니다
func NewValidationError(code, message, userMsg string) *AppError {
	return &AppError{
		Type:    TypeValidation,
		Code:    code,
		Message: message,
		UserMsg: userMsg,
	}
}

// NewRateLimitedError 외부 API 호출 한도 초과 오류를 생성합니다
func NewRateLimitedError(message string) *AppError {
	return &AppError{
		Type:    TypeRateLimited,
		Code:    "RATE_LIMITED",
		Message: message,
		UserMsg: "외부 API 호출 한도를 초과했습니다. 잠시 후 다시 시도해주세요.",
	}
}

// NewRequestFailedError 외부 API 요청 실패 오류를 생성합니다
func NewRequestFailedError(message string, err error) *AppError {
	return &AppError{
		Type:     TypeRequestFailed,
		Code:     "REQUEST_FAILED",
		Message:  message,
		UserMsg:  "외부 서비스 연결에 문제가 발생했습니다. 잠시 후 다시 시도해주세요.",
		Internal: err,
	}
}

// NewNotFoundError 리소스를 찾을 수 없는 오류를 생성합니다
func NewNotFoundError(code, message, userMsg string) *AppError {
	return &AppError{
		Type:    TypeNotFound,
		Code:    code,
		Message: message,
		UserMsg: userMsg,
	}
}

// NewProblemsetNotCachedError 문제 목록이 아직 캐시되지 않은 오류를 생성합니다
func NewProblemsetNotCachedError(contestID int) *AppError {
	return &AppError{
		Type:    TypeNotCached,
		Code:    "PROBLEMSET_NOT_CACHED",
		Message: fmt.Sprintf("problemset for contest %d is not cached", contestID),
		UserMsg: "아직 문제 목록이 준비되지 않았습니다.",
	}
}

// NewRanklistNotMonitoredError 모니터링되지 않는 대회의 순위표 조회 오류를 생성합니다
func NewRanklistNotMonitoredError(contestID int) *AppError {
	return &AppError{
		Type:    TypeNotMonitored,
		Code:    "RANKLIST_NOT_MONITORED",
		Message: fmt.Sprintf("ranklist for contest %d is not monitored", contestID),
		UserMsg: "순위표를 생성하는 중입니다. 잠시만 기다려주세요.",
	}
}

// NewStaleDataWarning 만료된 데이터를 제공 중임을 알리는 경고를 생성합니다
func NewStaleDataWarning(cacheName string, age fmt.Stringer) *AppError {
	return &AppError{
		Type:    TypeStaleData,
		Code:    "STALE_DATA",
		Message: fmt.Sprintf("%s snapshot is stale (age %s)", cacheName, age),
	}
}

// NewConflictError 상태 충돌 오류를 생성합니다
func NewConflictError(code, message, userMsg string) *AppError {
	return &AppError{
		Type:    TypeConflict,
		Code:    code,
		Message: message,
		UserMsg: userMsg,
	}
}

// NewSystemError 시스템 내부 오류를 생성합니다
func NewSystemError(code, message string, err error) *AppError {
	return &AppError{
		Type:     TypeSystem,
		Code:     code,
		Message:  message,
		UserMsg:  "시스템 오류가 발생했습니다. 관리자에게 문의해주세요.",
		Internal: err,
	}
}

// TypeOf 오류 체인에서 AppError의 Type을 찾습니다. 없으면 TypeSystem입니다
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type
	}
	return TypeSystem
}

// IsRetryable 재시도 가능한 오류(RateLimited, RequestFailed)인지 확인합니다
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch TypeOf(err) {
	case TypeRateLimited, TypeRequestFailed:
		return true
	default:
		return false
	}
}

// Is 표준 errors.Is 위임
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As 표준 errors.As 위임
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
