package utils

import (
	"regexp"
	"strings"

	"github.com/ssugameworks/ratedvc/constants"
)

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// IsValidHandle 저지 핸들 형식을 검증합니다
func IsValidHandle(handle string) bool {
	if len(handle) < constants.MinHandleLength || len(handle) > constants.MaxHandleLength {
		return false
	}
	return handlePattern.MatchString(handle)
}

// NormalizeID 참가자/그룹 ID 비교용 정규화 (앞뒤 공백 제거, 소문자)
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// SanitizeString 제어 문자와 앞뒤 공백을 제거합니다
func SanitizeString(input string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, input)
	return strings.TrimSpace(cleaned)
}
