package constants

// 검증 규칙 상수
const (
	MinHandleLength = 3  // 핸들 최소 길이
	MaxHandleLength = 24 // 핸들 최대 길이
)

// 마스킹 대상 키워드
var SensitiveKeywords = []string{"token", "key", "secret", "password", "api_key"}
