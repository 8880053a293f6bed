package constants

import "time"

// 시스템 관련 상수
const (
	// 애플리케이션 버전
	ServiceVersion = "0.3.0"

	// 네트워크 관련
	DefaultHTTPPort = "8080" // 기본 HTTP 포트 (헬스체크/메트릭용)

	// 메모리 관련
	BytesToMB = 1024 * 1024 // 바이트를 MB로 변환하는 계수

	// 헬스체크 관련
	ExternalCallTimeout   = 5 * time.Second // 헬스체크, 지표 전송 등 부가 호출 타임아웃
	HealthStatusHealthy   = "healthy"       // 정상 상태
	HealthStatusUnhealthy = "unhealthy"     // 비정상 상태

	// 텔레메트리 관련
	CacheMetricsInterval = 1 * time.Minute // Cloud Monitoring 캐시 지표 전송 주기

	// 종료 관련
	ShutdownTimeout = 30 * time.Second // 진행 중인 정산 작업을 기다리는 최대 시간

	// 테스트 관련
	TestAPITimeout = 5 * time.Second // 테스트용 API 타임아웃
)
