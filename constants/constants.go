package constants

import "time"

// 저지 API 관련 상수
const (
	JudgeBaseURL      = "https://clist.by/api/v2"
	JudgeResource     = "codeforces.com"
	APITimeout        = 30 * time.Second
	MaxRetries        = 3
	RetryDelay        = 20 * time.Second
	APICallsPerWindow = 10
	APICallWindow     = 1 * time.Minute
	PageSize          = 1000
)

// Codeforces API 관련 상수 (제출 채점 상태 조회용)
const (
	CodeforcesBaseURL        = "https://codeforces.com/api"
	CodeforcesCallsPerWindow = 1
	CodeforcesCallWindow     = 2 * time.Second
	VerdictTesting           = "TESTING"
	CodeforcesStatusCount    = 200 // user.status 조회 시 가져올 최근 제출 수
)

// 캐시 관련 상수
const (
	ContestCacheTTL         = 30 * time.Minute
	ProblemCacheTTL         = 30 * time.Minute
	MonitorRefreshInterval  = 1 * time.Minute
	MonitorGrace            = 2 * 24 * time.Hour // 종료 후 이 기간까지는 모니터링 대상
	UnratedFreezeAfter      = 6 * time.Hour      // 레이팅이 없는 대회는 종료 후 이 시간이 지나면 고정
	ContestSnapshotKey      = "ratedvc:contests"
	ContestSnapshotRedisTTL = 24 * time.Hour
)

// 레이팅 관련 상수
const (
	DefaultRating        = 1500
	RatingSearchLeft     = -100.0
	RatingSearchRight    = 10000.0
	RatingSearchIters    = 20
	EloScale             = 400.0
	PerformanceDeltaRate = 0.5 // 퍼포먼스와 기존 레이팅 차이의 반영 비율
)

// 가상 대회(VC) 관련 상수
const (
	SettlementInterval   = 5 * time.Minute
	VCExtraTime          = 10 * time.Minute
	MinRatedContestants  = 50
	MaxVCParticipants    = 100
	SettlementTxAttempts = 3
)

// 날짜 형식
const (
	DateTimeFormat  = "2006-01-02 15:04:05"
	JudgeTimeFormat = "2006-01-02T15:04:05"
)

// 로그 관련 상수
const (
	LogLevelDebug = "DEBUG"
	LogLevelInfo  = "INFO"
	LogLevelWarn  = "WARN"
	LogLevelError = "ERROR"
)

// 이모지 상수
const (
	EmojiClock     = "⏰"
	EmojiStats     = "📊"
	EmojiUpArrow   = "📈"
	EmojiDownArrow = "📉"
)

// 환경 변수 키
const (
	EnvJudgeBaseURL       = "JUDGE_BASE_URL"
	EnvJudgeAPIKey        = "CLIST_API_TOKEN"
	EnvJudgeResource      = "JUDGE_RESOURCE"
	EnvCodeforcesBaseURL  = "CODEFORCES_BASE_URL"
	EnvDiscordToken       = "DISCORD_BOT_TOKEN"
	EnvChannelID          = "DISCORD_CHANNEL_ID"
	EnvLogLevel           = "LOG_LEVEL"
	EnvDebugMode          = "DEBUG_MODE"
	EnvJSONLogging        = "JSON_LOGGING"
	EnvStorageBackend     = "STORAGE_BACKEND"
	EnvDatabaseURL        = "DATABASE_URL"
	EnvFirebaseCreds      = "FIREBASE_CREDENTIALS_JSON"
	EnvRedisAddr          = "REDIS_ADDR"
	EnvRedisPassword      = "REDIS_PASSWORD"
	EnvRedisDB            = "REDIS_DB"
	EnvKafkaBrokers       = "KAFKA_BROKERS"
	EnvKafkaTopic         = "KAFKA_TOPIC"
	EnvRosterSpreadsheet  = "ROSTER_SPREADSHEET_ID"
	EnvRosterRange        = "ROSTER_RANGE"
	EnvTelemetryEnabled   = "TELEMETRY_ENABLED"
	EnvGoogleCloudProject = "GOOGLE_CLOUD_PROJECT"
	EnvPort               = "PORT"
)

// 저장소 백엔드 종류
const (
	StorageMemory    = "memory"
	StorageFirestore = "firestore"
	StoragePostgres  = "postgres"
)

// 텔레메트리 관련 상수
const (
	TelemetryNamespace = "ratedvc"
	TelemetryJobName   = "vc-settlement"
	TelemetryTaskID    = "main"
)

// Google Sheets 명단 관련 상수
const (
	RosterSheetRange          = "A:C"
	RosterParticipantIDColumn = "participant_id"
	RosterGroupIDColumn       = "group_id"
	RosterHandleColumn        = "handle"
	RosterRefreshInterval     = 10 * time.Minute
)

// Kafka 관련 상수
const (
	DefaultKafkaTopic = "ratedvc.settlements"
	KafkaWriteTimeout = 10 * time.Second
)

// Discord 메시지
const (
	MsgVCStandingsTitle   = "📊 VC #%d 중간 순위"
	MsgVCResultsTitle     = "🏆 VC #%d 결과"
	MsgVCContestLine      = "대회: [%s](%s)"
	MsgVCFinishLine       = "종료: %s"
	MsgVCNoRows           = "아직 제출한 참가자가 없습니다."
	MsgVCRemovedFooter    = "제출이 없어 제외된 참가자: %d명"
	MsgVCRankUp           = "%s → **%s**"
	StandingsHandleWidth  = 16
	StandingsPointsWidth  = 8
	StandingsPenaltyWidth = 7
	ColorStandings        = 0x3498DB
	ColorResults          = 0xF1C40F
)
