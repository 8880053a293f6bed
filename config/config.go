package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/ssugameworks/ratedvc/constants"
)

// Config 애플리케이션의 전체 설정을 관리합니다
type Config struct {
	Judge      JudgeConfig
	Codeforces CodeforcesConfig
	Cache      CacheConfig
	Scheduler  SchedulerConfig
	Storage    StorageConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Discord    DiscordConfig
	Roster     RosterConfig
	Logging    LoggingConfig
	Telemetry  TelemetryConfig
	HTTP       HTTPConfig
}

// JudgeConfig 순위표/대회 정보를 제공하는 저지 API 설정
type JudgeConfig struct {
	BaseURL        string
	APIKey         string
	Resource       string
	Timeout        time.Duration
	CallsPerWindow int
	Window         time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	PageSize       int
}

type CodeforcesConfig struct {
	BaseURL        string
	CallsPerWindow int
	Window         time.Duration
}

type CacheConfig struct {
	ContestTTL      time.Duration
	ProblemTTL      time.Duration
	MonitorInterval time.Duration
}

type SchedulerConfig struct {
	Interval   time.Duration
	ExtraTime  time.Duration
	MinRated   int
	TxAttempts int
	RunOnStart bool
	Enabled    bool
}

type StorageConfig struct {
	Backend          string
	DatabaseURL      string
	FirebaseCreds    string
	FirestoreProject string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type DiscordConfig struct {
	Token     string
	ChannelID string
}

type RosterConfig struct {
	SpreadsheetID string
	Range         string
}

type LoggingConfig struct {
	Level     string
	DebugMode bool
	JSON      bool
}

type TelemetryConfig struct {
	Enabled   bool
	ProjectID string
}

type HTTPConfig struct {
	Port string
}

// Load .env 파일(있는 경우)과 환경변수에서 설정을 로드합니다
func Load() *Config {
	// .env가 없으면 실제 환경변수만 사용
	_ = godotenv.Load()

	return &Config{
		Judge: JudgeConfig{
			BaseURL:        getEnv(constants.EnvJudgeBaseURL, constants.JudgeBaseURL),
			APIKey:         getEnv(constants.EnvJudgeAPIKey, ""),
			Resource:       getEnv(constants.EnvJudgeResource, constants.JudgeResource),
			Timeout:        getEnvDuration("JUDGE_TIMEOUT", constants.APITimeout),
			CallsPerWindow: getEnvInt("JUDGE_CALLS_PER_WINDOW", constants.APICallsPerWindow),
			Window:         getEnvDuration("JUDGE_CALL_WINDOW", constants.APICallWindow),
			MaxRetries:     getEnvInt("JUDGE_MAX_RETRIES", constants.MaxRetries),
			RetryDelay:     getEnvDuration("JUDGE_RETRY_DELAY", constants.RetryDelay),
			PageSize:       getEnvInt("JUDGE_PAGE_SIZE", constants.PageSize),
		},
		Codeforces: CodeforcesConfig{
			BaseURL:        getEnv(constants.EnvCodeforcesBaseURL, constants.CodeforcesBaseURL),
			CallsPerWindow: getEnvInt("CODEFORCES_CALLS_PER_WINDOW", constants.CodeforcesCallsPerWindow),
			Window:         getEnvDuration("CODEFORCES_CALL_WINDOW", constants.CodeforcesCallWindow),
		},
		Cache: CacheConfig{
			ContestTTL:      getEnvDuration("CONTEST_CACHE_TTL", constants.ContestCacheTTL),
			ProblemTTL:      getEnvDuration("PROBLEM_CACHE_TTL", constants.ProblemCacheTTL),
			MonitorInterval: getEnvDuration("MONITOR_REFRESH_INTERVAL", constants.MonitorRefreshInterval),
		},
		Scheduler: SchedulerConfig{
			Interval:   getEnvDuration("SETTLEMENT_INTERVAL", constants.SettlementInterval),
			ExtraTime:  getEnvDuration("VC_EXTRA_TIME", constants.VCExtraTime),
			MinRated:   getEnvInt("MIN_RATED_CONTESTANTS", constants.MinRatedContestants),
			TxAttempts: getEnvInt("SETTLEMENT_TX_ATTEMPTS", constants.SettlementTxAttempts),
			RunOnStart: getEnvBool("SETTLEMENT_RUN_ON_START", true),
			Enabled:    getEnvBool("SETTLEMENT_ENABLED", true),
		},
		Storage: StorageConfig{
			Backend:          strings.ToLower(getEnv(constants.EnvStorageBackend, constants.StorageMemory)),
			DatabaseURL:      getEnv(constants.EnvDatabaseURL, ""),
			FirebaseCreds:    getEnv(constants.EnvFirebaseCreds, ""),
			FirestoreProject: getEnv(constants.EnvGoogleCloudProject, ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv(constants.EnvRedisAddr, ""),
			Password: getEnv(constants.EnvRedisPassword, ""),
			DB:       getEnvInt(constants.EnvRedisDB, 0),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList(constants.EnvKafkaBrokers),
			Topic:   getEnv(constants.EnvKafkaTopic, constants.DefaultKafkaTopic),
		},
		Discord: DiscordConfig{
			Token:     getEnv(constants.EnvDiscordToken, ""),
			ChannelID: getEnv(constants.EnvChannelID, ""),
		},
		Roster: RosterConfig{
			SpreadsheetID: getEnv(constants.EnvRosterSpreadsheet, ""),
			Range:         getEnv(constants.EnvRosterRange, constants.RosterSheetRange),
		},
		Logging: LoggingConfig{
			Level:     getEnv(constants.EnvLogLevel, constants.LogLevelInfo),
			DebugMode: getEnvBool(constants.EnvDebugMode, false),
			JSON:      getEnvBool(constants.EnvJSONLogging, true),
		},
		Telemetry: TelemetryConfig{
			Enabled:   getEnvBool(constants.EnvTelemetryEnabled, false),
			ProjectID: getEnv(constants.EnvGoogleCloudProject, ""),
		},
		HTTP: HTTPConfig{
			Port: getEnv(constants.EnvPort, constants.DefaultHTTPPort),
		},
	}
}

// Validate 설정의 유효성을 검사합니다
func (c *Config) Validate() error {
	// 저지 API 설정 검증
	if c.Judge.BaseURL == "" {
		return &ConfigError{Field: "Judge.BaseURL", Message: "judge base URL is required"}
	}
	if c.Judge.CallsPerWindow <= 0 {
		return &ConfigError{
			Field:   "Judge.CallsPerWindow",
			Message: "JUDGE_CALLS_PER_WINDOW must be positive (got: " + strconv.Itoa(c.Judge.CallsPerWindow) + ")",
		}
	}
	if c.Judge.Window <= 0 {
		return &ConfigError{Field: "Judge.Window", Message: "JUDGE_CALL_WINDOW must be positive"}
	}
	if c.Judge.MaxRetries <= 0 {
		return &ConfigError{
			Field:   "Judge.MaxRetries",
			Message: "JUDGE_MAX_RETRIES must be at least 1 (got: " + strconv.Itoa(c.Judge.MaxRetries) + ")",
		}
	}
	if c.Judge.PageSize <= 0 {
		return &ConfigError{
			Field:   "Judge.PageSize",
			Message: "JUDGE_PAGE_SIZE must be positive (got: " + strconv.Itoa(c.Judge.PageSize) + ")",
		}
	}

	// 로그 레벨 검증
	validLogLevels := map[string]bool{
		constants.LogLevelDebug: true,
		constants.LogLevelInfo:  true,
		constants.LogLevelWarn:  true,
		constants.LogLevelError: true,
	}
	if !validLogLevels[strings.ToUpper(c.Logging.Level)] {
		return &ConfigError{
			Field:   "Logging.Level",
			Message: "LOG_LEVEL must be one of: DEBUG, INFO, WARN, ERROR (got: " + c.Logging.Level + ")",
		}
	}

	// 저장소 설정 검증
	switch c.Storage.Backend {
	case constants.StorageMemory:
	case constants.StorageFirestore:
		if c.Storage.FirebaseCreds == "" && c.Storage.FirestoreProject == "" {
			return &ConfigError{
				Field:   "Storage.FirebaseCreds",
				Message: "firestore backend requires FIREBASE_CREDENTIALS_JSON or GOOGLE_CLOUD_PROJECT",
			}
		}
	case constants.StoragePostgres:
		if c.Storage.DatabaseURL == "" {
			return &ConfigError{Field: "Storage.DatabaseURL", Message: "postgres backend requires DATABASE_URL"}
		}
	default:
		return &ConfigError{
			Field:   "Storage.Backend",
			Message: "STORAGE_BACKEND must be one of: memory, firestore, postgres (got: " + c.Storage.Backend + ")",
		}
	}

	// 정산 스케줄러 설정 검증 (활성화된 경우에만)
	if c.Scheduler.Enabled {
		if c.Scheduler.Interval <= 0 {
			return &ConfigError{Field: "Scheduler.Interval", Message: "SETTLEMENT_INTERVAL must be positive"}
		}
		if c.Scheduler.TxAttempts <= 0 {
			return &ConfigError{Field: "Scheduler.TxAttempts", Message: "SETTLEMENT_TX_ATTEMPTS must be at least 1"}
		}
	}

	// Discord 알림은 토큰과 채널이 모두 있어야 합니다
	if (c.Discord.Token == "") != (c.Discord.ChannelID == "") {
		return &ConfigError{
			Field:   "Discord",
			Message: "DISCORD_BOT_TOKEN and DISCORD_CHANNEL_ID must be set together",
		}
	}

	return nil
}

// IsDebugMode 디버그 모드 여부를 반환합니다
func (c *Config) IsDebugMode() bool {
	return c.Logging.DebugMode || strings.ToUpper(c.Logging.Level) == constants.LogLevelDebug
}

// DiscordEnabled Discord 알림 사용 여부
func (c *Config) DiscordEnabled() bool {
	return c.Discord.Token != "" && c.Discord.ChannelID != ""
}

// KafkaEnabled 정산 이벤트 발행 여부
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

// RedisEnabled 대회 스냅샷 영속화 여부
func (c *Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}

// ConfigError 설정 관련 오류를 나타냅니다
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in " + e.Field + ": " + e.Message
}

// 헬퍼 함수들
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
