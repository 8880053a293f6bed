package utils

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/ssugameworks/ratedvc/constants"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

type Logger struct {
	level  LogLevel
	logger zerolog.Logger
}

var globalLogger *Logger

// key=value, key: value, "key":"value" 형태의 민감 정보
var sensitivePattern = regexp.MustCompile(`(?i)(` + strings.Join(constants.SensitiveKeywords, "|") + `)("?\s*[=:]\s*"?)([^&\s",]+)`)

func init() {
	globalLogger = NewLogger()
}

func NewLogger() *Logger {
	var out io.Writer = os.Stdout
	if !jsonLoggingFromEnv() {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: constants.DateTimeFormat}
	}
	return NewLoggerWithWriter(out, getLogLevelFromEnv())
}

// NewLoggerWithWriter 지정된 출력과 레벨로 로거를 생성합니다
func NewLoggerWithWriter(out io.Writer, level LogLevel) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	return &Logger{
		level:  level,
		logger: zerolog.New(out).With().Timestamp().Str("service", constants.TelemetryNamespace).Logger(),
	}
}

// SetGlobalLogger 전역 로거를 교체합니다 (설정 로드 이후 레벨 반영용)
func SetGlobalLogger(l *Logger) {
	if l != nil {
		globalLogger = l
	}
}

// ParseLogLevel 문자열 로그 레벨을 LogLevel로 변환합니다
func ParseLogLevel(levelStr string) LogLevel {
	switch strings.ToUpper(levelStr) {
	case constants.LogLevelDebug:
		return DEBUG
	case constants.LogLevelInfo:
		return INFO
	case constants.LogLevelWarn:
		return WARN
	case constants.LogLevelError:
		return ERROR
	default:
		return INFO
	}
}

func getLogLevelFromEnv() LogLevel {
	return ParseLogLevel(os.Getenv(constants.EnvLogLevel))
}

func jsonLoggingFromEnv() bool {
	value := os.Getenv(constants.EnvJSONLogging)
	if value == "" {
		return true
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return true
	}
	return enabled
}

func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	if level < l.level {
		return
	}

	message := fmt.Sprintf(format, args...)

	// 보안: 민감한 정보가 로그에 기록되지 않도록 필터링
	l.logger.WithLevel(l.toZerologLevel(level)).Msg(FilterSensitiveInfo(message))
}

// FilterSensitiveInfo 민감한 정보를 로그에서 마스킹합니다
func FilterSensitiveInfo(message string) string {
	return sensitivePattern.ReplaceAllString(message, "${1}${2}***MASKED***")
}

func (l *Logger) toZerologLevel(level LogLevel) zerolog.Level {
	switch level {
	case DEBUG:
		return zerolog.DebugLevel
	case INFO:
		return zerolog.InfoLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.NoLevel
	}
}

// Component 컴포넌트 이름이 붙은 구조화 로거를 반환합니다
func (l *Logger) Component(name string) zerolog.Logger {
	return l.logger.With().Str("component", name).Logger()
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DEBUG, format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.log(INFO, format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(WARN, format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ERROR, format, args...)
}

// 글로벌 로거 함수들
func Debug(format string, args ...interface{}) {
	globalLogger.Debug(format, args...)
}

func Info(format string, args ...interface{}) {
	globalLogger.Info(format, args...)
}

func Warn(format string, args ...interface{}) {
	globalLogger.Warn(format, args...)
}

func Error(format string, args ...interface{}) {
	globalLogger.Error(format, args...)
}

func Component(name string) zerolog.Logger {
	return globalLogger.Component(name)
}
