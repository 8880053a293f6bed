package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ssugameworks/ratedvc/constants"
	"github.com/ssugameworks/ratedvc/utils"
)

// Check 이름이 있는 의존성 확인 함수
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// HealthStatus 헬스체크 응답 구조체
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Version   string            `json:"version"`
	GoVersion string            `json:"go_version"`
	Memory    string            `json:"memory_usage"`
	Checks    map[string]string `json:"checks,omitempty"`
}

var startTime = time.Now()

// Version 빌드 시 -ldflags로 덮어씁니다
var Version = "v" + constants.ServiceVersion

// Server /health와 /metrics를 제공하는 HTTP 서버
type Server struct {
	server *http.Server
	mu     sync.RWMutex
	checks []Check
}

// NewServer 헬스체크 서버를 생성합니다
func NewServer(port string, checks ...Check) *Server {
	if port == "" {
		port = constants.DefaultHTTPPort
	}
	s := &Server{checks: checks}
	s.server = &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// AddCheck 확인 항목을 추가합니다
func (s *Server) AddCheck(check Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks = append(s.checks, check)
}

// Handler 라우팅이 설정된 핸들러
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", s.healthHandler) // Railway의 기본 헬스체크
	return mux
}

// Start 백그라운드에서 서버를 시작합니다
func (s *Server) Start() {
	go func() {
		utils.Info("Health check server starting on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			utils.Error("Health server error: %v", err)
		}
	}()
}

// Shutdown 서버를 종료합니다
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// healthHandler 헬스체크 핸들러. 확인 항목이 하나라도 실패하면 503
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	status := HealthStatus{
		Status:    constants.HealthStatusHealthy,
		Timestamp: time.Now(),
		Uptime:    time.Since(startTime).String(),
		Version:   Version,
		GoVersion: runtime.Version(),
		Memory:    fmt.Sprintf("%.2f MB", float64(memStats.Alloc)/constants.BytesToMB),
	}

	s.mu.RLock()
	checks := append([]Check(nil), s.checks...)
	s.mu.RUnlock()

	if len(checks) > 0 {
		status.Checks = make(map[string]string, len(checks))
		ctx, cancel := context.WithTimeout(r.Context(), constants.ExternalCallTimeout)
		defer cancel()
		for _, check := range checks {
			if err := check.Fn(ctx); err != nil {
				status.Status = constants.HealthStatusUnhealthy
				status.Checks[check.Name] = err.Error()
				continue
			}
			status.Checks[check.Name] = "ok"
		}
	}

	code := http.StatusOK
	if status.Status != constants.HealthStatusHealthy {
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		utils.Warn("Failed to encode health status: %v", err)
	}
}
