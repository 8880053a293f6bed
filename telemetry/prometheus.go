package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ssugameworks/ratedvc/constants"
)

// 프로세스 내부 지표. /metrics 엔드포인트로 노출됩니다
var (
	JudgeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: constants.TelemetryNamespace,
		Subsystem: "judge",
		Name:      "requests_total",
		Help:      "Outbound judge API requests by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	JudgeRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: constants.TelemetryNamespace,
		Subsystem: "judge",
		Name:      "request_duration_seconds",
		Help:      "Latency of judge API requests, excluding rate limiter wait.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint"})

	RateLimitWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: constants.TelemetryNamespace,
		Subsystem: "judge",
		Name:      "rate_limit_wait_seconds",
		Help:      "Time spent waiting for a call slot.",
		Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
	})

	CacheRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: constants.TelemetryNamespace,
		Subsystem: "cache",
		Name:      "refreshes_total",
		Help:      "Cache refresh attempts by cache and result.",
	}, []string{"cache", "result"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: constants.TelemetryNamespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Cache lookups by cache and outcome.",
	}, []string{"cache", "outcome"})

	MonitoredRanklists = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: constants.TelemetryNamespace,
		Subsystem: "cache",
		Name:      "monitored_ranklists",
		Help:      "Number of ranklists per monitoring state.",
	}, []string{"state"})

	SettlementTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: constants.TelemetryNamespace,
		Subsystem: "settlement",
		Name:      "vcs_total",
		Help:      "Per-VC settlement outcomes.",
	}, []string{"outcome"})

	SettlementTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: constants.TelemetryNamespace,
		Subsystem: "settlement",
		Name:      "tick_duration_seconds",
		Help:      "Duration of a full settlement tick.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)

// 결과 라벨 값
const (
	OutcomeSuccess     = "success"
	OutcomeRateLimited = "rate_limited"
	OutcomeNotFound    = "not_found"
	OutcomeFailed      = "failed"
	OutcomeHit         = "hit"
	OutcomeMiss        = "miss"
	OutcomeNotCached   = "not_cached"
	OutcomeStale       = "stale"
	OutcomeDeferred    = "deferred"
	OutcomeSettled     = "settled"
	OutcomeSkipped     = "skipped"
)
