package telemetry

import (
	"context"
	"fmt"
	"time"

	monitoring "cloud.google.com/go/monitoring/apiv3/v2"
	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	"google.golang.org/api/option"
	"google.golang.org/genproto/googleapis/api/metric"
	"google.golang.org/genproto/googleapis/api/monitoredres"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/ssugameworks/ratedvc/constants"
	"github.com/ssugameworks/ratedvc/utils"
)

const metricPrefix = "custom.googleapis.com/ratedvc/"

// timeSeriesWriter monitoring.MetricClient 중 전송에 필요한 부분
type timeSeriesWriter interface {
	CreateTimeSeries(ctx context.Context, req *monitoringpb.CreateTimeSeriesRequest) error
	Close() error
}

// metricClientAdapter MetricClient의 가변 인자 시그니처를 timeSeriesWriter에 맞춥니다
type metricClientAdapter struct {
	client *monitoring.MetricClient
}

func (a metricClientAdapter) CreateTimeSeries(ctx context.Context, req *monitoringpb.CreateTimeSeriesRequest) error {
	return a.client.CreateTimeSeries(ctx, req)
}

func (a metricClientAdapter) Close() error {
	return a.client.Close()
}

// MetricsClient Google Cloud Monitoring 클라이언트를 래핑합니다
type MetricsClient struct {
	writer    timeSeriesWriter
	projectID string
	enabled   bool
	now       func() time.Time
}

// NewMetricsClient 새로운 MetricsClient 인스턴스를 생성합니다. 설정이 없거나 실패하면 비활성 클라이언트를 반환합니다
func NewMetricsClient(ctx context.Context, projectID, credentialsJSON string) *MetricsClient {
	if projectID == "" {
		utils.Warn("Project ID not provided, telemetry disabled")
		return &MetricsClient{enabled: false}
	}

	var opts []option.ClientOption
	if credentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}

	client, err := monitoring.NewMetricClient(ctx, opts...)
	if err != nil {
		utils.Warn("Failed to create monitoring client: %v", err)
		utils.Warn("Telemetry disabled")
		return &MetricsClient{enabled: false}
	}

	utils.Info("Google Cloud Monitoring telemetry enabled for project: %s", projectID)
	return newMetricsClient(metricClientAdapter{client: client}, projectID)
}

func newMetricsClient(writer timeSeriesWriter, projectID string) *MetricsClient {
	return &MetricsClient{writer: writer, projectID: projectID, enabled: true, now: time.Now}
}

// Enabled 전송 여부
func (m *MetricsClient) Enabled() bool {
	return m != nil && m.enabled
}

// SendCacheMetrics 캐시 하나의 적중률과 크기를 전송합니다
func (m *MetricsClient) SendCacheMetrics(ctx context.Context, cacheName string, entries int, hits, misses int64, hitRate float64) {
	if !m.Enabled() {
		return
	}

	labels := map[string]string{"cache": cacheName}
	series := []*monitoringpb.TimeSeries{
		m.doubleSeries("cache/hit_rate", hitRate, labels),
		m.int64Series("cache/entries", int64(entries), labels),
		m.int64Series("cache/hits", hits, labels),
		m.int64Series("cache/misses", misses, labels),
	}
	if err := m.write(ctx, series); err != nil {
		utils.Warn("Failed to send cache metrics for %s: %v", cacheName, err)
		return
	}
	utils.Debug("Cache metrics sent to Google Cloud Monitoring: %s", cacheName)
}

// SendSettlementMetric tick 하나의 결과 요약을 전송합니다
func (m *MetricsClient) SendSettlementMetric(ctx context.Context, outcomes map[string]int, duration time.Duration) {
	if !m.Enabled() {
		return
	}

	series := []*monitoringpb.TimeSeries{
		m.doubleSeries("settlement/tick_duration", duration.Seconds(), nil),
	}
	for outcome, count := range outcomes {
		series = append(series, m.int64Series("settlement/vcs", int64(count), map[string]string{"outcome": outcome}))
	}
	if err := m.write(ctx, series); err != nil {
		utils.Warn("Failed to send settlement metrics: %v", err)
		return
	}
	utils.Debug("Settlement metric sent (duration: %v)", duration)
}

func (m *MetricsClient) write(ctx context.Context, series []*monitoringpb.TimeSeries) error {
	return m.writer.CreateTimeSeries(ctx, &monitoringpb.CreateTimeSeriesRequest{
		Name:       fmt.Sprintf("projects/%s", m.projectID),
		TimeSeries: series,
	})
}

func (m *MetricsClient) doubleSeries(metricType string, value float64, labels map[string]string) *monitoringpb.TimeSeries {
	return m.series(metricType, labels, &monitoringpb.TypedValue{
		Value: &monitoringpb.TypedValue_DoubleValue{DoubleValue: value},
	})
}

func (m *MetricsClient) int64Series(metricType string, value int64, labels map[string]string) *monitoringpb.TimeSeries {
	return m.series(metricType, labels, &monitoringpb.TypedValue{
		Value: &monitoringpb.TypedValue_Int64Value{Int64Value: value},
	})
}

func (m *MetricsClient) series(metricType string, labels map[string]string, value *monitoringpb.TypedValue) *monitoringpb.TimeSeries {
	if labels == nil {
		labels = make(map[string]string)
	}
	return &monitoringpb.TimeSeries{
		Metric: &metric.Metric{
			Type:   metricPrefix + metricType,
			Labels: labels,
		},
		Resource: &monitoredres.MonitoredResource{
			Type: "generic_task",
			Labels: map[string]string{
				"project_id": m.projectID,
				"location":   "global",
				"namespace":  constants.TelemetryNamespace,
				"job":        constants.TelemetryJobName,
				"task_id":    constants.TelemetryTaskID,
			},
		},
		Points: []*monitoringpb.Point{
			{
				Interval: &monitoringpb.TimeInterval{EndTime: timestamppb.New(m.now())},
				Value:    value,
			},
		},
	}
}

// Close 클라이언트를 정리합니다
func (m *MetricsClient) Close() error {
	if !m.Enabled() || m.writer == nil {
		return nil
	}
	return m.writer.Close()
}
