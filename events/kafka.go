package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/ssugameworks/ratedvc/constants"
	"github.com/ssugameworks/ratedvc/models"
	"github.com/ssugameworks/ratedvc/utils"
)

// 이벤트 종류
const (
	EventVCStandings = "vc.standings"
	EventVCSettled   = "vc.settled"
)

// StandingEntry 중간 순위 한 줄
type StandingEntry struct {
	Handle  string  `json:"handle"`
	Points  float64 `json:"points"`
	Penalty int     `json:"penalty"`
}

// Event Kafka로 발행되는 VC 이벤트
type Event struct {
	EventID   string                `json:"eventId"`
	Type      string                `json:"type"`
	VCID      int64                 `json:"vcId"`
	ContestID int                   `json:"contestId"`
	GroupID   string                `json:"groupId"`
	Standings []StandingEntry       `json:"standings,omitempty"`
	Changes   []models.RatingChange `json:"changes,omitempty"`
	Removed   []string              `json:"removed,omitempty"`
	Timestamp string                `json:"timestamp"`
}

// messageWriter kafka.Writer 중 발행에 필요한 부분
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher VC 이벤트를 Kafka 토픽에 발행하는 Notifier
type KafkaPublisher struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
	logger  zerolog.Logger
	now     func() time.Time
}

// NewKafkaPublisher brokers와 topic으로 Writer를 생성합니다
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = constants.DefaultKafkaTopic
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: constants.KafkaWriteTimeout,
	}
	return newKafkaPublisher(writer, topic)
}

func newKafkaPublisher(writer messageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer:  writer,
		topic:   topic,
		timeout: constants.KafkaWriteTimeout,
		logger:  utils.Component("kafka"),
		now:     time.Now,
	}
}

// VCStandings 중간 순위 이벤트를 발행합니다
func (p *KafkaPublisher) VCStandings(ctx context.Context, vc *models.VirtualContest, ranklist *models.Ranklist) error {
	event := p.newEvent(EventVCStandings, vc)
	if ranklist != nil {
		for i := range ranklist.Rows {
			row := &ranklist.Rows[i]
			event.Standings = append(event.Standings, StandingEntry{
				Handle:  row.Handle(),
				Points:  row.Points,
				Penalty: row.Penalty,
			})
		}
	}
	return p.publish(ctx, event)
}

// VCResults 정산 완료 이벤트를 발행합니다
func (p *KafkaPublisher) VCResults(ctx context.Context, result *models.SettlementResult) error {
	event := p.newEvent(EventVCSettled, result.VC)
	event.Changes = result.Changes
	event.Removed = result.Removed
	return p.publish(ctx, event)
}

func (p *KafkaPublisher) newEvent(eventType string, vc *models.VirtualContest) *Event {
	return &Event{
		EventID:   uuid.NewString(),
		Type:      eventType,
		VCID:      vc.ID,
		ContestID: vc.ContestID,
		GroupID:   vc.GroupID,
		Timestamp: p.now().UTC().Format(time.RFC3339),
	}
}

func (p *KafkaPublisher) publish(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(event.VCID, 10)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		p.logger.Error().Err(err).Str("type", event.Type).Int64("vc_id", event.VCID).Msg("Failed to publish event")
		return err
	}

	p.logger.Debug().Str("type", event.Type).Int64("vc_id", event.VCID).Str("event_id", event.EventID).Msg("Event published")
	return nil
}

// Close Writer를 닫습니다
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
