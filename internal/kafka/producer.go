package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Call lifecycle event names written to the calls topic.
const (
	EventCallCreated       = "call.created"
	EventCallStatusUpdated = "call.status_updated"
	EventCallPromoted      = "call.promoted"
	EventCallExpired       = "call.expired"
	EventAstrologerStatus  = "astrologer.status_updated"
)

// CallEventProducer publishes call lifecycle events (replaced by a recorder in tests).
type CallEventProducer interface {
	ProduceCallEvent(ctx context.Context, event string, key string, payload map[string]interface{})
}

// Producer writes call events to a Kafka topic, best-effort. The writer is
// asynchronous: ProduceCallEvent only enqueues, and delivery errors are logged
// from the writer's completion callback.
type Producer struct {
	writer *kafka.Writer
	topic  string
	log    *zap.Logger
}

// NewProducer creates a producer. With no brokers or no topic every method is a no-op.
func NewProducer(brokers []string, topic string, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	if len(brokers) == 0 || topic == "" {
		return &Producer{log: log}
	}
	return &Producer{
		topic: topic,
		log:   log,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			Async:        true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					log.Warn("kafka: write call events", zap.String("topic", topic), zap.Int("count", len(messages)), zap.Error(err))
				}
			},
		},
	}
}

// Enabled reports whether events are actually written.
func (p *Producer) Enabled() bool { return p.writer != nil }

// ProduceCallEvent writes {"event": event, ...payload} keyed by key, so all
// events of one astrologer land in one partition and stay ordered.
func (p *Producer) ProduceCallEvent(ctx context.Context, event string, key string, payload map[string]interface{}) {
	if p.writer == nil {
		return
	}
	msg := map[string]interface{}{"event": event}
	for k, v := range payload {
		msg[k] = v
	}
	body, err := json.Marshal(msg)
	if err != nil {
		p.log.Warn("kafka: marshal call event", zap.String("event", event), zap.Error(err))
		return
	}
	// Async: only enqueue failures (closed writer) surface here.
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: body}); err != nil {
		p.log.Warn("kafka: enqueue call event", zap.String("event", event), zap.String("topic", p.topic), zap.Error(err))
	}
}

// Close closes the writer.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// ParseBrokers splits "host1:9092,host2:9092" into a slice.
func ParseBrokers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
