package notify

import (
	"context"
	"encoding/json"
	"time"

	auth "github.com/goliatone/go-courier-auth"
	"github.com/goliatone/go-courier-auth/activitymap"
	goerrors "github.com/goliatone/go-errors"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the publishers use
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter returns a synchronous writer for topic
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// EmailEvent is the payload the mailer service consumes
type EmailEvent struct {
	Kind       auth.NotificationKind `json:"kind"`
	Recipient  string                `json:"recipient"`
	Subject    string                `json:"subject"`
	Variables  map[string]string     `json:"variables,omitempty"`
	OccurredAt time.Time             `json:"occurred_at"`
}

// KafkaPublisher hands emails to the mailer through a topic, keyed by
// recipient so one inbox keeps its order
type KafkaPublisher struct {
	writer MessageWriter
	now    func() time.Time
}

func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, now: time.Now}
}

func (p *KafkaPublisher) WithClock(now func() time.Time) *KafkaPublisher {
	if now != nil {
		p.now = now
	}
	return p
}

func (p *KafkaPublisher) Send(ctx context.Context, n auth.Notification) error {
	payload, err := json.Marshal(EmailEvent{
		Kind:       n.Kind,
		Recipient:  n.Recipient,
		Subject:    n.Subject,
		Variables:  n.Variables,
		OccurredAt: p.now().UTC(),
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode email event")
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(n.Recipient),
		Value:   payload,
		Time:    p.now(),
		Headers: []kafka.Header{{Key: "kind", Value: []byte(n.Kind)}},
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to publish email event")
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaActivitySink publishes normalized activity records keyed by account
type KafkaActivitySink struct {
	writer MessageWriter
	opts   []activitymap.Option
}

func NewKafkaActivitySink(writer MessageWriter, opts ...activitymap.Option) *KafkaActivitySink {
	return &KafkaActivitySink{writer: writer, opts: opts}
}

func (s *KafkaActivitySink) Record(ctx context.Context, event auth.ActivityEvent) error {
	record := activitymap.Normalize(event, s.opts...)

	payload, err := json.Marshal(record)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode activity event")
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(record.ObjectID),
		Value: payload,
		Time:  record.OccurredAt,
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to publish activity event")
	}
	return nil
}

func (s *KafkaActivitySink) Close() error {
	return s.writer.Close()
}
