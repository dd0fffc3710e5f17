package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lms-auth/internal/client"
)

// Event types emitted on the auth event stream.
const (
	TypeUserRegistered  = "auth.user.registered"
	TypeLoginSucceeded  = "auth.login.succeeded"
	TypeLoginFailed     = "auth.login.failed"
	TypeSessionRevoked  = "auth.session.revoked"
	TypeOTPIssued       = "auth.otp.issued"
	TypeOTPVerified     = "auth.otp.verified"
	TypePasswordChanged = "auth.password.changed"
)

// Event is a single auth lifecycle occurrence, keyed by subject so all
// events for one subject land in order on the same partition.
type Event struct {
	Type       string    `json:"type"`
	Subject    string    `json:"subject"`
	UserID     string    `json:"user_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher emits auth events for operational visibility. Publishing is
// best-effort from the caller's point of view: auth decisions never depend
// on it.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// KafkaPublisher writes events to the configured Kafka topic.
type KafkaPublisher struct {
	producer *client.KafkaProducer
	topic    string
}

func NewKafkaPublisher(producer *client.KafkaProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal auth event: %w", err)
	}

	return p.producer.ProduceMessage(ctx, p.topic, []byte(event.Subject), payload, map[string]string{
		"event_type": event.Type,
	})
}

// NopPublisher discards events. Used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event Event) error {
	return nil
}
