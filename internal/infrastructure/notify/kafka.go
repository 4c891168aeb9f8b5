package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"go-status-hub/internal/domain"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaSender.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StatusChange is the record published to the status topic.
type StatusChange struct {
	ServiceID   string               `json:"serviceId"`
	ServiceName string               `json:"serviceName"`
	OldStatus   domain.ServiceStatus `json:"oldStatus"`
	NewStatus   domain.ServiceStatus `json:"newStatus"`
	ChangedAt   time.Time            `json:"changedAt"`
}

// KafkaSender publishes status changes to a Kafka topic, keyed by service id.
type KafkaSender struct {
	writer MessageWriter
}

// NewKafkaSender returns nil when brokers or topic are empty.
func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &KafkaSender{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}}
}

func NewKafkaSenderWithWriter(w MessageWriter) *KafkaSender {
	return &KafkaSender{writer: w}
}

func (k *KafkaSender) NotifyStatusChange(ctx context.Context, svc domain.Service, old, new domain.ServiceStatus) error {
	payload, err := json.Marshal(StatusChange{
		ServiceID:   svc.ID,
		ServiceName: svc.Name,
		OldStatus:   old,
		NewStatus:   new,
		ChangedAt:   svc.UpdatedAt,
	})
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(svc.ID),
		Value: payload,
		Time:  svc.UpdatedAt,
	})
}

func (k *KafkaSender) Close() error {
	return k.writer.Close()
}
