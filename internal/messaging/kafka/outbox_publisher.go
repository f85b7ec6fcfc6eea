package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
	}
}

// Publish отправляет сообщение в topic. Ключ: идентификатор заказа,
// поэтому события одного заказа попадают в одну партицию по порядку.
func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	key := OutboxKey(event)

	data, err := EncodeOutbox(event)
	if err != nil {
		return err
	}

	return p.producer.PublishMessage(context.Background(), p.topic, key, data, map[string]string{
		HeaderEventType: string(EventTypeFor(event.EventType)),
	})
}

// OutboxKey возвращает ключ партиционирования outbox-сообщения.
func OutboxKey(event domain.OutboxMessage) string {
	if event.AggregateID != "" {
		return event.AggregateID
	}
	return event.ID
}

// EncodeOutbox сериализует outbox-сообщение в OutboxEnvelope.
func EncodeOutbox(event domain.OutboxMessage) ([]byte, error) {
	payload := json.RawMessage(event.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	data, err := json.Marshal(OutboxEnvelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
		PublishedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal outbox envelope: %w", err)
	}
	return data, nil
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
