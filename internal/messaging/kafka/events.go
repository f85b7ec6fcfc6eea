package kafka

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// EventType определяет тип события
type EventType string

const (
	EventTypeOrderPlaced             EventType = "order.placed"
	EventTypeOrderStatusChanged      EventType = "order.status_changed"
	EventTypeOrderCancelled          EventType = "order.cancelled"
	EventTypeOrderDelivered          EventType = "order.delivered"
	EventTypePaymentCompleted        EventType = "payment.completed"
	EventTypePaymentFailed           EventType = "payment.failed"
	EventTypeOrderCompensationFailed EventType = "order.compensation_failed"
	EventTypePaymentRefundRequired   EventType = "payment.refund_required"
)

// Topics для Kafka
const (
	// TopicOrderEvents получает события из transactional outbox.
	TopicOrderEvents = "shop.order.events"
	// TopicOrderNotifications получает best-effort уведомления сразу после изменения заказа.
	TopicOrderNotifications = "shop.order.notifications"
	TopicDeadLetterQueue    = "shop.dlq"
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
	HeaderEventType     = "x-event-type"
)

var eventTypes = map[string]EventType{
	domain.EventOrderPlaced:        EventTypeOrderPlaced,
	domain.EventOrderStatusChanged: EventTypeOrderStatusChanged,
	domain.EventOrderCancelled:     EventTypeOrderCancelled,
	domain.EventOrderDelivered:     EventTypeOrderDelivered,
	domain.EventPaymentCompleted:   EventTypePaymentCompleted,
	domain.EventPaymentFailed:      EventTypePaymentFailed,
	domain.EventCompensationFailed: EventTypeOrderCompensationFailed,
	domain.EventRefundRequired:     EventTypePaymentRefundRequired,
}

// EventTypeFor переводит доменное имя события в тип Kafka-события.
// Неизвестные имена передаются как есть.
func EventTypeFor(domainEvent string) EventType {
	if t, ok := eventTypes[domainEvent]; ok {
		return t
	}
	return EventType(domainEvent)
}

// OrderEvent представляет событие заказа
type OrderEvent struct {
	EventType     EventType      `json:"event_type"`
	OrderID       string         `json:"order_id"`
	UserID        int64          `json:"user_id"`
	Status        string         `json:"status"`
	PaymentStatus string         `json:"payment_status"`
	Timestamp     time.Time      `json:"timestamp"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, order domain.Order, metadata map[string]any) *OrderEvent {
	return &OrderEvent{
		EventType:     eventType,
		OrderID:       order.ID,
		UserID:        order.UserID,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		Timestamp:     time.Now().UTC(),
		Metadata:      metadata,
	}
}

// OutboxEnvelope: формат outbox-сообщения в TopicOrderEvents.
type OutboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// DeadLetter: сообщение, не доставленное после всех попыток.
type DeadLetter struct {
	OriginalTopic string          `json:"original_topic"`
	OriginalKey   string          `json:"original_key"`
	OriginalValue json.RawMessage `json:"original_value"`
	EventType     string          `json:"event_type,omitempty"`
	ErrorMessage  string          `json:"error_message"`
	FailedAt      time.Time       `json:"failed_at"`
	RetryCount    int             `json:"retry_count"`
}
