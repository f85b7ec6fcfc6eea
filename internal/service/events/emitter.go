package events

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

// Emitter записывает события заказа в outbox и timeline и, если настроен Kafka producer,
// сразу отправляет best-effort уведомление. Ошибки записи только логируются:
// событие никогда не откатывает изменение заказа.
type Emitter struct {
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	producer *kafka.Producer
	metrics  *metrics.CheckoutMetrics
	logger   *log.Entry
	now      func() time.Time
}

// Option настраивает Emitter.
type Option func(*Emitter)

// WithProducer включает прямую публикацию в TopicOrderNotifications.
func WithProducer(producer *kafka.Producer) Option {
	return func(e *Emitter) {
		e.producer = producer
	}
}

// WithMetrics включает счётчики outbox и timeline.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(e *Emitter) {
		e.metrics = m
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(e *Emitter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock подменяет источник времени (тесты).
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEmitter создаёт Emitter. outbox и timeline могут быть nil.
func NewEmitter(outbox domain.OutboxRepository, timeline domain.TimelineRepository, opts ...Option) *Emitter {
	e := &Emitter{
		outbox:   outbox,
		timeline: timeline,
		logger:   log.New().WithField("component", "order-events"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StatusChanged эмитит OrderStatusChanged с предыдущим и новым статусом.
func (e *Emitter) StatusChanged(ctx context.Context, order domain.Order, from domain.OrderStatus, reason string) {
	e.Emit(ctx, order, domain.EventOrderStatusChanged, map[string]any{
		"from":   string(from),
		"status": string(order.Status),
		"reason": reason,
		"ts":     order.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// Emit записывает событие eventType по заказу. В payload добавляются order_id и ts (если не задан).
func (e *Emitter) Emit(ctx context.Context, order domain.Order, eventType string, payload map[string]any) {
	if e == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]any)
	}
	payload["order_id"] = order.ID
	if _, ok := payload["ts"]; !ok {
		payload["ts"] = e.now().Format(time.RFC3339Nano)
	}

	fields := log.Fields{
		"order_id": order.ID,
		"event":    eventType,
	}

	if e.outbox != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			e.logger.WithError(err).WithFields(fields).Error("marshal event failed")
			return
		}
		msg := domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     eventType,
			Payload:       data,
		}
		if _, err := e.outbox.Enqueue(msg); err != nil {
			e.logger.WithError(err).WithFields(fields).Error("enqueue event failed")
		} else if e.metrics != nil {
			e.metrics.RecordOutboxEvent()
		}
	}

	if e.timeline != nil {
		event := domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     eventType,
			Reason:   stringField(payload, "reason"),
			Occurred: e.occurred(payload),
		}
		if err := e.timeline.Append(event); err != nil {
			e.logger.WithError(err).WithFields(fields).Warn("append timeline event failed")
		} else if e.metrics != nil {
			e.metrics.RecordTimelineEvent()
		}
	}

	e.notify(ctx, order, eventType, payload)
}

// notify публикует уведомление в Kafka. Сбой не прерывает операцию: надёжная доставка идёт через outbox.
func (e *Emitter) notify(ctx context.Context, order domain.Order, eventType string, payload map[string]any) {
	if e.producer == nil {
		return
	}
	event := kafka.NewOrderEvent(kafka.EventTypeFor(eventType), order, payload)
	if err := e.producer.PublishEvent(ctx, kafka.TopicOrderNotifications, order.ID, event); err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"event_type": event.EventType,
			"order_id":   order.ID,
		}).Warn("failed to publish order event to kafka")
	}
}

func (e *Emitter) occurred(payload map[string]any) time.Time {
	if ts := stringField(payload, "ts"); ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			return parsed
		}
	}
	return e.now()
}

func stringField(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}
