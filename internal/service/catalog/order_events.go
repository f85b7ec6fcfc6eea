package catalog

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

// OrderEventRecorder читает уведомления order-service о заказах.
// Остатки и продажи он не меняет: их order-service меняет вызовами ledger и IncrementSold.
// Неудачная компенсация означает, что списанный товар мог не вернуться на склад,
// поэтому такие события логируются на уровне error для ручной сверки.
type OrderEventRecorder struct {
	metrics *metrics.OrderEventMetrics
	logger  *log.Entry
}

// NewOrderEventRecorder создаёт обработчик. nil metrics отключает метрики.
func NewOrderEventRecorder(m *metrics.OrderEventMetrics, logger *log.Entry) *OrderEventRecorder {
	if logger == nil {
		logger = log.New().WithField("component", "catalog-order-events")
	}
	return &OrderEventRecorder{metrics: m, logger: logger}
}

// Handle подходит как kafka.MessageHandler.
func (r *OrderEventRecorder) Handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	event, err := kafka.ParseOrderEvent(message)
	if err == nil && event.EventType == "" {
		err = fmt.Errorf("order event without type at offset %d", message.Offset)
	}
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordRejected()
		}
		return err
	}
	if r.metrics != nil {
		r.metrics.RecordReceived(string(event.EventType))
	}

	fields := log.Fields{
		"event_type": event.EventType,
		"order_id":   event.OrderID,
		"user_id":    event.UserID,
		"status":     event.Status,
	}
	if event.EventType == kafka.EventTypeOrderCompensationFailed {
		r.logger.WithFields(fields).Error("order compensation failed, stock needs reconciliation")
		return nil
	}
	r.logger.WithFields(fields).Debug("order event received")
	return nil
}
