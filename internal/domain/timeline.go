package domain

import "time"

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}

// Типы событий заказа. Используются в timeline, outbox и метриках.
const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderCancelled     = "OrderCancelled"
	EventOrderDelivered     = "OrderDelivered"
	EventPaymentCompleted   = "PaymentCompleted"
	EventPaymentFailed      = "PaymentFailed"
	EventCompensationFailed = "CompensationFailed"
	// EventRefundRequired: деньги пришли за заказ в терминальном статусе.
	EventRefundRequired = "RefundRequired"
)
