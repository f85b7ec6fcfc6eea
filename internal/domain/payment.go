package domain

import "time"

// PaymentStatus описывает состояние оплаты.
type PaymentStatus string

const (
	// PaymentStatusPending: платёж инициирован, ответ шлюза ещё не получен.
	PaymentStatusPending PaymentStatus = "PENDING"
	// PaymentStatusCompleted: шлюз подтвердил оплату.
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	// PaymentStatusFailed: шлюз отклонил оплату.
	PaymentStatusFailed PaymentStatus = "FAILED"
)

// Final сообщает, что статус уже не может измениться через callback.
func (s PaymentStatus) Final() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// PaymentDetail хранит платёж заказа, не больше одного на заказ.
// Создаётся в PENDING при генерации ссылки на оплату и покидает PENDING только через callback шлюза.
type PaymentDetail struct {
	ID           string
	OrderID      string
	TxnRef       string
	AmountMinor  int64
	Status       PaymentStatus
	ResponseCode string
	GatewayTxnNo string
	BankCode     string
	SecureHash   string
	// RawCallback хранит исходные параметры callback для аудита.
	RawCallback []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
