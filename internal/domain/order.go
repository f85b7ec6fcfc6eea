package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending: заказ создан, остатки списаны, ожидается оплата или подтверждение.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusConfirmed: заказ подтверждён (оплачен или принят вручную).
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	// OrderStatusShipped: заказ передан в доставку.
	OrderStatusShipped OrderStatus = "SHIPPED"
	// OrderStatusDelivered: заказ вручён покупателю. Терминальный статус.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCancelled: заказ отменён. Терминальный статус.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// PaymentMethod задаёт способ оплаты заказа.
type PaymentMethod string

const (
	PaymentMethodCOD   PaymentMethod = "COD"
	PaymentMethodVNPay PaymentMethod = "VNPAY"
)

// Valid проверяет, что статус входит в таблицу переходов.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal сообщает, что из статуса нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered},
}

// CheckTransition проверяет переход from -> to по таблице статусов.
// Из терминального статуса переходов нет, даже в тот же статус.
// Для остальных статусов переход в тот же статус допустим и ничего не меняет.
func CheckTransition(from, to OrderStatus) error {
	if !to.Valid() {
		return ErrInvalidTransition
	}
	if from.Terminal() {
		return ErrOrderAlreadyFinalized
	}
	if from == to {
		return nil
	}
	if from == OrderStatusShipped && to == OrderStatusCancelled {
		return ErrCannotCancelShippedOrder
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return nil
		}
	}
	return ErrInvalidTransition
}

// OrderItem: снимок позиции корзины на момент оформления. После создания не меняется.
type OrderItem struct {
	ID                   string
	OrderID              string
	ProductID            int64
	Size                 string
	Title                string
	Quantity             int32
	PriceMinor           int64
	DiscountedPriceMinor int64
}

// EffectivePriceMinor возвращает цену со скидкой, если она задана, иначе базовую.
func (i OrderItem) EffectivePriceMinor() int64 {
	if i.DiscountedPriceMinor > 0 {
		return i.DiscountedPriceMinor
	}
	return i.PriceMinor
}

// StockRequest возвращает запрос к складу для позиции.
func (i OrderItem) StockRequest() StockRequest {
	return StockRequest{Key: StockKey{ProductID: i.ProductID, Size: i.Size}, Quantity: i.Quantity}
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID                 string
	UserID             int64
	AddressID          int64
	Status             OrderStatus
	PaymentStatus      PaymentStatus
	PaymentMethod      PaymentMethod
	Items              []OrderItem
	TotalItems         int32
	TotalPriceMinor    int64
	OriginalPriceMinor int64
	DiscountMinor      int64
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeliveredAt        *time.Time
}

// RecalculateTotals пересчитывает итоги заказа по позициям.
// TotalPriceMinor считается по эффективной цене позиций, OriginalPriceMinor без скидок.
func (o *Order) RecalculateTotals() {
	var items int32
	var original, effective int64
	for _, item := range o.Items {
		items += item.Quantity
		original += int64(item.Quantity) * item.PriceMinor
		effective += int64(item.Quantity) * item.EffectivePriceMinor()
	}
	o.TotalItems = items
	o.TotalPriceMinor = effective
	o.OriginalPriceMinor = original
	o.DiscountMinor = original - effective
}

// StockRequests возвращает запросы к складу по всем позициям заказа.
func (o *Order) StockRequests() []StockRequest {
	reqs := make([]StockRequest, 0, len(o.Items))
	for _, item := range o.Items {
		reqs = append(reqs, item.StockRequest())
	}
	return reqs
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if len(o.Items) == 0 {
		errs = append(errs, ErrEmptySelection)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrInvalidTransition)
	}

	var calc int64
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrInvalidQuantity)
		}
		calc += int64(item.Quantity) * item.EffectivePriceMinor()
	}
	if calc != o.TotalPriceMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
