package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// OrderRepository: in-memory хранилище заказов и их платежей.
// Заказ с позициями и платёж меняются под одной блокировкой, поэтому SaveWithOrder атомарен.
type OrderRepository struct {
	mu       sync.RWMutex
	orders   map[string]domain.Order
	payments map[string]domain.PaymentDetail // по order id
	txnIndex map[string]string               // txn ref -> order id
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:   make(map[string]domain.Order),
		payments: make(map[string]domain.PaymentDetail),
		txnIndex: make(map[string]string),
	}
}

// Create сохраняет новый заказ с позициями, если ID ещё не занят.
func (r *OrderRepository) Create(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *OrderRepository) Get(id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// ListByUser возвращает заказы пользователя, ограничивая выборку limit (если >0).
func (r *OrderRepository) ListByUser(userID int64, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range r.orders {
		if order.UserID != userID {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *OrderRepository) Save(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.saveLocked(order)
}

func (r *OrderRepository) saveLocked(order domain.Order) error {
	current, ok := r.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	// Позиции: снимок на момент оформления, их не перезаписываем.
	order.Items = current.Items
	order.Version++
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

// Delete удаляет заказ вместе с платежом.
func (r *OrderRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[id]; !ok {
		return domain.ErrOrderNotFound
	}
	delete(r.orders, id)
	if payment, ok := r.payments[id]; ok {
		delete(r.txnIndex, payment.TxnRef)
		delete(r.payments, id)
	}
	return nil
}

// UpsertPending создаёт платёж заказа или заменяет неоплаченный (PENDING или FAILED).
func (r *OrderRepository) UpsertPending(payment domain.PaymentDetail) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[payment.OrderID]; !ok {
		return domain.ErrOrderNotFound
	}
	if current, ok := r.payments[payment.OrderID]; ok {
		if current.Status == domain.PaymentStatusCompleted {
			return domain.ErrOrderAlreadyPaid
		}
		delete(r.txnIndex, current.TxnRef)
		payment.ID = current.ID
		payment.CreatedAt = current.CreatedAt
	}
	r.payments[payment.OrderID] = clonePayment(payment)
	r.txnIndex[payment.TxnRef] = payment.OrderID
	return nil
}

// GetByTxnRef ищет платёж по идентификатору транзакции.
func (r *OrderRepository) GetByTxnRef(txnRef string) (domain.PaymentDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	orderID, ok := r.txnIndex[txnRef]
	if !ok {
		return domain.PaymentDetail{}, domain.ErrTransactionNotFound
	}
	return clonePayment(r.payments[orderID]), nil
}

// GetByOrder возвращает платёж заказа.
func (r *OrderRepository) GetByOrder(orderID string) (domain.PaymentDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payment, ok := r.payments[orderID]
	if !ok {
		return domain.PaymentDetail{}, domain.ErrPaymentNotFound
	}
	return clonePayment(payment), nil
}

// SaveWithOrder атомарно сохраняет платёж и заказ.
func (r *OrderRepository) SaveWithOrder(payment domain.PaymentDetail, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.payments[payment.OrderID]; !ok {
		return domain.ErrPaymentNotFound
	}
	if err := r.saveLocked(order); err != nil {
		return err
	}
	r.payments[payment.OrderID] = clonePayment(payment)
	r.txnIndex[payment.TxnRef] = payment.OrderID
	return nil
}

func cloneOrder(order domain.Order) domain.Order {
	order.Items = append([]domain.OrderItem(nil), order.Items...)
	if order.DeliveredAt != nil {
		deliveredAt := *order.DeliveredAt
		order.DeliveredAt = &deliveredAt
	}
	return order
}

func clonePayment(payment domain.PaymentDetail) domain.PaymentDetail {
	payment.RawCallback = append([]byte(nil), payment.RawCallback...)
	return payment
}

var (
	_ domain.OrderRepository   = (*OrderRepository)(nil)
	_ domain.PaymentRepository = (*OrderRepository)(nil)
)
