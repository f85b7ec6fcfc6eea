// Package orderstatus применяет переходы статуса заказа и их побочные действия.
package orderstatus

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/service/events"
)

const (
	maxSaveAttempts = 3
	baseRetryDelay  = 10 * time.Millisecond
)

// Service меняет статус заказа с optimistic locking.
//
// Побочные действия привязаны к переходу, а не к статусу: вход в DELIVERED
// ставит время доставки, закрывает неоплаченный платёж и увеличивает счётчик продаж;
// отмена из PENDING или CONFIRMED возвращает остатки. Сбой побочного действия
// логируется и не отменяет переход.
type Service struct {
	orders   domain.OrderRepository
	payments domain.PaymentRepository
	ledger   domain.InventoryLedger
	catalog  domain.CatalogService
	events   *events.Emitter
	metrics  *metrics.CheckoutMetrics
	logger   *log.Entry
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option настраивает Service.
type Option func(*Service)

// WithEvents включает запись событий.
func WithEvents(emitter *events.Emitter) Option {
	return func(s *Service) { s.events = emitter }
}

// WithMetrics включает метрики переходов.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService создаёт сервис статусов.
func NewService(
	orders domain.OrderRepository,
	payments domain.PaymentRepository,
	ledger domain.InventoryLedger,
	catalog domain.CatalogService,
	opts ...Option,
) *Service {
	s := &Service{
		orders:   orders,
		payments: payments,
		ledger:   ledger,
		catalog:  catalog,
		logger:   log.New().WithField("component", "order-status"),
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpdateStatus переводит заказ в target. Переход в текущий статус ничего не меняет.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, target domain.OrderStatus) (domain.Order, error) {
	return s.transition(ctx, orderID, target, "")
}

// Cancel отменяет заказ по запросу покупателя.
func (s *Service) Cancel(ctx context.Context, orderID, reason string) (domain.Order, error) {
	if reason == "" {
		reason = "cancelled by customer"
	}
	return s.transition(ctx, orderID, domain.OrderStatusCancelled, reason)
}

func (s *Service) transition(ctx context.Context, orderID string, target domain.OrderStatus, reason string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	logger := s.logger.WithFields(log.Fields{
		"order_id": orderID,
		"target":   target,
	})

	order, err := s.orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		from := order.Status
		if err := domain.CheckTransition(from, target); err != nil {
			return domain.Order{}, err
		}
		if from == target {
			return order, nil
		}

		updated := s.apply(order, target)
		err := s.save(updated)
		if err == nil {
			updated.Version = order.Version + 1
			// Переход сохранён: побочные действия выполняются до конца.
			s.afterTransition(context.WithoutCancel(ctx), logger, updated, from, reason)
			return updated, nil
		}
		if !domain.IsVersionConflict(err) || attempt == maxSaveAttempts-1 {
			logger.WithError(err).WithField("attempt", attempt+1).Error("failed to persist status")
			return domain.Order{}, err
		}

		logger.WithFields(log.Fields{
			"attempt": attempt + 1,
			"version": order.Version,
		}).Warn("version conflict detected, retrying")

		fresh, loadErr := s.orders.Get(orderID)
		if loadErr != nil {
			logger.WithError(loadErr).Error("failed to reload order after conflict")
			return domain.Order{}, loadErr
		}
		order = fresh

		if err := s.sleep(ctx, baseRetryDelay*time.Duration(1<<uint(attempt))); err != nil {
			return domain.Order{}, err
		}
	}

	return domain.Order{}, domain.ErrOrderVersionConflict
}

// apply возвращает копию заказа в статусе target с полями, которые задаёт переход.
func (s *Service) apply(order domain.Order, target domain.OrderStatus) domain.Order {
	now := s.now()
	order.Status = target
	order.UpdatedAt = now
	if target == domain.OrderStatusDelivered {
		order.DeliveredAt = &now
		if order.PaymentStatus == domain.PaymentStatusPending {
			order.PaymentStatus = domain.PaymentStatusCompleted
		}
	}
	return order
}

// save пишет заказ. При доставке неоплаченного заказа платёжная запись закрывается в той же записи.
func (s *Service) save(order domain.Order) error {
	if order.Status != domain.OrderStatusDelivered || s.payments == nil {
		return s.orders.Save(order)
	}
	payment, err := s.payments.GetByOrder(order.ID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		return s.orders.Save(order)
	}
	if err != nil {
		return fmt.Errorf("load payment: %w", err)
	}
	if payment.Status != domain.PaymentStatusPending {
		return s.orders.Save(order)
	}
	payment.Status = domain.PaymentStatusCompleted
	payment.UpdatedAt = order.UpdatedAt
	return s.payments.SaveWithOrder(payment, order)
}

func (s *Service) afterTransition(ctx context.Context, logger *log.Entry, order domain.Order, from domain.OrderStatus, reason string) {
	if s.metrics != nil {
		s.metrics.RecordStatusTransition(string(from), string(order.Status))
	}
	s.events.StatusChanged(ctx, order, from, reason)
	logger.WithField("from", from).Info("order status changed")

	switch order.Status {
	case domain.OrderStatusDelivered:
		s.incrementSold(ctx, logger, order)
		s.events.Emit(ctx, order, domain.EventOrderDelivered, map[string]any{"reason": "delivered"})
	case domain.OrderStatusCancelled:
		s.restoreStock(ctx, logger, order)
		s.events.Emit(ctx, order, domain.EventOrderCancelled, map[string]any{"reason": reason})
	}
}

// incrementSold увеличивает счётчик продаж по каждой позиции независимо.
func (s *Service) incrementSold(ctx context.Context, logger *log.Entry, order domain.Order) {
	if s.catalog == nil {
		return
	}
	for _, item := range order.Items {
		if err := s.catalog.IncrementSold(ctx, item.ProductID, item.Quantity); err != nil {
			logger.WithError(err).WithFields(log.Fields{
				"product_id": item.ProductID,
				"quantity":   item.Quantity,
			}).Warn("failed to increment sold counter")
			if s.metrics != nil {
				s.metrics.RecordSideEffectFailure("sold_counter")
			}
		}
	}
}

// restoreStock возвращает позиции на склад. Потерянный возврат только уменьшает доступный остаток.
func (s *Service) restoreStock(ctx context.Context, logger *log.Entry, order domain.Order) {
	if s.ledger == nil {
		return
	}
	for _, item := range order.Items {
		if err := s.ledger.Restore(ctx, item.StockRequest()); err != nil {
			logger.WithError(err).WithFields(log.Fields{
				"product_id": item.ProductID,
				"size":       item.Size,
				"quantity":   item.Quantity,
			}).Warn("failed to restore stock for cancelled order")
			if s.metrics != nil {
				s.metrics.RecordSideEffectFailure("restore")
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
