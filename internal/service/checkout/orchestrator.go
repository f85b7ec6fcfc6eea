// Package checkout оформляет заказ из выбранных позиций корзины.
//
// Шаги выполняются строго последовательно: проверка пользователя и адреса, выбор позиций,
// проверка остатков, снимок позиций, запись заказа, списание остатков, очистка корзины.
// Блокировок между сервисами нет; гонку между проверкой и списанием закрывает
// условное списание в учёте остатков и удаление заказа при неудаче.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/service/events"
)

const tracerName = "github.com/vladislavdragonenkov/shop/internal/service/checkout"

// Carts: операции корзины, нужные оформлению.
type Carts interface {
	Select(ctx context.Context, userID int64, itemIDs []int64) ([]domain.CartItem, error)
	RemoveItems(ctx context.Context, userID int64, itemIDs []int64) (domain.Cart, error)
}

type PlaceOrderRequest struct {
	UserID        int64
	AddressID     int64
	CartItemIDs   []int64
	PaymentMethod domain.PaymentMethod
}

// Orchestrator выполняет оформление заказа.
type Orchestrator struct {
	accounts domain.AccountService
	carts    Carts
	ledger   domain.InventoryLedger
	orders   domain.OrderRepository
	events   *events.Emitter
	metrics  *metrics.CheckoutMetrics
	logger   *log.Entry
	tracer   trace.Tracer
	now      func() time.Time
}

// Option настраивает Orchestrator.
type Option func(*Orchestrator)

// WithEvents включает запись событий заказа.
func WithEvents(emitter *events.Emitter) Option {
	return func(o *Orchestrator) {
		o.events = emitter
	}
}

// WithMetrics включает метрики оформления.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOrchestrator создаёт оркестратор оформления.
func NewOrchestrator(
	accounts domain.AccountService,
	carts Carts,
	ledger domain.InventoryLedger,
	orders domain.OrderRepository,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		accounts: accounts,
		carts:    carts,
		ledger:   ledger,
		orders:   orders,
		logger:   log.New().WithField("component", "checkout"),
		tracer:   otel.Tracer(tracerName),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// PlaceOrder оформляет заказ. После записи заказа оформление не прерывается отменой ctx:
// оно доходит до конца или до компенсации.
func (o *Orchestrator) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (domain.Order, error) {
	ctx, span := o.tracer.Start(ctx, "checkout.PlaceOrder", trace.WithAttributes(
		attribute.Int64("user_id", req.UserID),
		attribute.Int("selected_items", len(req.CartItemIDs)),
	))
	defer span.End()

	start := o.now()
	if o.metrics != nil {
		o.metrics.RecordCheckoutStarted()
		defer func() { o.metrics.RecordCheckoutFinished(o.now().Sub(start)) }()
	}

	order, err := o.placeOrder(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if o.metrics != nil {
			o.metrics.RecordCheckoutRejected(rejectReason(err))
		}
		return domain.Order{}, err
	}

	span.SetAttributes(attribute.String("order_id", order.ID))
	if o.metrics != nil {
		o.metrics.RecordOrderPlaced()
	}
	return order, nil
}

func (o *Orchestrator) placeOrder(ctx context.Context, req PlaceOrderRequest) (domain.Order, error) {
	logger := o.logger.WithField("user_id", req.UserID)

	stepStart := o.now()
	if err := o.checkCustomer(ctx, logger, req); err != nil {
		return domain.Order{}, err
	}

	items, err := o.carts.Select(ctx, req.UserID, req.CartItemIDs)
	if err != nil {
		return domain.Order{}, err
	}
	o.observeStep("validate", stepStart)

	stockReqs := make([]domain.StockRequest, 0, len(items))
	for _, item := range items {
		stockReqs = append(stockReqs, domain.StockRequest{Key: item.Key(), Quantity: item.Quantity})
	}
	stockReqs = domain.MergeStockRequests(stockReqs)

	stepStart = o.now()
	if err := o.checkStock(ctx, stockReqs); err != nil {
		return domain.Order{}, err
	}
	o.observeStep("check_stock", stepStart)

	order := o.snapshot(req, items)

	stepStart = o.now()
	if err := o.orders.Create(order); err != nil {
		return domain.Order{}, fmt.Errorf("persist order: %w", err)
	}
	o.observeStep("persist", stepStart)

	// Заказ записан: дальше только завершение или компенсация.
	ctx = context.WithoutCancel(ctx)
	logger = logger.WithField("order_id", order.ID)

	stepStart = o.now()
	if err := o.ledger.BatchReduce(ctx, stockReqs); err != nil {
		o.compensate(ctx, logger, order, stockReqs, err)
		return domain.Order{}, fmt.Errorf("%w: %w", domain.ErrOrderCreationFailed, err)
	}
	o.observeStep("reduce_stock", stepStart)

	itemIDs := make([]int64, 0, len(items))
	for _, item := range items {
		itemIDs = append(itemIDs, item.ID)
	}
	if _, err := o.carts.RemoveItems(ctx, req.UserID, itemIDs); err != nil {
		logger.WithError(err).Warn("failed to remove checked out items from cart")
		if o.metrics != nil {
			o.metrics.RecordSideEffectFailure("cart_cleanup")
		}
	}

	o.events.Emit(ctx, order, domain.EventOrderPlaced, map[string]any{
		"reason":       "order placed",
		"user_id":      order.UserID,
		"total_minor":  order.TotalPriceMinor,
		"total_items":  order.TotalItems,
		"payment_type": string(order.PaymentMethod),
	})
	logger.WithFields(log.Fields{
		"total_minor": order.TotalPriceMinor,
		"items":       len(order.Items),
	}).Info("order placed")
	return order, nil
}

// checkCustomer проверяет пользователя и адрес доставки. Деградированный ответ
// сервиса аккаунтов запрещает оформление.
func (o *Orchestrator) checkCustomer(ctx context.Context, logger *log.Entry, req PlaceOrderRequest) error {
	user, err := o.accounts.GetUser(ctx, req.UserID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if domain.IsBusinessError(err) {
			return fmt.Errorf("%w: %w", domain.ErrUserNotEligible, err)
		}
		return dependencyError("lookup user", err)
	}
	if user.Degraded {
		logger.WithField("reason", user.Reason).Warn("user lookup degraded, rejecting checkout")
		return domain.ErrUserNotEligible
	}
	if !user.Value.CanOrder() {
		return domain.ErrUserNotEligible
	}

	valid, err := o.accounts.ValidateAddress(ctx, req.UserID, req.AddressID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return dependencyError("validate address", err)
	}
	if !valid {
		return domain.ErrInvalidAddress
	}
	return nil
}

func (o *Orchestrator) checkStock(ctx context.Context, reqs []domain.StockRequest) error {
	available, err := o.ledger.BatchCheck(ctx, reqs)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return dependencyError("check stock", err)
	}
	for _, req := range reqs {
		if !available[req.Key] {
			return &domain.InsufficientStockError{
				ProductID: req.Key.ProductID,
				Size:      req.Key.Size,
				Requested: req.Quantity,
			}
		}
	}
	return nil
}

// snapshot копирует выбранные позиции в заказ вместе с ценами корзины.
func (o *Orchestrator) snapshot(req PlaceOrderRequest, items []domain.CartItem) domain.Order {
	now := o.now()
	method := req.PaymentMethod
	if method == "" {
		method = domain.PaymentMethodCOD
	}
	order := domain.Order{
		ID:            uuid.NewString(),
		UserID:        req.UserID,
		AddressID:     req.AddressID,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		PaymentMethod: method,
		Items:         make([]domain.OrderItem, 0, len(items)),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, item := range items {
		order.Items = append(order.Items, domain.OrderItem{
			ID:                   uuid.NewString(),
			OrderID:              order.ID,
			ProductID:            item.ProductID,
			Size:                 item.Size,
			Title:                item.Title,
			Quantity:             item.Quantity,
			PriceMinor:           item.PriceMinor,
			DiscountedPriceMinor: item.DiscountedPriceMinor,
		})
	}
	order.RecalculateTotals()
	return order
}

// compensate удаляет заказ после неудачного списания. Если нехватка пришлась не на первую
// позицию, уже списанные позиции возвращаются на склад. При недоступности учёта остатков
// неизвестно, что успело списаться, и возврат не выполняется.
func (o *Orchestrator) compensate(ctx context.Context, logger *log.Entry, order domain.Order, reqs []domain.StockRequest, cause error) {
	logger.WithError(cause).Warn("stock reduction failed, deleting order")

	var shortage *domain.InsufficientStockError
	if errors.As(cause, &shortage) {
		for _, req := range reqs {
			if req.Key.ProductID == shortage.ProductID && req.Key.Size == shortage.Size {
				break
			}
			if err := o.ledger.Restore(ctx, req); err != nil {
				logger.WithError(err).WithFields(log.Fields{
					"product_id": req.Key.ProductID,
					"size":       req.Key.Size,
					"quantity":   req.Quantity,
				}).Warn("failed to restore partially reduced stock")
				if o.metrics != nil {
					o.metrics.RecordSideEffectFailure("restore")
				}
			}
		}
	}

	if err := o.orders.Delete(order.ID); err != nil {
		logger.WithError(err).WithField("cause", cause.Error()).
			Error("compensation failed: order persisted without reserved stock, manual intervention required")
		if o.metrics != nil {
			o.metrics.RecordCompensation(false)
		}
		o.events.Emit(ctx, order, domain.EventCompensationFailed, map[string]any{
			"reason": cause.Error(),
		})
		return
	}
	if o.metrics != nil {
		o.metrics.RecordCompensation(true)
	}
}

func (o *Orchestrator) observeStep(step string, start time.Time) {
	if o.metrics != nil {
		o.metrics.RecordStepDuration(step, o.now().Sub(start))
	}
}

// dependencyError сводит сбой зависимости к ErrServiceUnavailable, сохраняя причину.
func dependencyError(op string, err error) error {
	if errors.Is(err, domain.ErrServiceUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrServiceUnavailable, err)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrOrderCreationFailed):
		return "order_creation_failed"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrUserNotEligible):
		return "user_not_eligible"
	case errors.Is(err, domain.ErrInvalidAddress):
		return "invalid_address"
	case errors.Is(err, domain.ErrEmptySelection):
		return "empty_selection"
	case errors.Is(err, domain.ErrForbiddenItem):
		return "forbidden_item"
	case errors.Is(err, domain.ErrServiceUnavailable):
		return "service_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
