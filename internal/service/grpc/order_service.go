// Package grpcsvc реализует gRPC-сервисы магазина поверх доменных сервисов.
package grpcsvc

import (
	"context"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/rpc"
	"github.com/vladislavdragonenkov/shop/internal/service/cart"
	"github.com/vladislavdragonenkov/shop/internal/service/checkout"
	"github.com/vladislavdragonenkov/shop/internal/service/orderstatus"
	"github.com/vladislavdragonenkov/shop/internal/service/payment"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type OrderDeps struct {
	Orders      domain.OrderRepository
	Payments    domain.PaymentRepository
	Timeline    domain.TimelineRepository
	Idempotency domain.IdempotencyRepository
	Checkout    *checkout.Orchestrator
	Status      *orderstatus.Service
	Gateway     *payment.Gateway
	Carts       *cart.Service
	Logger      *log.Entry
}

// OrderService реализует rpc.OrderServer.
type OrderService struct {
	orders   domain.OrderRepository
	payments domain.PaymentRepository
	timeline domain.TimelineRepository
	idemRepo domain.IdempotencyRepository
	checkout *checkout.Orchestrator
	status   *orderstatus.Service
	gateway  *payment.Gateway
	carts    *cart.Service
	logger   *log.Entry
	now      func() time.Time
}

var _ rpc.OrderServer = (*OrderService)(nil)

// NewOrderService создаёт OrderService.
func NewOrderService(deps OrderDeps) *OrderService {
	logger := deps.Logger
	if logger == nil {
		logger = log.New().WithField("component", "order-grpc")
	}
	return &OrderService{
		orders:   deps.Orders,
		payments: deps.Payments,
		timeline: deps.Timeline,
		idemRepo: deps.Idempotency,
		checkout: deps.Checkout,
		status:   deps.Status,
		gateway:  deps.Gateway,
		carts:    deps.Carts,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// PlaceOrder оформляет заказ из выбранных позиций корзины.
func (s *OrderService) PlaceOrder(ctx context.Context, req *rpc.PlaceOrderRequest) (*rpc.Order, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	method, err := parsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}
	return withIdempotency(s, ctx, rpc.OrderPlaceOrderMethod, req, func(ctx context.Context) (*rpc.Order, error) {
		order, err := s.checkout.PlaceOrder(ctx, checkout.PlaceOrderRequest{
			UserID:        req.UserID,
			AddressID:     req.AddressID,
			CartItemIDs:   req.CartItemIDs,
			PaymentMethod: method,
		})
		if err != nil {
			return nil, rpc.ToStatus(err, "failed to place order")
		}
		resp := rpc.FromOrder(order)
		return &resp, nil
	})
}

// GetOrder возвращает заказ с историей и платежом.
func (s *OrderService) GetOrder(_ context.Context, req *rpc.OrderRequest) (*rpc.GetOrderResponse, error) {
	if req == nil || strings.TrimSpace(req.OrderID) == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	order, err := s.orders.Get(req.OrderID)
	if err != nil {
		return nil, rpc.ToStatus(err, "failed to load order")
	}

	resp := &rpc.GetOrderResponse{Order: rpc.FromOrder(order)}
	if s.timeline != nil {
		events, err := s.timeline.List(order.ID)
		if err != nil {
			s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to load order timeline")
		}
		for _, e := range events {
			resp.Timeline = append(resp.Timeline, rpc.TimelineEvent{
				Type:     e.Type,
				Reason:   e.Reason,
				UnixTime: e.Occurred.Unix(),
			})
		}
	}
	if s.payments != nil {
		p, err := s.payments.GetByOrder(order.ID)
		switch {
		case err == nil:
			resp.Payment = rpc.FromPayment(p)
		case !errors.Is(err, domain.ErrPaymentNotFound):
			s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to load order payment")
		}
	}
	return resp, nil
}

// ListOrders возвращает заказы пользователя, новые первыми.
func (s *OrderService) ListOrders(_ context.Context, req *rpc.ListOrdersRequest) (*rpc.ListOrdersResponse, error) {
	if req == nil || req.UserID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	limit := int(req.Limit)
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	orders, err := s.orders.ListByUser(req.UserID, limit)
	if err != nil {
		return nil, rpc.ToStatus(err, "failed to list orders")
	}
	resp := &rpc.ListOrdersResponse{Orders: make([]rpc.Order, 0, len(orders))}
	for _, o := range orders {
		resp.Orders = append(resp.Orders, rpc.FromOrder(o))
	}
	return resp, nil
}

// UpdateOrderStatus переводит заказ в новый статус.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, req *rpc.UpdateOrderStatusRequest) (*rpc.Order, error) {
	if req == nil || strings.TrimSpace(req.OrderID) == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	target := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if !target.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "unknown order status %q", req.Status)
	}
	order, err := s.status.UpdateStatus(ctx, req.OrderID, target)
	if err != nil {
		return nil, rpc.ToStatus(err, "failed to update order status")
	}
	resp := rpc.FromOrder(order)
	return &resp, nil
}

// CancelOrder отменяет заказ и возвращает остатки на склад.
func (s *OrderService) CancelOrder(ctx context.Context, req *rpc.CancelOrderRequest) (*rpc.Order, error) {
	if req == nil || strings.TrimSpace(req.OrderID) == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	order, err := s.status.Cancel(ctx, req.OrderID, req.Reason)
	if err != nil {
		return nil, rpc.ToStatus(err, "failed to cancel order")
	}
	resp := rpc.FromOrder(order)
	return &resp, nil
}

// CreatePaymentURL выдаёт подписанную ссылку на оплату заказа.
func (s *OrderService) CreatePaymentURL(ctx context.Context, req *rpc.CreatePaymentURLRequest) (*rpc.CreatePaymentURLResponse, error) {
	if req == nil || strings.TrimSpace(req.OrderID) == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	if s.gateway == nil {
		return nil, status.Error(codes.Unimplemented, "online payment is not configured")
	}
	link, err := s.gateway.CreatePaymentURL(ctx, req.OrderID, req.ClientIP)
	if err != nil {
		return nil, rpc.ToStatus(err, "failed to create payment url")
	}
	return &rpc.CreatePaymentURLResponse{URL: link.URL, TxnRef: link.TxnRef}, nil
}

func (s *OrderService) GetCart(ctx context.Context, req *rpc.CartRequest) (*domain.Cart, error) {
	if err := requireUser(req); err != nil {
		return nil, err
	}
	return cartResponse(s.carts.Get(ctx, req.UserID))
}

func (s *OrderService) AddCartItem(ctx context.Context, req *rpc.AddCartItemRequest) (*domain.Cart, error) {
	if req == nil || req.UserID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	return cartResponse(s.carts.AddItem(ctx, req.UserID, req.ProductID, req.Size, req.Quantity))
}

func (s *OrderService) UpdateCartItem(ctx context.Context, req *rpc.UpdateCartItemRequest) (*domain.Cart, error) {
	if req == nil || req.UserID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	return cartResponse(s.carts.UpdateItem(ctx, req.UserID, req.ItemID, req.Quantity))
}

func (s *OrderService) RemoveCartItem(ctx context.Context, req *rpc.RemoveCartItemRequest) (*domain.Cart, error) {
	if req == nil || req.UserID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	return cartResponse(s.carts.RemoveItem(ctx, req.UserID, req.ItemID))
}

func (s *OrderService) ClearCart(ctx context.Context, req *rpc.CartRequest) (*domain.Cart, error) {
	if err := requireUser(req); err != nil {
		return nil, err
	}
	return cartResponse(s.carts.Clear(ctx, req.UserID))
}

func requireUser(req *rpc.CartRequest) error {
	if req == nil || req.UserID <= 0 {
		return status.Error(codes.InvalidArgument, "user_id is required")
	}
	return nil
}

func cartResponse(c domain.Cart, err error) (*domain.Cart, error) {
	if err != nil {
		return nil, rpc.ToStatus(err, "cart operation failed")
	}
	return &c, nil
}

// parsePaymentMethod: пустое значение означает оплату при получении.
func parsePaymentMethod(raw string) (domain.PaymentMethod, error) {
	switch m := domain.PaymentMethod(strings.ToUpper(strings.TrimSpace(raw))); m {
	case "":
		return domain.PaymentMethodCOD, nil
	case domain.PaymentMethodCOD, domain.PaymentMethodVNPay:
		return m, nil
	default:
		return "", status.Errorf(codes.InvalidArgument, "unsupported payment method %q", raw)
	}
}
