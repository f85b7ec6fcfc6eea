package rpc

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const orderServiceName = "shop.v1.OrderService"

// Полные имена методов OrderService.
const (
	OrderPlaceOrderMethod        = "/" + orderServiceName + "/PlaceOrder"
	OrderGetOrderMethod          = "/" + orderServiceName + "/GetOrder"
	OrderListOrdersMethod        = "/" + orderServiceName + "/ListOrders"
	OrderUpdateOrderStatusMethod = "/" + orderServiceName + "/UpdateOrderStatus"
	OrderCancelOrderMethod       = "/" + orderServiceName + "/CancelOrder"
	OrderCreatePaymentURLMethod  = "/" + orderServiceName + "/CreatePaymentURL"
	OrderGetCartMethod           = "/" + orderServiceName + "/GetCart"
	OrderAddCartItemMethod       = "/" + orderServiceName + "/AddCartItem"
	OrderUpdateCartItemMethod    = "/" + orderServiceName + "/UpdateCartItem"
	OrderRemoveCartItemMethod    = "/" + orderServiceName + "/RemoveCartItem"
	OrderClearCartMethod         = "/" + orderServiceName + "/ClearCart"
)

// OrderItem: позиция заказа на проводе.
type OrderItem struct {
	ID                   string `json:"id"`
	ProductID            int64  `json:"product_id"`
	Size                 string `json:"size"`
	Title                string `json:"title,omitempty"`
	Quantity             int32  `json:"quantity"`
	PriceMinor           int64  `json:"price_minor"`
	DiscountedPriceMinor int64  `json:"discounted_price_minor"`
}

// Order передаётся клиентам OrderService.
type Order struct {
	ID                 string      `json:"id"`
	UserID             int64       `json:"user_id"`
	AddressID          int64       `json:"address_id"`
	Status             string      `json:"status"`
	PaymentStatus      string      `json:"payment_status"`
	PaymentMethod      string      `json:"payment_method"`
	Items              []OrderItem `json:"items"`
	TotalItems         int32       `json:"total_items"`
	TotalPriceMinor    int64       `json:"total_price_minor"`
	OriginalPriceMinor int64       `json:"original_price_minor"`
	DiscountMinor      int64       `json:"discount_minor"`
	Version            int64       `json:"version"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
	DeliveredAt        *time.Time  `json:"delivered_at,omitempty"`
}

// Payment: платёжная запись заказа без сырых данных callback.
type Payment struct {
	TxnRef       string `json:"txn_ref"`
	AmountMinor  int64  `json:"amount_minor"`
	Status       string `json:"status"`
	ResponseCode string `json:"response_code,omitempty"`
	GatewayTxnNo string `json:"gateway_txn_no,omitempty"`
	BankCode     string `json:"bank_code,omitempty"`
}

// TimelineEvent: событие истории заказа.
type TimelineEvent struct {
	Type     string `json:"type"`
	Reason   string `json:"reason,omitempty"`
	UnixTime int64  `json:"unix_time"`
}

type PlaceOrderRequest struct {
	UserID        int64   `json:"user_id"`
	AddressID     int64   `json:"address_id"`
	CartItemIDs   []int64 `json:"cart_item_ids"`
	PaymentMethod string  `json:"payment_method"`
}

type OrderRequest struct {
	OrderID string `json:"order_id"`
}

type GetOrderResponse struct {
	Order    Order           `json:"order"`
	Timeline []TimelineEvent `json:"timeline"`
	Payment  *Payment        `json:"payment,omitempty"`
}

type ListOrdersRequest struct {
	UserID int64 `json:"user_id"`
	Limit  int32 `json:"limit"`
}

type ListOrdersResponse struct {
	Orders []Order `json:"orders"`
}

type UpdateOrderStatusRequest struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type CancelOrderRequest struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason,omitempty"`
}

type CreatePaymentURLRequest struct {
	OrderID  string `json:"order_id"`
	ClientIP string `json:"client_ip"`
}

type CreatePaymentURLResponse struct {
	URL    string `json:"url"`
	TxnRef string `json:"txn_ref"`
}

type CartRequest struct {
	UserID int64 `json:"user_id"`
}

type AddCartItemRequest struct {
	UserID    int64  `json:"user_id"`
	ProductID int64  `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int32  `json:"quantity"`
}

type UpdateCartItemRequest struct {
	UserID   int64 `json:"user_id"`
	ItemID   int64 `json:"item_id"`
	Quantity int32 `json:"quantity"`
}

type RemoveCartItemRequest struct {
	UserID int64 `json:"user_id"`
	ItemID int64 `json:"item_id"`
}

// OrderServer: серверная сторона OrderService.
type OrderServer interface {
	PlaceOrder(context.Context, *PlaceOrderRequest) (*Order, error)
	GetOrder(context.Context, *OrderRequest) (*GetOrderResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	UpdateOrderStatus(context.Context, *UpdateOrderStatusRequest) (*Order, error)
	CancelOrder(context.Context, *CancelOrderRequest) (*Order, error)
	CreatePaymentURL(context.Context, *CreatePaymentURLRequest) (*CreatePaymentURLResponse, error)
	GetCart(context.Context, *CartRequest) (*domain.Cart, error)
	AddCartItem(context.Context, *AddCartItemRequest) (*domain.Cart, error)
	UpdateCartItem(context.Context, *UpdateCartItemRequest) (*domain.Cart, error)
	RemoveCartItem(context.Context, *RemoveCartItemRequest) (*domain.Cart, error)
	ClearCart(context.Context, *CartRequest) (*domain.Cart, error)
}

// OrderServiceDesc: дескриптор OrderService.
var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: orderServiceName,
	HandlerType: (*OrderServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(orderServiceName, "PlaceOrder", OrderServer.PlaceOrder),
		unary(orderServiceName, "GetOrder", OrderServer.GetOrder),
		unary(orderServiceName, "ListOrders", OrderServer.ListOrders),
		unary(orderServiceName, "UpdateOrderStatus", OrderServer.UpdateOrderStatus),
		unary(orderServiceName, "CancelOrder", OrderServer.CancelOrder),
		unary(orderServiceName, "CreatePaymentURL", OrderServer.CreatePaymentURL),
		unary(orderServiceName, "GetCart", OrderServer.GetCart),
		unary(orderServiceName, "AddCartItem", OrderServer.AddCartItem),
		unary(orderServiceName, "UpdateCartItem", OrderServer.UpdateCartItem),
		unary(orderServiceName, "RemoveCartItem", OrderServer.RemoveCartItem),
		unary(orderServiceName, "ClearCart", OrderServer.ClearCart),
	},
	Metadata: "shop/v1/order.json",
}

// RegisterOrderServer регистрирует реализацию на gRPC-сервере.
func RegisterOrderServer(s grpc.ServiceRegistrar, srv OrderServer) {
	s.RegisterService(&OrderServiceDesc, srv)
}

// OrderClient вызывает OrderService; используется loadtest и интеграционными тестами.
type OrderClient struct {
	cc grpc.ClientConnInterface
}

// NewOrderClient создаёт клиента поверх соединения.
func NewOrderClient(cc grpc.ClientConnInterface) *OrderClient {
	return &OrderClient{cc: cc}
}

func (c *OrderClient) PlaceOrder(ctx context.Context, in *PlaceOrderRequest, opts ...grpc.CallOption) (*Order, error) {
	return invoke[Order](ctx, c.cc, OrderPlaceOrderMethod, in, opts...)
}

func (c *OrderClient) GetOrder(ctx context.Context, in *OrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error) {
	return invoke[GetOrderResponse](ctx, c.cc, OrderGetOrderMethod, in, opts...)
}

func (c *OrderClient) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	return invoke[ListOrdersResponse](ctx, c.cc, OrderListOrdersMethod, in, opts...)
}

func (c *OrderClient) UpdateOrderStatus(ctx context.Context, in *UpdateOrderStatusRequest, opts ...grpc.CallOption) (*Order, error) {
	return invoke[Order](ctx, c.cc, OrderUpdateOrderStatusMethod, in, opts...)
}

func (c *OrderClient) CancelOrder(ctx context.Context, in *CancelOrderRequest, opts ...grpc.CallOption) (*Order, error) {
	return invoke[Order](ctx, c.cc, OrderCancelOrderMethod, in, opts...)
}

func (c *OrderClient) CreatePaymentURL(ctx context.Context, in *CreatePaymentURLRequest, opts ...grpc.CallOption) (*CreatePaymentURLResponse, error) {
	return invoke[CreatePaymentURLResponse](ctx, c.cc, OrderCreatePaymentURLMethod, in, opts...)
}

func (c *OrderClient) GetCart(ctx context.Context, in *CartRequest, opts ...grpc.CallOption) (*domain.Cart, error) {
	return invoke[domain.Cart](ctx, c.cc, OrderGetCartMethod, in, opts...)
}

func (c *OrderClient) AddCartItem(ctx context.Context, in *AddCartItemRequest, opts ...grpc.CallOption) (*domain.Cart, error) {
	return invoke[domain.Cart](ctx, c.cc, OrderAddCartItemMethod, in, opts...)
}

func (c *OrderClient) UpdateCartItem(ctx context.Context, in *UpdateCartItemRequest, opts ...grpc.CallOption) (*domain.Cart, error) {
	return invoke[domain.Cart](ctx, c.cc, OrderUpdateCartItemMethod, in, opts...)
}

func (c *OrderClient) RemoveCartItem(ctx context.Context, in *RemoveCartItemRequest, opts ...grpc.CallOption) (*domain.Cart, error) {
	return invoke[domain.Cart](ctx, c.cc, OrderRemoveCartItemMethod, in, opts...)
}

func (c *OrderClient) ClearCart(ctx context.Context, in *CartRequest, opts ...grpc.CallOption) (*domain.Cart, error) {
	return invoke[domain.Cart](ctx, c.cc, OrderClearCartMethod, in, opts...)
}

// FromOrder переводит доменный заказ в сообщение.
func FromOrder(order domain.Order) Order {
	items := make([]OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItem{
			ID:                   item.ID,
			ProductID:            item.ProductID,
			Size:                 item.Size,
			Title:                item.Title,
			Quantity:             item.Quantity,
			PriceMinor:           item.PriceMinor,
			DiscountedPriceMinor: item.DiscountedPriceMinor,
		})
	}
	return Order{
		ID:                 order.ID,
		UserID:             order.UserID,
		AddressID:          order.AddressID,
		Status:             string(order.Status),
		PaymentStatus:      string(order.PaymentStatus),
		PaymentMethod:      string(order.PaymentMethod),
		Items:              items,
		TotalItems:         order.TotalItems,
		TotalPriceMinor:    order.TotalPriceMinor,
		OriginalPriceMinor: order.OriginalPriceMinor,
		DiscountMinor:      order.DiscountMinor,
		Version:            order.Version,
		CreatedAt:          order.CreatedAt,
		UpdatedAt:          order.UpdatedAt,
		DeliveredAt:        order.DeliveredAt,
	}
}

// FromPayment переводит платёжную запись в сообщение.
func FromPayment(p domain.PaymentDetail) *Payment {
	return &Payment{
		TxnRef:       p.TxnRef,
		AmountMinor:  p.AmountMinor,
		Status:       string(p.Status),
		ResponseCode: p.ResponseCode,
		GatewayTxnNo: p.GatewayTxnNo,
		BankCode:     p.BankCode,
	}
}

// ToDomain восстанавливает доменный заказ из сообщения.
func (o Order) ToDomain() domain.Order {
	items := make([]domain.OrderItem, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, domain.OrderItem{
			ID:                   item.ID,
			OrderID:              o.ID,
			ProductID:            item.ProductID,
			Size:                 item.Size,
			Title:                item.Title,
			Quantity:             item.Quantity,
			PriceMinor:           item.PriceMinor,
			DiscountedPriceMinor: item.DiscountedPriceMinor,
		})
	}
	return domain.Order{
		ID:                 o.ID,
		UserID:             o.UserID,
		AddressID:          o.AddressID,
		Status:             domain.OrderStatus(o.Status),
		PaymentStatus:      domain.PaymentStatus(o.PaymentStatus),
		PaymentMethod:      domain.PaymentMethod(o.PaymentMethod),
		Items:              items,
		TotalItems:         o.TotalItems,
		TotalPriceMinor:    o.TotalPriceMinor,
		OriginalPriceMinor: o.OriginalPriceMinor,
		DiscountMinor:      o.DiscountMinor,
		Version:            o.Version,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
		DeliveredAt:        o.DeliveredAt,
	}
}
