package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const catalogServiceName = "shop.v1.CatalogService"

// Полные имена методов CatalogService.
const (
	CatalogGetProductMethod    = "/" + catalogServiceName + "/GetProduct"
	CatalogIncrementSoldMethod = "/" + catalogServiceName + "/IncrementSold"
	CatalogUpsertProductMethod = "/" + catalogServiceName + "/UpsertProduct"
	CatalogSetStockMethod      = "/" + catalogServiceName + "/SetStock"
)

// ProductRequest запрашивает карточку товара.
type ProductRequest struct {
	ProductID int64 `json:"product_id"`
}

// IncrementSoldRequest увеличивает счётчик продаж товара.
type IncrementSoldRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int32 `json:"quantity"`
}

// CatalogServer: серверная сторона CatalogService.
type CatalogServer interface {
	GetProduct(context.Context, *ProductRequest) (*domain.Product, error)
	IncrementSold(context.Context, *IncrementSoldRequest) (*Empty, error)
	UpsertProduct(context.Context, *domain.Product) (*Empty, error)
	SetStock(context.Context, *domain.StockRecord) (*domain.StockRecord, error)
}

// CatalogServiceDesc: дескриптор CatalogService.
var CatalogServiceDesc = grpc.ServiceDesc{
	ServiceName: catalogServiceName,
	HandlerType: (*CatalogServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(catalogServiceName, "GetProduct", CatalogServer.GetProduct),
		unary(catalogServiceName, "IncrementSold", CatalogServer.IncrementSold),
		unary(catalogServiceName, "UpsertProduct", CatalogServer.UpsertProduct),
		unary(catalogServiceName, "SetStock", CatalogServer.SetStock),
	},
	Metadata: "shop/v1/catalog.json",
}

// RegisterCatalogServer регистрирует реализацию на gRPC-сервере.
func RegisterCatalogServer(s grpc.ServiceRegistrar, srv CatalogServer) {
	s.RegisterService(&CatalogServiceDesc, srv)
}

// CatalogClient вызывает CatalogService.
type CatalogClient struct {
	cc grpc.ClientConnInterface
}

// NewCatalogClient создаёт клиента поверх соединения.
func NewCatalogClient(cc grpc.ClientConnInterface) *CatalogClient {
	return &CatalogClient{cc: cc}
}

func (c *CatalogClient) GetProduct(ctx context.Context, in *ProductRequest, opts ...grpc.CallOption) (*domain.Product, error) {
	return invoke[domain.Product](ctx, c.cc, CatalogGetProductMethod, in, opts...)
}

func (c *CatalogClient) IncrementSold(ctx context.Context, in *IncrementSoldRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, CatalogIncrementSoldMethod, in, opts...)
}

func (c *CatalogClient) UpsertProduct(ctx context.Context, in *domain.Product, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, CatalogUpsertProductMethod, in, opts...)
}

func (c *CatalogClient) SetStock(ctx context.Context, in *domain.StockRecord, opts ...grpc.CallOption) (*domain.StockRecord, error) {
	return invoke[domain.StockRecord](ctx, c.cc, CatalogSetStockMethod, in, opts...)
}
