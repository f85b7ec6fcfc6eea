package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const inventoryServiceName = "shop.v1.InventoryService"

// Полные имена методов InventoryService.
const (
	InventoryCheckMethod       = "/" + inventoryServiceName + "/Check"
	InventoryReduceMethod      = "/" + inventoryServiceName + "/Reduce"
	InventoryRestoreMethod     = "/" + inventoryServiceName + "/Restore"
	InventoryBatchCheckMethod  = "/" + inventoryServiceName + "/BatchCheck"
	InventoryBatchReduceMethod = "/" + inventoryServiceName + "/BatchReduce"
	InventoryGetStockMethod    = "/" + inventoryServiceName + "/GetStock"
)

// CheckResponse: ответ на проверку одного ключа.
type CheckResponse struct {
	Available bool `json:"available"`
}

// BatchStockRequest: пакет запросов к складу.
type BatchStockRequest struct {
	Items []domain.StockRequest `json:"items"`
}

// StockAvailability: результат проверки одного ключа в пакете.
type StockAvailability struct {
	Key       domain.StockKey `json:"key"`
	Available bool            `json:"available"`
}

// BatchCheckResponse содержит результаты в порядке запроса.
type BatchCheckResponse struct {
	Results []StockAvailability `json:"results"`
}

// InventoryServer реализуется catalog-service.
type InventoryServer interface {
	Check(context.Context, *domain.StockRequest) (*CheckResponse, error)
	Reduce(context.Context, *domain.StockRequest) (*Empty, error)
	Restore(context.Context, *domain.StockRequest) (*Empty, error)
	BatchCheck(context.Context, *BatchStockRequest) (*BatchCheckResponse, error)
	BatchReduce(context.Context, *BatchStockRequest) (*Empty, error)
	GetStock(context.Context, *domain.StockKey) (*domain.StockRecord, error)
}

// InventoryServiceDesc: дескриптор InventoryService.
var InventoryServiceDesc = grpc.ServiceDesc{
	ServiceName: inventoryServiceName,
	HandlerType: (*InventoryServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(inventoryServiceName, "Check", InventoryServer.Check),
		unary(inventoryServiceName, "Reduce", InventoryServer.Reduce),
		unary(inventoryServiceName, "Restore", InventoryServer.Restore),
		unary(inventoryServiceName, "BatchCheck", InventoryServer.BatchCheck),
		unary(inventoryServiceName, "BatchReduce", InventoryServer.BatchReduce),
		unary(inventoryServiceName, "GetStock", InventoryServer.GetStock),
	},
	Metadata: "shop/v1/inventory.json",
}

// RegisterInventoryServer регистрирует реализацию на gRPC-сервере.
func RegisterInventoryServer(s grpc.ServiceRegistrar, srv InventoryServer) {
	s.RegisterService(&InventoryServiceDesc, srv)
}

// InventoryClient вызывает InventoryService по JSON-кодеку.
type InventoryClient struct {
	cc grpc.ClientConnInterface
}

// NewInventoryClient создаёт клиента поверх соединения.
func NewInventoryClient(cc grpc.ClientConnInterface) *InventoryClient {
	return &InventoryClient{cc: cc}
}

func (c *InventoryClient) Check(ctx context.Context, in *domain.StockRequest, opts ...grpc.CallOption) (*CheckResponse, error) {
	return invoke[CheckResponse](ctx, c.cc, InventoryCheckMethod, in, opts...)
}

func (c *InventoryClient) Reduce(ctx context.Context, in *domain.StockRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, InventoryReduceMethod, in, opts...)
}

func (c *InventoryClient) Restore(ctx context.Context, in *domain.StockRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, InventoryRestoreMethod, in, opts...)
}

func (c *InventoryClient) BatchCheck(ctx context.Context, in *BatchStockRequest, opts ...grpc.CallOption) (*BatchCheckResponse, error) {
	return invoke[BatchCheckResponse](ctx, c.cc, InventoryBatchCheckMethod, in, opts...)
}

func (c *InventoryClient) BatchReduce(ctx context.Context, in *BatchStockRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, InventoryBatchReduceMethod, in, opts...)
}

func (c *InventoryClient) GetStock(ctx context.Context, in *domain.StockKey, opts ...grpc.CallOption) (*domain.StockRecord, error) {
	return invoke[domain.StockRecord](ctx, c.cc, InventoryGetStockMethod, in, opts...)
}
