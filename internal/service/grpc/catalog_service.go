package grpcsvc

import (
	"context"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/rpc"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
	"github.com/vladislavdragonenkov/shop/internal/service/inventory"
)

// CatalogService реализует rpc.CatalogServer и rpc.InventoryServer:
// каталог владеет и карточками товаров, и складом.
type CatalogService struct {
	catalog *catalog.Catalog
	ledger  *inventory.Ledger
	logger  *log.Entry
}

var (
	_ rpc.CatalogServer   = (*CatalogService)(nil)
	_ rpc.InventoryServer = (*CatalogService)(nil)
)

// NewCatalogService создаёт CatalogService.
func NewCatalogService(c *catalog.Catalog, ledger *inventory.Ledger, logger *log.Entry) *CatalogService {
	if logger == nil {
		logger = log.New().WithField("component", "catalog-grpc")
	}
	return &CatalogService{catalog: c, ledger: ledger, logger: logger}
}

func (s *CatalogService) GetProduct(ctx context.Context, req *rpc.ProductRequest) (*domain.Product, error) {
	if req == nil || req.ProductID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "product_id is required")
	}
	res, err := s.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, rpc.ToStatus(err, "failed to load product")
	}
	return &res.Value, nil
}

func (s *CatalogService) IncrementSold(ctx context.Context, req *rpc.IncrementSoldRequest) (*rpc.Empty, error) {
	if req == nil || req.ProductID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "product_id is required")
	}
	if err := s.catalog.IncrementSold(ctx, req.ProductID, req.Quantity); err != nil {
		return nil, rpc.ToStatus(err, "failed to increment sold counter")
	}
	return &rpc.Empty{}, nil
}

func (s *CatalogService) UpsertProduct(ctx context.Context, req *domain.Product) (*rpc.Empty, error) {
	if req == nil || req.ID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "product id is required")
	}
	if err := s.catalog.UpsertProduct(ctx, *req); err != nil {
		return nil, rpc.ToStatus(err, "failed to save product")
	}
	return &rpc.Empty{}, nil
}

func (s *CatalogService) SetStock(ctx context.Context, req *domain.StockRecord) (*domain.StockRecord, error) {
	if req == nil || req.ProductID <= 0 || req.Size == "" {
		return nil, status.Error(codes.InvalidArgument, "product_id and size are required")
	}
	if req.Quantity < 0 {
		return nil, status.Error(codes.InvalidArgument, "quantity must not be negative")
	}
	record, err := s.catalog.SetStock(ctx, *req)
	if err != nil {
		return nil, rpc.ToStatus(err, "failed to set stock")
	}
	return &record, nil
}

func (s *CatalogService) Check(ctx context.Context, req *domain.StockRequest) (*rpc.CheckResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	ok, err := s.ledger.Check(ctx, *req)
	if err != nil {
		return nil, rpc.ToStatus(err, "failed to check stock")
	}
	return &rpc.CheckResponse{Available: ok}, nil
}

func (s *CatalogService) Reduce(ctx context.Context, req *domain.StockRequest) (*rpc.Empty, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if err := s.ledger.Reduce(ctx, *req); err != nil {
		return nil, rpc.ToStatus(err, "failed to reduce stock")
	}
	return &rpc.Empty{}, nil
}

func (s *CatalogService) Restore(ctx context.Context, req *domain.StockRequest) (*rpc.Empty, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if err := s.ledger.Restore(ctx, *req); err != nil {
		return nil, rpc.ToStatus(err, "failed to restore stock")
	}
	return &rpc.Empty{}, nil
}

// BatchCheck отвечает по каждому ключу в порядке первого появления в запросе.
func (s *CatalogService) BatchCheck(ctx context.Context, req *rpc.BatchStockRequest) (*rpc.BatchCheckResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	results, err := s.ledger.BatchCheck(ctx, req.Items)
	if err != nil {
		return nil, rpc.ToStatus(err, "failed to check stock")
	}
	resp := &rpc.BatchCheckResponse{Results: make([]rpc.StockAvailability, 0, len(results))}
	seen := make(map[domain.StockKey]struct{}, len(results))
	for _, item := range req.Items {
		key := item.Key
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		resp.Results = append(resp.Results, rpc.StockAvailability{Key: key, Available: results[key]})
	}
	return resp, nil
}

func (s *CatalogService) BatchReduce(ctx context.Context, req *rpc.BatchStockRequest) (*rpc.Empty, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if err := s.ledger.BatchReduce(ctx, req.Items); err != nil {
		return nil, rpc.ToStatus(err, "failed to reduce stock")
	}
	return &rpc.Empty{}, nil
}

func (s *CatalogService) GetStock(_ context.Context, req *domain.StockKey) (*domain.StockRecord, error) {
	if req == nil || req.ProductID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "product_id is required")
	}
	record, err := s.ledger.Stock(*req)
	if err != nil {
		return nil, rpc.ToStatus(err, "failed to load stock")
	}
	return &record, nil
}
