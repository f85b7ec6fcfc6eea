package remote

import (
	"context"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/resilience"
	"github.com/vladislavdragonenkov/shop/internal/rpc"
)

// CatalogClient ходит в catalog-service: остатки, карточки товаров и счётчик продаж.
// Реализует domain.InventoryLedger и domain.CatalogService.
type CatalogClient struct {
	inventory *rpc.InventoryClient
	catalog   *rpc.CatalogClient

	check         *resilience.Guard
	batchCheck    *resilience.Guard
	reduce        *resilience.Guard
	batchReduce   *resilience.Guard
	restore       *resilience.Guard
	getProduct    *resilience.Guard
	getStock      *resilience.Guard
	incrementSold *resilience.Guard
}

// NewCatalogClient создаёт клиента поверх соединения с catalog-service.
func NewCatalogClient(cc grpc.ClientConnInterface, cfg Config) *CatalogClient {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New().WithField("component", "catalog-client")
	}
	return &CatalogClient{
		inventory:     rpc.NewInventoryClient(cc),
		catalog:       rpc.NewCatalogClient(cc),
		check:         cfg.guard("inventory.check", true, logger),
		batchCheck:    cfg.guard("inventory.batch_check", true, logger),
		reduce:        cfg.guard("inventory.reduce", false, logger),
		batchReduce:   cfg.guard("inventory.batch_reduce", false, logger),
		restore:       cfg.guard("inventory.restore", false, logger),
		getProduct:    cfg.guard("catalog.get_product", true, logger),
		getStock:      cfg.guard("catalog.get_stock", true, logger),
		incrementSold: cfg.guard("catalog.increment_sold", false, logger),
	}
}

// Guards возвращает защитные обёртки клиента (для health-проверок).
func (c *CatalogClient) Guards() []*resilience.Guard {
	return []*resilience.Guard{
		c.check, c.batchCheck, c.reduce, c.batchReduce,
		c.restore, c.getProduct, c.getStock, c.incrementSold,
	}
}

// Check при недоступности каталога отвечает false: остаток неизвестен.
func (c *CatalogClient) Check(ctx context.Context, req domain.StockRequest) (bool, error) {
	return resilience.Call(ctx, c.check, func(ctx context.Context) (bool, error) {
		resp, err := c.inventory.Check(ctx, &req)
		if err != nil {
			return false, rpc.FromStatus(err)
		}
		return resp.Available, nil
	}, resilience.Default(false))
}

// BatchCheck при недоступности каталога помечает все ключи как недоступные.
func (c *CatalogClient) BatchCheck(ctx context.Context, reqs []domain.StockRequest) (map[domain.StockKey]bool, error) {
	allUnavailable := func(context.Context, error) (map[domain.StockKey]bool, error) {
		result := make(map[domain.StockKey]bool, len(reqs))
		for _, req := range reqs {
			result[req.Key] = false
		}
		return result, nil
	}
	return resilience.Call(ctx, c.batchCheck, func(ctx context.Context) (map[domain.StockKey]bool, error) {
		resp, err := c.inventory.BatchCheck(ctx, &rpc.BatchStockRequest{Items: reqs})
		if err != nil {
			return nil, rpc.FromStatus(err)
		}
		result := make(map[domain.StockKey]bool, len(resp.Results))
		for _, r := range resp.Results {
			result[r.Key] = r.Available
		}
		return result, nil
	}, allUnavailable)
}

func (c *CatalogClient) Reduce(ctx context.Context, req domain.StockRequest) error {
	_, err := resilience.Call(ctx, c.reduce, func(ctx context.Context) (struct{}, error) {
		_, err := c.inventory.Reduce(ctx, &req)
		return struct{}{}, rpc.FromStatus(err)
	}, resilience.Unavailable[struct{}]("reduce stock"))
	return err
}

func (c *CatalogClient) BatchReduce(ctx context.Context, reqs []domain.StockRequest) error {
	_, err := resilience.Call(ctx, c.batchReduce, func(ctx context.Context) (struct{}, error) {
		_, err := c.inventory.BatchReduce(ctx, &rpc.BatchStockRequest{Items: reqs})
		return struct{}{}, rpc.FromStatus(err)
	}, resilience.Unavailable[struct{}]("batch reduce stock"))
	return err
}

func (c *CatalogClient) Restore(ctx context.Context, req domain.StockRequest) error {
	_, err := resilience.Call(ctx, c.restore, func(ctx context.Context) (struct{}, error) {
		_, err := c.inventory.Restore(ctx, &req)
		return struct{}{}, rpc.FromStatus(err)
	}, resilience.Unavailable[struct{}]("restore stock"))
	return err
}

// GetProduct при недоступности каталога возвращает неактивную заглушку с Degraded.
func (c *CatalogClient) GetProduct(ctx context.Context, productID int64) (domain.Result[domain.Product], error) {
	return resilience.Call(ctx, c.getProduct, func(ctx context.Context) (domain.Result[domain.Product], error) {
		product, err := c.catalog.GetProduct(ctx, &rpc.ProductRequest{ProductID: productID})
		if err != nil {
			return domain.Result[domain.Product]{}, rpc.FromStatus(err)
		}
		return domain.Ok(*product), nil
	}, resilience.Placeholder(domain.UnknownProduct(productID)))
}

func (c *CatalogClient) GetStock(ctx context.Context, key domain.StockKey) (domain.StockRecord, error) {
	return resilience.Call(ctx, c.getStock, func(ctx context.Context) (domain.StockRecord, error) {
		record, err := c.inventory.GetStock(ctx, &key)
		if err != nil {
			return domain.StockRecord{}, rpc.FromStatus(err)
		}
		return *record, nil
	}, resilience.Unavailable[domain.StockRecord]("get stock"))
}

func (c *CatalogClient) IncrementSold(ctx context.Context, productID int64, qty int32) error {
	_, err := resilience.Call(ctx, c.incrementSold, func(ctx context.Context) (struct{}, error) {
		_, err := c.catalog.IncrementSold(ctx, &rpc.IncrementSoldRequest{ProductID: productID, Quantity: qty})
		return struct{}{}, rpc.FromStatus(err)
	}, resilience.Unavailable[struct{}]("increment sold"))
	return err
}

var (
	_ domain.InventoryLedger = (*CatalogClient)(nil)
	_ domain.CatalogService  = (*CatalogClient)(nil)
)
