// Package catalog реализует каталог товаров catalog-service: карточки, цены по размерам и счётчик продаж.
package catalog

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/service/inventory"
)

// Catalog реализует domain.CatalogService поверх локального хранилища.
type Catalog struct {
	products domain.ProductRepository
	ledger   *inventory.Ledger
	logger   *log.Entry
}

// New создаёт каталог. Остатки читаются через ledger.
func New(products domain.ProductRepository, ledger *inventory.Ledger, logger *log.Entry) *Catalog {
	if logger == nil {
		logger = log.New().WithField("component", "catalog")
	}
	return &Catalog{products: products, ledger: ledger, logger: logger}
}

// GetProduct возвращает карточку товара.
func (c *Catalog) GetProduct(ctx context.Context, productID int64) (domain.Result[domain.Product], error) {
	if err := ctx.Err(); err != nil {
		return domain.Result[domain.Product]{}, err
	}
	product, err := c.products.Get(productID)
	if err != nil {
		return domain.Result[domain.Product]{}, err
	}
	return domain.Ok(product), nil
}

// GetStock возвращает складскую запись размера.
func (c *Catalog) GetStock(ctx context.Context, key domain.StockKey) (domain.StockRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.StockRecord{}, err
	}
	return c.ledger.Stock(key)
}

// IncrementSold увеличивает счётчик продаж товара.
func (c *Catalog) IncrementSold(ctx context.Context, productID int64, qty int32) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.products.IncrementSold(productID, qty); err != nil {
		return fmt.Errorf("increment sold for product %d: %w", productID, err)
	}
	c.logger.WithFields(log.Fields{"product_id": productID, "quantity": qty}).Debug("sold counter incremented")
	return nil
}

// UpsertProduct создаёт или обновляет карточку.
func (c *Catalog) UpsertProduct(ctx context.Context, product domain.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.products.Upsert(product)
}

// SetStock задаёт остаток и цену размера; скидочная цена пересчитывается.
func (c *Catalog) SetStock(ctx context.Context, record domain.StockRecord) (domain.StockRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.StockRecord{}, err
	}
	if _, err := c.products.Get(record.ProductID); err != nil {
		return domain.StockRecord{}, err
	}
	return c.ledger.SetStock(record)
}

var _ domain.CatalogService = (*Catalog)(nil)
