package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/service/inventory"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

func newCatalog(t *testing.T) (*Catalog, *memory.ProductRepository) {
	t.Helper()
	products := memory.NewProductRepository()
	c := New(products, inventory.NewLedger(memory.NewStockRepository(), nil), nil)
	if err := c.UpsertProduct(context.Background(), domain.Product{ID: 10, Title: "Hoodie", Active: true}); err != nil {
		t.Fatalf("upsert product: %v", err)
	}
	return c, products
}

func TestSetStockReprices(t *testing.T) {
	c, _ := newCatalog(t)

	rec, err := c.SetStock(context.Background(), domain.StockRecord{
		ProductID: 10, Size: "M", Quantity: 5, PriceMinor: 100000, DiscountPercent: 10,
	})
	if err != nil {
		t.Fatalf("set stock: %v", err)
	}
	if rec.DiscountedPriceMinor != 90000 {
		t.Fatalf("expected discounted price 90000, got %d", rec.DiscountedPriceMinor)
	}

	got, err := c.GetStock(context.Background(), domain.StockKey{ProductID: 10, Size: "M"})
	if err != nil || got.Quantity != 5 {
		t.Fatalf("unexpected stock %+v err=%v", got, err)
	}
}

func TestSetStockRequiresProduct(t *testing.T) {
	c, _ := newCatalog(t)
	_, err := c.SetStock(context.Background(), domain.StockRecord{ProductID: 99, Size: "M", Quantity: 1})
	if !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestIncrementSold(t *testing.T) {
	c, products := newCatalog(t)

	if err := c.IncrementSold(context.Background(), 10, 3); err != nil {
		t.Fatalf("increment: %v", err)
	}
	product, _ := products.Get(10)
	if product.QuantitySold != 3 {
		t.Fatalf("expected 3 sold, got %d", product.QuantitySold)
	}

	if err := c.IncrementSold(context.Background(), 10, 0); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if err := c.IncrementSold(context.Background(), 404, 1); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestGetProduct(t *testing.T) {
	c, _ := newCatalog(t)
	res, err := c.GetProduct(context.Background(), 10)
	if err != nil || res.Degraded || res.Value.Title != "Hoodie" {
		t.Fatalf("unexpected product %+v err=%v", res, err)
	}
}
