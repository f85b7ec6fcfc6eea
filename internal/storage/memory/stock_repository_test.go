package memory_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

func TestStockRepository_UpsertReprices(t *testing.T) {
	repo := memory.NewStockRepository()

	rec, err := repo.Upsert(domain.StockRecord{ProductID: 1, Size: "M", Quantity: 5, PriceMinor: 100000, DiscountPercent: 10})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if rec.DiscountedPriceMinor != 90000 {
		t.Fatalf("expected discounted 90000, got %d", rec.DiscountedPriceMinor)
	}
	if _, err := repo.Upsert(domain.StockRecord{ProductID: 1, Size: "S", Quantity: -1}); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("expected negative quantity to be rejected, got %v", err)
	}
}

func TestStockRepository_DecrementIfAvailable(t *testing.T) {
	repo := memory.NewStockRepository()
	key := domain.StockKey{ProductID: 1, Size: "M"}
	if _, err := repo.Upsert(domain.StockRecord{ProductID: 1, Size: "M", Quantity: 1, PriceMinor: 100}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	_, err := repo.DecrementIfAvailable(key, 2)
	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) || stockErr.Available != 1 {
		t.Fatalf("expected insufficient stock naming available=1, got %v", err)
	}

	rec, err := repo.DecrementIfAvailable(key, 1)
	if err != nil || rec.Quantity != 0 {
		t.Fatalf("expected quantity 0, got %d (%v)", rec.Quantity, err)
	}
	if _, err := repo.DecrementIfAvailable(domain.StockKey{ProductID: 9, Size: "M"}, 1); !errors.Is(err, domain.ErrStockNotFound) {
		t.Fatalf("expected ErrStockNotFound, got %v", err)
	}
}

func TestStockRepository_ConcurrentDecrementsNeverGoNegative(t *testing.T) {
	repo := memory.NewStockRepository()
	key := domain.StockKey{ProductID: 1, Size: "M"}
	if _, err := repo.Upsert(domain.StockRecord{ProductID: 1, Size: "M", Quantity: 10, PriceMinor: 100}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.DecrementIfAvailable(key, 1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	rec, _ := repo.Get(key)
	if rec.Quantity != 0 || succeeded != 10 {
		t.Fatalf("expected 10 successful decrements and zero stock, got %d and %d", succeeded, rec.Quantity)
	}
}

func TestStockRepository_Increment(t *testing.T) {
	repo := memory.NewStockRepository()
	key := domain.StockKey{ProductID: 1, Size: "M"}
	if _, err := repo.Upsert(domain.StockRecord{ProductID: 1, Size: "M", Quantity: 1}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	rec, err := repo.Increment(key, 4)
	if err != nil || rec.Quantity != 5 {
		t.Fatalf("expected 5, got %d (%v)", rec.Quantity, err)
	}
}
