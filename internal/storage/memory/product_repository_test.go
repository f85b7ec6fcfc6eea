package memory_test

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

func TestProductRepository_IncrementSold(t *testing.T) {
	repo := memory.NewProductRepository()
	if err := repo.Upsert(domain.Product{ID: 1, Title: "Tee", Active: true}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	if err := repo.IncrementSold(1, 3); err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	// Повторная запись карточки не сбрасывает счётчик.
	if err := repo.Upsert(domain.Product{ID: 1, Title: "Tee v2", Active: true}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	p, err := repo.Get(1)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if p.QuantitySold != 3 || p.Title != "Tee v2" {
		t.Fatalf("unexpected product: %+v", p)
	}
	if err := repo.IncrementSold(2, 1); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}
