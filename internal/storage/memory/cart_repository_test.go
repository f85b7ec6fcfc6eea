package memory_test

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

func TestCartRepository_SaveAssignsIDs(t *testing.T) {
	repo := memory.NewCartRepository()

	if _, err := repo.Get(7); !errors.Is(err, domain.ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound, got %v", err)
	}

	saved, err := repo.Save(domain.Cart{UserID: 7, Items: []domain.CartItem{{ProductID: 1, Size: "M", Quantity: 1}}})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if saved.ID == 0 || saved.Items[0].ID == 0 || saved.Items[0].CartID != saved.ID {
		t.Fatalf("ids not assigned: %+v", saved)
	}

	saved.Items = append(saved.Items, domain.CartItem{ProductID: 2, Size: "L", Quantity: 1})
	again, err := repo.Save(saved)
	if err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	if again.ID != saved.ID || again.Items[0].ID != saved.Items[0].ID || again.Items[1].ID == 0 {
		t.Fatalf("existing ids must be kept: %+v", again)
	}
}

func TestCartRepository_ItemOwners(t *testing.T) {
	repo := memory.NewCartRepository()
	mine, _ := repo.Save(domain.Cart{UserID: 7, Items: []domain.CartItem{{ProductID: 1, Size: "M", Quantity: 1}}})
	theirs, _ := repo.Save(domain.Cart{UserID: 8, Items: []domain.CartItem{{ProductID: 1, Size: "M", Quantity: 1}}})

	owners, err := repo.ItemOwners([]int64{mine.Items[0].ID, theirs.Items[0].ID, 999})
	if err != nil {
		t.Fatalf("owners failed: %v", err)
	}
	if owners[mine.Items[0].ID] != 7 || owners[theirs.Items[0].ID] != 8 {
		t.Fatalf("unexpected owners: %v", owners)
	}
	if _, ok := owners[999]; ok {
		t.Fatal("unknown item must not have an owner")
	}

	removedID := mine.Items[0].ID
	mine.Items = nil
	if _, err := repo.Save(mine); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	owners, _ = repo.ItemOwners([]int64{removedID})
	if len(owners) != 0 {
		t.Fatalf("removed item must not resolve to an owner: %v", owners)
	}
}
