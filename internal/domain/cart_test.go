package domain_test

import (
	"testing"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func makeCart() domain.Cart {
	return domain.Cart{
		ID:     1,
		UserID: 7,
		Items: []domain.CartItem{
			{ID: 10, ProductID: 1, Size: "M", Quantity: 2, PriceMinor: 100000, DiscountedPriceMinor: 90000},
			{ID: 11, ProductID: 2, Size: "S", Quantity: 1, PriceMinor: 30000},
		},
	}
}

func TestCartRecalculate(t *testing.T) {
	cart := makeCart()
	cart.Recalculate()

	if cart.TotalItems != 3 {
		t.Fatalf("expected 3 items, got %d", cart.TotalItems)
	}
	if cart.OriginalPriceMinor != 230000 {
		t.Fatalf("expected original 230000, got %d", cart.OriginalPriceMinor)
	}
	if cart.DiscountedPriceMinor != 210000 {
		t.Fatalf("expected discounted 210000, got %d", cart.DiscountedPriceMinor)
	}
	if cart.DiscountMinor != 20000 {
		t.Fatalf("expected discount 20000, got %d", cart.DiscountMinor)
	}

	before := cart
	cart.Recalculate()
	if cart.TotalItems != before.TotalItems || cart.DiscountMinor != before.DiscountMinor {
		t.Fatal("recalculate must be idempotent")
	}
}

func TestCartRemoveItems(t *testing.T) {
	cart := makeCart()
	cart.Recalculate()

	removed := cart.RemoveItems(10, 999)
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if len(cart.Items) != 1 || cart.Items[0].ID != 11 {
		t.Fatalf("unexpected items left: %+v", cart.Items)
	}
	if cart.TotalItems != 1 || cart.OriginalPriceMinor != 30000 || cart.DiscountMinor != 0 {
		t.Fatalf("totals not recomputed: %+v", cart)
	}

	cart.RemoveItems(11)
	if cart.TotalItems != 0 || cart.OriginalPriceMinor != 0 || cart.DiscountedPriceMinor != 0 {
		t.Fatalf("empty cart must have zero totals: %+v", cart)
	}
}

func TestCartFind(t *testing.T) {
	cart := makeCart()

	if idx, ok := cart.FindByKey(domain.StockKey{ProductID: 2, Size: "S"}); !ok || idx != 1 {
		t.Fatalf("expected key at index 1, got %d %v", idx, ok)
	}
	if _, ok := cart.FindByKey(domain.StockKey{ProductID: 2, Size: "M"}); ok {
		t.Fatal("size must be part of the key")
	}
	if idx, ok := cart.FindItem(10); !ok || idx != 0 {
		t.Fatalf("expected item at index 0, got %d %v", idx, ok)
	}
}

func TestCartCloneIsIndependent(t *testing.T) {
	cart := makeCart()
	clone := cart.Clone()
	clone.Items[0].Quantity = 50

	if cart.Items[0].Quantity != 2 {
		t.Fatal("clone must not share items with the original")
	}
}
