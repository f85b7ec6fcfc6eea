package domain_test

import (
	"testing"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func TestDiscountedPrice(t *testing.T) {
	cases := []struct {
		name    string
		price   int64
		percent int32
		want    int64
	}{
		{name: "no discount", price: 100000, percent: 0, want: 100000},
		{name: "ten percent", price: 100000, percent: 10, want: 90000},
		{name: "rounds half up", price: 15, percent: 50, want: 8},
		{name: "rounds down", price: 99, percent: 33, want: 66},
		{name: "full discount", price: 100000, percent: 100, want: 0},
		{name: "over hundred clamps", price: 100000, percent: 150, want: 0},
		{name: "negative clamps", price: 100000, percent: -5, want: 100000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := domain.DiscountedPrice(tc.price, tc.percent); got != tc.want {
				t.Fatalf("DiscountedPrice(%d, %d) = %d, want %d", tc.price, tc.percent, got, tc.want)
			}
		})
	}
}

func TestStockRecordReprice(t *testing.T) {
	rec := domain.StockRecord{ProductID: 1, Size: "M", PriceMinor: 200000, DiscountPercent: 25}
	rec.Reprice()
	if rec.DiscountedPriceMinor != 150000 {
		t.Fatalf("expected 150000, got %d", rec.DiscountedPriceMinor)
	}
}

func TestMergeStockRequests(t *testing.T) {
	a := domain.StockKey{ProductID: 1, Size: "M"}
	b := domain.StockKey{ProductID: 1, Size: "L"}

	merged := domain.MergeStockRequests([]domain.StockRequest{
		{Key: a, Quantity: 1},
		{Key: b, Quantity: 2},
		{Key: a, Quantity: 3},
	})

	if len(merged) != 2 {
		t.Fatalf("expected 2 merged requests, got %d", len(merged))
	}
	if merged[0].Key != a || merged[0].Quantity != 4 {
		t.Fatalf("unexpected first merged request: %+v", merged[0])
	}
	if merged[1].Key != b || merged[1].Quantity != 2 {
		t.Fatalf("unexpected second merged request: %+v", merged[1])
	}
}

func TestUserCanOrder(t *testing.T) {
	if !(domain.User{Active: true}).CanOrder() {
		t.Fatal("active user must be able to order")
	}
	if (domain.User{Active: true, Banned: true}).CanOrder() {
		t.Fatal("banned user must not order")
	}
	if domain.UnknownUser(5).CanOrder() {
		t.Fatal("placeholder user must not order")
	}
}

func TestResultTags(t *testing.T) {
	ok := domain.Ok(domain.Product{ID: 1, Active: true})
	if ok.Degraded {
		t.Fatal("ok result must not be degraded")
	}
	degraded := domain.DegradedDefault(domain.UnknownProduct(1), "catalog down")
	if !degraded.Degraded || degraded.Value.Active || degraded.Reason == "" {
		t.Fatalf("unexpected degraded result: %+v", degraded)
	}
}
