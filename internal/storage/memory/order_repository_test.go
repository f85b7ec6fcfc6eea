package memory_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

func newOrder(id string) domain.Order {
	now := time.Now().UTC()
	order := domain.Order{
		ID:            id,
		UserID:        7,
		AddressID:     3,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		PaymentMethod: domain.PaymentMethodVNPay,
		Items: []domain.OrderItem{
			{ID: id + "-item", OrderID: id, ProductID: 1, Size: "M", Quantity: 2, PriceMinor: 100000, DiscountedPriceMinor: 90000},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	order.RecalculateTotals()
	return order
}

func TestOrderRepository_CreateGet(t *testing.T) {
	repo := memory.NewOrderRepository()
	order := newOrder("order-1")

	if err := repo.Create(order); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(order); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected duplicate create to fail, got %v", err)
	}

	stored, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.TotalPriceMinor != 180000 || len(stored.Items) != 1 {
		t.Fatalf("unexpected stored order: %+v", stored)
	}

	stored.Items[0].Quantity = 99
	again, _ := repo.Get(order.ID)
	if again.Items[0].Quantity != 2 {
		t.Fatal("repository must return copies of items")
	}
}

func TestOrderRepository_ListByUser(t *testing.T) {
	repo := memory.NewOrderRepository()
	older := newOrder("order-1")
	newer := newOrder("order-2")
	newer.CreatedAt = older.CreatedAt.Add(time.Minute)
	other := newOrder("order-3")
	other.UserID = 8

	for _, o := range []domain.Order{older, newer, other} {
		if err := repo.Create(o); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	orders, err := repo.ListByUser(7, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(orders) != 2 || orders[0].ID != "order-2" {
		t.Fatalf("expected newest first for user 7, got %+v", orders)
	}

	limited, _ := repo.ListByUser(7, 1)
	if len(limited) != 1 {
		t.Fatalf("expected limit 1, got %d", len(limited))
	}
}

func TestOrderRepository_SaveVersionConflict(t *testing.T) {
	repo := memory.NewOrderRepository()
	order := newOrder("order-1")
	if err := repo.Create(order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	order.Status = domain.OrderStatusConfirmed
	if err := repo.Save(order); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := repo.Save(order); !domain.IsVersionConflict(err) {
		t.Fatalf("expected version conflict for stale save, got %v", err)
	}

	stored, _ := repo.Get(order.ID)
	if stored.Version != 1 || stored.Status != domain.OrderStatusConfirmed {
		t.Fatalf("unexpected stored order: %+v", stored)
	}
}

func TestOrderRepository_Delete(t *testing.T) {
	repo := memory.NewOrderRepository()
	order := newOrder("order-1")
	if err := repo.Create(order); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.UpsertPending(domain.PaymentDetail{ID: "pay-1", OrderID: order.ID, TxnRef: "txn-1", Status: domain.PaymentStatusPending}); err != nil {
		t.Fatalf("upsert payment failed: %v", err)
	}

	if err := repo.Delete(order.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := repo.Get(order.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected order to be gone, got %v", err)
	}
	if _, err := repo.GetByTxnRef("txn-1"); !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Fatalf("expected payment to be gone, got %v", err)
	}
	if err := repo.Delete(order.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound on second delete, got %v", err)
	}
}

func TestOrderRepository_Payments(t *testing.T) {
	repo := memory.NewOrderRepository()
	order := newOrder("order-1")
	if err := repo.Create(order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	first := domain.PaymentDetail{ID: "pay-1", OrderID: order.ID, TxnRef: "txn-1", AmountMinor: 180000, Status: domain.PaymentStatusPending}
	if err := repo.UpsertPending(first); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	refreshed := first
	refreshed.ID = "pay-2"
	refreshed.TxnRef = "txn-2"
	if err := repo.UpsertPending(refreshed); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if _, err := repo.GetByTxnRef("txn-1"); !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Fatalf("old txn ref must be dropped, got %v", err)
	}

	payment, err := repo.GetByTxnRef("txn-2")
	if err != nil {
		t.Fatalf("get by txn failed: %v", err)
	}
	if payment.ID != "pay-1" {
		t.Fatalf("payment id must be kept on refresh, got %s", payment.ID)
	}

	payment.Status = domain.PaymentStatusCompleted
	order.PaymentStatus = domain.PaymentStatusCompleted
	order.Status = domain.OrderStatusConfirmed
	if err := repo.SaveWithOrder(payment, order); err != nil {
		t.Fatalf("save with order failed: %v", err)
	}

	stored, _ := repo.GetByOrder(order.ID)
	if stored.Status != domain.PaymentStatusCompleted {
		t.Fatalf("expected completed payment, got %s", stored.Status)
	}
	if err := repo.UpsertPending(refreshed); !errors.Is(err, domain.ErrOrderAlreadyPaid) {
		t.Fatalf("completed payment must not be replaced, got %v", err)
	}

	// Устаревшая версия заказа не должна менять и платёж.
	payment.Status = domain.PaymentStatusFailed
	if err := repo.SaveWithOrder(payment, order); !domain.IsVersionConflict(err) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	stored, _ = repo.GetByOrder(order.ID)
	if stored.Status != domain.PaymentStatusCompleted {
		t.Fatalf("payment must stay completed, got %s", stored.Status)
	}
}
