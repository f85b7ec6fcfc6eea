package inventory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// FaultyLedger оборачивает InventoryLedger для тестов: считает вызовы
// и подменяет ответы настроенными ошибками.
type FaultyLedger struct {
	mu    sync.Mutex
	inner domain.InventoryLedger

	CheckErr   error
	ReduceErr  error
	RestoreErr error
	// BeforeReduce вызывается перед каждым списанием; позволяет смоделировать гонку.
	BeforeReduce func()

	CheckCalls   int
	ReduceCalls  int
	RestoreCalls int
	Restored     []domain.StockRequest
}

// NewFaultyLedger оборачивает настоящий учёт остатков.
func NewFaultyLedger(inner domain.InventoryLedger) *FaultyLedger {
	return &FaultyLedger{inner: inner}
}

func (f *FaultyLedger) Check(ctx context.Context, req domain.StockRequest) (bool, error) {
	f.mu.Lock()
	f.CheckCalls++
	err := f.CheckErr
	f.mu.Unlock()
	if err != nil {
		return false, err
	}
	return f.inner.Check(ctx, req)
}

func (f *FaultyLedger) BatchCheck(ctx context.Context, reqs []domain.StockRequest) (map[domain.StockKey]bool, error) {
	f.mu.Lock()
	f.CheckCalls++
	err := f.CheckErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.inner.BatchCheck(ctx, reqs)
}

func (f *FaultyLedger) Reduce(ctx context.Context, req domain.StockRequest) error {
	if err := f.beforeReduce(); err != nil {
		return err
	}
	return f.inner.Reduce(ctx, req)
}

func (f *FaultyLedger) BatchReduce(ctx context.Context, reqs []domain.StockRequest) error {
	if err := f.beforeReduce(); err != nil {
		return err
	}
	return f.inner.BatchReduce(ctx, reqs)
}

func (f *FaultyLedger) Restore(ctx context.Context, req domain.StockRequest) error {
	f.mu.Lock()
	f.RestoreCalls++
	err := f.RestoreErr
	if err == nil {
		f.Restored = append(f.Restored, req)
	}
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.inner.Restore(ctx, req)
}

func (f *FaultyLedger) beforeReduce() error {
	f.mu.Lock()
	f.ReduceCalls++
	err := f.ReduceErr
	hook := f.BeforeReduce
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

var _ domain.InventoryLedger = (*FaultyLedger)(nil)
