package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// StockRepository: in-memory склад. Проверка и списание выполняются под одной блокировкой.
type StockRepository struct {
	mu      sync.Mutex
	records map[domain.StockKey]domain.StockRecord
	now     func() time.Time
}

// NewStockRepository создаёт пустой склад.
func NewStockRepository() *StockRepository {
	return &StockRepository{
		records: make(map[domain.StockKey]domain.StockRecord),
		now:     time.Now,
	}
}

// Get возвращает складскую запись или ErrStockNotFound.
func (r *StockRepository) Get(key domain.StockKey) (domain.StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		return domain.StockRecord{}, domain.ErrStockNotFound
	}
	return rec, nil
}

// Upsert записывает запись, пересчитывая цену со скидкой.
func (r *StockRepository) Upsert(record domain.StockRecord) (domain.StockRecord, error) {
	if record.Quantity < 0 {
		return domain.StockRecord{}, domain.ErrInvalidQuantity
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	record.Reprice()
	record.UpdatedAt = r.now().UTC()
	r.records[record.Key()] = record
	return record, nil
}

// DecrementIfAvailable списывает qty, если остатка хватает.
func (r *StockRepository) DecrementIfAvailable(key domain.StockKey, qty int32) (domain.StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		return domain.StockRecord{}, domain.ErrStockNotFound
	}
	if rec.Quantity < qty {
		return rec, &domain.InsufficientStockError{
			ProductID: key.ProductID,
			Size:      key.Size,
			Requested: qty,
			Available: rec.Quantity,
		}
	}
	rec.Quantity -= qty
	rec.Reprice()
	rec.UpdatedAt = r.now().UTC()
	r.records[key] = rec
	return rec, nil
}

// Increment возвращает qty на склад.
func (r *StockRepository) Increment(key domain.StockKey, qty int32) (domain.StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		return domain.StockRecord{}, domain.ErrStockNotFound
	}
	rec.Quantity += qty
	rec.Reprice()
	rec.UpdatedAt = r.now().UTC()
	r.records[key] = rec
	return rec, nil
}

var _ domain.StockRepository = (*StockRepository)(nil)
