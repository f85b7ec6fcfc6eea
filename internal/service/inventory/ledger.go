package inventory

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// Ledger ведёт учёт остатков поверх StockRepository и единственный меняет количество.
type Ledger struct {
	stock  domain.StockRepository
	logger *log.Entry
}

// NewLedger создаёт учёт остатков.
func NewLedger(stock domain.StockRepository, logger *log.Entry) *Ledger {
	if logger == nil {
		logger = log.New().WithField("component", "inventory-ledger")
	}
	return &Ledger{stock: stock, logger: logger}
}

// Check сообщает, хватает ли остатка. Неизвестный ключ: false без ошибки.
func (l *Ledger) Check(ctx context.Context, req domain.StockRequest) (bool, error) {
	if err := validate(req); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	rec, err := l.stock.Get(req.Key)
	if errors.Is(err, domain.ErrStockNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get stock %s: %w", req.Key, err)
	}
	return rec.Quantity >= req.Quantity, nil
}

// Reduce атомарно списывает количество.
func (l *Ledger) Reduce(ctx context.Context, req domain.StockRequest) error {
	if err := validate(req); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, err := l.stock.DecrementIfAvailable(req.Key, req.Quantity)
	if err != nil {
		if errors.Is(err, domain.ErrStockNotFound) {
			// Неизвестный размер для списания: та же нехватка, что и нулевой остаток.
			return &domain.InsufficientStockError{
				ProductID: req.Key.ProductID,
				Size:      req.Key.Size,
				Requested: req.Quantity,
			}
		}
		return err
	}
	l.logger.WithFields(log.Fields{
		"product_id": req.Key.ProductID,
		"size":       req.Key.Size,
		"quantity":   req.Quantity,
		"left":       rec.Quantity,
	}).Debug("stock reduced")
	return nil
}

// Restore возвращает количество на склад.
func (l *Ledger) Restore(ctx context.Context, req domain.StockRequest) error {
	if err := validate(req); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := l.stock.Increment(req.Key, req.Quantity); err != nil {
		return fmt.Errorf("restore stock %s: %w", req.Key, err)
	}
	l.logger.WithFields(log.Fields{
		"product_id": req.Key.ProductID,
		"size":       req.Key.Size,
		"quantity":   req.Quantity,
	}).Debug("stock restored")
	return nil
}

// BatchCheck проверяет каждый ключ независимо. Количества одинаковых ключей суммируются.
func (l *Ledger) BatchCheck(ctx context.Context, reqs []domain.StockRequest) (map[domain.StockKey]bool, error) {
	result := make(map[domain.StockKey]bool, len(reqs))
	for _, req := range domain.MergeStockRequests(reqs) {
		ok, err := l.Check(ctx, req)
		if err != nil {
			return nil, err
		}
		result[req.Key] = ok
	}
	return result, nil
}

// BatchReduce списывает позиции по порядку и останавливается на первой ошибке.
// Уже списанные позиции не возвращаются: компенсацию выполняет вызывающий.
func (l *Ledger) BatchReduce(ctx context.Context, reqs []domain.StockRequest) error {
	for _, req := range reqs {
		if err := l.Reduce(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// SetStock записывает складскую запись целиком (администрирование и начальное наполнение).
func (l *Ledger) SetStock(record domain.StockRecord) (domain.StockRecord, error) {
	if record.Quantity < 0 {
		return domain.StockRecord{}, domain.ErrInvalidQuantity
	}
	return l.stock.Upsert(record)
}

// Stock возвращает складскую запись с ценами.
func (l *Ledger) Stock(key domain.StockKey) (domain.StockRecord, error) {
	return l.stock.Get(key)
}

func validate(req domain.StockRequest) error {
	if req.Quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	return nil
}

var _ domain.InventoryLedger = (*Ledger)(nil)
