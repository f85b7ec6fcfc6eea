package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const stockColumns = `product_id, size, quantity, price_minor, discount_percent, discounted_price_minor, updated_at`

// StockRepository хранит складские записи в PostgreSQL.
// Списание выполняется одним условным UPDATE, поэтому конкурентные списания не уводят остаток в минус.
type StockRepository struct {
	db *sql.DB
}

// NewStockRepository создаёт PostgreSQL-реализацию StockRepository.
func NewStockRepository(store *Store) *StockRepository {
	return &StockRepository{db: store.DB()}
}

func (r *StockRepository) Get(key domain.StockKey) (domain.StockRecord, error) {
	ctx, cancel := opContext()
	defer cancel()

	rec, err := scanStock(r.db.QueryRowContext(ctx, `
		SELECT `+stockColumns+`
		FROM stock_records
		WHERE product_id = $1 AND size = $2
	`, key.ProductID, key.Size))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StockRecord{}, domain.ErrStockNotFound
		}
		return domain.StockRecord{}, fmt.Errorf("select stock record: %w", err)
	}
	return rec, nil
}

func (r *StockRepository) Upsert(record domain.StockRecord) (domain.StockRecord, error) {
	if record.Quantity < 0 {
		return domain.StockRecord{}, domain.ErrInvalidQuantity
	}
	ctx, cancel := opContext()
	defer cancel()

	record.Reprice()
	record.UpdatedAt = time.Now().UTC()

	rec, err := scanStock(r.db.QueryRowContext(ctx, `
		INSERT INTO stock_records (`+stockColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (product_id, size) DO UPDATE
		SET quantity = EXCLUDED.quantity,
		    price_minor = EXCLUDED.price_minor,
		    discount_percent = EXCLUDED.discount_percent,
		    discounted_price_minor = EXCLUDED.discounted_price_minor,
		    updated_at = EXCLUDED.updated_at
		RETURNING `+stockColumns,
		record.ProductID, record.Size, record.Quantity, record.PriceMinor,
		record.DiscountPercent, record.DiscountedPriceMinor, record.UpdatedAt,
	))
	if err != nil {
		return domain.StockRecord{}, fmt.Errorf("upsert stock record: %w", err)
	}
	return rec, nil
}

func (r *StockRepository) DecrementIfAvailable(key domain.StockKey, qty int32) (domain.StockRecord, error) {
	ctx, cancel := opContext()
	defer cancel()

	rec, err := scanStock(r.db.QueryRowContext(ctx, `
		UPDATE stock_records
		SET quantity = quantity - $3,
		    updated_at = $4
		WHERE product_id = $1 AND size = $2 AND quantity >= $3
		RETURNING `+stockColumns,
		key.ProductID, key.Size, qty, time.Now().UTC(),
	))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.StockRecord{}, fmt.Errorf("decrement stock: %w", err)
	}

	// Ни одна строка не обновилась: записи нет или остатка не хватает.
	current, getErr := r.Get(key)
	if getErr != nil {
		return domain.StockRecord{}, getErr
	}
	return current, &domain.InsufficientStockError{
		ProductID: key.ProductID,
		Size:      key.Size,
		Requested: qty,
		Available: current.Quantity,
	}
}

func (r *StockRepository) Increment(key domain.StockKey, qty int32) (domain.StockRecord, error) {
	ctx, cancel := opContext()
	defer cancel()

	rec, err := scanStock(r.db.QueryRowContext(ctx, `
		UPDATE stock_records
		SET quantity = quantity + $3,
		    updated_at = $4
		WHERE product_id = $1 AND size = $2
		RETURNING `+stockColumns,
		key.ProductID, key.Size, qty, time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StockRecord{}, domain.ErrStockNotFound
		}
		return domain.StockRecord{}, fmt.Errorf("increment stock: %w", err)
	}
	return rec, nil
}

func scanStock(row rowScanner) (domain.StockRecord, error) {
	var rec domain.StockRecord
	err := row.Scan(
		&rec.ProductID, &rec.Size, &rec.Quantity, &rec.PriceMinor,
		&rec.DiscountPercent, &rec.DiscountedPriceMinor, &rec.UpdatedAt,
	)
	return rec, err
}

var _ domain.StockRepository = (*StockRepository)(nil)
