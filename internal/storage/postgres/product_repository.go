package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// ProductRepository: проекция каталога в PostgreSQL.
type ProductRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) *ProductRepository {
	return &ProductRepository{db: store.DB()}
}

func (r *ProductRepository) Get(id int64) (domain.Product, error) {
	ctx, cancel := opContext()
	defer cancel()

	var (
		product domain.Product
		images  []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, active, images, quantity_sold
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.Title, &product.Active, &images, &product.QuantitySold)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &product.Images); err != nil {
			return domain.Product{}, fmt.Errorf("decode product images: %w", err)
		}
	}
	return product, nil
}

// Upsert сохраняет карточку товара; счётчик продаж существующей записи не меняется.
func (r *ProductRepository) Upsert(product domain.Product) error {
	images := product.Images
	if images == nil {
		images = []string{}
	}
	encoded, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("encode product images: %w", err)
	}

	ctx, cancel := opContext()
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, title, active, images, quantity_sold, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title,
		    active = EXCLUDED.active,
		    images = EXCLUDED.images,
		    updated_at = EXCLUDED.updated_at
	`, product.ID, product.Title, product.Active, string(encoded), product.QuantitySold, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

func (r *ProductRepository) IncrementSold(id int64, qty int32) error {
	ctx, cancel := opContext()
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET quantity_sold = quantity_sold + $2,
		    updated_at = $3
		WHERE id = $1
	`, id, qty, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("increment quantity sold: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

var _ domain.ProductRepository = (*ProductRepository)(nil)
