package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// ProductRepository держит проекцию каталога в памяти.
type ProductRepository struct {
	mu       sync.RWMutex
	products map[int64]domain.Product
}

// NewProductRepository создаёт пустой каталог.
func NewProductRepository() *ProductRepository {
	return &ProductRepository{products: make(map[int64]domain.Product)}
}

// Get возвращает товар или ErrProductNotFound.
func (r *ProductRepository) Get(id int64) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	p.Images = append([]string(nil), p.Images...)
	return p, nil
}

// Upsert сохраняет карточку товара, не трогая счётчик продаж существующей записи.
func (r *ProductRepository) Upsert(product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.products[product.ID]; ok {
		product.QuantitySold = existing.QuantitySold
	}
	product.Images = append([]string(nil), product.Images...)
	r.products[product.ID] = product
	return nil
}

// IncrementSold увеличивает счётчик продаж.
func (r *ProductRepository) IncrementSold(id int64, qty int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	p.QuantitySold += int64(qty)
	r.products[id] = p
	return nil
}

var _ domain.ProductRepository = (*ProductRepository)(nil)
