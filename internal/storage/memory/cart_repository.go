package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// CartRepository хранит корзины в памяти.
type CartRepository struct {
	mu       sync.RWMutex
	carts    map[int64]domain.Cart // по user id
	owners   map[int64]int64       // cart item id -> user id
	nextCart int64
	nextItem int64
}

// NewCartRepository создаёт in-memory реализацию CartRepository.
func NewCartRepository() *CartRepository {
	return &CartRepository{
		carts:  make(map[int64]domain.Cart),
		owners: make(map[int64]int64),
	}
}

// Get возвращает корзину пользователя или ErrCartNotFound.
func (r *CartRepository) Get(userID int64) (domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.carts[userID]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return cart.Clone(), nil
}

// Save сохраняет корзину целиком, назначая идентификаторы новым записям.
func (r *CartRepository) Save(cart domain.Cart) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cart = cart.Clone()
	if existing, ok := r.carts[cart.UserID]; ok {
		cart.ID = existing.ID
		for _, item := range existing.Items {
			delete(r.owners, item.ID)
		}
	} else if cart.ID == 0 {
		r.nextCart++
		cart.ID = r.nextCart
	}

	for i := range cart.Items {
		if cart.Items[i].ID == 0 {
			r.nextItem++
			cart.Items[i].ID = r.nextItem
		}
		cart.Items[i].CartID = cart.ID
		r.owners[cart.Items[i].ID] = cart.UserID
	}
	r.carts[cart.UserID] = cart
	return cart.Clone(), nil
}

// ItemOwners возвращает владельцев найденных позиций.
func (r *CartRepository) ItemOwners(itemIDs []int64) (map[int64]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owners := make(map[int64]int64, len(itemIDs))
	for _, id := range itemIDs {
		if userID, ok := r.owners[id]; ok {
			owners[id] = userID
		}
	}
	return owners, nil
}

var _ domain.CartRepository = (*CartRepository)(nil)
