// Package account содержит in-memory справочник пользователей и адресов для локальной разработки.
// В продакшене order-service ходит во внешний сервис аккаунтов по gRPC.
package account

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// Directory реализует domain.AccountService поверх памяти.
type Directory struct {
	mu        sync.RWMutex
	users     map[int64]domain.User
	addresses map[int64]int64 // address id -> user id
}

// NewDirectory создаёт пустой справочник.
func NewDirectory() *Directory {
	return &Directory{
		users:     make(map[int64]domain.User),
		addresses: make(map[int64]int64),
	}
}

// AddUser добавляет или заменяет пользователя.
func (d *Directory) AddUser(user domain.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.ID] = user
}

// AddAddress привязывает адрес к пользователю.
func (d *Directory) AddAddress(userID, addressID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addresses[addressID] = userID
}

// GetUser возвращает пользователя или ErrUserNotFound.
func (d *Directory) GetUser(ctx context.Context, userID int64) (domain.Result[domain.User], error) {
	if err := ctx.Err(); err != nil {
		return domain.Result[domain.User]{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.users[userID]
	if !ok {
		return domain.Result[domain.User]{}, domain.ErrUserNotFound
	}
	return domain.Ok(user), nil
}

// ValidateAddress сообщает, принадлежит ли адрес пользователю.
func (d *Directory) ValidateAddress(ctx context.Context, userID, addressID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	owner, ok := d.addresses[addressID]
	return ok && owner == userID, nil
}

var _ domain.AccountService = (*Directory)(nil)
