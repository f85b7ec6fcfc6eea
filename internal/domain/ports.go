package domain

import (
	"context"
	"time"
)

// InventoryLedger: учёт остатков по паре (товар, размер).
// Владелец: каталог; остальные сервисы обращаются к нему удалённо.
type InventoryLedger interface {
	// Check сообщает, хватает ли остатка. Неизвестный ключ: false.
	Check(ctx context.Context, req StockRequest) (bool, error)
	// Reduce атомарно списывает количество или возвращает *InsufficientStockError.
	Reduce(ctx context.Context, req StockRequest) error
	// Restore возвращает количество на склад (компенсация).
	Restore(ctx context.Context, req StockRequest) error
	// BatchCheck проверяет каждый ключ независимо.
	BatchCheck(ctx context.Context, reqs []StockRequest) (map[StockKey]bool, error)
	// BatchReduce списывает по порядку и останавливается на первой нехватке без отката предыдущих.
	BatchReduce(ctx context.Context, reqs []StockRequest) error
}

// CatalogService описывает удалённый каталог товаров.
type CatalogService interface {
	// GetProduct возвращает товар; при недоступности каталога: деградированную заглушку.
	GetProduct(ctx context.Context, productID int64) (Result[Product], error)
	// GetStock возвращает складскую запись размера вместе с ценами.
	GetStock(ctx context.Context, key StockKey) (StockRecord, error)
	// IncrementSold увеличивает счётчик продаж товара.
	IncrementSold(ctx context.Context, productID int64, qty int32) error
}

// AccountService: удалённый сервис пользователей и адресов.
type AccountService interface {
	// GetUser возвращает пользователя; при недоступности: неактивную заглушку "Unknown User".
	GetUser(ctx context.Context, userID int64) (Result[User], error)
	// ValidateAddress проверяет, что адрес принадлежит пользователю.
	ValidateAddress(ctx context.Context, userID, addressID int64) (bool, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, statusCode int) error
	MarkFailed(key string, responseBody []byte, statusCode int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
