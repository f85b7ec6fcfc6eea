package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
	"github.com/vladislavdragonenkov/shop/internal/storage/postgres"
)

// orderStore хранит заказы вместе с платежами (одна транзакция на callback).
type orderStore interface {
	domain.OrderRepository
	domain.PaymentRepository
}

type storage struct {
	orders      orderStore
	carts       domain.CartRepository
	stock       domain.StockRepository
	products    domain.ProductRepository
	outbox      domain.OutboxRepository
	timeline    domain.TimelineRepository
	idempotency domain.IdempotencyRepository

	// store задан только для PostgreSQL.
	store *postgres.Store
}

// initStorage открывает хранилище. Для PostgreSQL при autoMigrate применяются миграции.
func initStorage(ctx context.Context, driver StorageDriver, dsn string, autoMigrate bool, logger *log.Entry) (*storage, error) {
	switch driver {
	case "", StorageDriverMemory:
		logger.Info("using in-memory storage")
		return &storage{
			orders:      memory.NewOrderRepository(),
			carts:       memory.NewCartRepository(),
			stock:       memory.NewStockRepository(),
			products:    memory.NewProductRepository(),
			outbox:      memory.NewOutboxRepository(),
			timeline:    memory.NewTimelineRepository(),
			idempotency: memory.NewIdempotencyRepository(),
		}, nil
	case StorageDriverPostgres:
		if dsn == "" {
			return nil, errors.New("postgres storage requires DSN")
		}
		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if autoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		logger.Info("using postgres storage")
		return &storage{
			orders:      postgres.NewOrderRepository(store),
			carts:       postgres.NewCartRepository(store),
			stock:       postgres.NewStockRepository(store),
			products:    postgres.NewProductRepository(store),
			outbox:      postgres.NewOutboxRepository(store),
			timeline:    postgres.NewTimelineRepository(store),
			idempotency: postgres.NewIdempotencyRepository(store),
			store:       store,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}

func (s *storage) close(logger *log.Entry) {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		logger.WithError(err).Warn("failed to close postgres store")
	}
}
