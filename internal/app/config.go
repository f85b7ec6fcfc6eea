package app

import (
	"time"

	"github.com/vladislavdragonenkov/shop/internal/resilience"
	"github.com/vladislavdragonenkov/shop/internal/service/payment"
	"github.com/vladislavdragonenkov/shop/internal/storage/redis"
)

// StorageDriver выбирает хранилище сервиса.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config описывает настройки order-service.
type Config struct {
	GRPCAddr string
	HTTPAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	// RedisAddr включает кэш корзин; пустое значение: без кэша.
	RedisAddr    string
	CartCacheTTL time.Duration

	// CatalogAddr и AccountAddr: адреса удалённых сервисов. Пустой адрес означает
	// встроенную реализацию поверх локального хранилища (разработка, тесты).
	CatalogAddr string
	AccountAddr string
	// SeedDemoData заполняет встроенные каталог и справочник демо-данными.
	SeedDemoData bool

	// KafkaBrokers: список брокеров через запятую; пустой отключает публикацию.
	KafkaBrokers string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	RemoteTimeout       time.Duration
	BreakerFailureRatio float64
	BreakerOpenTimeout  time.Duration

	Payment payment.GatewayConfig
}

// DefaultConfig возвращает настройки для локального запуска.
func DefaultConfig() Config {
	breaker := resilience.DefaultBreakerConfig()
	return Config{
		GRPCAddr:                    ":50051",
		HTTPAddr:                    ":8080",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		CartCacheTTL:                redis.DefaultCartTTL,
		SeedDemoData:                true,
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
		RemoteTimeout:               resilience.DefaultCallTimeout,
		BreakerFailureRatio:         breaker.FailureRatio,
		BreakerOpenTimeout:          breaker.OpenTimeout,
		Payment:                     payment.DefaultGatewayConfig(),
	}
}

// CatalogConfig: настройки catalog-service.
type CatalogConfig struct {
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	// KafkaBrokers включает чтение уведомлений о заказах; пустая строка отключает.
	KafkaBrokers string

	SeedDemoData bool
}

// DefaultCatalogConfig возвращает настройки catalog-service по умолчанию.
func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		GRPCAddr:            ":50052",
		MetricsAddr:         ":9091",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		SeedDemoData:        true,
	}
}
