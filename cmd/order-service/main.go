package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/app"
	"github.com/vladislavdragonenkov/shop/internal/version"
)

const (
	envGRPCAddr                    = "SHOP_GRPC_ADDR"
	envHTTPAddr                    = "SHOP_HTTP_ADDR"
	envStorageDriver               = "SHOP_STORAGE_DRIVER"
	envPostgresDSN                 = "SHOP_POSTGRES_DSN"
	envPostgresAutoMigrate         = "SHOP_POSTGRES_AUTO_MIGRATE"
	envRedisAddr                   = "SHOP_REDIS_ADDR"
	envCartCacheTTL                = "SHOP_CART_CACHE_TTL"
	envCatalogAddr                 = "SHOP_CATALOG_ADDR"
	envAccountAddr                 = "SHOP_ACCOUNT_ADDR"
	envSeedDemoData                = "SHOP_SEED_DEMO_DATA"
	envKafkaBrokers                = "SHOP_KAFKA_BROKERS"
	envOutboxPollInterval          = "SHOP_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "SHOP_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "SHOP_OUTBOX_MAX_ATTEMPTS"
	envIdempotencyCleanupInterval  = "SHOP_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "SHOP_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envRemoteTimeout               = "SHOP_REMOTE_TIMEOUT"
	envBreakerFailureRatio         = "SHOP_BREAKER_FAILURE_RATIO"
	envBreakerOpenTimeout          = "SHOP_BREAKER_OPEN_TIMEOUT"
	envVNPayTmnCode                = "SHOP_VNPAY_TMN_CODE"
	envVNPayHashSecret             = "SHOP_VNPAY_HASH_SECRET"
	envVNPayPayURL                 = "SHOP_VNPAY_PAY_URL"
	envVNPayReturnURL              = "SHOP_VNPAY_RETURN_URL"
)

func positive(v int) bool                    { return v > 0 }
func positiveDuration(v time.Duration) bool { return v > 0 }

// readConfigFromEnv формирует конфигурацию; некорректные значения заменяются
// значениями по умолчанию с предупреждением.
func readConfigFromEnv(lookup app.EnvLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	env := app.NewEnvReader(lookup)

	env.String(envGRPCAddr, &cfg.GRPCAddr)
	env.String(envHTTPAddr, &cfg.HTTPAddr)

	driver := string(cfg.StorageDriver)
	env.String(envStorageDriver, &driver)
	cfg.StorageDriver = app.StorageDriver(strings.ToLower(driver))
	env.String(envPostgresDSN, &cfg.PostgresDSN)
	env.Bool(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)

	env.String(envRedisAddr, &cfg.RedisAddr)
	env.Duration(envCartCacheTTL, &cfg.CartCacheTTL, positiveDuration, "must be > 0")
	env.String(envCatalogAddr, &cfg.CatalogAddr)
	env.String(envAccountAddr, &cfg.AccountAddr)
	env.Bool(envSeedDemoData, &cfg.SeedDemoData)
	env.String(envKafkaBrokers, &cfg.KafkaBrokers)

	env.Duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	env.Int(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	env.Int(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	env.Duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0")
	env.Int(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positive, "must be > 0")

	env.Duration(envRemoteTimeout, &cfg.RemoteTimeout, positiveDuration, "must be > 0")
	env.Float(envBreakerFailureRatio, &cfg.BreakerFailureRatio, func(v float64) bool { return v > 0 && v <= 1 }, "must be in (0, 1]")
	env.Duration(envBreakerOpenTimeout, &cfg.BreakerOpenTimeout, positiveDuration, "must be > 0")

	env.String(envVNPayTmnCode, &cfg.Payment.TmnCode)
	env.String(envVNPayHashSecret, &cfg.Payment.HashSecret)
	env.String(envVNPayPayURL, &cfg.Payment.PayURL)
	env.String(envVNPayReturnURL, &cfg.Payment.ReturnURL)

	return cfg, env.Warnings()
}

func main() {
	app.SetupLogger(nil)
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, w := range warnings {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(version.Fields()).WithFields(log.Fields{
		"grpc_addr":      cfg.GRPCAddr,
		"http_addr":      cfg.HTTPAddr,
		"storage_driver": cfg.StorageDriver,
		"catalog_addr":   cfg.CatalogAddr,
		"kafka_brokers":  cfg.KafkaBrokers,
	}).Info("starting order service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("order service failed")
	}
}
