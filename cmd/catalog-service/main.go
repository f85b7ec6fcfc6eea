package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/app"
	"github.com/vladislavdragonenkov/shop/internal/version"
)

const (
	envGRPCAddr            = "SHOP_CATALOG_GRPC_ADDR"
	envMetricsAddr         = "SHOP_CATALOG_METRICS_ADDR"
	envStorageDriver       = "SHOP_STORAGE_DRIVER"
	envPostgresDSN         = "SHOP_POSTGRES_DSN"
	envPostgresAutoMigrate = "SHOP_POSTGRES_AUTO_MIGRATE"
	envKafkaBrokers        = "SHOP_KAFKA_BROKERS"
	envSeedDemoData        = "SHOP_SEED_DEMO_DATA"
)

func readConfigFromEnv(lookup app.EnvLookup) (app.CatalogConfig, []string) {
	cfg := app.DefaultCatalogConfig()
	env := app.NewEnvReader(lookup)

	env.String(envGRPCAddr, &cfg.GRPCAddr)
	env.String(envMetricsAddr, &cfg.MetricsAddr)
	driver := string(cfg.StorageDriver)
	env.String(envStorageDriver, &driver)
	cfg.StorageDriver = app.StorageDriver(strings.ToLower(driver))
	env.String(envPostgresDSN, &cfg.PostgresDSN)
	env.Bool(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	env.String(envKafkaBrokers, &cfg.KafkaBrokers)
	env.Bool(envSeedDemoData, &cfg.SeedDemoData)

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
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
	}).Info("starting catalog service")

	if err := app.RunCatalog(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("catalog service failed")
	}
}
