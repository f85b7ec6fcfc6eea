package app

import (
	"context"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	healthcheck "github.com/vladislavdragonenkov/shop/internal/health"
	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/rpc"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
	grpcsvc "github.com/vladislavdragonenkov/shop/internal/service/grpc"
	"github.com/vladislavdragonenkov/shop/internal/service/inventory"
	"github.com/vladislavdragonenkov/shop/internal/version"
)

// catalogRuntime собирает зависимости catalog-service.
type catalogRuntime struct {
	storage *storage
	service *grpcsvc.CatalogService
	checks  *healthcheck.Handler
	events  *kafka.Consumer
	dlq     *kafka.Producer
}

// RunCatalog запускает catalog-service (склад и карточки товаров) до отмены ctx.
func RunCatalog(ctx context.Context, cfg CatalogConfig) error {
	logger := log.WithFields(version.Fields()).WithField("component", "catalog-service")

	rt, err := buildCatalogRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.storage.close(logger)

	grpcLis, httpLis, err := listen(cfg.GRPCAddr, cfg.MetricsAddr)
	if err != nil {
		stopOrderEvents(rt.events, rt.dlq, logger)
		return err
	}

	srv := newGRPCServer(logger)
	rpc.RegisterCatalogServer(srv.server, rt.service)
	rpc.RegisterInventoryServer(srv.server, rt.service)

	g, gctx := errgroup.WithContext(ctx)
	if rt.events != nil {
		if err := rt.events.Start(gctx); err != nil {
			logger.WithError(err).Warn("failed to start order event consumer")
		}
	}
	g.Go(func() error { return srv.serve(gctx, grpcLis, logger) })
	g.Go(func() error { return serveHTTP(gctx, newRouter(rt.checks), httpLis, logger) })
	err = g.Wait()
	stopOrderEvents(rt.events, rt.dlq, logger)
	if err != nil {
		return err
	}
	logger.Info("catalog service stopped")
	return ctx.Err()
}

func buildCatalogRuntime(ctx context.Context, cfg CatalogConfig, logger *log.Entry) (*catalogRuntime, error) {
	st, err := initStorage(ctx, cfg.StorageDriver, cfg.PostgresDSN, cfg.PostgresAutoMigrate, logger)
	if err != nil {
		return nil, err
	}

	ledger := inventory.NewLedger(st.stock, logger.WithField("component", "inventory"))
	c := catalog.New(st.products, ledger, logger.WithField("component", "catalog"))
	if cfg.SeedDemoData {
		if err := seedCatalog(ctx, c, logger); err != nil {
			st.close(logger)
			return nil, err
		}
	}

	checks := healthcheck.NewHandler(version.Version())
	if st.store != nil {
		checks.RegisterChecker("postgres", healthcheck.NewPingChecker("postgres", st.store.Ping))
	}
	recorder := catalog.NewOrderEventRecorder(metrics.NewOrderEventMetrics(), logger.WithField("component", "catalog-order-events"))
	events, dlq := initOrderEventConsumer(cfg.KafkaBrokers, recorder.Handle, logger)
	return &catalogRuntime{
		storage: st,
		service: grpcsvc.NewCatalogService(c, ledger, logger.WithField("component", "catalog-grpc")),
		checks:  checks,
		events:  events,
		dlq:     dlq,
	}, nil
}
