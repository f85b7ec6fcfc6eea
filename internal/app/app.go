// Package app собирает и запускает сервисы магазина.
package app

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/shop/internal/health"
	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/remote"
	"github.com/vladislavdragonenkov/shop/internal/rpc"
	"github.com/vladislavdragonenkov/shop/internal/service/account"
	"github.com/vladislavdragonenkov/shop/internal/service/cart"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
	"github.com/vladislavdragonenkov/shop/internal/service/checkout"
	"github.com/vladislavdragonenkov/shop/internal/service/events"
	grpcsvc "github.com/vladislavdragonenkov/shop/internal/service/grpc"
	"github.com/vladislavdragonenkov/shop/internal/service/idempotency"
	"github.com/vladislavdragonenkov/shop/internal/service/inventory"
	"github.com/vladislavdragonenkov/shop/internal/service/orderstatus"
	"github.com/vladislavdragonenkov/shop/internal/service/outbox"
	"github.com/vladislavdragonenkov/shop/internal/service/payment"
	redisstore "github.com/vladislavdragonenkov/shop/internal/storage/redis"
	"github.com/vladislavdragonenkov/shop/internal/version"
)

// orderRuntime: собранный order-service без сетевых листенеров.
type orderRuntime struct {
	storage  *storage
	producer *kafka.Producer
	conns    []*grpc.ClientConn
	redis    *goredis.Client

	orders  *grpcsvc.OrderService
	ipn     *payment.Handler
	checks  *healthcheck.Handler
	worker  *outbox.Worker
	sweeper *idempotency.Sweeper
}

// Run запускает order-service и блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithFields(version.Fields()).WithField("component", "order-service")

	rt, err := buildOrderRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.close(logger)

	grpcLis, httpLis, err := listen(cfg.GRPCAddr, cfg.HTTPAddr)
	if err != nil {
		return err
	}

	srv := newGRPCServer(logger)
	rpc.RegisterOrderServer(srv.server, rt.orders)
	router := newRouter(rt.checks, rt.ipn.Routes)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.serve(gctx, grpcLis, logger) })
	g.Go(func() error { return serveHTTP(gctx, router, httpLis, logger) })
	g.Go(func() error {
		rt.worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		rt.sweeper.Run(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("order service stopped")
	return ctx.Err()
}

func buildOrderRuntime(ctx context.Context, cfg Config, logger *log.Entry) (rt *orderRuntime, err error) {
	st, err := initStorage(ctx, cfg.StorageDriver, cfg.PostgresDSN, cfg.PostgresAutoMigrate, logger)
	if err != nil {
		return nil, err
	}
	rt = &orderRuntime{storage: st}
	defer func() {
		if err != nil {
			rt.close(logger)
		}
	}()

	checks := healthcheck.NewHandler(version.Version())
	if st.store != nil {
		checks.RegisterChecker("postgres", healthcheck.NewPingChecker("postgres", st.store.Ping))
	}

	checkoutMetrics := metrics.NewCheckoutMetrics()
	resilienceMetrics := metrics.NewResilienceMetrics()

	// Kafka необязательна: без неё события копятся в outbox.
	rt.producer, _ = initKafkaProducer(cfg.KafkaBrokers, logger)

	remoteCfg := remote.DefaultConfig()
	remoteCfg.Timeout = cfg.RemoteTimeout
	if cfg.BreakerFailureRatio > 0 {
		remoteCfg.Breaker.FailureRatio = cfg.BreakerFailureRatio
	}
	if cfg.BreakerOpenTimeout > 0 {
		remoteCfg.Breaker.OpenTimeout = cfg.BreakerOpenTimeout
	}
	remoteCfg.Metrics = resilienceMetrics

	var (
		ledger   domain.InventoryLedger
		products domain.CatalogService
		accounts domain.AccountService
		breakers []healthcheck.BreakerState
	)

	if cfg.CatalogAddr == "" {
		localLedger := inventory.NewLedger(st.stock, logger.WithField("component", "inventory"))
		localCatalog := catalog.New(st.products, localLedger, logger.WithField("component", "catalog"))
		if cfg.SeedDemoData {
			if err := seedCatalog(ctx, localCatalog, logger); err != nil {
				return nil, err
			}
		}
		ledger, products = localLedger, localCatalog
		logger.Warn("catalog address is not set, using in-process catalog")
	} else {
		conn, err := remote.Dial(cfg.CatalogAddr)
		if err != nil {
			return nil, err
		}
		rt.conns = append(rt.conns, conn)
		remoteCfg.Logger = logger.WithField("component", "catalog-client")
		client := remote.NewCatalogClient(conn, remoteCfg)
		for _, g := range client.Guards() {
			breakers = append(breakers, g)
		}
		ledger, products = client, client
	}

	if cfg.AccountAddr == "" {
		directory := account.NewDirectory()
		if cfg.SeedDemoData {
			seedAccounts(directory)
		}
		accounts = directory
		logger.Warn("account address is not set, using in-memory account directory")
	} else {
		conn, err := remote.Dial(cfg.AccountAddr)
		if err != nil {
			return nil, err
		}
		rt.conns = append(rt.conns, conn)
		remoteCfg.Logger = logger.WithField("component", "account-client")
		client := remote.NewAccountClient(conn, remoteCfg)
		for _, g := range client.Guards() {
			breakers = append(breakers, g)
		}
		accounts = client
	}
	if len(breakers) > 0 {
		checks.RegisterChecker("circuit_breakers", healthcheck.NewBreakerChecker(breakers...))
	}

	cartOpts := []cart.Option{cart.WithLogger(logger.WithField("component", "cart"))}
	if cfg.RedisAddr != "" {
		rt.redis = goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		cache := redisstore.NewCartCache(rt.redis, cfg.CartCacheTTL)
		cartOpts = append(cartOpts, cart.WithCache(cache))
		checks.RegisterChecker("redis", healthcheck.NewPingChecker("redis", cache.Ping))
	}
	carts := cart.NewService(st.carts, products, cartOpts...)

	emitter := events.NewEmitter(st.outbox, st.timeline,
		events.WithProducer(rt.producer),
		events.WithMetrics(checkoutMetrics),
		events.WithLogger(logger.WithField("component", "events")),
	)

	orchestrator := checkout.NewOrchestrator(accounts, carts, ledger, st.orders,
		checkout.WithEvents(emitter),
		checkout.WithMetrics(checkoutMetrics),
		checkout.WithLogger(logger.WithField("component", "checkout")),
	)
	statuses := orderstatus.NewService(st.orders, st.orders, ledger, products,
		orderstatus.WithEvents(emitter),
		orderstatus.WithMetrics(checkoutMetrics),
		orderstatus.WithLogger(logger.WithField("component", "order-status")),
	)

	if cfg.Payment.HashSecret == "" {
		logger.Error("payment hash secret is empty, all gateway callbacks will be rejected")
	}
	gateway := payment.NewGateway(cfg.Payment, st.orders, st.orders, logger.WithField("component", "payment-gateway"))
	processor := payment.NewProcessor(gateway.Signer(), st.orders, st.orders,
		payment.WithEvents(emitter),
		payment.WithMetrics(checkoutMetrics),
		payment.WithLogger(logger.WithField("component", "payment-callback")),
	)
	rt.ipn = payment.NewHandler(processor, logger.WithField("component", "payment-ipn"))

	rt.orders = grpcsvc.NewOrderService(grpcsvc.OrderDeps{
		Orders:      st.orders,
		Payments:    st.orders,
		Timeline:    st.timeline,
		Idempotency: st.idempotency,
		Checkout:    orchestrator,
		Status:      statuses,
		Gateway:     gateway,
		Carts:       carts,
		Logger:      logger.WithField("component", "order-grpc"),
	})

	workerOpts := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithMetrics(metrics.NewOutboxMetrics()),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
	}
	var publisher domain.OutboxPublisher
	if rt.producer != nil {
		publisher = kafka.NewOutboxPublisher(rt.producer, kafka.TopicOrderEvents)
		workerOpts = append(workerOpts, outbox.WithDeadLetters(rt.producer))
	}
	rt.worker = outbox.NewWorker(st.outbox, publisher, workerOpts...)

	rt.sweeper = idempotency.NewSweeper(st.idempotency,
		idempotency.WithLogger(logger.WithField("component", "idempotency-sweeper")),
		idempotency.WithMetrics(metrics.NewSweepMetrics()),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	rt.checks = checks
	return rt, nil
}

func (rt *orderRuntime) close(logger *log.Entry) {
	for _, conn := range rt.conns {
		if err := conn.Close(); err != nil {
			logger.WithError(err).Warn("failed to close grpc client connection")
		}
	}
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			logger.WithError(err).Warn("failed to close redis client")
		}
	}
	closeKafka(rt.producer, logger)
	rt.storage.close(logger)
}
