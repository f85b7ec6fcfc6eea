package remote

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/resilience"
	"github.com/vladislavdragonenkov/shop/internal/rpc"
)

// fakeCatalog отвечает как catalog-service; down переводит его в режим отказа транспорта.
type fakeCatalog struct {
	down    atomic.Bool
	calls   atomic.Int32
	stock   map[domain.StockKey]int32
	product domain.Product
}

func (f *fakeCatalog) fail() error {
	f.calls.Add(1)
	if f.down.Load() {
		return status.Error(codes.Unavailable, "catalog is down")
	}
	return nil
}

func (f *fakeCatalog) Check(_ context.Context, req *domain.StockRequest) (*rpc.CheckResponse, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return &rpc.CheckResponse{Available: f.stock[req.Key] >= req.Quantity}, nil
}

func (f *fakeCatalog) Reduce(_ context.Context, req *domain.StockRequest) (*rpc.Empty, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	if f.stock[req.Key] < req.Quantity {
		return nil, rpc.ToStatus(&domain.InsufficientStockError{
			ProductID: req.Key.ProductID, Size: req.Key.Size,
			Requested: req.Quantity, Available: f.stock[req.Key],
		}, "reduce failed")
	}
	f.stock[req.Key] -= req.Quantity
	return &rpc.Empty{}, nil
}

func (f *fakeCatalog) Restore(_ context.Context, req *domain.StockRequest) (*rpc.Empty, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	f.stock[req.Key] += req.Quantity
	return &rpc.Empty{}, nil
}

func (f *fakeCatalog) BatchCheck(_ context.Context, req *rpc.BatchStockRequest) (*rpc.BatchCheckResponse, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	resp := &rpc.BatchCheckResponse{}
	for _, item := range req.Items {
		resp.Results = append(resp.Results, rpc.StockAvailability{Key: item.Key, Available: f.stock[item.Key] >= item.Quantity})
	}
	return resp, nil
}

func (f *fakeCatalog) BatchReduce(ctx context.Context, req *rpc.BatchStockRequest) (*rpc.Empty, error) {
	for _, item := range req.Items {
		if _, err := f.Reduce(ctx, &item); err != nil {
			return nil, err
		}
	}
	return &rpc.Empty{}, nil
}

func (f *fakeCatalog) GetStock(_ context.Context, key *domain.StockKey) (*domain.StockRecord, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	qty, ok := f.stock[*key]
	if !ok {
		return nil, rpc.ToStatus(domain.ErrStockNotFound, "get stock failed")
	}
	return &domain.StockRecord{ProductID: key.ProductID, Size: key.Size, Quantity: qty, PriceMinor: 1000}, nil
}

func (f *fakeCatalog) GetProduct(_ context.Context, req *rpc.ProductRequest) (*domain.Product, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	if req.ProductID != f.product.ID {
		return nil, rpc.ToStatus(domain.ErrProductNotFound, "get product failed")
	}
	p := f.product
	return &p, nil
}

func (f *fakeCatalog) IncrementSold(context.Context, *rpc.IncrementSoldRequest) (*rpc.Empty, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return &rpc.Empty{}, nil
}

func (f *fakeCatalog) UpsertProduct(context.Context, *domain.Product) (*rpc.Empty, error) {
	return &rpc.Empty{}, nil
}

func (f *fakeCatalog) SetStock(_ context.Context, rec *domain.StockRecord) (*domain.StockRecord, error) {
	return rec, nil
}

type fakeAccounts struct {
	down atomic.Bool
}

func (f *fakeAccounts) GetUser(_ context.Context, req *rpc.UserRequest) (*domain.User, error) {
	if f.down.Load() {
		return nil, status.Error(codes.Unavailable, "accounts are down")
	}
	if req.UserID != 1 {
		return nil, rpc.ToStatus(domain.ErrUserNotFound, "get user failed")
	}
	return &domain.User{ID: 1, Name: "Alice", Active: true}, nil
}

func (f *fakeAccounts) ValidateAddress(_ context.Context, req *rpc.AddressRequest) (*rpc.ValidateAddressResponse, error) {
	if f.down.Load() {
		return nil, status.Error(codes.Unavailable, "accounts are down")
	}
	return &rpc.ValidateAddressResponse{Valid: req.UserID == 1 && req.AddressID == 10}, nil
}

func startServer(t *testing.T, register func(*grpc.Server)) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	register(server)
	go func() {
		_ = server.Serve(lis)
	}()
	t.Cleanup(server.Stop)

	conn, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Timeout = time.Second
	cfg.Metrics = metrics.NewResilienceMetricsWithRegisterer(prometheus.NewRegistry())
	cfg.Sleep = func(context.Context, time.Duration) error { return nil }
	cfg.Breaker = resilience.BreakerConfig{
		Window:           time.Minute,
		MinRequests:      3,
		FailureRatio:     0.5,
		OpenTimeout:      time.Minute,
		HalfOpenRequests: 1,
	}
	return cfg
}

func newCatalogFixture(t *testing.T) (*fakeCatalog, *CatalogClient) {
	t.Helper()
	fake := &fakeCatalog{
		stock: map[domain.StockKey]int32{
			{ProductID: 1, Size: "M"}: 5,
		},
		product: domain.Product{ID: 1, Title: "Hoodie", Active: true},
	}
	conn := startServer(t, func(s *grpc.Server) {
		rpc.RegisterInventoryServer(s, fake)
		rpc.RegisterCatalogServer(s, fake)
	})
	return fake, NewCatalogClient(conn, testConfig(t))
}

func TestCatalogClientHappyPath(t *testing.T) {
	fake, client := newCatalogFixture(t)
	ctx := context.Background()
	key := domain.StockKey{ProductID: 1, Size: "M"}

	ok, err := client.Check(ctx, domain.StockRequest{Key: key, Quantity: 5})
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, client.Reduce(ctx, domain.StockRequest{Key: key, Quantity: 2}))
	require.EqualValues(t, 3, fake.stock[key])

	product, err := client.GetProduct(ctx, 1)
	require.NoError(t, err)
	require.False(t, product.Degraded)
	require.Equal(t, "Hoodie", product.Value.Title)

	record, err := client.GetStock(ctx, key)
	require.NoError(t, err)
	require.EqualValues(t, 3, record.Quantity)
}

func TestCatalogClientPassesBusinessErrorsThrough(t *testing.T) {
	fake, client := newCatalogFixture(t)
	ctx := context.Background()
	key := domain.StockKey{ProductID: 1, Size: "M"}

	err := client.Reduce(ctx, domain.StockRequest{Key: key, Quantity: 9})
	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.EqualValues(t, 5, stockErr.Available)
	require.EqualValues(t, 1, fake.calls.Load(), "business errors must not be retried")

	_, err = client.GetStock(ctx, domain.StockKey{ProductID: 1, Size: "XXL"})
	require.ErrorIs(t, err, domain.ErrStockNotFound)

	_, err = client.GetProduct(ctx, 42)
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestCatalogClientFallbacksWhenDown(t *testing.T) {
	fake, client := newCatalogFixture(t)
	fake.down.Store(true)
	ctx := context.Background()
	key := domain.StockKey{ProductID: 1, Size: "M"}

	ok, err := client.Check(ctx, domain.StockRequest{Key: key, Quantity: 1})
	require.NoError(t, err)
	require.False(t, ok, "unknown stock must never be reported available")

	batch, err := client.BatchCheck(ctx, []domain.StockRequest{{Key: key, Quantity: 1}})
	require.NoError(t, err)
	require.Equal(t, map[domain.StockKey]bool{key: false}, batch)

	product, err := client.GetProduct(ctx, 1)
	require.NoError(t, err)
	require.True(t, product.Degraded)
	require.False(t, product.Value.Active)

	err = client.BatchReduce(ctx, []domain.StockRequest{{Key: key, Quantity: 1}})
	require.ErrorIs(t, err, domain.ErrServiceUnavailable)

	_, err = client.GetStock(ctx, key)
	require.ErrorIs(t, err, domain.ErrServiceUnavailable)

	require.ErrorIs(t, client.IncrementSold(ctx, 1, 1), domain.ErrServiceUnavailable)
	require.ErrorIs(t, client.Restore(ctx, domain.StockRequest{Key: key, Quantity: 1}), domain.ErrServiceUnavailable)
}

func TestCatalogClientRetriesReadsButNotWrites(t *testing.T) {
	fake, client := newCatalogFixture(t)
	fake.down.Store(true)
	ctx := context.Background()
	key := domain.StockKey{ProductID: 1, Size: "M"}

	_ = client.Reduce(ctx, domain.StockRequest{Key: key, Quantity: 1})
	require.EqualValues(t, 1, fake.calls.Load())

	fake.calls.Store(0)
	_, _ = client.Check(ctx, domain.StockRequest{Key: key, Quantity: 1})
	require.EqualValues(t, resilience.DefaultRetryConfig().MaxAttempts, fake.calls.Load())
}

func TestCatalogClientBreakerOpensAndShortCircuits(t *testing.T) {
	fake, client := newCatalogFixture(t)
	fake.down.Store(true)
	ctx := context.Background()
	key := domain.StockKey{ProductID: 1, Size: "M"}

	for i := 0; i < 3; i++ {
		_ = client.Reduce(ctx, domain.StockRequest{Key: key, Quantity: 1})
	}
	require.True(t, client.reduce.Open())

	before := fake.calls.Load()
	err := client.Reduce(ctx, domain.StockRequest{Key: key, Quantity: 1})
	require.ErrorIs(t, err, domain.ErrServiceUnavailable)
	require.Equal(t, before, fake.calls.Load(), "open breaker must not reach the network")
}

func TestAccountClient(t *testing.T) {
	fake := &fakeAccounts{}
	conn := startServer(t, func(s *grpc.Server) {
		rpc.RegisterAccountServer(s, fake)
	})
	client := NewAccountClient(conn, testConfig(t))
	ctx := context.Background()

	user, err := client.GetUser(ctx, 1)
	require.NoError(t, err)
	require.True(t, user.Value.CanOrder())

	_, err = client.GetUser(ctx, 2)
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	valid, err := client.ValidateAddress(ctx, 1, 10)
	require.NoError(t, err)
	require.True(t, valid)

	fake.down.Store(true)

	user, err = client.GetUser(ctx, 1)
	require.NoError(t, err)
	require.True(t, user.Degraded)
	require.Equal(t, "Unknown User", user.Value.Name)
	require.False(t, user.Value.CanOrder())

	_, err = client.ValidateAddress(ctx, 1, 10)
	require.ErrorIs(t, err, domain.ErrServiceUnavailable)
}
