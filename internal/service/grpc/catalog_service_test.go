package grpcsvc_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/rpc"
	"github.com/vladislavdragonenkov/shop/internal/service/account"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
	grpcsvc "github.com/vladislavdragonenkov/shop/internal/service/grpc"
	"github.com/vladislavdragonenkov/shop/internal/service/inventory"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

type catalogClients struct {
	catalog   *rpc.CatalogClient
	inventory *rpc.InventoryClient
	account   *rpc.AccountClient
}

func newCatalogServer(t *testing.T) catalogClients {
	t.Helper()
	ledger := inventory.NewLedger(memory.NewStockRepository(), nil)
	cat := catalog.New(memory.NewProductRepository(), ledger, nil)
	directory := account.NewDirectory()
	directory.AddUser(domain.User{ID: 1, Name: "Buyer", Active: true})
	directory.AddAddress(1, 100)

	svc := grpcsvc.NewCatalogService(cat, ledger, loggerForTests())
	conn := serve(t, func(server *grpc.Server) {
		rpc.RegisterCatalogServer(server, svc)
		rpc.RegisterInventoryServer(server, svc)
		rpc.RegisterAccountServer(server, grpcsvc.NewAccountService(directory))
	})
	return catalogClients{
		catalog:   rpc.NewCatalogClient(conn),
		inventory: rpc.NewInventoryClient(conn),
		account:   rpc.NewAccountClient(conn),
	}
}

func seedProduct(t *testing.T, c catalogClients, qty int32) {
	t.Helper()
	ctx := context.Background()
	_, err := c.catalog.UpsertProduct(ctx, &domain.Product{ID: 10, Title: "Hoodie", Active: true})
	require.NoError(t, err)
	rec, err := c.catalog.SetStock(ctx, &domain.StockRecord{ProductID: 10, Size: "M", Quantity: qty, PriceMinor: 100000, DiscountPercent: 10})
	require.NoError(t, err)
	require.Equal(t, int64(90000), rec.DiscountedPriceMinor)
}

func TestCatalogService_ProductLifecycle(t *testing.T) {
	c := newCatalogServer(t)
	ctx := context.Background()

	_, err := c.catalog.GetProduct(ctx, &rpc.ProductRequest{ProductID: 10})
	require.Equal(t, codes.NotFound, status.Code(err))

	seedProduct(t, c, 3)
	_, err = c.catalog.IncrementSold(ctx, &rpc.IncrementSoldRequest{ProductID: 10, Quantity: 2})
	require.NoError(t, err)

	product, err := c.catalog.GetProduct(ctx, &rpc.ProductRequest{ProductID: 10})
	require.NoError(t, err)
	require.Equal(t, "Hoodie", product.Title)
	require.Equal(t, int64(2), product.QuantitySold)

	_, err = c.catalog.IncrementSold(ctx, &rpc.IncrementSoldRequest{ProductID: 10})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.catalog.SetStock(ctx, &domain.StockRecord{ProductID: 10, Size: "M", Quantity: -1})
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestInventoryService_ReduceAndRestore(t *testing.T) {
	c := newCatalogServer(t)
	ctx := context.Background()
	seedProduct(t, c, 3)
	key := domain.StockKey{ProductID: 10, Size: "M"}

	check, err := c.inventory.Check(ctx, &domain.StockRequest{Key: key, Quantity: 3})
	require.NoError(t, err)
	require.True(t, check.Available)

	_, err = c.inventory.Reduce(ctx, &domain.StockRequest{Key: key, Quantity: 2})
	require.NoError(t, err)

	_, err = c.inventory.Reduce(ctx, &domain.StockRequest{Key: key, Quantity: 2})
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
	var stockErr *domain.InsufficientStockError
	require.True(t, errors.As(rpc.FromStatus(err), &stockErr))
	require.Equal(t, int32(1), stockErr.Available)

	_, err = c.inventory.Restore(ctx, &domain.StockRequest{Key: key, Quantity: 2})
	require.NoError(t, err)

	rec, err := c.inventory.GetStock(ctx, &key)
	require.NoError(t, err)
	require.Equal(t, int32(3), rec.Quantity)

	_, err = c.inventory.GetStock(ctx, &domain.StockKey{ProductID: 10, Size: "XXL"})
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestInventoryService_Batch(t *testing.T) {
	c := newCatalogServer(t)
	ctx := context.Background()
	seedProduct(t, c, 3)
	m := domain.StockKey{ProductID: 10, Size: "M"}
	missing := domain.StockKey{ProductID: 99, Size: "S"}

	resp, err := c.inventory.BatchCheck(ctx, &rpc.BatchStockRequest{Items: []domain.StockRequest{
		{Key: m, Quantity: 2},
		{Key: missing, Quantity: 1},
		{Key: m, Quantity: 2},
	}})
	require.NoError(t, err)
	require.Equal(t, []rpc.StockAvailability{
		{Key: m, Available: false},
		{Key: missing, Available: false},
	}, resp.Results)

	_, err = c.inventory.BatchReduce(ctx, &rpc.BatchStockRequest{Items: []domain.StockRequest{{Key: m, Quantity: 3}}})
	require.NoError(t, err)
	rec, err := c.inventory.GetStock(ctx, &m)
	require.NoError(t, err)
	require.Zero(t, rec.Quantity)
}

func TestAccountService(t *testing.T) {
	c := newCatalogServer(t)
	ctx := context.Background()

	user, err := c.account.GetUser(ctx, &rpc.UserRequest{UserID: 1})
	require.NoError(t, err)
	require.Equal(t, "Buyer", user.Name)

	_, err = c.account.GetUser(ctx, &rpc.UserRequest{UserID: 2})
	require.Equal(t, codes.NotFound, status.Code(err))

	valid, err := c.account.ValidateAddress(ctx, &rpc.AddressRequest{UserID: 1, AddressID: 100})
	require.NoError(t, err)
	require.True(t, valid.Valid)

	valid, err = c.account.ValidateAddress(ctx, &rpc.AddressRequest{UserID: 1, AddressID: 200})
	require.NoError(t, err)
	require.False(t, valid.Valid)
}
