package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/shop/internal/app"
	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/rpc"
	grpcsvc "github.com/vladislavdragonenkov/shop/internal/service/grpc"
)

type loadMode string

const (
	// modeCheckout: корзина и заказ с оплатой при получении.
	modeCheckout loadMode = "checkout"
	// modeCheckoutPay: заказ VNPAY и выдача платёжной ссылки.
	modeCheckoutPay loadMode = "checkout-pay"
	// modeCheckoutCancel: заказ и немедленная отмена, склад возвращается.
	modeCheckoutCancel loadMode = "checkout-cancel"
)

type config struct {
	addr        string
	total       int
	duration    time.Duration
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	productID   int64
	size        string
	quantity    int
	users       int
	outputPath  string
}

// orderAPI: методы rpc.OrderClient, которые дёргает сценарий.
type orderAPI interface {
	AddCartItem(ctx context.Context, in *rpc.AddCartItemRequest, opts ...grpc.CallOption) (*domain.Cart, error)
	PlaceOrder(ctx context.Context, in *rpc.PlaceOrderRequest, opts ...grpc.CallOption) (*rpc.Order, error)
	CreatePaymentURL(ctx context.Context, in *rpc.CreatePaymentURLRequest, opts ...grpc.CallOption) (*rpc.CreatePaymentURLResponse, error)
	CancelOrder(ctx context.Context, in *rpc.CancelOrderRequest, opts ...grpc.CallOption) (*rpc.Order, error)
}

func parseConfig(fs *flag.FlagSet, args []string) (config, error) {
	var (
		cfg  config
		mode string
	)
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "order service gRPC address")
	fs.IntVar(&cfg.total, "total", 400, "scenarios to run; ignored when -duration is set")
	fs.DurationVar(&cfg.duration, "duration", 0, "time-based run duration (e.g. 1m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 20, "concurrent workers, each bound to its own demo user")
	fs.IntVar(&cfg.connections, "connections", 4, "gRPC client connections")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-RPC timeout")
	fs.StringVar(&mode, "mode", string(modeCheckout), "checkout | checkout-pay | checkout-cancel")
	fs.Int64Var(&cfg.productID, "product", app.DemoProductID, "product id")
	fs.StringVar(&cfg.size, "size", "M", "product size")
	fs.IntVar(&cfg.quantity, "qty", 1, "quantity per order")
	fs.IntVar(&cfg.users, "users", app.DemoUsers, "number of seeded demo users")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	switch loadMode(strings.TrimSpace(mode)) {
	case modeCheckout, modeCheckoutPay, modeCheckoutCancel:
		cfg.mode = loadMode(strings.TrimSpace(mode))
	default:
		return cfg, fmt.Errorf("unsupported mode: %s", mode)
	}

	switch {
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.users <= 0:
		return cfg, errors.New("users must be > 0")
	case cfg.concurrency > cfg.users:
		return cfg, fmt.Errorf("concurrency must be <= users (%d): concurrent checkouts of one user share a cart", cfg.users)
	case cfg.connections <= 0:
		return cfg, errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.quantity <= 0:
		return cfg, errors.New("qty must be > 0")
	case strings.TrimSpace(cfg.size) == "":
		return cfg, errors.New("size is required")
	}
	return cfg, nil
}

func main() {
	cfg, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(2)
	}

	clients := make([]orderAPI, 0, cfg.connections)
	for i := 0; i < cfg.connections; i++ {
		conn, err := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "create grpc client: %v\n", err)
			os.Exit(1)
		}
		defer conn.Close()
		clients = append(clients, rpc.NewOrderClient(conn))
	}

	result := runLoad(context.Background(), cfg, clients)
	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// runLoad раздаёт сценарии воркерам. Воркер w работает от имени
// пользователя w+1, поэтому корзины воркеров не пересекаются.
func runLoad(ctx context.Context, cfg config, clients []orderAPI) report {
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()
	jobs := make(chan int, cfg.concurrency*2)

	var wg sync.WaitGroup
	for w := 0; w < cfg.concurrency; w++ {
		wg.Add(1)
		go func(userID int64, client orderAPI) {
			defer wg.Done()
			for idx := range jobs {
				_ = runScenario(ctx, client, cfg, userID, fmt.Sprintf("%s-%d", runID, idx), col)
			}
		}(int64(w+1), clients[w%len(clients)])
	}

	dispatchJobs(ctx, jobs, cfg)
	wg.Wait()
	return col.buildReport(startedAt, time.Since(startedAt))
}

func dispatchJobs(ctx context.Context, jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

func runScenario(ctx context.Context, client orderAPI, cfg config, userID int64, scenarioID string, col *collector) (err error) {
	started := time.Now()
	defer func() { col.record(scenarioMetric, time.Since(started), grpcCode(err)) }()

	var cart *domain.Cart
	err = timed(ctx, cfg.timeout, col, "AddCartItem", func(ctx context.Context) (callErr error) {
		cart, callErr = client.AddCartItem(ctx, &rpc.AddCartItemRequest{
			UserID:    userID,
			ProductID: cfg.productID,
			Size:      cfg.size,
			Quantity:  int32(cfg.quantity),
		})
		return callErr
	})
	if err != nil {
		return err
	}
	itemID, ok := cartItemID(cart, cfg.productID, cfg.size)
	if !ok {
		return status.Error(codes.Internal, "added item is missing from cart")
	}

	method := "COD"
	if cfg.mode == modeCheckoutPay {
		method = "VNPAY"
	}
	var order *rpc.Order
	err = timed(ctx, cfg.timeout, col, "PlaceOrder", func(ctx context.Context) (callErr error) {
		ctx = metadata.AppendToOutgoingContext(ctx, grpcsvc.IdempotencyKeyHeader, "lt-place-"+scenarioID)
		order, callErr = client.PlaceOrder(ctx, &rpc.PlaceOrderRequest{
			UserID:        userID,
			AddressID:     app.DemoAddressID(userID),
			CartItemIDs:   []int64{itemID},
			PaymentMethod: method,
		})
		return callErr
	})
	if err != nil {
		return err
	}

	switch cfg.mode {
	case modeCheckoutPay:
		return timed(ctx, cfg.timeout, col, "CreatePaymentURL", func(ctx context.Context) error {
			_, callErr := client.CreatePaymentURL(ctx, &rpc.CreatePaymentURLRequest{OrderID: order.ID, ClientIP: "127.0.0.1"})
			return callErr
		})
	case modeCheckoutCancel:
		return timed(ctx, cfg.timeout, col, "CancelOrder", func(ctx context.Context) error {
			_, callErr := client.CancelOrder(ctx, &rpc.CancelOrderRequest{OrderID: order.ID, Reason: "load-cancel"})
			return callErr
		})
	}
	return nil
}

func timed(ctx context.Context, timeout time.Duration, col *collector, method string, call func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := call(callCtx)
	col.record(method, time.Since(start), grpcCode(err))
	return err
}

func cartItemID(cart *domain.Cart, productID int64, size string) (int64, bool) {
	if cart == nil {
		return 0, false
	}
	for _, item := range cart.Items {
		if item.ProductID == productID && item.Size == size {
			return item.ID, true
		}
	}
	return 0, false
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}
