package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/shop/internal/app"
	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/rpc"
	grpcsvc "github.com/vladislavdragonenkov/shop/internal/service/grpc"
)

type fakeOrderAPI struct {
	mu         sync.Mutex
	placed     []*rpc.PlaceOrderRequest
	keys       []string
	paid       int
	cancelled  int
	placeErr   error
	emptyCarts bool
}

func (f *fakeOrderAPI) AddCartItem(_ context.Context, in *rpc.AddCartItemRequest, _ ...grpc.CallOption) (*domain.Cart, error) {
	if f.emptyCarts {
		return &domain.Cart{UserID: in.UserID}, nil
	}
	return &domain.Cart{
		UserID: in.UserID,
		Items: []domain.CartItem{
			{ID: 1, ProductID: 99, Size: "S"},
			{ID: in.UserID * 10, ProductID: in.ProductID, Size: in.Size, Quantity: in.Quantity},
		},
	}, nil
}

func (f *fakeOrderAPI) PlaceOrder(ctx context.Context, in *rpc.PlaceOrderRequest, _ ...grpc.CallOption) (*rpc.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	md, _ := metadata.FromOutgoingContext(ctx)
	f.keys = append(f.keys, md.Get(grpcsvc.IdempotencyKeyHeader)...)
	f.placed = append(f.placed, in)
	return &rpc.Order{ID: "order-" + in.PaymentMethod, UserID: in.UserID}, nil
}

func (f *fakeOrderAPI) CreatePaymentURL(context.Context, *rpc.CreatePaymentURLRequest, ...grpc.CallOption) (*rpc.CreatePaymentURLResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paid++
	return &rpc.CreatePaymentURLResponse{URL: "https://pay", TxnRef: "txn"}, nil
}

func (f *fakeOrderAPI) CancelOrder(context.Context, *rpc.CancelOrderRequest, ...grpc.CallOption) (*rpc.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled++
	return &rpc.Order{}, nil
}

func parse(t *testing.T, args ...string) (config, error) {
	t.Helper()
	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return parseConfig(fs, args)
}

func testConfig(mode loadMode) config {
	return config{
		total:       12,
		concurrency: 3,
		connections: 1,
		timeout:     time.Second,
		mode:        mode,
		productID:   app.DemoProductID,
		size:        "M",
		quantity:    2,
		users:       app.DemoUsers,
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := parse(t)
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	if cfg.mode != modeCheckout || cfg.productID != app.DemoProductID || cfg.users != app.DemoUsers {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestParseConfig_Validation(t *testing.T) {
	cases := map[string][]string{
		"unsupported mode":  {"-mode=refund"},
		"negative duration": {"-duration=-1s"},
		"zero total":        {"-total=0"},
		"zero concurrency":  {"-concurrency=0"},
		"too many workers":  {"-concurrency=11", "-users=10"},
		"zero connections":  {"-connections=0"},
		"zero timeout":      {"-timeout=0s"},
		"zero qty":          {"-qty=0"},
		"empty size":        {"-size= "},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := parse(t, args...); err == nil {
				t.Fatalf("expected error for %v", args)
			}
		})
	}

	cfg, err := parse(t, "-mode=checkout-pay", "-duration=2s", "-total=0")
	if err != nil {
		t.Fatalf("duration mode must not require total: %v", err)
	}
	if cfg.mode != modeCheckoutPay || cfg.duration != 2*time.Second {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestRunLoad_Checkout(t *testing.T) {
	api := &fakeOrderAPI{}
	result := runLoad(context.Background(), testConfig(modeCheckout), []orderAPI{api})

	if result.Scenarios != 12 || result.FailedScenarios != 0 {
		t.Fatalf("unexpected report: %+v", result)
	}
	if len(api.placed) != 12 {
		t.Fatalf("expected 12 orders, got %d", len(api.placed))
	}
	for _, req := range api.placed {
		if req.UserID < 1 || req.UserID > 3 {
			t.Fatalf("worker user out of range: %d", req.UserID)
		}
		if req.AddressID != app.DemoAddressID(req.UserID) || req.PaymentMethod != "COD" {
			t.Fatalf("unexpected place request: %+v", req)
		}
		if len(req.CartItemIDs) != 1 || req.CartItemIDs[0] != req.UserID*10 {
			t.Fatalf("unexpected cart items: %v", req.CartItemIDs)
		}
	}

	seen := map[string]bool{}
	for _, key := range api.keys {
		if !strings.HasPrefix(key, "lt-place-") || seen[key] {
			t.Fatalf("idempotency keys must be unique: %q", key)
		}
		seen[key] = true
	}
	if result.Methods["PlaceOrder"].Calls != 12 || result.Methods["AddCartItem"].Calls != 12 {
		t.Fatalf("unexpected method stats: %+v", result.Methods)
	}
}

func TestRunLoad_PayAndCancelModes(t *testing.T) {
	api := &fakeOrderAPI{}
	runLoad(context.Background(), testConfig(modeCheckoutPay), []orderAPI{api})
	if api.paid != 12 || api.cancelled != 0 {
		t.Fatalf("pay mode: paid=%d cancelled=%d", api.paid, api.cancelled)
	}
	if api.placed[0].PaymentMethod != "VNPAY" {
		t.Fatalf("pay mode must place VNPAY orders, got %s", api.placed[0].PaymentMethod)
	}

	api = &fakeOrderAPI{}
	runLoad(context.Background(), testConfig(modeCheckoutCancel), []orderAPI{api})
	if api.cancelled != 12 || api.paid != 0 {
		t.Fatalf("cancel mode: paid=%d cancelled=%d", api.paid, api.cancelled)
	}
}

func TestRunLoad_Failures(t *testing.T) {
	api := &fakeOrderAPI{placeErr: status.Error(codes.FailedPrecondition, "out of stock")}
	result := runLoad(context.Background(), testConfig(modeCheckout), []orderAPI{api})
	if result.FailedScenarios != 12 {
		t.Fatalf("expected all scenarios to fail, got %+v", result)
	}
	if result.Methods["PlaceOrder"].Codes[codes.FailedPrecondition.String()] != 12 {
		t.Fatalf("unexpected codes: %v", result.Methods["PlaceOrder"].Codes)
	}

	api = &fakeOrderAPI{emptyCarts: true}
	result = runLoad(context.Background(), testConfig(modeCheckout), []orderAPI{api})
	if result.FailedScenarios != 12 || len(api.placed) != 0 {
		t.Fatalf("missing cart item must fail before PlaceOrder: %+v", result)
	}
}

func TestDispatchJobs_Duration(t *testing.T) {
	cfg := testConfig(modeCheckout)
	cfg.duration = 20 * time.Millisecond
	jobs := make(chan int)

	done := make(chan int)
	go func() {
		n := 0
		for range jobs {
			n++
		}
		done <- n
	}()
	dispatchJobs(context.Background(), jobs, cfg)

	select {
	case n := <-done:
		if n == 0 {
			t.Fatal("expected some jobs before the deadline")
		}
	case <-time.After(time.Second):
		t.Fatal("dispatch did not stop after duration")
	}
}

func TestLatencySummary(t *testing.T) {
	summary := buildLatencySummary([]float64{4, 1, 3, 2})
	if summary.Min != 1 || summary.Max != 4 || summary.Avg != 2.5 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if got := percentile([]float64{1, 2, 3, 4}, 50); got != 2.5 {
		t.Fatalf("unexpected p50: %v", got)
	}
	if buildLatencySummary(nil) != (latencySummary{}) {
		t.Fatal("empty input must give zero summary")
	}
	if ratio(1, 0) != 0 || ratio(1, 4) != 0.25 {
		t.Fatal("unexpected ratio")
	}
}

func TestReportOutput(t *testing.T) {
	col := newCollector()
	col.record(scenarioMetric, time.Millisecond, codes.OK)
	col.record(scenarioMetric, 3*time.Millisecond, codes.Unavailable)
	col.record("PlaceOrder", 2*time.Millisecond, codes.OK)
	result := col.buildReport(time.Now(), time.Second)

	if result.Scenarios != 2 || result.FailedScenarios != 1 || result.ErrorRate != 0.5 || result.RPS != 2 {
		t.Fatalf("unexpected report: %+v", result)
	}

	var buf bytes.Buffer
	printReport(&buf, result, testConfig(modeCheckout))
	if !strings.Contains(buf.String(), "mode=checkout scenarios=2 failed=1") || !strings.Contains(buf.String(), "PlaceOrder: calls=1") {
		t.Fatalf("unexpected summary output:\n%s", buf.String())
	}

	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	if err := writeJSONReport("../escape.json", result); err == nil {
		t.Fatal("expected error for path outside current directory")
	}
	if err := writeJSONReport("report.json", result); err != nil {
		t.Fatalf("writeJSONReport failed: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "report.json"))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var decoded report
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.Scenarios != 2 {
		t.Fatalf("unexpected decoded report: %+v", decoded)
	}
}
