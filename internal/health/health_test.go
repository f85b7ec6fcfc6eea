package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type fakeBreaker struct {
	name string
	open bool
}

func (b fakeBreaker) Name() string { return b.name }
func (b fakeBreaker) Open() bool { return b.open }

func ok(context.Context) error { return nil }

func serve(t *testing.T, h *Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	h.Routes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestHealthzHealthy(t *testing.T) {
	h := NewHandler("v1.0.0")
	h.RegisterChecker("postgres", NewPingChecker("postgres", ok))
	h.RegisterChecker("breakers", NewBreakerChecker(fakeBreaker{name: "catalog.GetProduct"}))

	rec := serve(t, h, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decode(t, rec)
	if resp.Status != StatusHealthy || resp.Version != "v1.0.0" || len(resp.Checks) != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestHealthzDegradedOnOpenBreaker(t *testing.T) {
	h := NewHandler("dev")
	h.RegisterChecker("breakers", NewBreakerChecker(
		fakeBreaker{name: "inventory.BatchReduce", open: true},
		fakeBreaker{name: "account.GetUser", open: true},
		fakeBreaker{name: "catalog.GetProduct"},
	))

	rec := serve(t, h, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("degraded must still answer 200, got %d", rec.Code)
	}
	resp := decode(t, rec)
	if resp.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %s", resp.Status)
	}
	if msg := resp.Checks["breakers"].Message; msg != "open: account.GetUser, inventory.BatchReduce" {
		t.Fatalf("unexpected message %q", msg)
	}

	if rec := serve(t, h, "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("degraded service must stay ready, got %d", rec.Code)
	}
}

func TestHealthzUnhealthy(t *testing.T) {
	h := NewHandler("dev")
	h.RegisterChecker("redis", NewPingChecker("redis", func(context.Context) error {
		return errors.New("connection refused")
	}))
	h.RegisterChecker("breakers", NewBreakerChecker(fakeBreaker{name: "x", open: true}))

	rec := serve(t, h, "/healthz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	resp := decode(t, rec)
	if resp.Status != StatusUnhealthy || resp.Checks["redis"].Message != "connection refused" {
		t.Fatalf("unexpected response %+v", resp)
	}

	if rec := serve(t, h, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected readiness 503, got %d", rec.Code)
	}
}

func TestPingCheckerRespectsTimeout(t *testing.T) {
	h := NewHandler("dev")
	h.timeout = 10 * time.Millisecond
	h.RegisterChecker("slow", NewPingChecker("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	start := time.Now()
	checks := h.Run(context.Background())
	if time.Since(start) > time.Second {
		t.Fatal("check ignored timeout")
	}
	if checks["slow"].Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %+v", checks["slow"])
	}
}

func TestLivez(t *testing.T) {
	rec := serve(t, NewHandler("dev"), "/livez")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected liveness %d %q", rec.Code, rec.Body.String())
	}
}
