package idempotency

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

type brokenRepo struct {
	domain.IdempotencyRepository
}

func (brokenRepo) DeleteExpired(time.Time, int) (int, error) {
	return 0, errors.New("db down")
}

func seedKeys(t *testing.T, repo *memory.IdempotencyRepository, n int, ttl time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := repo.CreateProcessing(fmt.Sprintf("key-%d", i), "hash", ttl); err != nil {
			t.Fatalf("create key: %v", err)
		}
	}
}

func TestSweepDeletesInBatches(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	now := time.Now().UTC()
	seedKeys(t, repo, 5, now.Add(-time.Minute))
	if _, err := repo.CreateProcessing("fresh", "hash", now.Add(time.Hour)); err != nil {
		t.Fatalf("create fresh key: %v", err)
	}
	m := metrics.NewSweepMetricsWithRegisterer(prometheus.NewRegistry())

	deleted, err := NewSweeper(repo, WithBatchSize(2), WithMetrics(m)).Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if deleted != 5 {
		t.Fatalf("expected 5 deleted, got %d", deleted)
	}
	if _, err := repo.Get("fresh"); err != nil {
		t.Fatalf("fresh key must survive: %v", err)
	}
	if got := testutil.ToFloat64(m.Deleted()); got != 5 {
		t.Fatalf("expected deleted counter 5, got %v", got)
	}
}

func TestSweepReturnsRepositoryError(t *testing.T) {
	_, err := NewSweeper(brokenRepo{}).Sweep(context.Background(), time.Now())
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSweepStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSweeper(memory.NewIdempotencyRepository()).Sweep(ctx, time.Now())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunRecordsOutcomeAndStops(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	now := time.Now().UTC()
	seedKeys(t, repo, 3, now.Add(-time.Second))
	m := metrics.NewSweepMetricsWithRegisterer(prometheus.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSweeper(repo, WithInterval(time.Hour), WithMetrics(m), WithClock(func() time.Time { return now })).Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for testutil.ToFloat64(m.RunsFor("ok")) < 1 {
		select {
		case <-deadline:
			t.Fatal("sweeper did not run")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if got := testutil.ToFloat64(m.Deleted()); got != 3 {
		t.Fatalf("expected 3 deleted, got %v", got)
	}
}

func TestRunCountsErrors(t *testing.T) {
	m := metrics.NewSweepMetricsWithRegisterer(prometheus.NewRegistry())
	s := NewSweeper(brokenRepo{}, WithMetrics(m))
	s.sweep(context.Background())
	if got := testutil.ToFloat64(m.RunsFor("error")); got != 1 {
		t.Fatalf("expected 1 error run, got %v", got)
	}
}
