// Package idempotency удаляет просроченные ключи идемпотентности оформления заказов.
package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

const (
	defaultInterval  = 10 * time.Minute
	defaultBatchSize = 500
)

// Option настраивает Sweeper.
type Option func(*Sweeper)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithInterval задаёт паузу между прогонами.
func WithInterval(interval time.Duration) Option {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithBatchSize задаёт размер одного удаления.
func WithBatchSize(size int) Option {
	return func(s *Sweeper) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithMetrics включает метрики очистки.
func WithMetrics(m *metrics.SweepMetrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// Sweeper периодически удаляет записи с истёкшим TTL.
type Sweeper struct {
	repo      domain.IdempotencyRepository
	metrics   *metrics.SweepMetrics
	logger    *log.Entry
	now       func() time.Time
	interval  time.Duration
	batchSize int
}

// NewSweeper создаёт Sweeper.
func NewSweeper(repo domain.IdempotencyRepository, opts ...Option) *Sweeper {
	s := &Sweeper{
		repo:      repo,
		logger:    log.New().WithField("component", "idempotency-sweeper"),
		now:       func() time.Time { return time.Now().UTC() },
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run выполняет очистку сразу и затем раз в interval до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.repo == nil {
		s.logger.Warn("idempotency sweeper is disabled: repo is nil")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	deleted, err := s.Sweep(ctx, s.now())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.recordRun("error", deleted)
		s.logger.WithError(err).Warn("idempotency sweep failed")
		return
	}
	s.recordRun("ok", deleted)
	if deleted > 0 {
		s.logger.WithField("deleted", deleted).Info("idempotency sweep completed")
	}
}

// Sweep удаляет записи с TTL не позже before порциями batchSize и возвращает их число.
func (s *Sweeper) Sweep(ctx context.Context, before time.Time) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		deleted, err := s.repo.DeleteExpired(before, s.batchSize)
		if err != nil {
			return total, err
		}
		total += deleted
		if deleted > 0 && s.metrics != nil {
			s.metrics.RecordDeleted(deleted)
		}
		if deleted < s.batchSize {
			return total, nil
		}
	}
}

func (s *Sweeper) recordRun(result string, deleted int) {
	if s.metrics != nil {
		s.metrics.RecordRun(result, deleted)
	}
}
