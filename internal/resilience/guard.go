package resilience

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

const tracerName = "github.com/vladislavdragonenkov/shop/internal/resilience"

// Guard защищает одну удалённую операцию. Безопасен для конкурентного использования.
type Guard struct {
	policy  Policy
	breaker *gobreaker.CircuitBreaker[any]
	logger  *log.Entry
	metrics *metrics.ResilienceMetrics
	tracer  trace.Tracer
	sleep   SleepFunc
}

// SleepFunc ждёт d или отмены контекста.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option настраивает Guard.
type Option func(*Guard)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.ResilienceMetrics) Option {
	return func(g *Guard) {
		if m != nil {
			g.metrics = m
		}
	}
}

// WithSleep подменяет ожидание между попытками.
func WithSleep(sleep SleepFunc) Option {
	return func(g *Guard) {
		if sleep != nil {
			g.sleep = sleep
		}
	}
}

// NewGuard создаёт Guard для политики.
func NewGuard(policy Policy, opts ...Option) *Guard {
	if policy.Permanent == nil {
		policy.Permanent = IsPermanent
	}
	if policy.Retry.MaxAttempts < 1 {
		policy.Retry.MaxAttempts = 1
	}

	g := &Guard{
		policy: policy,
		logger: log.New().WithField("component", "resilience"),
		tracer: otel.Tracer(tracerName),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.WithField("dependency", policy.Name)

	cfg := policy.Breaker
	g.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        policy.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    cfg.Window,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests || counts.Requests == 0 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: g.onStateChange,
		IsSuccessful: func(err error) bool {
			return err == nil || g.policy.Permanent(err)
		},
	})
	if g.metrics != nil {
		g.metrics.SetBreakerState(policy.Name, metrics.BreakerClosed)
	}
	return g
}

// Name возвращает имя защищаемой операции.
func (g *Guard) Name() string {
	return g.policy.Name
}

// State возвращает текущее состояние breaker ("closed", "half-open", "open").
func (g *Guard) State() string {
	return g.breaker.State().String()
}

// Open сообщает, что breaker разомкнут и вызовы идут сразу в фолбэк.
func (g *Guard) Open() bool {
	return g.breaker.State() == gobreaker.StateOpen
}

func (g *Guard) onStateChange(name string, from, to gobreaker.State) {
	entry := g.logger.WithFields(log.Fields{"from": from.String(), "to": to.String()})
	if to == gobreaker.StateOpen {
		entry.Warn("circuit breaker opened")
	} else {
		entry.Info("circuit breaker state changed")
	}
	if g.metrics == nil {
		return
	}
	switch to {
	case gobreaker.StateOpen:
		g.metrics.SetBreakerState(name, metrics.BreakerOpen)
	case gobreaker.StateHalfOpen:
		g.metrics.SetBreakerState(name, metrics.BreakerHalfOpen)
	default:
		g.metrics.SetBreakerState(name, metrics.BreakerClosed)
	}
}

func (g *Guard) recordCall(result string) {
	if g.metrics != nil {
		g.metrics.RecordCall(g.policy.Name, result)
	}
}

func (g *Guard) recordRetry() {
	if g.metrics != nil {
		g.metrics.RecordRetry(g.policy.Name)
	}
}

func (g *Guard) recordFallback(reason string) {
	if g.metrics != nil {
		g.metrics.RecordFallback(g.policy.Name, reason)
	}
}

// rejected сообщает, что breaker не пропустил вызов.
func rejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
