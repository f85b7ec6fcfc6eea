// Package resilience оборачивает вызовы удалённых зависимостей:
// повтор -> circuit breaker -> фолбэк. Каждая зависимость получает свой Guard.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// Таймауты удалённых вызовов по умолчанию.
const (
	DefaultDialTimeout = 5 * time.Second
	DefaultCallTimeout = 10 * time.Second
)

// RetryConfig конфигурация для retry логики.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// next возвращает следующую задержку с учётом множителя и потолка.
func (c RetryConfig) next(delay time.Duration) time.Duration {
	factor := c.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay = time.Duration(float64(delay) * factor)
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// BreakerConfig задаёт условия размыкания: доля отказов за окно Window
// при не менее MinRequests запросах.
type BreakerConfig struct {
	Window           time.Duration
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
}

// DefaultBreakerConfig возвращает конфигурацию breaker по умолчанию.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Window:           30 * time.Second,
		MinRequests:      10,
		FailureRatio:     0.5,
		OpenTimeout:      15 * time.Second,
		HalfOpenRequests: 1,
	}
}

// Policy описывает защиту одной удалённой операции.
type Policy struct {
	// Name идентифицирует зависимость в логах, метриках и спанах (например, "inventory.check").
	Name    string
	Timeout time.Duration
	Retry   RetryConfig
	// Retryable разрешает повторы. Только для чтений и операций, безопасных к повтору.
	Retryable bool
	Breaker   BreakerConfig
	// Permanent отличает ответы предметной области от сбоев: такие ошибки
	// не повторяются, не размыкают breaker и возвращаются как есть.
	Permanent func(error) bool
}

// ReadPolicy возвращает политику для чтений с повторами.
func ReadPolicy(name string) Policy {
	return Policy{
		Name:      name,
		Timeout:   DefaultCallTimeout,
		Retry:     DefaultRetryConfig(),
		Retryable: true,
		Breaker:   DefaultBreakerConfig(),
		Permanent: IsPermanent,
	}
}

// WritePolicy возвращает политику для записей, одна попытка.
func WritePolicy(name string) Policy {
	p := ReadPolicy(name)
	p.Retryable = false
	return p
}

// IsPermanent считает окончательными бизнес-ошибки домена и отмену вызывающим.
func IsPermanent(err error) bool {
	return domain.IsBusinessError(err) || errors.Is(err, context.Canceled)
}
