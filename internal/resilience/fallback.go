package resilience

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// Fallback получает причину отказа и решает, что вернуть вызывающему.
type Fallback[T any] func(ctx context.Context, cause error) (T, error)

// Default возвращает безопасное значение по умолчанию (например, false для проверки остатка).
func Default[T any](v T) Fallback[T] {
	return func(context.Context, error) (T, error) {
		return v, nil
	}
}

// Placeholder возвращает заглушку, помеченную как деградированная.
func Placeholder[T any](v T) Fallback[domain.Result[T]] {
	return func(_ context.Context, cause error) (domain.Result[T], error) {
		return domain.DegradedDefault(v, cause.Error()), nil
	}
}

// Unavailable превращает отказ в domain.ErrServiceUnavailable. Для записей денег и остатков.
func Unavailable[T any](operation string) Fallback[T] {
	return func(_ context.Context, cause error) (T, error) {
		var zero T
		return zero, fmt.Errorf("%s: %w: %v", operation, domain.ErrServiceUnavailable, cause)
	}
}
