package resilience

import (
	"context"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Op: удалённая операция. Получает контекст с таймаутом попытки.
type Op[T any] func(ctx context.Context) (T, error)

// Call выполняет op под защитой g.
//
// Каждая попытка проходит через breaker и ограничена Policy.Timeout. Повторы (если Policy.Retryable)
// оборачивают breaker. Разомкнутый breaker сразу переводит вызов в фолбэк без обращения к сети.
// Ошибки, признанные Policy.Permanent, возвращаются без повторов и без фолбэка.
// При nil fallback возвращается последняя ошибка.
func Call[T any](ctx context.Context, g *Guard, op Op[T], fallback Fallback[T]) (T, error) {
	ctx, span := g.tracer.Start(ctx, "remote "+g.policy.Name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("dependency", g.policy.Name)),
	)
	defer span.End()

	attempts := 1
	if g.policy.Retryable {
		attempts = g.policy.Retry.MaxAttempts
	}
	delay := g.policy.Retry.InitialDelay

	var zero T
	var lastErr error
	fallbackReason := "error"

	for attempt := 1; attempt <= attempts; attempt++ {
		value, err := execute(ctx, g, op)
		if err == nil {
			g.recordCall("ok")
			span.SetAttributes(attribute.Int("attempts", attempt))
			if attempt > 1 {
				g.logger.WithField("attempt", attempt).Info("remote call succeeded after retry")
			}
			return value, nil
		}
		if g.policy.Permanent(err) {
			g.recordCall("business_error")
			span.SetAttributes(attribute.Int("attempts", attempt))
			return zero, err
		}

		if rejected(err) {
			fallbackReason = "open"
			if lastErr == nil {
				lastErr = err
			}
			break
		}
		lastErr = err
		g.recordCall("failed")
		if attempt == attempts || ctx.Err() != nil {
			break
		}

		g.logger.WithFields(log.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).WithError(err).Warn("remote call failed, retrying")
		g.recordRetry()
		if err := g.sleep(ctx, delay); err != nil {
			break
		}
		delay = g.policy.Retry.next(delay)
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	span.SetAttributes(attribute.String("fallback", fallbackReason))
	g.recordFallback(fallbackReason)
	g.logger.WithField("reason", fallbackReason).WithError(lastErr).Warn("remote call failed, using fallback")

	if fallback == nil {
		return zero, lastErr
	}
	return fallback(ctx, lastErr)
}

// execute выполняет одну попытку через breaker с таймаутом.
func execute[T any](ctx context.Context, g *Guard, op Op[T]) (T, error) {
	var zero T
	result, err := g.breaker.Execute(func() (any, error) {
		callCtx := ctx
		if g.policy.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.policy.Timeout)
			defer cancel()
		}
		value, err := op(callCtx)
		return value, err
	})
	if err != nil {
		return zero, err
	}
	value, ok := result.(T)
	if !ok {
		return zero, nil
	}
	return value, nil
}
