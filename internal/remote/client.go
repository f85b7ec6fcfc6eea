// Package remote содержит клиенты удалённых зависимостей order-service.
// Каждый вызов проходит через resilience.Call со своей политикой и объявленным фолбэком.
package remote

import (
	"fmt"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/resilience"
	"github.com/vladislavdragonenkov/shop/internal/rpc"
)

// Config задаёт общие параметры политик клиента.
type Config struct {
	Timeout time.Duration
	Retry   resilience.RetryConfig
	Breaker resilience.BreakerConfig
	Logger  *log.Entry
	Metrics *metrics.ResilienceMetrics
	// Sleep подменяет ожидание между повторами (тесты).
	Sleep resilience.SleepFunc
}

// DefaultConfig возвращает параметры по умолчанию.
func DefaultConfig() Config {
	return Config{
		Timeout: resilience.DefaultCallTimeout,
		Retry:   resilience.DefaultRetryConfig(),
		Breaker: resilience.DefaultBreakerConfig(),
	}
}

func (c Config) guard(name string, retryable bool, logger *log.Entry) *resilience.Guard {
	policy := resilience.WritePolicy(name)
	if retryable {
		policy = resilience.ReadPolicy(name)
	}
	if c.Timeout > 0 {
		policy.Timeout = c.Timeout
	}
	if c.Retry.MaxAttempts > 0 {
		policy.Retry = c.Retry
	}
	if c.Breaker.Window > 0 {
		policy.Breaker = c.Breaker
	}
	return resilience.NewGuard(policy,
		resilience.WithLogger(logger),
		resilience.WithMetrics(c.Metrics),
		resilience.WithSleep(c.Sleep),
	)
}

// Dial открывает ленивое соединение к сервису с JSON-кодеком и клиентскими метриками.
// Соединение устанавливается при первом вызове; ожидание подключения ограничено DefaultDialTimeout.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(rpc.CallOption()),
		grpc.WithConnectParams(grpc.ConnectParams{
			Backoff:           backoff.DefaultConfig,
			MinConnectTimeout: resilience.DefaultDialTimeout,
		}),
		grpc.WithUnaryInterceptor(grpc_prometheus.UnaryClientInterceptor),
	}
	conn, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}
