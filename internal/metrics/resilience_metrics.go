package metrics

import "github.com/prometheus/client_golang/prometheus"

// ResilienceMetrics описывает вызовы удалённых зависимостей через защитную обёртку.
type ResilienceMetrics struct {
	calls        *prometheus.CounterVec
	retries      *prometheus.CounterVec
	fallbacks    *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
}

// Значения gauge состояния breaker.
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

// NewResilienceMetrics создаёт метрики в реестре по умолчанию.
func NewResilienceMetrics() *ResilienceMetrics {
	return NewResilienceMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewResilienceMetricsWithRegisterer создаёт метрики в указанном реестре.
func NewResilienceMetricsWithRegisterer(registerer prometheus.Registerer) *ResilienceMetrics {
	return &ResilienceMetrics{
		calls: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_remote_calls_total",
			Help: "Total number of remote dependency calls by result (ok, business_error, failed)",
		}, []string{"dependency", "result"}),
		retries: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_remote_call_retries_total",
			Help: "Total number of retried remote dependency calls",
		}, []string{"dependency"}),
		fallbacks: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_remote_call_fallbacks_total",
			Help: "Total number of fallbacks taken by reason (error, open)",
		}, []string{"dependency", "reason"}),
		breakerState: registerGaugeVec(registerer, prometheus.GaugeOpts{
			Name: "shop_circuit_breaker_state",
			Help: "Circuit breaker state per dependency (0 closed, 1 half-open, 2 open)",
		}, []string{"dependency"}),
	}
}

// RecordCall фиксирует итог вызова.
func (m *ResilienceMetrics) RecordCall(dependency, result string) {
	m.calls.WithLabelValues(dependency, result).Inc()
}

// RecordRetry увеличивает счётчик повторов.
func (m *ResilienceMetrics) RecordRetry(dependency string) {
	m.retries.WithLabelValues(dependency).Inc()
}

// RecordFallback увеличивает счётчик фолбэков.
func (m *ResilienceMetrics) RecordFallback(dependency, reason string) {
	m.fallbacks.WithLabelValues(dependency, reason).Inc()
}

// SetBreakerState выставляет состояние breaker.
func (m *ResilienceMetrics) SetBreakerState(dependency string, state int) {
	m.breakerState.WithLabelValues(dependency).Set(float64(state))
}

// FallbacksFor возвращает счётчик фолбэков зависимости.
func (m *ResilienceMetrics) FallbacksFor(dependency, reason string) prometheus.Counter {
	return m.fallbacks.WithLabelValues(dependency, reason)
}
