package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics содержит метрики оформления заказов и их жизненного цикла.
type CheckoutMetrics struct {
	// Оформление
	ordersPlaced     prometheus.Counter
	checkoutRejected *prometheus.CounterVec
	compensations    *prometheus.CounterVec
	activeCheckouts  prometheus.Gauge

	// Гистограммы времени выполнения
	checkoutDuration prometheus.Histogram
	stepDuration     *prometheus.HistogramVec

	// Жизненный цикл заказа и оплаты
	statusTransitions  *prometheus.CounterVec
	sideEffectFailures *prometheus.CounterVec
	paymentCallbacks   *prometheus.CounterVec

	// Счётчики событий timeline
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewCheckoutMetrics создаёт метрики в реестре по умолчанию.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer создаёт метрики в указанном реестре.
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	return &CheckoutMetrics{
		ordersPlaced: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_placed_total",
			Help: "Total number of orders placed successfully",
		}),
		checkoutRejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_checkout_rejected_total",
			Help: "Total number of rejected checkouts by reason",
		}, []string{"reason"}),
		compensations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_checkout_compensations_total",
			Help: "Total number of order deletions after failed stock reduction by result",
		}, []string{"result"}),
		activeCheckouts: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "shop_active_checkouts",
			Help: "Number of checkouts currently in progress",
		}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "shop_checkout_duration_seconds",
			Help:    "Duration of checkout in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "shop_checkout_step_duration_seconds",
			Help:    "Duration of individual checkout steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"step"}),
		statusTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_order_status_transitions_total",
			Help: "Total number of order status transitions",
		}, []string{"from", "to"}),
		sideEffectFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_order_side_effect_failures_total",
			Help: "Total number of best-effort side effects that failed and were only logged",
		}, []string{"action"}),
		paymentCallbacks: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_payment_callbacks_total",
			Help: "Total number of payment gateway callbacks by outcome",
		}, []string{"outcome"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_outbox_events_total",
			Help: "Total number of events enqueued to the outbox",
		}),
	}
}

// RecordCheckoutStarted увеличивает количество активных оформлений.
func (m *CheckoutMetrics) RecordCheckoutStarted() {
	m.activeCheckouts.Inc()
}

// RecordCheckoutFinished уменьшает количество активных оформлений и пишет длительность.
func (m *CheckoutMetrics) RecordCheckoutFinished(duration time.Duration) {
	m.activeCheckouts.Dec()
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordOrderPlaced увеличивает счётчик созданных заказов.
func (m *CheckoutMetrics) RecordOrderPlaced() {
	m.ordersPlaced.Inc()
}

// RecordCheckoutRejected увеличивает счётчик отказов по причине.
func (m *CheckoutMetrics) RecordCheckoutRejected(reason string) {
	m.checkoutRejected.WithLabelValues(reason).Inc()
}

// RecordCompensation фиксирует результат удаления заказа после неудачного списания.
func (m *CheckoutMetrics) RecordCompensation(ok bool) {
	result := "deleted"
	if !ok {
		result = "failed"
	}
	m.compensations.WithLabelValues(result).Inc()
}

// RecordStepDuration записывает время выполнения шага оформления.
func (m *CheckoutMetrics) RecordStepDuration(step string, duration time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordStatusTransition увеличивает счётчик переходов статуса.
func (m *CheckoutMetrics) RecordStatusTransition(from, to string) {
	m.statusTransitions.WithLabelValues(from, to).Inc()
}

// RecordSideEffectFailure фиксирует сбой побочного действия (restore, sold counter, cart cleanup).
func (m *CheckoutMetrics) RecordSideEffectFailure(action string) {
	m.sideEffectFailures.WithLabelValues(action).Inc()
}

// RecordPaymentCallback фиксирует исход обработки callback.
func (m *CheckoutMetrics) RecordPaymentCallback(outcome string) {
	m.paymentCallbacks.WithLabelValues(outcome).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *CheckoutMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *CheckoutMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

// OutboxEvents возвращает счётчик событий outbox.
func (m *CheckoutMetrics) OutboxEvents() prometheus.Counter {
	return m.outboxEvents
}

// OrdersPlaced возвращает счётчик созданных заказов.
func (m *CheckoutMetrics) OrdersPlaced() prometheus.Counter {
	return m.ordersPlaced
}

// CompensationsFor возвращает счётчик компенсаций с результатом "deleted" или "failed".
func (m *CheckoutMetrics) CompensationsFor(result string) prometheus.Counter {
	return m.compensations.WithLabelValues(result)
}

// RejectionsFor возвращает счётчик отказов по причине.
func (m *CheckoutMetrics) RejectionsFor(reason string) prometheus.Counter {
	return m.checkoutRejected.WithLabelValues(reason)
}

// SideEffectFailuresFor возвращает счётчик сбоев побочного действия.
func (m *CheckoutMetrics) SideEffectFailuresFor(action string) prometheus.Counter {
	return m.sideEffectFailures.WithLabelValues(action)
}

// PaymentCallbacksFor возвращает счётчик callback по исходу.
func (m *CheckoutMetrics) PaymentCallbacksFor(outcome string) prometheus.Counter {
	return m.paymentCallbacks.WithLabelValues(outcome)
}
