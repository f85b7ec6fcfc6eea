package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics описывает публикацию transactional outbox.
type OutboxMetrics struct {
	publishAttempts *prometheus.CounterVec
	pending         prometheus.Gauge
	oldestAge       prometheus.Gauge
}

// NewOutboxMetrics создаёт метрики в реестре по умолчанию.
func NewOutboxMetrics() *OutboxMetrics {
	return NewOutboxMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOutboxMetricsWithRegisterer создаёт метрики в указанном реестре.
func NewOutboxMetricsWithRegisterer(registerer prometheus.Registerer) *OutboxMetrics {
	return &OutboxMetrics{
		publishAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result",
		}, []string{"result"}),
		pending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "shop_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox",
		}),
		oldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "shop_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record",
		}),
	}
}

// RecordPublish фиксирует результат попытки: sent, retry_error, failed, dlq_failed.
func (m *OutboxMetrics) RecordPublish(result string) {
	m.publishAttempts.WithLabelValues(result).Inc()
}

// SetBacklog обновляет размер и возраст очереди.
func (m *OutboxMetrics) SetBacklog(pending int, oldestAgeSeconds float64) {
	m.pending.Set(float64(pending))
	m.oldestAge.Set(oldestAgeSeconds)
}

// PublishAttemptsFor возвращает счётчик попыток по результату.
func (m *OutboxMetrics) PublishAttemptsFor(result string) prometheus.Counter {
	return m.publishAttempts.WithLabelValues(result)
}

// Pending возвращает gauge размера очереди.
func (m *OutboxMetrics) Pending() prometheus.Gauge {
	return m.pending
}

// SweepMetrics описывает очистку просроченных ключей идемпотентности.
type SweepMetrics struct {
	runs        *prometheus.CounterVec
	deleted     prometheus.Counter
	lastDeleted prometheus.Gauge
}

// NewSweepMetrics создаёт метрики в реестре по умолчанию.
func NewSweepMetrics() *SweepMetrics {
	return NewSweepMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewSweepMetricsWithRegisterer создаёт метрики в указанном реестре.
func NewSweepMetricsWithRegisterer(registerer prometheus.Registerer) *SweepMetrics {
	return &SweepMetrics{
		runs: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_idempotency_sweep_runs_total",
			Help: "Total number of idempotency sweep runs grouped by result",
		}, []string{"result"}),
		deleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_idempotency_sweep_deleted_total",
			Help: "Total number of deleted expired idempotency records",
		}),
		lastDeleted: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "shop_idempotency_sweep_last_deleted",
			Help: "Number of deleted records during the last sweep run",
		}),
	}
}

// RecordRun фиксирует результат прогона (ok, error) и число удалённых записей.
func (m *SweepMetrics) RecordRun(result string, deleted int) {
	m.runs.WithLabelValues(result).Inc()
	if result == "ok" {
		m.lastDeleted.Set(float64(deleted))
	}
}

// RecordDeleted увеличивает счётчик удалённых записей.
func (m *SweepMetrics) RecordDeleted(n int) {
	m.deleted.Add(float64(n))
}

// Deleted возвращает счётчик удалённых записей.
func (m *SweepMetrics) Deleted() prometheus.Counter {
	return m.deleted
}

// RunsFor возвращает счётчик прогонов по результату.
func (m *SweepMetrics) RunsFor(result string) prometheus.Counter {
	return m.runs.WithLabelValues(result)
}

// OrderEventMetrics считает события заказов, прочитанные catalog-service из Kafka.
type OrderEventMetrics struct {
	received *prometheus.CounterVec
	rejected prometheus.Counter
}

// NewOrderEventMetrics создаёт метрики в реестре по умолчанию.
func NewOrderEventMetrics() *OrderEventMetrics {
	return NewOrderEventMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderEventMetricsWithRegisterer создаёт метрики в указанном реестре.
func NewOrderEventMetricsWithRegisterer(registerer prometheus.Registerer) *OrderEventMetrics {
	return &OrderEventMetrics{
		received: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_catalog_order_events_total",
			Help: "Total number of order notifications consumed by catalog service grouped by event type",
		}, []string{"event_type"}),
		rejected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_catalog_order_events_rejected_total",
			Help: "Total number of order notifications that could not be decoded",
		}),
	}
}

// RecordReceived увеличивает счётчик событий данного типа.
func (m *OrderEventMetrics) RecordReceived(eventType string) {
	m.received.WithLabelValues(eventType).Inc()
}

// RecordRejected увеличивает счётчик нераспознанных сообщений.
func (m *OrderEventMetrics) RecordRejected() {
	m.rejected.Inc()
}

// ReceivedFor возвращает счётчик событий по типу.
func (m *OrderEventMetrics) ReceivedFor(eventType string) prometheus.Counter {
	return m.received.WithLabelValues(eventType)
}

// Rejected возвращает счётчик нераспознанных сообщений.
func (m *OrderEventMetrics) Rejected() prometheus.Counter {
	return m.rejected
}
