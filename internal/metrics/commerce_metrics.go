package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ArYaN9696/QuitQ/internal/domain"
)

// CommerceMetrics содержит метрики жизненного цикла заказов и платежей.
type CommerceMetrics struct {
	ordersCreated     prometheus.Counter
	transitions       *prometheus.CounterVec
	failures          *prometheus.CounterVec
	paymentsProcessed *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	outboxEvents      prometheus.Counter
}

// NewCommerceMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewCommerceMetrics() *CommerceMetrics {
	return NewCommerceMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCommerceMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewCommerceMetricsWithRegisterer(registerer prometheus.Registerer) *CommerceMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CommerceMetrics{
		ordersCreated: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quitq_orders_created_total",
			Help: "Total number of orders created from carts",
		})),
		transitions: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quitq_order_transitions_total",
			Help: "Total number of applied order status transitions",
		}, []string{"from", "to"})),
		failures: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quitq_operation_failures_total",
			Help: "Business failures returned by core operations",
		}, []string{"operation", "kind"})),
		paymentsProcessed: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quitq_payments_processed_total",
			Help: "Payment processing attempts by result",
		}, []string{"result"})),
		operationDuration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quitq_operation_duration_seconds",
			Help:    "Duration of core operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"operation"})),
		outboxEvents: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quitq_outbox_events_total",
			Help: "Total number of events written to the outbox",
		})),
	}
}

// register регистрирует коллектор; при AlreadyRegisteredError возвращает существующий.
func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) C {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			existing, ok := already.ExistingCollector.(C)
			if !ok {
				panic(fmt.Sprintf("collector already registered with unexpected type %T", already.ExistingCollector))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector: %v", err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *CommerceMetrics) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// RecordTransition учитывает применённый переход статуса.
func (m *CommerceMetrics) RecordTransition(from, to domain.OrderStatus) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from.String(), to.String()).Inc()
}

// RecordFailure учитывает бизнес-отказ операции.
func (m *CommerceMetrics) RecordFailure(operation string, kind domain.FailureKind) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(operation, string(kind)).Inc()
}

// RecordPayment учитывает попытку оплаты: result равен "success" или классу отказа.
func (m *CommerceMetrics) RecordPayment(result string) {
	if m == nil {
		return
	}
	m.paymentsProcessed.WithLabelValues(result).Inc()
}

// ObserveDuration записывает длительность операции.
func (m *CommerceMetrics) ObserveDuration(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordOutboxEvents увеличивает счётчик событий outbox на n.
func (m *CommerceMetrics) RecordOutboxEvents(n int) {
	if m == nil {
		return
	}
	m.outboxEvents.Add(float64(n))
}
