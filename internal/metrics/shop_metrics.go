package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Значения label result.
const (
	ResultOK      = "ok"
	ResultEmpty   = "empty"
	ResultFailed  = "failed"
	ResultNoop    = "noop"
	ResultNoStock = "insufficient_stock"
)

// ShopMetrics — метрики жизненного цикла заказа и агрегатора остатков.
// Методы безопасны для nil-получателя, чтобы сервисы работали без метрик в тестах.
type ShopMetrics struct {
	cartsCreated      prometheus.Counter
	checkouts         *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	stockDeducted     prometheus.Counter
	recomputes        *prometheus.CounterVec
	recomputeDuration prometheus.Histogram
	addressesCreated  prometheus.Counter
	timelineEvents    prometheus.Counter
	outboxEvents      prometheus.Counter
	outboxPublishes   *prometheus.CounterVec
	outboxPending     prometheus.Gauge
	outboxOldestAge   prometheus.Gauge
	cleanupRuns       *prometheus.CounterVec
	cleanupDeleted    prometheus.Counter
}

// NewShopMetrics регистрирует метрики в DefaultRegisterer.
func NewShopMetrics() *ShopMetrics {
	return NewShopMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewShopMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewShopMetricsWithRegisterer(registerer prometheus.Registerer) *ShopMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ShopMetrics{
		cartsCreated: register(registerer, "shop_carts_created_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shop_carts_created_total",
			Help: "Total number of carts created",
		})),
		checkouts: register(registerer, "shop_checkouts_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shop_checkouts_total",
			Help: "Checkout attempts by result",
		}, []string{"result"})),
		transitions: register(registerer, "shop_status_transitions_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shop_status_transitions_total",
			Help: "Order status transition attempts",
		}, []string{"from", "to", "result"})),
		stockDeducted: register(registerer, "shop_stock_deducted_units_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shop_stock_deducted_units_total",
			Help: "Units deducted from variant inventory on shipping",
		})),
		recomputes: register(registerer, "shop_inventory_recomputes_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shop_inventory_recomputes_total",
			Help: "Product inventory recomputations by result",
		}, []string{"result"})),
		recomputeDuration: register(registerer, "shop_inventory_recompute_duration_seconds", prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shop_inventory_recompute_duration_seconds",
			Help:    "Duration of product inventory recomputation",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		})),
		addressesCreated: register(registerer, "shop_addresses_reconciled_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shop_addresses_reconciled_total",
			Help: "Addresses inserted by checkout reconciliation",
		})),
		timelineEvents: register(registerer, "shop_timeline_events_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shop_timeline_events_total",
			Help: "Total number of order timeline events recorded",
		})),
		outboxEvents: register(registerer, "shop_outbox_events_enqueued_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shop_outbox_events_enqueued_total",
			Help: "Total number of domain events written to the outbox",
		})),
		outboxPublishes: register(registerer, "shop_outbox_publish_attempts_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shop_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result.",
		}, []string{"result"})),
		outboxPending: register(registerer, "shop_outbox_pending_records", prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shop_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox.",
		})),
		outboxOldestAge: register(registerer, "shop_outbox_oldest_pending_age_seconds", prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shop_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record.",
		})),
		cleanupRuns: register(registerer, "shop_outbox_cleanup_runs_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shop_outbox_cleanup_runs_total",
			Help: "Total number of outbox retention cleanup runs grouped by result.",
		}, []string{"result"})),
		cleanupDeleted: register(registerer, "shop_outbox_cleanup_deleted_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shop_outbox_cleanup_deleted_total",
			Help: "Total number of delivered outbox records removed by retention cleanup.",
		})),
	}
}

// register регистрирует коллектор или возвращает ранее зарегистрированный того же типа.
func register[T prometheus.Collector](registerer prometheus.Registerer, name string, collector T) T {
	if err := registerer.Register(collector); err != nil {
		alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			panic(fmt.Sprintf("register collector %q: %v", name, err))
		}
		existing, ok := alreadyRegistered.ExistingCollector.(T)
		if !ok {
			panic(fmt.Sprintf("collector %q already registered with unexpected type", name))
		}
		return existing
	}
	return collector
}

// RecordCartCreated увеличивает счётчик созданных корзин.
func (m *ShopMetrics) RecordCartCreated() {
	if m == nil {
		return
	}
	m.cartsCreated.Inc()
}

// RecordCheckout фиксирует исход оформления.
func (m *ShopMetrics) RecordCheckout(result string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(result).Inc()
}

// RecordTransition фиксирует попытку смены статуса. from/to передаются ASCII-алиасами статусов.
func (m *ShopMetrics) RecordTransition(from, to, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to, result).Inc()
}

func (m *ShopMetrics) RecordStockDeducted(units int64) {
	if m == nil || units <= 0 {
		return
	}
	m.stockDeducted.Add(float64(units))
}

// RecordRecompute фиксирует пересчёт агрегированного остатка.
func (m *ShopMetrics) RecordRecompute(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.recomputes.WithLabelValues(result).Inc()
	m.recomputeDuration.Observe(duration.Seconds())
}

func (m *ShopMetrics) RecordAddressCreated() {
	if m == nil {
		return
	}
	m.addressesCreated.Inc()
}

func (m *ShopMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

func (m *ShopMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}

// RecordOutboxPublish фиксирует попытку публикации из outbox (sent, retry_error, failed, dlq_failed).
func (m *ShopMetrics) RecordOutboxPublish(result string) {
	if m == nil {
		return
	}
	m.outboxPublishes.WithLabelValues(result).Inc()
}

// SetOutboxBacklog обновляет размер backlog и возраст самой старой pending-записи.
func (m *ShopMetrics) SetOutboxBacklog(pending int, oldestAge time.Duration) {
	if m == nil {
		return
	}
	if oldestAge < 0 {
		oldestAge = 0
	}
	m.outboxPending.Set(float64(pending))
	m.outboxOldestAge.Set(oldestAge.Seconds())
}

// RecordOutboxCleanup фиксирует прогон очистки outbox и число удалённых записей.
func (m *ShopMetrics) RecordOutboxCleanup(result string, deleted int) {
	if m == nil {
		return
	}
	m.cleanupRuns.WithLabelValues(result).Inc()
	if deleted > 0 {
		m.cleanupDeleted.Add(float64(deleted))
	}
}
