package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestShopMetrics_RecordsIntoRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewShopMetricsWithRegisterer(reg)

	m.RecordCartCreated()
	m.RecordCheckout(ResultOK)
	m.RecordCheckout(ResultEmpty)
	m.RecordCheckout(ResultOK)
	m.RecordTransition("processing", "shipping", ResultOK)
	m.RecordStockDeducted(3)
	m.RecordStockDeducted(0)
	m.RecordRecompute(ResultOK, 5*time.Millisecond)
	m.RecordAddressCreated()
	m.RecordTimelineEvent()
	m.RecordOutboxEvent()
	m.RecordOutboxPublish("sent")
	m.SetOutboxBacklog(4, -time.Second)
	m.RecordOutboxCleanup(ResultOK, 7)
	m.RecordOutboxCleanup(ResultFailed, 0)

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, family := range families {
		byName[family.GetName()] = family
	}

	require.Equal(t, 1.0, byName["shop_carts_created_total"].GetMetric()[0].GetCounter().GetValue())
	require.Equal(t, 3.0, byName["shop_stock_deducted_units_total"].GetMetric()[0].GetCounter().GetValue())
	require.Equal(t, 2.0, counterWithLabel(t, byName["shop_checkouts_total"], "result", ResultOK))
	require.Equal(t, 1.0, counterWithLabel(t, byName["shop_checkouts_total"], "result", ResultEmpty))
	require.Equal(t, 1.0, counterWithLabel(t, byName["shop_status_transitions_total"], "to", "shipping"))
	require.Equal(t, 1.0, counterWithLabel(t, byName["shop_outbox_publish_attempts_total"], "result", "sent"))
	require.Equal(t, 4.0, byName["shop_outbox_pending_records"].GetMetric()[0].GetGauge().GetValue())
	require.Equal(t, 0.0, byName["shop_outbox_oldest_pending_age_seconds"].GetMetric()[0].GetGauge().GetValue())
	require.Equal(t, 7.0, byName["shop_outbox_cleanup_deleted_total"].GetMetric()[0].GetCounter().GetValue())
	require.Equal(t, 1.0, counterWithLabel(t, byName["shop_outbox_cleanup_runs_total"], "result", ResultFailed))
	require.Equal(t, uint64(1), byName["shop_inventory_recompute_duration_seconds"].GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestShopMetrics_ReRegistrationReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewShopMetricsWithRegisterer(reg)
	second := NewShopMetricsWithRegisterer(reg)

	first.RecordCartCreated()
	second.RecordCartCreated()

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == "shop_carts_created_total" {
			require.Equal(t, 2.0, family.GetMetric()[0].GetCounter().GetValue())
			return
		}
	}
	t.Fatal("shop_carts_created_total not gathered")
}

func TestShopMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *ShopMetrics
	require.NotPanics(t, func() {
		m.RecordCartCreated()
		m.RecordCheckout(ResultFailed)
		m.RecordTransition("cart", "shipping", ResultNoop)
		m.RecordStockDeducted(1)
		m.RecordRecompute(ResultFailed, time.Millisecond)
		m.RecordAddressCreated()
		m.RecordTimelineEvent()
		m.RecordOutboxEvent()
		m.RecordOutboxCleanup(ResultOK, 3)
	})
}

func TestRegister_PanicsOnTypeMismatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	register(reg, "dup_metric", prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_metric", Help: "x"}))

	require.Panics(t, func() {
		register(reg, "dup_metric", prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_metric", Help: "x"}))
	})
}

func counterWithLabel(t *testing.T, family *dto.MetricFamily, label, value string) float64 {
	t.Helper()
	require.NotNil(t, family)
	var total float64
	for _, metric := range family.GetMetric() {
		for _, pair := range metric.GetLabel() {
			if pair.GetName() == label && pair.GetValue() == value {
				total += metric.GetCounter().GetValue()
			}
		}
	}
	return total
}
