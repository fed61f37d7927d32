package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func metricCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	if m.Counter == nil {
		t.Fatal("expected counter metric to have Counter field")
	}
	return m.GetCounter().GetValue()
}

func metricGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	if m.Gauge == nil {
		t.Fatal("expected gauge metric to have Gauge field")
	}
	return m.GetGauge().GetValue()
}

func metricHistogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := o.(prometheus.Metric)
	if !ok {
		t.Fatalf("observer %T does not implement prometheus.Metric", o)
	}
	var m dto.Metric
	if err := metric.Write(&m); err != nil {
		t.Fatalf("histogram Write() error: %v", err)
	}
	if m.Histogram == nil {
		t.Fatal("expected histogram metric to have Histogram field")
	}
	return m.GetHistogram().GetSampleCount()
}

func TestCollectorRecords(t *testing.T) {
	c := New(WithRegistry(prometheus.NewRegistry()))

	c.ConnectionOpened()
	c.ConnectionOpened()
	c.ConnectionClosed()
	c.Dial(nil)
	c.Dial(errors.New("refused"))
	c.ReconnectAttempt()
	c.RetriesExhausted()
	c.PushEvent("notification")
	c.APIRequest("GET /orders", 200, 10*time.Millisecond)
	c.APIRequest("GET /orders", 0, time.Millisecond)
	c.SetUnread(4)
	c.ForcedLogout()
	c.Transition("preparing", nil)

	if got := metricGaugeValue(t, c.activeConnections); got != 1 {
		t.Fatalf("connections_active=%v, want 1", got)
	}
	if got := metricCounterValue(t, c.dialsTotal.WithLabelValues("success")); got != 1 {
		t.Fatalf("dials_total(success)=%v, want 1", got)
	}
	if got := metricCounterValue(t, c.dialsTotal.WithLabelValues("error")); got != 1 {
		t.Fatalf("dials_total(error)=%v, want 1", got)
	}
	if got := metricCounterValue(t, c.reconnectAttempts); got != 1 {
		t.Fatalf("reconnect_attempts_total=%v, want 1", got)
	}
	if got := metricCounterValue(t, c.retriesExhausted); got != 1 {
		t.Fatalf("reconnect_exhausted_total=%v, want 1", got)
	}
	if got := metricCounterValue(t, c.pushEvents.WithLabelValues("notification")); got != 1 {
		t.Fatalf("push_events_total(notification)=%v, want 1", got)
	}
	if got := metricCounterValue(t, c.apiRequests.WithLabelValues("GET /orders", "200")); got != 1 {
		t.Fatalf("api_requests_total(200)=%v, want 1", got)
	}
	if got := metricCounterValue(t, c.apiRequests.WithLabelValues("GET /orders", "network_error")); got != 1 {
		t.Fatalf("api_requests_total(network_error)=%v, want 1", got)
	}
	if got := metricHistogramCount(t, c.apiDuration.WithLabelValues("GET /orders")); got != 2 {
		t.Fatalf("api_request_duration_seconds count=%v, want 2", got)
	}
	if got := metricGaugeValue(t, c.unreadGauge); got != 4 {
		t.Fatalf("notifications_unread=%v, want 4", got)
	}
	if got := metricCounterValue(t, c.forcedLogouts); got != 1 {
		t.Fatalf("forced_logouts_total=%v, want 1", got)
	}
	if got := metricCounterValue(t, c.transitions.WithLabelValues("preparing", "success")); got != 1 {
		t.Fatalf("order_transitions_total=%v, want 1", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector

	c.ConnectionOpened()
	c.ConnectionClosed()
	c.Dial(nil)
	c.ReconnectAttempt()
	c.RetriesExhausted()
	c.PushEvent("orderUpdate")
	c.APIRequest("GET /orders", 500, time.Second)
	c.SetUnread(1)
	c.ForcedLogout()
	c.Transition("cancelled", errors.New("x"))
}

func TestNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(WithRegistry(reg), WithNamespace("shop"))
	c.ForcedLogout()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "shop_forced_logouts_total" {
			found = true
		}
	}
	if !found {
		t.Fatal("shop_forced_logouts_total not registered")
	}
}
