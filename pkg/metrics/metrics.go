// Package metrics provides Prometheus instrumentation for the storefront
// client core.
//
// A Collector is created once by the composition root and passed to the
// components that record into it. Every recording method is safe to call on a
// nil *Collector, so components can run without metrics.
//
//	reg := prometheus.NewRegistry()
//	m := metrics.New(metrics.WithRegistry(reg))
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the collector.
type Config struct {
	// Namespace is the metrics namespace (default: "storefront").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collector.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "storefront",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Collector holds the storefront metrics.
type Collector struct {
	activeConnections prometheus.Gauge
	dialsTotal        *prometheus.CounterVec
	reconnectAttempts prometheus.Counter
	retriesExhausted  prometheus.Counter
	pushEvents        *prometheus.CounterVec
	apiRequests       *prometheus.CounterVec
	apiDuration       *prometheus.HistogramVec
	unreadGauge       prometheus.Gauge
	forcedLogouts     prometheus.Counter
	transitions       *prometheus.CounterVec
}

// New registers the storefront metrics and returns the collector.
//
// Metrics collected:
//   - storefront_connections_active: Gauge of live push connections
//   - storefront_dials_total: Counter of dial attempts by result
//   - storefront_reconnect_attempts_total: Counter of reconnect attempts
//   - storefront_reconnect_exhausted_total: Counter of retry budgets exhausted
//   - storefront_push_events_total: Counter of push events by name
//   - storefront_api_requests_total: Counter of REST calls by endpoint and status
//   - storefront_api_request_duration_seconds: Histogram of REST call duration
//   - storefront_notifications_unread: Gauge of the unread count
//   - storefront_forced_logouts_total: Counter of refresh-failure logouts
//   - storefront_order_transitions_total: Counter of status requests by target and result
func New(opts ...Option) *Collector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)

	return &Collector{
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connections_active",
			Help:        "Number of live push connections",
			ConstLabels: config.ConstLabels,
		}),

		dialsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dials_total",
			Help:        "Total push connection dial attempts",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		reconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "reconnect_attempts_total",
			Help:        "Total reconnect attempts after a transport failure",
			ConstLabels: config.ConstLabels,
		}),

		retriesExhausted: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "reconnect_exhausted_total",
			Help:        "Total times the reconnect budget ran out",
			ConstLabels: config.ConstLabels,
		}),

		pushEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "push_events_total",
			Help:        "Total push events received by event name",
			ConstLabels: config.ConstLabels,
		}, []string{"event"}),

		apiRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "api_requests_total",
			Help:        "Total REST requests by endpoint and status",
			ConstLabels: config.ConstLabels,
		}, []string{"endpoint", "status"}),

		apiDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "api_request_duration_seconds",
			Help:        "REST request duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"endpoint"}),

		unreadGauge: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "notifications_unread",
			Help:        "Current unread notification count",
			ConstLabels: config.ConstLabels,
		}),

		forcedLogouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "forced_logouts_total",
			Help:        "Total logouts forced by a failed token refresh",
			ConstLabels: config.ConstLabels,
		}),

		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "order_transitions_total",
			Help:        "Total order status change requests by target and result",
			ConstLabels: config.ConstLabels,
		}, []string{"target", "result"}),
	}
}

// =============================================================================
// Recording
// =============================================================================

// ConnectionOpened records a connection becoming live.
func (c *Collector) ConnectionOpened() {
	if c != nil {
		c.activeConnections.Inc()
	}
}

// ConnectionClosed records a live connection going away.
func (c *Collector) ConnectionClosed() {
	if c != nil {
		c.activeConnections.Dec()
	}
}

// Dial records a dial attempt.
func (c *Collector) Dial(err error) {
	if c == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	c.dialsTotal.WithLabelValues(result).Inc()
}

// ReconnectAttempt records one reconnect attempt.
func (c *Collector) ReconnectAttempt() {
	if c != nil {
		c.reconnectAttempts.Inc()
	}
}

// RetriesExhausted records a connection giving up.
func (c *Collector) RetriesExhausted() {
	if c != nil {
		c.retriesExhausted.Inc()
	}
}

// PushEvent records a received push event.
func (c *Collector) PushEvent(event string) {
	if c != nil {
		c.pushEvents.WithLabelValues(event).Inc()
	}
}

// APIRequest records a REST call. status is 0 when no response arrived.
func (c *Collector) APIRequest(endpoint string, status int, d time.Duration) {
	if c == nil {
		return
	}
	label := "network_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	c.apiRequests.WithLabelValues(endpoint, label).Inc()
	c.apiDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// SetUnread sets the unread gauge.
func (c *Collector) SetUnread(n int) {
	if c != nil {
		c.unreadGauge.Set(float64(n))
	}
}

// ForcedLogout records a forced logout.
func (c *Collector) ForcedLogout() {
	if c != nil {
		c.forcedLogouts.Inc()
	}
}

// Transition records an order status change request.
func (c *Collector) Transition(target string, err error) {
	if c == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	c.transitions.WithLabelValues(target, result).Inc()
}
