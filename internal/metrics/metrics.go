package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rzbill/flagstream/internal/eventsource"
	"github.com/rzbill/flagstream/internal/sse"
	pebblestore "github.com/rzbill/flagstream/internal/storage/pebble"
)

// Config configures the Prometheus collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "flagstream").
	Namespace string
	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels
	// Buckets are the histogram buckets for delivery duration.
	// Default: prometheus.DefBuckets
	Buckets []float64
	// Registry is the registerer the collectors are added to.
	// Default: a new private registry.
	Registry *prometheus.Registry
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) { c.Namespace = namespace }
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) { c.ConstLabels = labels }
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) { c.Buckets = buckets }
}

// WithRegistry sets the registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(c *Config) { c.Registry = registry }
}

// Collector records dispatcher, connection and cursor store activity. It
// implements eventsource.Metrics, sse.Observer and pebblestore.MetricsHook.
type Collector struct {
	registry *prometheus.Registry

	submitted     *prometheus.CounterVec
	delivered     *prometheus.CounterVec
	deliveryTime  *prometheus.HistogramVec
	dropped       *prometheus.CounterVec
	faults        *prometheus.CounterVec
	inFlight      prometheus.Gauge
	connAttempts  prometheus.Counter
	connected     prometheus.Gauge
	connErrors    prometheus.Counter
	storeBytes    *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec
}

var (
	_ eventsource.Metrics     = (*Collector)(nil)
	_ sse.Observer            = (*Collector)(nil)
	_ pebblestore.MetricsHook = (*Collector)(nil)
)

// New creates and registers the collectors.
func New(opts ...Option) *Collector {
	cfg := Config{Namespace: "flagstream", Buckets: prometheus.DefBuckets}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	factory := promauto.With(cfg.Registry)

	return &Collector{
		registry: cfg.Registry,
		submitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   "dispatcher",
			Name:        "signals_submitted_total",
			Help:        "Signals admitted to the dispatch lane",
			ConstLabels: cfg.ConstLabels,
		}, []string{"kind"}),
		delivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   "dispatcher",
			Name:        "signals_delivered_total",
			Help:        "Signals processed by the worker",
			ConstLabels: cfg.ConstLabels,
		}, []string{"kind"}),
		deliveryTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   "dispatcher",
			Name:        "delivery_duration_seconds",
			Help:        "Time spent in handler callbacks per signal",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}, []string{"kind"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   "dispatcher",
			Name:        "signals_dropped_total",
			Help:        "Signals rejected or discarded without delivery",
			ConstLabels: cfg.ConstLabels,
		}, []string{"kind"}),
		faults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   "dispatcher",
			Name:        "consumer_faults_total",
			Help:        "Errors and panics raised by handler callbacks",
			ConstLabels: cfg.ConstLabels,
		}, []string{"kind"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   "dispatcher",
			Name:        "in_flight",
			Help:        "Signals admitted but not yet fully processed",
			ConstLabels: cfg.ConstLabels,
		}),
		connAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   "stream",
			Name:        "connect_attempts_total",
			Help:        "Stream connection attempts",
			ConstLabels: cfg.ConstLabels,
		}),
		connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   "stream",
			Name:        "connected",
			Help:        "1 while a stream connection is open",
			ConstLabels: cfg.ConstLabels,
		}),
		connErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   "stream",
			Name:        "connection_errors_total",
			Help:        "Stream connections that ended with an error",
			ConstLabels: cfg.ConstLabels,
		}),
		storeBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   "cursor_store",
			Name:        "bytes_total",
			Help:        "Bytes read from and written to the cursor store",
			ConstLabels: cfg.ConstLabels,
		}, []string{"op"}),
		storeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   "cursor_store",
			Name:        "op_duration_seconds",
			Help:        "Cursor store operation latency",
			ConstLabels: cfg.ConstLabels,
			Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"op"}),
	}
}

// Registry returns the registry the collectors live in.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) Submitted(kind eventsource.Kind) {
	c.submitted.WithLabelValues(kind.String()).Inc()
}

func (c *Collector) Delivered(kind eventsource.Kind, elapsed time.Duration) {
	c.delivered.WithLabelValues(kind.String()).Inc()
	c.deliveryTime.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
}

func (c *Collector) Dropped(kind eventsource.Kind) {
	c.dropped.WithLabelValues(kind.String()).Inc()
}

func (c *Collector) Fault(kind eventsource.Kind) {
	c.faults.WithLabelValues(kind.String()).Inc()
}

func (c *Collector) InFlight(delta int) { c.inFlight.Add(float64(delta)) }

func (c *Collector) Connecting(int) { c.connAttempts.Inc() }

func (c *Collector) Connected() { c.connected.Set(1) }

func (c *Collector) Disconnected(err error) {
	c.connected.Set(0)
	if err != nil {
		c.connErrors.Inc()
	}
}

func (c *Collector) ObserveWrite(elapsed time.Duration, bytes int) {
	c.storeBytes.WithLabelValues("write").Add(float64(bytes))
	c.storeDuration.WithLabelValues("write").Observe(elapsed.Seconds())
}

func (c *Collector) ObserveRead(elapsed time.Duration, bytes int) {
	c.storeBytes.WithLabelValues("read").Add(float64(bytes))
	c.storeDuration.WithLabelValues("read").Observe(elapsed.Seconds())
}
