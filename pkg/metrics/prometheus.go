// Package metrics provides Prometheus metrics for the MatchMixer lobby service.
package metrics

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels shared by the lobby recorders.
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultClosed   = "closed"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Manager owns every collector of the service.
type Manager struct {
	namespace   string
	subsystem   string
	constLabels map[string]string
	registry    prometheus.Registerer

	// Room lifecycle
	roomsCreated   prometheus.Counter
	roomsDeleted   prometheus.Counter
	joins          *prometheus.CounterVec
	removals       *prometheus.CounterVec
	hostMigrations prometheus.Counter
	gamesStarted   prometheus.Counter

	// Consistency
	writeConflicts *prometheus.CounterVec
	codeCollisions prometheus.Counter

	// Push notifications
	notificationsDelivered prometheus.Counter
	notificationsCoalesced prometheus.Counter
	activeSubscriptions    prometheus.Gauge

	// Balancer
	balanceDuration prometheus.Histogram
	balanceDiff     prometheus.Histogram

	// Store
	storeOperationDuration *prometheus.HistogramVec
	storeErrors            *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// customRegistry keeps the default Go collectors out of /metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

// latencyBuckets are in milliseconds.
var latencyBuckets = []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000} //nolint:gochecknoglobals // shared buckets

// Label names used by the recorders; constant labels must not reuse them.
var variableLabels = []string{"result", "kind", "operation", "driver", "route", "method", "status_code"} //nolint:gochecknoglobals // fixed list

var (
	metricNameRE = regexp.MustCompile(`^[a-zA-Z_:][a-zA-Z0-9_:]*$`)
	labelNameRE  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Configure rebuilds the global collectors with opts on a fresh registry,
// which GetRegistry then returns. Call it at startup, before serving.
func Configure(opts ...Option) {
	registry := prometheus.NewRegistry()
	globalManager = NewManager(append(opts, WithPrometheusRegistry(registry))...)
	customRegistry = registry
}

// ValidName reports whether s can be used as a namespace or subsystem.
func ValidName(s string) bool {
	return s == "" || metricNameRE.MatchString(s)
}

// ValidLabels checks constant label names against Prometheus naming rules
// and the label names the recorders already use.
func ValidLabels(labels map[string]string) error {
	for name := range labels {
		if !labelNameRE.MatchString(name) || strings.HasPrefix(name, "__") {
			return fmt.Errorf("invalid label name %q", name)
		}
		for _, used := range variableLabels {
			if name == used {
				return fmt.Errorf("label name %q is reserved", name)
			}
		}
	}
	return nil
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:   "matchmixer",
		subsystem:   "lobby",
		constLabels: map[string]string{},
		registry:    prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.roomsCreated = m.counter("rooms_created_total", "Rooms created")
	m.roomsDeleted = m.counter("rooms_deleted_total", "Rooms deleted after their last player left")
	m.joins = m.counterVec("joins_total", "Join attempts by result", "result")
	m.removals = m.counterVec("removals_total", "Player removals by kind (leave, kick)", "kind")
	m.hostMigrations = m.counter("host_migrations_total", "Host privileges handed to the next player")
	m.gamesStarted = m.counter("games_started_total", "Rooms moved to the started state")

	m.writeConflicts = m.counterVec("write_conflicts_total", "Version conflicts seen by read-modify-write operations", "operation")
	m.codeCollisions = m.counter("code_collisions_total", "Generated room codes that were already taken")

	m.notificationsDelivered = m.counter("notifications_delivered_total", "Room documents pushed to subscribers")
	m.notificationsCoalesced = m.counter("notifications_coalesced_total", "Pending notifications folded into a newer one for a slow subscriber")
	m.activeSubscriptions = m.gauge("active_subscriptions", "Currently open room subscriptions")

	m.balanceDuration = m.histogram("balance_duration_milliseconds", "Time spent computing a team partition",
		[]float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50})
	m.balanceDiff = m.histogram("balance_diff", "Score difference of computed partitions",
		[]float64{0, 1, 2, 3, 5, 8, 13, 21})

	m.storeOperationDuration = m.histogramVec("store_operation_duration_milliseconds", "Room store operation latency",
		latencyBuckets, "driver", "operation")
	m.storeErrors = m.counterVec("store_errors_total", "Room store transport failures", "driver", "operation")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by route, method and status", "route", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		latencyBuckets, "route", "method", "status_code")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordRoomCreated increments the rooms created counter.
func RecordRoomCreated() { globalManager.roomsCreated.Inc() }

// RecordRoomDeleted increments the rooms deleted counter.
func RecordRoomDeleted() { globalManager.roomsDeleted.Inc() }

// RecordJoin counts a join attempt with its result label.
func RecordJoin(result string) { globalManager.joins.WithLabelValues(result).Inc() }

// RecordRemoval counts a player removal, kind is "leave" or "kick".
func RecordRemoval(kind string) { globalManager.removals.WithLabelValues(kind).Inc() }

// RecordHostMigration increments the host migration counter.
func RecordHostMigration() { globalManager.hostMigrations.Inc() }

// RecordGameStarted increments the games started counter.
func RecordGameStarted() { globalManager.gamesStarted.Inc() }

// RecordWriteConflict counts a version conflict for operation.
func RecordWriteConflict(operation string) {
	globalManager.writeConflicts.WithLabelValues(operation).Inc()
}

// RecordCodeCollision increments the code collision counter.
func RecordCodeCollision() { globalManager.codeCollisions.Inc() }

// RecordNotificationDelivered increments the delivered notifications counter.
func RecordNotificationDelivered() { globalManager.notificationsDelivered.Inc() }

// RecordNotificationsCoalesced adds n to the coalesced notifications counter.
func RecordNotificationsCoalesced(n int) {
	globalManager.notificationsCoalesced.Add(float64(n))
}

// AddActiveSubscriptions moves the active subscriptions gauge by delta.
func AddActiveSubscriptions(delta int) {
	globalManager.activeSubscriptions.Add(float64(delta))
}

// RecordBalance observes one balancer run.
func RecordBalance(latencyMs float64, diff int) {
	globalManager.balanceDuration.Observe(latencyMs)
	globalManager.balanceDiff.Observe(float64(diff))
}

// RecordStoreOperation observes a store call latency.
func RecordStoreOperation(driver, operation string, latencyMs float64) {
	globalManager.storeOperationDuration.WithLabelValues(driver, operation).Observe(latencyMs)
}

// RecordStoreError counts a store transport failure.
func RecordStoreError(driver, operation string) {
	globalManager.storeErrors.WithLabelValues(driver, operation).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(route, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(route, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(route, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(route, method, statusCode).Observe(duration)
}

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
