package prometrics

import (
	"sync"

	"github.com/storefront-go/storefront/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
)

type definition struct {
	help    string
	labels  []string
	buckets []float64
}

// instruments declares every metric key the application may resolve. Keys
// not listed here resolve to no-op instruments rather than panicking.
var instruments = map[observability.MetricKey]definition{
	observability.MUsecaseRequests:         {help: "Use case invocations by status.", labels: []string{"usecase", "status"}},
	observability.MUsecaseDuration:         {help: "Use case duration in seconds.", labels: []string{"usecase", "status"}, buckets: prometheus.DefBuckets},
	observability.MHTTPRequests:            {help: "HTTP requests by route, method and code.", labels: []string{"route", "method", "code"}},
	observability.MHTTPRequestDuration:     {help: "HTTP request duration in seconds.", labels: []string{"route", "method"}, buckets: prometheus.DefBuckets},
	observability.MExternalRequests:        {help: "Outbound requests to external systems by target and status.", labels: []string{"target", "status"}},
	observability.MExternalRequestDuration: {help: "Outbound request duration in seconds.", labels: []string{"target"}, buckets: prometheus.DefBuckets},
	observability.MReconciliationRequired:  {help: "Captured charges whose order commit failed.", labels: []string{"method"}},
	observability.MOversellRejected:        {help: "Checkout reservations rejected by the stock guard.", labels: []string{"product_id"}},
	observability.MRateLimited:             {help: "HTTP requests rejected by the rate limiter.", labels: []string{"route"}},
}

type metrics struct {
	reg       prometheus.Registerer
	namespace string

	mu         sync.Mutex
	counters   map[observability.MetricKey]*prometheus.CounterVec
	histograms map[observability.MetricKey]*prometheus.HistogramVec
}

// New returns a Metrics implementation registering instruments on reg the
// first time each key is resolved.
func New(reg prometheus.Registerer, namespace string) observability.Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &metrics{
		reg:        reg,
		namespace:  namespace,
		counters:   make(map[observability.MetricKey]*prometheus.CounterVec),
		histograms: make(map[observability.MetricKey]*prometheus.HistogramVec),
	}
}

func (m *metrics) Counter(name observability.MetricKey) observability.Counter {
	def, ok := instruments[name]
	if ok && def.buckets != nil {
		ok = false
	}
	if !ok {
		return observability.NopCounter()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cv, exists := m.counters[name]
	if !exists {
		cv = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.namespace, Name: string(name), Help: def.help,
		}, def.labels)
		m.reg.MustRegister(cv)
		m.counters[name] = cv
	}
	return &counter{v: cv, keys: def.labels}
}

func (m *metrics) Histogram(name observability.MetricKey) observability.Histogram {
	def, ok := instruments[name]
	if !ok || def.buckets == nil {
		return observability.NopHistogram()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	hv, exists := m.histograms[name]
	if !exists {
		hv = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: m.namespace, Name: string(name), Help: def.help, Buckets: def.buckets,
		}, def.labels)
		m.reg.MustRegister(hv)
		m.histograms[name] = hv
	}
	return &histogram{v: hv, keys: def.labels}
}

type counter struct {
	v    *prometheus.CounterVec
	keys []string
}

func (c *counter) Add(d float64, labels ...observability.Label) {
	c.v.With(labelMap(c.keys, labels)).Add(d)
}

type histogram struct {
	v    *prometheus.HistogramVec
	keys []string
}

func (h *histogram) Observe(v float64, labels ...observability.Label) {
	h.v.With(labelMap(h.keys, labels)).Observe(v)
}

// labelMap fills every declared key so a caller omitting a label cannot
// panic the underlying vector.
func labelMap(keys []string, ls []observability.Label) prometheus.Labels {
	m := make(prometheus.Labels, len(keys))
	for _, k := range keys {
		m[k] = ""
	}
	for _, l := range ls {
		if _, ok := m[l.Key]; ok {
			m[l.Key] = l.Value
		}
	}
	return m
}
