package processor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/meszmate/rosterd/internal/xmpp"
)

// Metrics records request processing. A nil *Metrics records nothing.
type Metrics struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	dynamicPush  prometheus.Counter
	versionCache prometheus.Counter
}

// NewMetrics registers the processor metrics with reg
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "rosterd"
	}
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Roster requests by namespace, type and outcome.",
		}, []string{"namespace", "type", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent processing roster requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"namespace"}),
		dynamicPush: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dynamic_push_items_total",
			Help:      "Dynamic contacts delivered through roster pushes.",
		}),
		versionCache: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "version_cache_hits_total",
			Help:      "Roster gets answered without payload because the version matched.",
		}),
	}
}

func (m *Metrics) observe(req *xmpp.Request, outcome Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	ns := req.Namespace
	if ns == "" {
		ns = "none"
	}
	m.requests.WithLabelValues(ns, string(req.Type), outcome.String()).Inc()
	m.duration.WithLabelValues(ns).Observe(elapsed.Seconds())
}

func (m *Metrics) dynamicItems(n int) {
	if m == nil {
		return
	}
	m.dynamicPush.Add(float64(n))
}

func (m *Metrics) versionHit() {
	if m == nil {
		return
	}
	m.versionCache.Inc()
}
