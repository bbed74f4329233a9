package grouplock

import "github.com/prometheus/client_golang/prometheus"

// PrometheusRecorder is a Recorder backed by github.com/prometheus/client_golang
// (grounded: present in dolt, kubernaut, and dittofs's dependency stacks).
// It is entirely optional: Layer never refers to PrometheusRecorder, only
// to the Recorder interface in metrics.go.
type PrometheusRecorder struct {
	granted *prometheus.CounterVec
	denied  *prometheus.CounterVec
	queued  *prometheus.HistogramVec
	evicted *prometheus.CounterVec
}

// NewPrometheusRecorder builds a Recorder and registers its collectors
// against reg. Pass prometheus.DefaultRegisterer to use the global
// registry.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		granted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grouplock",
			Name:      "locks_granted_total",
			Help:      "Number of GRANT_LOCK requests that resulted in LOCK_GRANTED.",
		}, []string{"lock_name"}),
		denied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grouplock",
			Name:      "locks_denied_total",
			Help:      "Number of GRANT_LOCK requests that resulted in LOCK_DENIED.",
		}, []string{"lock_name"}),
		queued: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "grouplock",
			Name:      "lock_queue_depth",
			Help:      "Wait-queue depth observed each time a request is enqueued.",
			Buckets:   prometheus.LinearBuckets(0, 1, 10),
		}, []string{"lock_name"}),
		evicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grouplock",
			Name:      "locks_evicted_total",
			Help:      "Number of owners/waiters cleared by a view change.",
		}, []string{"lock_name"}),
	}
	reg.MustRegister(r.granted, r.denied, r.queued, r.evicted)
	return r
}

func (r *PrometheusRecorder) LockGranted(lockName string) {
	r.granted.WithLabelValues(lockName).Inc()
}

func (r *PrometheusRecorder) LockDenied(lockName string) {
	r.denied.WithLabelValues(lockName).Inc()
}

func (r *PrometheusRecorder) LockQueued(lockName string, queueDepth int) {
	r.queued.WithLabelValues(lockName).Observe(float64(queueDepth))
}

func (r *PrometheusRecorder) LockEvicted(lockName string) {
	r.evicted.WithLabelValues(lockName).Inc()
}

var _ Recorder = (*PrometheusRecorder)(nil)
