// Package metrics exposes the Prometheus counters and histograms the
// scheduler engines and notifier report through, mirroring the teacher's
// own internal/interfaces/http metrics registry one level down in scope.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry holds every metric subbot reports. A single instance is built
// at startup and threaded into the engines and notifier.
type Registry struct {
	EngineTicks    *prometheus.CounterVec
	EngineErrors   *prometheus.CounterVec
	TaskExecutions *prometheus.CounterVec

	PushesSent   *prometheus.CounterVec
	PushesFailed *prometheus.CounterVec
	PushRetries  prometheus.Counter

	PendingPushes prometheus.Gauge

	NotifierSendDuration *prometheus.HistogramVec
}

// NewRegistry builds a Registry. Metrics are registered against reg so
// callers can pass prometheus.NewRegistry() in tests instead of the
// process-global DefaultRegisterer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		EngineTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subbot_engine_ticks_total",
			Help: "Number of scheduler engine ticks, by engine.",
		}, []string{"engine"}),
		EngineErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subbot_engine_errors_total",
			Help: "Number of scheduler engine tick errors, by engine.",
		}, []string{"engine"}),
		TaskExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subbot_task_executions_total",
			Help: "Number of poll-task executions, by task type.",
		}, []string{"task_type"}),
		PushesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subbot_pushes_sent_total",
			Help: "Number of successful illust/gallery pushes, by task type.",
		}, []string{"task_type"}),
		PushesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subbot_pushes_failed_total",
			Help: "Number of completely failed illust/gallery pushes, by task type.",
		}, []string{"task_type"}),
		PushRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subbot_push_retries_total",
			Help: "Number of partial-push retry attempts across all engines.",
		}),
		PendingPushes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "subbot_pending_pushes",
			Help: "Number of subscriptions currently holding a partially-sent push.",
		}),
		NotifierSendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "subbot_notifier_send_duration_seconds",
			Help:    "Duration of outbound Telegram sends.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"kind"}),
	}

	reg.MustRegister(
		r.EngineTicks, r.EngineErrors, r.TaskExecutions,
		r.PushesSent, r.PushesFailed, r.PushRetries,
		r.PendingPushes, r.NotifierSendDuration,
	)
	return r
}

// The Inc* helpers are nil-receiver safe so engines can carry a *Registry
// that is simply nil in tests instead of threading a bool everywhere.

func (r *Registry) IncEngineTick(engine string) {
	if r == nil {
		return
	}
	r.EngineTicks.WithLabelValues(engine).Inc()
}

func (r *Registry) IncEngineError(engine string) {
	if r == nil {
		return
	}
	r.EngineErrors.WithLabelValues(engine).Inc()
}

func (r *Registry) IncTaskExecution(taskType string) {
	if r == nil {
		return
	}
	r.TaskExecutions.WithLabelValues(taskType).Inc()
}

func (r *Registry) IncPushSent(taskType string) {
	if r == nil {
		return
	}
	r.PushesSent.WithLabelValues(taskType).Inc()
}

func (r *Registry) IncPushFailed(taskType string) {
	if r == nil {
		return
	}
	r.PushesFailed.WithLabelValues(taskType).Inc()
}

func (r *Registry) IncPushRetry() {
	if r == nil {
		return
	}
	r.PushRetries.Inc()
}
