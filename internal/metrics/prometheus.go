package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus backs the Recorder collaborator with counters and a
// histogram, registered against a caller-supplied registerer so cmd/server
// controls whether it's the global default registry or a scoped one.
type Prometheus struct {
	created    *prometheus.CounterVec
	claimed    *prometheus.CounterVec
	processed  *prometheus.CounterVec
	handlerErr *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewPrometheus builds and registers the metric family under the given
// registerer (typically prometheus.DefaultRegisterer).
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asyncengine",
			Name:      "jobs_created_total",
			Help:      "Jobs submitted, by job name.",
		}, []string{"job_name"}),
		claimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asyncengine",
			Name:      "jobs_claimed_total",
			Help:      "Jobs claimed off the store, by job name.",
		}, []string{"job_name"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asyncengine",
			Name:      "jobs_processed_total",
			Help:      "Jobs processed, by job name and outcome.",
		}, []string{"job_name", "outcome"}),
		handlerErr: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asyncengine",
			Name:      "handler_errors_total",
			Help:      "Handler-layer errors, by job name and kind.",
		}, []string{"job_name", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "asyncengine",
			Name:      "job_processing_seconds",
			Help:      "Time spent inside the Job Processor, by job name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job_name"}),
	}
	reg.MustRegister(p.created, p.claimed, p.processed, p.handlerErr, p.duration)
	return p
}

func (p *Prometheus) RecordJobCreated(jobName string) {
	p.created.WithLabelValues(jobName).Inc()
}

func (p *Prometheus) RecordJobClaimed(jobName string) {
	p.claimed.WithLabelValues(jobName).Inc()
}

func (p *Prometheus) RecordJobProcessed(jobName string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	p.processed.WithLabelValues(jobName, outcome).Inc()
}

func (p *Prometheus) RecordHandlerError(jobName string, kind string) {
	p.handlerErr.WithLabelValues(jobName, kind).Inc()
}

func (p *Prometheus) TimeJobProcessing(jobName string) func() {
	start := time.Now()
	return func() {
		p.duration.WithLabelValues(jobName).Observe(elapsed(start).Seconds())
	}
}
