package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Kushchii/sse-service/internal/transaction"
)

// Prometheus implements Observer on a prometheus registry. It also implements
// the storage metrics hook so Pebble latencies land in the same registry.
type Prometheus struct {
	persistedTotal *prometheus.CounterVec
	publishedTotal prometheus.Counter
	droppedTotal   *prometheus.CounterVec
	failedTotal    *prometheus.CounterVec
	activeSubs     prometheus.Gauge

	storeWriteSeconds  prometheus.Histogram
	storeReadSeconds   prometheus.Histogram
	storeCommitSeconds prometheus.Histogram
}

// NewPrometheus registers the service metrics on reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		persistedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "transactions_persisted_total", Help: "Transactions confirmed by the record store."},
			[]string{"status"},
		),
		publishedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "transactions_published_total", Help: "Transactions handed to the distribution engine."},
		),
		droppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "subscriber_dropped_total", Help: "Records discarded by a subscriber's backpressure policy."},
			[]string{"subscriber"},
		),
		failedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "submissions_failed_total", Help: "Submissions that ended in a failure outcome."},
			[]string{"reason"},
		),
		activeSubs: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "active_subscriptions", Help: "Currently attached stream subscriptions."},
		),
		storeWriteSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{Name: "store_write_seconds", Help: "Record store write latency."},
		),
		storeReadSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{Name: "store_read_seconds", Help: "Record store read latency."},
		),
		storeCommitSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{Name: "store_commit_seconds", Help: "Record store batch commit latency."},
		),
	}
	reg.MustRegister(
		p.persistedTotal, p.publishedTotal, p.droppedTotal, p.failedTotal, p.activeSubs,
		p.storeWriteSeconds, p.storeReadSeconds, p.storeCommitSeconds,
	)
	return p
}

func (p *Prometheus) OnPersisted(rec *transaction.Record) {
	p.persistedTotal.WithLabelValues(rec.Status).Inc()
}

func (p *Prometheus) OnPublished(*transaction.Record) { p.publishedTotal.Inc() }

func (p *Prometheus) OnDropped(subscriber string, _ *transaction.Record) {
	p.droppedTotal.WithLabelValues(subscriber).Inc()
}

func (p *Prometheus) OnSubscribed(string) { p.activeSubs.Inc() }
func (p *Prometheus) OnCancelled(string)  { p.activeSubs.Dec() }

func (p *Prometheus) OnSubmitFailed(reason string) {
	p.failedTotal.WithLabelValues(reason).Inc()
}

// Storage metrics hook (pebblestore.MetricsHook).

func (p *Prometheus) ObserveWrite(elapsed time.Duration, _ int) {
	p.storeWriteSeconds.Observe(elapsed.Seconds())
}

func (p *Prometheus) ObserveRead(elapsed time.Duration, _ int) {
	p.storeReadSeconds.Observe(elapsed.Seconds())
}

func (p *Prometheus) ObserveBatchCommit(elapsed time.Duration, _ int, _ int) {
	p.storeCommitSeconds.Observe(elapsed.Seconds())
}
