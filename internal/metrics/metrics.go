package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives refresh and tick observations from the tracker.
type Recorder interface {
	RecordRefresh(outcome string, seconds float64)
	RecordProgress(name string, percentage float64)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordRefresh(string, float64)  {}
func (NopRecorder) RecordProgress(string, float64) {}

// PromRecorder exposes refresh counts, refresh latency and the current
// countdown percentage as Prometheus metrics.
type PromRecorder struct {
	gatherer prometheus.Gatherer
	refresh  *prometheus.CounterVec
	latency  prometheus.Histogram
	progress *prometheus.GaugeVec

	// progressMu makes Reset + Set one step for concurrent callers.
	progressMu sync.Mutex
}

// NewPromRecorder registers the collectors on reg. A nil reg gets a fresh
// private registry. Collectors already registered are reused.
func NewPromRecorder(reg *prometheus.Registry) (*PromRecorder, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	refresh := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vacances_refresh_total",
		Help: "Catalog refreshes by outcome",
	}, []string{"outcome"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vacances_refresh_duration_seconds",
		Help:    "Duration of a catalog refresh",
		Buckets: prometheus.DefBuckets,
	})
	progress := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vacances_progress_percent",
		Help: "Countdown progress towards the active vacation",
	}, []string{"vacation"})

	if err := reg.Register(refresh); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		refresh = are.ExistingCollector.(*prometheus.CounterVec)
	}
	if err := reg.Register(latency); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		latency = are.ExistingCollector.(prometheus.Histogram)
	}
	if err := reg.Register(progress); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		progress = are.ExistingCollector.(*prometheus.GaugeVec)
	}

	return &PromRecorder{
		gatherer: reg,
		refresh:  refresh,
		latency:  latency,
		progress: progress,
	}, nil
}

func (p *PromRecorder) RecordRefresh(outcome string, seconds float64) {
	p.refresh.WithLabelValues(outcome).Inc()
	p.latency.Observe(seconds)
}

// RecordProgress keeps a single series: the previous vacation label is
// dropped when the active vacation changes.
func (p *PromRecorder) RecordProgress(name string, percentage float64) {
	p.progressMu.Lock()
	defer p.progressMu.Unlock()

	p.progress.Reset()
	if name == "" {
		return
	}
	p.progress.WithLabelValues(name).Set(percentage)
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PromRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}
