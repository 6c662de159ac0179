// Prometheus instrumentation for structuring element search
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Recorder owns the search collectors and the registry they live in
type Recorder struct {
	registry *prometheus.Registry

	evaluations       *prometheus.CounterVec
	accepted          *prometheus.CounterVec
	bestAUC           prometheus.Gauge
	evaluationSeconds *prometheus.HistogramVec
}

// NewRecorder creates a recorder on a private registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strelopt_evaluations_total",
				Help: "Structuring elements scored against the dataset",
			},
			[]string{"loop"},
		),
		accepted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "strelopt_accepted_total",
				Help: "Candidates that replaced the incumbent",
			},
			[]string{"loop"},
		),
		bestAUC: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "strelopt_best_auc",
				Help: "Best ROC AUC found so far",
			},
		),
		evaluationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "strelopt_evaluation_seconds",
				Help:    "Wall time of one dataset evaluation",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
			},
			[]string{"loop"},
		),
	}
	r.registry.MustRegister(r.evaluations, r.accepted, r.bestAUC, r.evaluationSeconds)
	return r
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveEvaluation records one scored candidate
func (r *Recorder) ObserveEvaluation(loop string, auc float64, elapsed time.Duration) {
	r.evaluations.WithLabelValues(loop).Inc()
	r.evaluationSeconds.WithLabelValues(loop).Observe(elapsed.Seconds())
}

// ObserveAccepted records a candidate that became the incumbent
func (r *Recorder) ObserveAccepted(loop string, auc float64) {
	r.accepted.WithLabelValues(loop).Inc()
}

// ObserveBest records the best AUC seen so far
func (r *Recorder) ObserveBest(auc float64) {
	r.bestAUC.Set(auc)
}

// Serve exposes /metrics on addr until ctx is cancelled
func (r *Recorder) Serve(ctx context.Context, addr string, logger logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.WithField("addr", addr).Info("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
