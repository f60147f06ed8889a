package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes pipeline counters on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	FillSeconds     prometheus.Histogram
	FramesProduced  prometheus.Counter
	FramesPresented prometheus.Counter
	FillErrors      prometheus.Counter
	QueueDepth      *prometheus.GaugeVec
}

// NewMetrics registers the pipeline metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		FillSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pixelrush_fill_seconds",
			Help:    "Time spent filling one frame buffer",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		FramesProduced: factory.NewCounter(prometheus.CounterOpts{
			Name: "pixelrush_frames_produced_total",
			Help: "Frame buffers published by the producer",
		}),
		FramesPresented: factory.NewCounter(prometheus.CounterOpts{
			Name: "pixelrush_frames_presented_total",
			Help: "Frame buffers shown by the consumer",
		}),
		FillErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "pixelrush_fill_errors_total",
			Help: "Fill steps that failed and stopped the producer",
		}),
		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pixelrush_queue_depth",
				Help: "Buffers waiting in each hand-off queue",
			},
			[]string{"queue"},
		),
	}
}

// ObserveFill records one produced frame.
func (m *Metrics) ObserveFill(d time.Duration) {
	if m == nil {
		return
	}
	m.FillSeconds.Observe(d.Seconds())
	m.FramesProduced.Inc()
}

// ObservePresent records one presented frame.
func (m *Metrics) ObservePresent() {
	if m == nil {
		return
	}
	m.FramesPresented.Inc()
}

// ObserveFillError records a failed fill.
func (m *Metrics) ObserveFillError() {
	if m == nil {
		return
	}
	m.FillErrors.Inc()
}

// ObserveQueues records the hand-off queue lengths.
func (m *Metrics) ObserveQueues(emptyLen, fullLen int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues("empty").Set(float64(emptyLen))
	m.QueueDepth.WithLabelValues("full").Set(float64(fullLen))
}

// Handler returns the HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving metrics", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		return nil
	}
}
