// Package metrics is the Prometheus surface for the matching engine:
// order/trade counters, per-symbol depth gauges, and a matching
// latency histogram, served over /metrics on a private registry.
package metrics

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the private registry the engine's counters live on.
type Metrics struct {
	registry   prometheus.Gatherer
	registerer prometheus.Registerer
	logger     log.Logger

	ordersAdmitted  prometheus.Counter
	ordersRejected  *prometheus.CounterVec
	tradesExecuted  prometheus.Counter
	cancelsAccepted prometheus.Counter
	orderBookDepth  *prometheus.GaugeVec
	matchingLatency prometheus.Histogram
	eventsDelivered prometheus.Counter
	eventsDropped   prometheus.Counter
	goroutines      prometheus.Gauge
}

// New creates a Metrics instance on a fresh, private Registry (never
// the global default) so tests can construct as many instances as
// they like without collector-already-registered panics.
func New() *Metrics {
	logger := log.Root().New("module", "metrics")
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry:   registry,
		registerer: registry,
		logger:     logger,

		ordersAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matchd",
			Name:      "orders_admitted_total",
			Help:      "Total number of orders admitted into the match loop.",
		}),
		ordersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matchd",
			Name:      "orders_rejected_total",
			Help:      "Total number of orders rejected pre-entry, by reason.",
		}, []string{"reason"}),
		tradesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matchd",
			Name:      "trades_executed_total",
			Help:      "Total number of admitted orders that traded on entry (one per order, however many fills).",
		}),
		cancelsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matchd",
			Name:      "cancels_accepted_total",
			Help:      "Total number of orders successfully cancelled.",
		}),
		orderBookDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "matchd",
			Name:      "orderbook_depth",
			Help:      "Resting order count by symbol and side.",
		}, []string{"symbol", "side"}),
		matchingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "matchd",
			Name:      "matching_latency_nanoseconds",
			Help:      "Wall-clock time spent inside one Submit call.",
			Buckets:   []float64{100, 250, 500, 1000, 2500, 5000, 10000, 25000, 50000, 100000},
		}),
		eventsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matchd",
			Name:      "events_delivered_total",
			Help:      "Events handed to a session's outbound channel.",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matchd",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a session's outbound channel was full.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "matchd",
			Name:      "goroutines",
			Help:      "Live goroutine count, sampled periodically.",
		}),
	}

	registry.MustRegister(
		m.ordersAdmitted, m.ordersRejected, m.tradesExecuted, m.cancelsAccepted,
		m.orderBookDepth, m.matchingLatency, m.eventsDelivered, m.eventsDropped, m.goroutines,
	)
	return m
}

// Registerer exposes the private registry so other packages (notify.Hub)
// can register their own collectors on the same /metrics endpoint.
func (m *Metrics) Registerer() prometheus.Registerer { return m.registerer }

// Serve starts the /metrics HTTP endpoint and blocks until ctx is
// cancelled or the listener errors.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	m.logger.Info("metrics server starting", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// CollectRuntimeStats samples runtime.NumGoroutine on ticker until ctx
// is cancelled.
func (m *Metrics) CollectRuntimeStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.goroutines.Set(float64(runtime.NumGoroutine()))
		}
	}
}

func (m *Metrics) RecordOrderAdmitted()              { m.ordersAdmitted.Inc() }
func (m *Metrics) RecordOrderRejected(reason string) { m.ordersRejected.WithLabelValues(reason).Inc() }
func (m *Metrics) RecordTrade()                      { m.tradesExecuted.Inc() }
func (m *Metrics) RecordCancel()                     { m.cancelsAccepted.Inc() }
func (m *Metrics) RecordMatchingLatency(ns float64)  { m.matchingLatency.Observe(ns) }
func (m *Metrics) SetDepth(symbol, side string, depth float64) {
	m.orderBookDepth.WithLabelValues(symbol, side).Set(depth)
}
