// Package metrics counts sync outcomes on a per-instance Prometheus registry.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/adamavenir/streamsync/internal/reconcile"
	"github.com/adamavenir/streamsync/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry *prometheus.Registry

	inserted      prometheus.Counter
	reconciled    prometheus.Counter
	duplicates    prometheus.Counter
	stale         prometheus.Counter
	fetchFailures *prometheus.CounterVec
	events        *prometheus.CounterVec
	unread        prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		inserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamsync_messages_inserted_total",
			Help: "Confirmed messages inserted without an optimistic match.",
		}),
		reconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamsync_messages_reconciled_total",
			Help: "Optimistic messages replaced by their confirmed counterpart.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamsync_duplicate_deliveries_total",
			Help: "Confirmed messages dropped because their id was already loaded.",
		}),
		stale: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamsync_stale_responses_discarded_total",
			Help: "Page responses discarded because the conversation changed.",
		}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamsync_page_fetch_failures_total",
			Help: "Failed page fetches by kind (initial, older, jump).",
		}, []string{"kind"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamsync_events_total",
			Help: "Inbound socket events routed, by kind.",
		}, []string{"kind"}),
		unread: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamsync_unread_messages",
			Help: "Unread messages in the open conversation.",
		}),
	}
	m.Registry.MustRegister(m.inserted, m.reconciled, m.duplicates, m.stale, m.fetchFailures, m.events, m.unread)
	return m
}

// Result records the outcome of a reconciliation.
func (m *Metrics) Result(res reconcile.Result) {
	if m == nil {
		return
	}
	switch res.Outcome {
	case reconcile.Inserted:
		m.inserted.Inc()
	case reconcile.Replaced:
		m.reconciled.Inc()
	case reconcile.Duplicate:
		m.duplicates.Inc()
	}
}

func (m *Metrics) StaleDiscarded() {
	if m == nil {
		return
	}
	m.stale.Inc()
}

func (m *Metrics) FetchFailed(kind string) {
	if m == nil {
		return
	}
	m.fetchFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) Event(kind types.EventKind) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) SetUnread(n int) {
	if m == nil {
		return
	}
	m.unread.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx ends.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
