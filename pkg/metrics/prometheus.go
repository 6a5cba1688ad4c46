// Package metrics provides a Prometheus-backed observer for the store.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/reduxgo/redux/pkg/api"
)

// PrometheusObserver implements both observer interfaces and exports:
//
//	redux_dispatches_total{kind,result}     counter
//	redux_state_changes_total               counter
//	redux_dispatch_duration_seconds{kind}   histogram
//
// result is one of "ok", "failed" or "aborted".
type PrometheusObserver[S any] struct {
	dispatches   *prometheus.CounterVec
	stateChanges prometheus.Counter
	duration     *prometheus.HistogramVec

	mu      sync.Mutex
	started map[uint64]time.Time
}

var _ api.ActionObserver[int] = (*PrometheusObserver[int])(nil)
var _ api.StateObserver[int] = (*PrometheusObserver[int])(nil)

// NewPrometheusObserver registers the metrics with reg and returns the
// observer. If reg is nil, prometheus.DefaultRegisterer is used.
func NewPrometheusObserver[S any](reg prometheus.Registerer) *PrometheusObserver[S] {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusObserver[S]{
		dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "redux_dispatches_total",
			Help: "Dispatched actions by kind and result.",
		}, []string{"kind", "result"}),
		stateChanges: factory.NewCounter(prometheus.CounterOpts{
			Name: "redux_state_changes_total",
			Help: "Committed state changes.",
		}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redux_dispatch_duration_seconds",
			Help:    "Dispatch lifecycle duration by kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		started: make(map[uint64]time.Time),
	}
}

func (o *PrometheusObserver[S]) OnDispatchStart(ctx context.Context, kind api.Kind, dispatchID uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started[dispatchID] = time.Now()
}

func (o *PrometheusObserver[S]) OnDispatchEnd(ctx context.Context, kind api.Kind, dispatchID uint64, status api.ActionStatus) {
	o.mu.Lock()
	start, ok := o.started[dispatchID]
	delete(o.started, dispatchID)
	o.mu.Unlock()

	result := "ok"
	switch {
	case status.Aborted:
		result = "aborted"
	case status.IsCompletedFailed():
		result = "failed"
	}
	o.dispatches.WithLabelValues(string(kind), result).Inc()
	if ok {
		o.duration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	}
}

func (o *PrometheusObserver[S]) OnStateChange(ctx context.Context, kind api.Kind, dispatchID uint64, prev, next S, err error) {
	if err == nil {
		o.stateChanges.Inc()
	}
}
