package hooks

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsHook implements Prometheus metrics collection
type MetricsHook struct {
	queryDuration *prometheus.HistogramVec
	queryTotal    *prometheus.CounterVec
	queryErrors   *prometheus.CounterVec
}

// NewMetricsHook creates a new metrics hook and registers collectors. Collectors
// already registered on the registry are reused.
func NewMetricsHook(registry prometheus.Registerer) (*MetricsHook, error) {
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opsledger_query_duration_seconds",
			Help:    "Duration of ledger database statements in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation", "table"},
	)
	total := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsledger_queries_total",
			Help: "Total number of ledger database statements",
		},
		[]string{"operation", "table"},
	)
	failed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsledger_query_errors_total",
			Help: "Total number of failed ledger database statements",
		},
		[]string{"operation", "table"},
	)

	h := &MetricsHook{}
	var err error
	if h.queryDuration, err = register(registry, duration); err != nil {
		return nil, err
	}
	if h.queryTotal, err = register(registry, total); err != nil {
		return nil, err
	}
	if h.queryErrors, err = register(registry, failed); err != nil {
		return nil, err
	}
	return h, nil
}

func register[C prometheus.Collector](registry prometheus.Registerer, c C) (C, error) {
	if err := registry.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// BeforeQuery is called before a query is executed
func (h *MetricsHook) BeforeQuery(ctx context.Context, event *QueryEvent) context.Context {
	return ctx
}

// AfterQuery is called after a query is executed
func (h *MetricsHook) AfterQuery(ctx context.Context, event *QueryEvent) {
	op := OperationType(event.Query)
	table := TableName(event.Query)

	h.queryDuration.WithLabelValues(op, table).Observe(event.Duration().Seconds())
	h.queryTotal.WithLabelValues(op, table).Inc()

	if event.Err != nil {
		h.queryErrors.WithLabelValues(op, table).Inc()
	}
}
