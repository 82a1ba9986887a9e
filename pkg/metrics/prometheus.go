// Package metrics provides Prometheus instrumentation for frameunion pipelines.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RowsProcessed counts rows passing through each stage.
	RowsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frameunion_rows_processed_total",
		Help: "Total number of rows processed by stage",
	}, []string{"operator_id", "operator_name"})

	// DatasetsUnioned counts datasets folded into a union result.
	DatasetsUnioned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frameunion_datasets_unioned_total",
		Help: "Total number of datasets folded into union results",
	}, []string{"operator_id", "engine"})

	// AlignedInputs counts union inputs whose columns already matched the result.
	AlignedInputs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frameunion_aligned_inputs_total",
		Help: "Total number of union inputs that needed no padding or reordering",
	}, []string{"operator_id", "engine"})

	// PaddedColumns counts null columns added to align inputs.
	PaddedColumns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frameunion_padded_columns_total",
		Help: "Total number of null-filled columns added to align union inputs",
	}, []string{"operator_id", "engine"})

	// UnionLatency tracks how long a union flush takes.
	UnionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "frameunion_union_latency_seconds",
		Help:    "Latency of union execution in seconds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
	}, []string{"operator_id", "engine"})

	// Errors counts errors by stage.
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frameunion_errors_total",
		Help: "Total number of errors by stage",
	}, []string{"operator_id", "operator_name"})
)

// ServeMetrics starts an HTTP server on the given address to serve
// Prometheus metrics at /metrics.
func ServeMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go server.ListenAndServe()
	return server
}
