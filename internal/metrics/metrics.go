// Package metrics holds the process-wide prometheus collectors for graph
// builds. Collectors register on the default registry at init.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// NodesUpserted counts node builder outcomes by result (created, updated, skipped, invalid).
	NodesUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docgraph_nodes_upserted_total",
		Help: "Node builder outcomes by result",
	}, []string{"result"})

	// EdgesProposed counts linker proposals by strategy and edge kind.
	EdgesProposed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docgraph_edges_proposed_total",
		Help: "Edges proposed by the linker by strategy and kind",
	}, []string{"strategy", "kind"})

	// StrategyFailures counts recovered linker strategy failures.
	StrategyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docgraph_strategy_failures_total",
		Help: "Linker strategy failures by strategy",
	}, []string{"strategy"})

	// VirtualNodes counts virtual integration nodes created by type (endpoint, topic).
	VirtualNodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docgraph_virtual_nodes_total",
		Help: "Virtual integration nodes created",
	}, []string{"type"})

	// BuildDuration tracks phase latency (build, link, library).
	BuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docgraph_build_duration_seconds",
		Help:    "Graph build phase duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
	}, []string{"phase"})

	// LibraryArtifacts counts processed jars by status (built, skipped, failed).
	LibraryArtifacts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docgraph_library_artifacts_total",
		Help: "Library artifacts processed by status",
	}, []string{"status"})
)

// Handler returns the HTTP handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
