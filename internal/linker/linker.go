// Package linker derives edges between the nodes of one application: structure,
// inheritance, signature dependencies, calls, throws, annotations and the
// integration edges implied by analyzed library methods.
package linker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DeusData/docgraph/internal/domain"
	"github.com/DeusData/docgraph/internal/library"
	"github.com/DeusData/docgraph/internal/metrics"
)

// NodeSource lists the nodes of an application. *store.Store satisfies it.
type NodeSource interface {
	AllNodes(appID int64) ([]*domain.Node, error)
}

// EdgeSink persists node edges. *store.Store satisfies it.
type EdgeSink interface {
	UpsertEdgeBatch(edges []*domain.Edge) error
}

// LibraryEdgeSink persists application-to-library edges. *store.Store satisfies it.
type LibraryEdgeSink interface {
	UpsertNodeLibraryEdgeBatch(edges []*domain.NodeLibraryEdge) error
}

// NodeWriter creates virtual nodes and patches node meta. *nodebuild.Builder satisfies it.
type NodeWriter interface {
	Upserter
	PatchMeta(ctx context.Context, appID int64, fqn string, patch map[string]any) (*domain.Node, bool, error)
}

// Options configures a Linker.
type Options struct {
	// Concurrency bounds the number of nodes linked in parallel. Zero means NumCPU.
	Concurrency int
}

// Linker links the nodes of an application.
type Linker struct {
	nodes    NodeSource
	edges    EdgeSink
	libEdges LibraryEdgeSink
	writer   NodeWriter
	libs     *library.Index
	opts     Options
}

// New creates a Linker. libs may be nil, which disables integration linking.
func New(nodes NodeSource, edges EdgeSink, libEdges LibraryEdgeSink, writer NodeWriter, libs *library.Index, opts Options) *Linker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	return &Linker{nodes: nodes, edges: edges, libEdges: libEdges, writer: writer, libs: libs, opts: opts}
}

// LinkingStats summarizes one link pass.
type LinkingStats struct {
	Nodes        int
	Edges        map[string]int // per strategy, after deduplication
	Failures     map[string]int // recovered strategy failures
	VirtualNodes int64
	Enriched     int
	Duration     time.Duration
}

// Result is the outcome of Link.
type Result struct {
	EdgesWritten        int
	LibraryEdgesWritten int
	Stats               LinkingStats
}

// run is the state of one Link call.
type run struct {
	appID   int64
	index   *NodeIndex
	libs    *library.Index
	virtual *VirtualFactory
}

// Link derives and persists the edges of app. Strategy failures are logged
// and counted; persistence errors are returned.
func (l *Linker) Link(ctx context.Context, app *domain.Application) (*Result, error) {
	start := time.Now()
	all, err := l.nodes.AllNodes(app.ID)
	if err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}
	slog.Info("linker.start", "app", app.Key, "nodes", len(all))

	index := NewNodeIndex(all)
	r := &run{
		appID:   app.ID,
		index:   index,
		libs:    l.libs,
		virtual: NewVirtualFactory(app.ID, index, l.writer),
	}

	results := make([]nodeResult, len(all))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Concurrency)
	for i, n := range all {
		if n.MetaString(domain.MetaSource) == domain.SourceLibraryAnalysis {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.linkNode(gctx, n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := LinkingStats{
		Nodes:    len(all),
		Edges:    map[string]int{},
		Failures: map[string]int{},
	}
	edges, libEdges := collect(app.ID, results, &stats)

	if err := l.edges.UpsertEdgeBatch(edges); err != nil {
		return nil, fmt.Errorf("write edges: %w", err)
	}
	if len(libEdges) > 0 {
		if err := l.libEdges.UpsertNodeLibraryEdgeBatch(libEdges); err != nil {
			return nil, fmt.Errorf("write library edges: %w", err)
		}
	}

	enriched, err := l.enrich(ctx, app.ID, all, results)
	if err != nil {
		return nil, err
	}

	stats.VirtualNodes = r.virtual.Created()
	stats.Enriched = enriched
	stats.Duration = time.Since(start)
	metrics.BuildDuration.WithLabelValues("link").Observe(stats.Duration.Seconds())
	slog.Info("linker.done",
		"app", app.Key,
		"edges", len(edges),
		"library_edges", len(libEdges),
		"virtual_nodes", stats.VirtualNodes,
		"enriched", enriched,
		"failures", stats.Failures,
		"elapsed", stats.Duration,
	)
	return &Result{EdgesWritten: len(edges), LibraryEdgesWritten: len(libEdges), Stats: stats}, nil
}

func (r *run) linkNode(ctx context.Context, n *domain.Node) nodeResult {
	var out nodeResult
	nc := r.contextFor(n)
	callsOK := true
	for _, s := range strategies {
		if !r.safely(ctx, s, nc, &out) && s.name == StrategyCall {
			callsOK = false
		}
	}
	if callsOK {
		r.safely(ctx, strategy{StrategyIntegration, linkIntegration}, nc, &out)
	}
	return out
}

// safely runs one strategy for one node. A panic discards that strategy's
// partial output and is reported as a failure.
func (r *run) safely(ctx context.Context, s strategy, nc *nodeContext, out *nodeResult) (ok bool) {
	var local nodeResult
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
			out.failed = append(out.failed, s.name)
			metrics.StrategyFailures.WithLabelValues(s.name).Inc()
			slog.Warn("linker.strategy_failed", "strategy", s.name, "fqn", nc.node.FQN, "err", rec)
			return
		}
		out.edges = append(out.edges, local.edges...)
		out.libEdges = append(out.libEdges, local.libEdges...)
		out.libraries = append(out.libraries, local.libraries...)
	}()
	s.fn(ctx, r, nc, &local)
	return true
}

type edgeKey struct {
	src, dst int64
	kind     domain.EdgeKind
}

type libEdgeKey struct {
	node, lib int64
	kind      domain.EdgeKind
}

// collect flattens per-node results into deduplicated edges in node order.
func collect(appID int64, results []nodeResult, stats *LinkingStats) ([]*domain.Edge, []*domain.NodeLibraryEdge) {
	var edges []*domain.Edge
	var libEdges []*domain.NodeLibraryEdge
	seen := map[edgeKey]bool{}
	seenLib := map[libEdgeKey]bool{}

	for _, res := range results {
		for _, name := range res.failed {
			stats.Failures[name]++
		}
		for _, p := range res.edges {
			if p.src.ID == 0 || p.dst.ID == 0 || p.src.ID == p.dst.ID {
				continue
			}
			k := edgeKey{p.src.ID, p.dst.ID, p.kind}
			if seen[k] {
				continue
			}
			seen[k] = true
			stats.Edges[p.strategy]++
			metrics.EdgesProposed.WithLabelValues(p.strategy, string(p.kind)).Inc()
			strength, confidence := strengthOf(p.strategy)
			edges = append(edges, &domain.Edge{
				AppID:      appID,
				SrcID:      p.src.ID,
				DstID:      p.dst.ID,
				Kind:       p.kind,
				Evidence:   map[string]any{"strategy": p.strategy},
				Explain:    fmt.Sprintf("%s: %s -> %s", p.strategy, p.src.FQN, p.dst.FQN),
				Confidence: confidence,
				Strength:   strength,
			})
		}
		for _, p := range res.libEdges {
			k := libEdgeKey{p.src.ID, p.lib.ID, p.kind}
			if p.src.ID == 0 || p.lib.ID == 0 || seenLib[k] {
				continue
			}
			seenLib[k] = true
			libEdges = append(libEdges, &domain.NodeLibraryEdge{
				NodeID:        p.src.ID,
				LibraryNodeID: p.lib.ID,
				Kind:          p.kind,
				Evidence:      map[string]any{"libraryMethod": p.lib.FQN},
			})
		}
	}
	return edges, libEdges
}

func strengthOf(strategy string) (domain.Strength, float64) {
	switch strategy {
	case StrategyStructural, StrategyInheritance, StrategyAnnotation:
		return domain.StrengthStrong, 1.0
	case StrategyIntegration:
		return domain.StrengthNormal, 0.8
	default:
		return domain.StrengthNormal, 0.9
	}
}

// enrich stores the integration summary of the library methods each function
// calls. A function that no longer calls any integrating method loses its
// summary. Unchanged nodes are not written.
func (l *Linker) enrich(ctx context.Context, appID int64, all []*domain.Node, results []nodeResult) (int, error) {
	enriched := 0
	for i, n := range all {
		if !isFunctionNode(n) {
			continue
		}
		patch := library.Enricher{}.Patch(results[i].libraries)
		if patch == nil {
			if _, had := n.Meta[domain.MetaLibraryIntegration]; !had {
				continue
			}
			patch = map[string]any{domain.MetaLibraryIntegration: nil}
		}
		_, written, err := l.writer.PatchMeta(ctx, appID, n.FQN, patch)
		if err != nil {
			return enriched, fmt.Errorf("enrich %s: %w", n.FQN, err)
		}
		if written {
			enriched++
		}
	}
	return enriched, nil
}
