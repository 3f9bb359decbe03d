package linker

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/DeusData/docgraph/internal/domain"
	"github.com/DeusData/docgraph/internal/lang"
	"github.com/DeusData/docgraph/internal/metrics"
	"github.com/DeusData/docgraph/internal/nodebuild"
)

// Upserter writes nodes. *nodebuild.Builder satisfies it.
type Upserter interface {
	Upsert(ctx context.Context, in nodebuild.Input) (*domain.Node, error)
}

// VirtualFactory creates the endpoint and topic nodes that integration edges
// point at. Nodes are unique per FQN: a second request returns the node from
// the index without a write.
type VirtualFactory struct {
	mu      sync.Mutex
	index   *NodeIndex
	builder Upserter
	appID   int64
	created atomic.Int64
}

// NewVirtualFactory creates a factory for appID backed by index.
func NewVirtualFactory(appID int64, index *NodeIndex, builder Upserter) *VirtualFactory {
	return &VirtualFactory{index: index, builder: builder, appID: appID}
}

// Created returns how many nodes the factory has written.
func (f *VirtualFactory) Created() int64 { return f.created.Load() }

// EndpointFQN returns the FQN of the endpoint node for url and method.
func EndpointFQN(rawURL, method string) string {
	if method == "" {
		return "endpoint://" + rawURL
	}
	return "endpoint://" + method + " " + rawURL
}

// TopicFQN returns the FQN of the topic node for name.
func TopicFQN(name string) string { return "topic://" + name }

// GetOrCreateEndpoint returns the endpoint node for url and method and
// whether this call created it. A persistence failure yields (nil, false).
func (f *VirtualFactory) GetOrCreateEndpoint(ctx context.Context, rawURL, method string) (*domain.Node, bool) {
	httpMethod := method
	if httpMethod == "" {
		httpMethod = domain.HTTPMethodUnknown
	}
	return f.getOrCreate(ctx, "endpoint", nodebuild.Input{
		FQN:  EndpointFQN(rawURL, method),
		Kind: domain.KindEndpoint,
		Name: endpointName(rawURL),
		Meta: map[string]any{
			domain.MetaURL:        rawURL,
			domain.MetaHTTPMethod: httpMethod,
			domain.MetaSource:     domain.SourceLibraryAnalysis,
		},
	})
}

// GetOrCreateTopic returns the topic node for name and whether this call created it.
func (f *VirtualFactory) GetOrCreateTopic(ctx context.Context, name string) (*domain.Node, bool) {
	return f.getOrCreate(ctx, "topic", nodebuild.Input{
		FQN:  TopicFQN(name),
		Kind: domain.KindTopic,
		Name: name,
		Meta: map[string]any{
			domain.MetaTopic:  name,
			domain.MetaSource: domain.SourceLibraryAnalysis,
		},
	})
}

func (f *VirtualFactory) getOrCreate(ctx context.Context, typ string, in nodebuild.Input) (*domain.Node, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n := f.index.Get(in.FQN); n != nil {
		return n, false
	}
	in.AppID = f.appID
	in.Lang = lang.Java
	n, err := f.builder.Upsert(ctx, in)
	if err != nil {
		slog.Warn("linker.virtual_failed", "fqn", in.FQN, "err", err)
		return nil, false
	}
	f.index.AddNodes(n)
	f.created.Add(1)
	metrics.VirtualNodes.WithLabelValues(typ).Inc()
	return n, true
}

// endpointName is the text after the last '/' of the URL, or the URL itself.
func endpointName(rawURL string) string {
	name := rawURL[strings.LastIndexByte(rawURL, '/')+1:]
	if strings.TrimSpace(name) == "" {
		return rawURL
	}
	return name
}
