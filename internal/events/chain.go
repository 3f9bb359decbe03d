package events

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/DeusData/docgraph/internal/builder"
	"github.com/DeusData/docgraph/internal/libbuild"
	"github.com/DeusData/docgraph/internal/linker"
)

// Topics.
const (
	TopicLibraryBuildRequested = "library.build.requested"
	TopicLibraryBuildCompleted = "library.build.completed"
	TopicGraphBuildRequested   = "graph.build.requested"
	TopicGraphBuildCompleted   = "graph.build.completed"
	TopicLinkRequested         = "link.requested"
	TopicLinkCompleted         = "link.completed"
)

// Ingest identifies one chain of events for an application. RunID is shared
// by every event of the chain.
type Ingest struct {
	RunID     string
	App       string
	Root      string
	Classpath []string
}

// NewIngest starts a chain for app.
func NewIngest(app, root string, classpath []string) Ingest {
	return Ingest{RunID: uuid.NewString(), App: app, Root: root, Classpath: classpath}
}

type LibraryBuildRequested struct{ Ingest }

type LibraryBuildCompleted struct {
	Ingest
	Result *libbuild.Result
	Err    error
}

type GraphBuildRequested struct{ Ingest }

type GraphBuildCompleted struct {
	Ingest
	Result *builder.BuildResult
	Err    error
}

type LinkRequested struct{ Ingest }

type LinkCompleted struct {
	Ingest
	Result *linker.Result
	Err    error
}

func (LibraryBuildRequested) Topic() string { return TopicLibraryBuildRequested }
func (LibraryBuildCompleted) Topic() string { return TopicLibraryBuildCompleted }
func (GraphBuildRequested) Topic() string   { return TopicGraphBuildRequested }
func (GraphBuildCompleted) Topic() string   { return TopicGraphBuildCompleted }
func (LinkRequested) Topic() string         { return TopicLinkRequested }
func (LinkCompleted) Topic() string         { return TopicLinkCompleted }

// LibraryBuilder builds library artifacts. *libbuild.Builder satisfies it.
type LibraryBuilder interface {
	BuildAll(ctx context.Context, jars []string) (*libbuild.Result, error)
}

// GraphBuilder builds and links applications. *builder.Builder satisfies it
// and should be configured with DeferLink so linking happens on LinkRequested.
type GraphBuilder interface {
	Build(ctx context.Context, app, root string, classpath []string) (*builder.BuildResult, error)
	Link(ctx context.Context, app string) (*linker.Result, error)
}

// Wire subscribes the ingest chain:
//
//	LibraryBuildRequested -> LibraryBuildCompleted -> GraphBuildRequested
//	GraphBuildRequested   -> GraphBuildCompleted   -> LinkRequested
//	LinkRequested         -> LinkCompleted
//
// A failed library build still requests the graph build, since the graph
// is useful without integration edges. A failed graph build ends the chain.
func Wire(bus *Bus, libs LibraryBuilder, graphs GraphBuilder) {
	bus.Subscribe(TopicLibraryBuildRequested, func(ctx context.Context, ev Event) {
		req := ev.(LibraryBuildRequested)
		var res *libbuild.Result
		jars, err := libbuild.Jars(req.Classpath)
		if err == nil {
			res, err = libs.BuildAll(ctx, jars)
		}
		if err != nil {
			slog.Warn("events.library_build.failed", "run", req.RunID, "app", req.App, "err", err)
		}
		bus.Publish(LibraryBuildCompleted{Ingest: req.Ingest, Result: res, Err: err})
	})
	bus.Subscribe(TopicLibraryBuildCompleted, func(_ context.Context, ev Event) {
		done := ev.(LibraryBuildCompleted)
		bus.Publish(GraphBuildRequested{Ingest: done.Ingest})
	})
	bus.Subscribe(TopicGraphBuildRequested, func(ctx context.Context, ev Event) {
		req := ev.(GraphBuildRequested)
		res, err := graphs.Build(ctx, req.App, req.Root, req.Classpath)
		if err != nil {
			slog.Error("events.graph_build.failed", "run", req.RunID, "app", req.App, "err", err)
		}
		bus.Publish(GraphBuildCompleted{Ingest: req.Ingest, Result: res, Err: err})
	})
	bus.Subscribe(TopicGraphBuildCompleted, func(_ context.Context, ev Event) {
		done := ev.(GraphBuildCompleted)
		if done.Err != nil {
			return
		}
		bus.Publish(LinkRequested{Ingest: done.Ingest})
	})
	bus.Subscribe(TopicLinkRequested, func(ctx context.Context, ev Event) {
		req := ev.(LinkRequested)
		res, err := graphs.Link(ctx, req.App)
		if err != nil {
			slog.Error("events.link.failed", "run", req.RunID, "app", req.App, "err", err)
		} else {
			slog.Info("events.link.done", "run", req.RunID, "app", req.App, "edges", res.EdgesWritten)
		}
		bus.Publish(LinkCompleted{Ingest: req.Ingest, Result: res, Err: err})
	})
}
