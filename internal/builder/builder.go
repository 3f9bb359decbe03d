// Package builder orchestrates one application build: walk the sources,
// plan and execute declaration commands, then link, all inside a single
// store transaction.
package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DeusData/docgraph/internal/domain"
	"github.com/DeusData/docgraph/internal/graph"
	"github.com/DeusData/docgraph/internal/library"
	"github.com/DeusData/docgraph/internal/linker"
	"github.com/DeusData/docgraph/internal/metrics"
	"github.com/DeusData/docgraph/internal/nodebuild"
	"github.com/DeusData/docgraph/internal/planner"
	"github.com/DeusData/docgraph/internal/store"
	"github.com/DeusData/docgraph/internal/walker"
)

// ErrUnknownApplication is returned by Link for an application never built.
var ErrUnknownApplication = errors.New("unknown application")

// Options configures a Builder.
type Options struct {
	// StrictValidation makes the first invalid declaration abort the build.
	// Otherwise invalid declarations are recorded and skipped.
	StrictValidation bool
	// DeferLink leaves linking to a separate Link call.
	DeferLink   bool
	NodeBuild   nodebuild.Options
	LinkWorkers int
	Walker      walker.Options
	Refiners    graph.RefinerChain
}

// BuildResult summarizes one build.
type BuildResult struct {
	RunID               string
	App                 string
	Files               int
	Decls               int
	NodesCreated        int64
	NodesUpdated        int64
	NodesSkipped        int64
	EdgesWritten        int
	LibraryEdgesWritten int
	Linking             *linker.LinkingStats
	Errors              []string
	Duration            time.Duration
}

// Builder builds application graphs. Builds of different applications may
// run concurrently; builds of the same application are serialized.
type Builder struct {
	store *store.Store
	libs  *library.Index
	opts  Options

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Builder. libs may be nil, which disables integration linking.
func New(s *store.Store, libs *library.Index, opts Options) *Builder {
	return &Builder{store: s, libs: libs, opts: opts, locks: map[string]*sync.Mutex{}}
}

func (b *Builder) lock(app string) func() {
	b.mu.Lock()
	l, ok := b.locks[app]
	if !ok {
		l = &sync.Mutex{}
		b.locks[app] = l
	}
	b.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Build builds application app from the sources under root. The classpath
// is recorded but never used for resolution. Persistence errors roll the
// whole build back.
func (b *Builder) Build(ctx context.Context, app, root string, classpath []string) (*BuildResult, error) {
	unlock := b.lock(app)
	defer unlock()

	start := time.Now()
	res := &BuildResult{RunID: uuid.NewString(), App: app}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	log := slog.With("run", res.RunID, "app", app)
	log.Info("build.start", "root", absRoot, "classpath", len(classpath))

	err = b.store.WithTransaction(func(tx *store.Store) error {
		application, err := tx.UpsertApplication(app, filepath.Base(absRoot), absRoot)
		if err != nil {
			return err
		}
		nb, err := nodebuild.New(tx, b.opts.NodeBuild)
		if err != nil {
			return err
		}
		exec := graph.NewExecutor(application.ID, graph.NewState(), nb, b.opts.Refiners)

		wopts := b.opts.Walker
		onFileError := wopts.OnFileError
		wopts.OnFileError = func(path string, err error) {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", path, err))
			if onFileError != nil {
				onFileError(path, err)
			}
		}

		walkStart := time.Now()
		sum, err := walker.New(wopts).Walk(ctx, absRoot, func(decl domain.RawDecl) error {
			for _, cmd := range planner.Plan(decl) {
				if err := exec.Execute(ctx, cmd); err != nil {
					if nodebuild.IsValidation(err) && !b.opts.StrictValidation {
						res.Errors = append(res.Errors, err.Error())
						log.Warn("build.invalid", "err", err)
						continue
					}
					return err
				}
			}
			return nil
		}, classpath)
		res.Files, res.Decls = sum.Files, sum.Decls
		if err != nil {
			return err
		}
		metrics.BuildDuration.WithLabelValues("walk").Observe(time.Since(walkStart).Seconds())

		stats := nb.Stats()
		res.NodesCreated, res.NodesUpdated, res.NodesSkipped = stats.Created, stats.Updated, stats.Skipped
		if b.opts.DeferLink {
			return nil
		}

		linkStart := time.Now()
		lr, err := b.linker(tx, nb).Link(ctx, application)
		if err != nil {
			return fmt.Errorf("link: %w", err)
		}
		metrics.BuildDuration.WithLabelValues("link").Observe(time.Since(linkStart).Seconds())
		res.EdgesWritten, res.LibraryEdgesWritten = lr.EdgesWritten, lr.LibraryEdgesWritten
		res.Linking = &lr.Stats
		// Virtual nodes are created during linking.
		stats = nb.Stats()
		res.NodesCreated, res.NodesUpdated, res.NodesSkipped = stats.Created, stats.Updated, stats.Skipped
		return nil
	})
	res.Duration = time.Since(start)
	if err != nil {
		log.Error("build.failed", "err", err, "elapsed", res.Duration)
		return res, fmt.Errorf("build %s: %w", app, err)
	}
	metrics.BuildDuration.WithLabelValues("total").Observe(res.Duration.Seconds())
	log.Info("build.done", "files", res.Files, "decls", res.Decls,
		"created", res.NodesCreated, "updated", res.NodesUpdated, "skipped", res.NodesSkipped,
		"edges", res.EdgesWritten, "library_edges", res.LibraryEdgesWritten,
		"errors", len(res.Errors), "elapsed", res.Duration)
	return res, nil
}

func (b *Builder) linker(tx *store.Store, nb *nodebuild.Builder) *linker.Linker {
	return linker.New(tx, tx, tx, nb, b.libs, linker.Options{Concurrency: b.opts.LinkWorkers})
}

// Link re-links an already built application in its own transaction.
func (b *Builder) Link(ctx context.Context, app string) (*linker.Result, error) {
	unlock := b.lock(app)
	defer unlock()

	var res *linker.Result
	err := b.store.WithTransaction(func(tx *store.Store) error {
		application, err := tx.GetApplication(app)
		if err != nil {
			return err
		}
		if application == nil {
			return fmt.Errorf("%w: %s", ErrUnknownApplication, app)
		}
		nb, err := nodebuild.New(tx, b.opts.NodeBuild)
		if err != nil {
			return err
		}
		res, err = b.linker(tx, nb).Link(ctx, application)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("link %s: %w", app, err)
	}
	return res, nil
}
