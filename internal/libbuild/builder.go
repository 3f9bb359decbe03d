// Package libbuild turns dependency jars into persisted library nodes whose
// methods carry integration summaries from bytecode analysis.
package libbuild

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DeusData/docgraph/internal/bytecode"
	"github.com/DeusData/docgraph/internal/domain"
	"github.com/DeusData/docgraph/internal/library"
	"github.com/DeusData/docgraph/internal/metrics"
	"github.com/DeusData/docgraph/internal/store"
)

// Artifact statuses, used as result keys and metric labels.
const (
	StatusBuilt   = "built"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Store persists libraries and their nodes. *store.Store satisfies it.
type Store interface {
	FindLibrary(c domain.Coordinate) (*domain.Library, error)
	InsertLibrary(lib *domain.Library) error
	InsertLibraryNode(n *domain.LibraryNode) error
}

// Transactor runs fn inside one transaction.
type Transactor func(fn func(Store) error) error

// StoreTx adapts a SQLite store to a Transactor.
func StoreTx(s *store.Store) Transactor {
	return func(fn func(Store) error) error {
		return s.WithTransaction(func(tx *store.Store) error { return fn(tx) })
	}
}

// Options configures a Builder.
type Options struct {
	Workers         int      // parallel artifacts; defaults to NumCPU
	Include         []string // group prefixes to build; empty means all
	Exclude         []string // group prefixes to skip, checked first
	CompanyPrefixes []string // groups classified as internal
}

// Artifact is the outcome for one jar.
type Artifact struct {
	Path       string
	Coordinate domain.Coordinate
	Strategy   string
	Status     string
	Reason     string
	Nodes      int
	Sites      int
}

// Result summarizes a BuildAll run.
type Result struct {
	Processed    int
	Skipped      int
	Failed       int
	NodesCreated int
	Artifacts    []Artifact
	Errors       []string
	Duration     time.Duration
}

// Builder analyzes and persists library artifacts.
type Builder struct {
	tx    Transactor
	index *library.Index
	opts  Options

	// mu serializes persistence; analysis runs in parallel.
	mu sync.Mutex
}

// New creates a Builder. index may be nil; when set, persisted methods are
// added to it so a following link pass sees them.
func New(tx Transactor, index *library.Index, opts Options) *Builder {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Builder{tx: tx, index: index, opts: opts}
}

// BuildAll builds every .jar in jars. Failures are recorded per artifact and
// do not stop the others. The error is non-nil only when ctx is cancelled.
func (b *Builder) BuildAll(ctx context.Context, jars []string) (*Result, error) {
	start := time.Now()
	artifacts := make([]Artifact, len(jars))
	errs := make([][]string, len(jars))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)
	for i, jar := range jars {
		if !strings.EqualFold(filepath.Ext(jar), ".jar") {
			artifacts[i] = Artifact{Path: jar, Status: StatusSkipped, Reason: "not a jar"}
			continue
		}
		g.Go(func() error {
			artifacts[i], errs[i] = b.buildOne(gctx, jar)
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{Artifacts: artifacts}
	for i, a := range artifacts {
		metrics.LibraryArtifacts.WithLabelValues(a.Status).Inc()
		switch a.Status {
		case StatusBuilt:
			res.Processed++
			res.NodesCreated += a.Nodes
		case StatusSkipped:
			res.Skipped++
		case StatusFailed:
			res.Failed++
		}
		res.Errors = append(res.Errors, errs[i]...)
	}
	res.Duration = time.Since(start)
	metrics.BuildDuration.WithLabelValues("libraries").Observe(res.Duration.Seconds())
	slog.Info("library.build.done", "processed", res.Processed, "skipped", res.Skipped,
		"failed", res.Failed, "nodes", res.NodesCreated, "elapsed", res.Duration)
	return res, ctx.Err()
}

// allowed applies the include/exclude group policy.
func (b *Builder) allowed(group string) bool {
	for _, p := range b.opts.Exclude {
		if p != "" && strings.HasPrefix(group, p) {
			return false
		}
	}
	if len(b.opts.Include) == 0 {
		return true
	}
	for _, p := range b.opts.Include {
		if strings.HasPrefix(group, p) {
			return true
		}
	}
	return false
}

func (b *Builder) exists(c domain.Coordinate) (bool, error) {
	var found bool
	err := b.tx(func(s Store) error {
		lib, err := s.FindLibrary(c)
		found = lib != nil
		return err
	})
	return found, err
}

func (b *Builder) buildOne(ctx context.Context, path string) (Artifact, []string) {
	art := Artifact{Path: path}
	fail := func(err error) (Artifact, []string) {
		art.Status = StatusFailed
		art.Reason = err.Error()
		slog.Warn("library.failed", "jar", path, "err", err)
		return art, []string{fmt.Sprintf("%s: %v", path, err)}
	}
	skip := func(reason string) (Artifact, []string) {
		art.Status = StatusSkipped
		art.Reason = reason
		slog.Debug("library.skipped", "jar", path, "reason", reason)
		return art, nil
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return fail(fmt.Errorf("open jar: %w", err))
	}
	defer zr.Close()

	coord, strategy, ok := ParseCoordinate(path, &zr.Reader)
	if !ok {
		return skip("no coordinate")
	}
	art.Coordinate, art.Strategy = coord, strategy
	if !b.allowed(coord.Group) {
		return skip("group filtered")
	}
	if found, err := b.exists(coord); err != nil {
		return fail(err)
	} else if found {
		return skip("already built")
	}

	an, err := bytecode.AnalyzeZip(ctx, &zr.Reader)
	if err != nil {
		return fail(err)
	}
	var errs []string
	for _, e := range an.Errors {
		errs = append(errs, fmt.Sprintf("%s: %v", path, e))
	}

	nodes := extract(an)
	lib := &domain.Library{
		Coordinate: coord,
		Kind:       domain.ClassifyLibrary(coord.Group, b.opts.CompanyPrefixes),
		Meta: map[string]any{
			"strategy": strategy,
			"file":     filepath.Base(path),
			"classes":  len(an.Classes),
		},
	}
	inserted, err := b.persist(lib, nodes)
	if err != nil {
		art, e := fail(err)
		return art, append(errs, e...)
	}
	if !inserted {
		art, _ = skip("already built")
		return art, errs
	}

	for _, s := range an.Sites {
		art.Sites += len(s)
	}
	art.Status = StatusBuilt
	art.Nodes = nodes.len()
	slog.Info("library.built", "coordinate", coord.String(), "strategy", strategy,
		"kind", lib.Kind, "nodes", art.Nodes, "sites", art.Sites, "errors", len(an.Errors))
	return art, errs
}

// persist writes the library and its nodes in one transaction: classes
// first so members can point at them. It reports false when another worker
// inserted the same coordinate first.
func (b *Builder) persist(lib *domain.Library, nodes *extracted) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	inserted := false
	err := b.tx(func(s Store) error {
		existing, err := s.FindLibrary(lib.Coordinate)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}
		if err := s.InsertLibrary(lib); err != nil {
			return err
		}
		ids := make(map[string]int64, len(nodes.classes))
		insert := func(p pendingNode) error {
			p.node.LibraryID = lib.ID
			p.node.ParentID = nil
			if id, ok := ids[p.parentFQN]; ok && p.parentFQN != "" {
				p.node.ParentID = &id
			}
			if err := s.InsertLibraryNode(p.node); err != nil {
				return fmt.Errorf("library node %s: %w", p.node.FQN, err)
			}
			return nil
		}
		for _, p := range nodes.classes {
			if err := insert(p); err != nil {
				return err
			}
			ids[p.node.FQN] = p.node.ID
		}
		for _, p := range nodes.members {
			if err := insert(p); err != nil {
				return err
			}
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("persist %s: %w", lib.Coordinate, err)
	}
	if inserted && b.index != nil {
		for _, p := range nodes.members {
			b.index.Add(p.node)
		}
	}
	return inserted, nil
}

// ErrNoJars is returned by Jars when a directory holds no .jar files.
var ErrNoJars = errors.New("no jar files found")

// Jars expands paths into jar files. Directories are searched recursively.
func Jars(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		err := filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".jar") {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if len(out) == 0 {
		return nil, ErrNoJars
	}
	return out, nil
}
