// Package nodebuild is the single writer of application nodes. It validates
// and normalizes declarations, hashes their source, and performs an
// idempotent create-or-update-if-changed upsert.
package nodebuild

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/DeusData/docgraph/internal/domain"
	"github.com/DeusData/docgraph/internal/lang"
	"github.com/DeusData/docgraph/internal/metrics"
)

// Repository is the persistence the builder needs. *store.Store satisfies it.
type Repository interface {
	FindNode(appID int64, fqn string) (*domain.Node, error)
	InsertNode(n *domain.Node) error
	UpdateNode(n *domain.Node) error
}

// Input carries one re-derived node. Meta values may be nil to delete a key.
type Input struct {
	AppID       int64           `validate:"gt=0"`
	FQN         string          `validate:"required"`
	Kind        domain.NodeKind `validate:"required,nodekind"`
	Name        string
	PackageName string
	Parent      *domain.Node
	Lang        lang.Language
	FilePath    string
	Span        *domain.Span
	Signature   string
	SourceCode  string
	DocComment  string
	Meta        map[string]any
}

// Options configures a Builder. Zero values select defaults.
type Options struct {
	MaxSourceBytes int
	CacheSize      int
}

const defaultCacheSize = 4096

// Stats counts upsert outcomes.
type Stats struct {
	Created int64
	Updated int64
	Skipped int64
}

type cacheKey struct {
	appID int64
	fqn   string
}

// Builder upserts nodes through a Repository. It is safe for concurrent use;
// upserts are serialized because the repository usually wraps a transaction.
type Builder struct {
	repo     Repository
	maxBytes int
	cache    *lru.Cache[cacheKey, *domain.Node]

	mu      sync.Mutex
	created atomic.Int64
	updated atomic.Int64
	skipped atomic.Int64
}

// New creates a Builder writing to repo.
func New(repo Repository, opts Options) (*Builder, error) {
	if opts.MaxSourceBytes <= 0 {
		opts.MaxSourceBytes = DefaultMaxSourceBytes
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	cache, err := lru.New[cacheKey, *domain.Node](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("node cache: %w", err)
	}
	return &Builder{repo: repo, maxBytes: opts.MaxSourceBytes, cache: cache}, nil
}

// Stats returns a snapshot of the outcome counters.
func (b *Builder) Stats() Stats {
	return Stats{Created: b.created.Load(), Updated: b.updated.Load(), Skipped: b.skipped.Load()}
}

// Lookup returns the stored node for (appID, fqn), or nil if absent.
func (b *Builder) Lookup(appID int64, fqn string) (*domain.Node, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lookup(appID, fqn)
}

func (b *Builder) lookup(appID int64, fqn string) (*domain.Node, error) {
	key := cacheKey{appID, fqn}
	if n, ok := b.cache.Get(key); ok {
		return n, nil
	}
	n, err := b.repo.FindNode(appID, fqn)
	if err != nil {
		return nil, fmt.Errorf("find node %s: %w", fqn, err)
	}
	if n != nil {
		b.cache.Add(key, n)
	}
	return n, nil
}

// Upsert validates in and creates or updates the node it describes. Unchanged
// nodes are returned as stored without a write. Validation failures are
// returned as *ValidationError; anything else is a persistence error.
func (b *Builder) Upsert(ctx context.Context, in Input) (*domain.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateInput(&in); err != nil {
		metrics.NodesUpserted.WithLabelValues("invalid").Inc()
		return nil, err
	}

	src := normalizeNewlines(in.SourceCode)
	hash := hashSource(src)
	span := normalizeSpan(in.Span, src)
	stored := truncate(src, b.maxBytes)
	meta, err := normalizeMeta(in.Meta)
	if err != nil {
		metrics.NodesUpserted.WithLabelValues("invalid").Inc()
		return nil, &ValidationError{FQN: in.FQN, Err: fmt.Errorf("%w: meta: %v", ErrInvalidInput, err)}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	existing, err := b.lookup(in.AppID, in.FQN)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		n := &domain.Node{
			AppID:       in.AppID,
			FQN:         in.FQN,
			Name:        in.Name,
			PackageName: in.PackageName,
			Kind:        in.Kind,
			Lang:        in.Lang,
			ParentID:    parentID(in.Parent),
			FilePath:    in.FilePath,
			SourceCode:  stored,
			DocComment:  in.DocComment,
			Signature:   in.Signature,
			CodeHash:    hash,
			Meta:        mergeMeta(nil, meta),
		}
		if span != nil {
			n.LineStart, n.LineEnd = intPtr(span.Start), intPtr(span.End)
		}
		if err := b.repo.InsertNode(n); err != nil {
			return nil, fmt.Errorf("insert node %s: %w", in.FQN, err)
		}
		b.cache.Add(cacheKey{in.AppID, in.FQN}, n)
		b.created.Add(1)
		metrics.NodesUpserted.WithLabelValues("created").Inc()
		slog.Debug("nodebuild.created", "fqn", n.FQN, "kind", n.Kind)
		return n, nil
	}

	updated, changed := diff(existing, &in, stored, hash, span, meta)
	if !changed {
		b.skipped.Add(1)
		metrics.NodesUpserted.WithLabelValues("skipped").Inc()
		return existing, nil
	}
	if err := b.repo.UpdateNode(updated); err != nil {
		return nil, fmt.Errorf("update node %s: %w", in.FQN, err)
	}
	b.cache.Add(cacheKey{in.AppID, in.FQN}, updated)
	b.updated.Add(1)
	metrics.NodesUpserted.WithLabelValues("updated").Inc()
	slog.Debug("nodebuild.updated", "fqn", updated.FQN)
	return updated, nil
}

// PatchMeta merges patch into the meta of an existing node. The node is only
// written when the merge changes it; the returned flag reports that write.
func (b *Builder) PatchMeta(ctx context.Context, appID int64, fqn string, patch map[string]any) (*domain.Node, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	meta, err := normalizeMeta(patch)
	if err != nil {
		return nil, false, &ValidationError{FQN: fqn, Err: fmt.Errorf("%w: meta: %v", ErrInvalidInput, err)}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	existing, err := b.lookup(appID, fqn)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("patch meta %s: node not found", fqn)
	}
	merged := mergeMeta(existing.Meta, meta)
	if metaEqual(existing.Meta, merged) {
		b.skipped.Add(1)
		metrics.NodesUpserted.WithLabelValues("skipped").Inc()
		return existing, false, nil
	}
	n := *existing
	n.Meta = merged
	if err := b.repo.UpdateNode(&n); err != nil {
		return nil, false, fmt.Errorf("update node %s: %w", fqn, err)
	}
	b.cache.Add(cacheKey{appID, fqn}, &n)
	b.updated.Add(1)
	metrics.NodesUpserted.WithLabelValues("updated").Inc()
	return &n, true, nil
}

// diff returns a copy of existing with the re-derived fields applied and
// whether anything changed. Source follows the content hash. With an equal
// hash a non-nil span still replaces the stored one; a nil span keeps it.
func diff(existing *domain.Node, in *Input, src string, hash *string, span *domain.Span, meta map[string]any) (*domain.Node, bool) {
	n := *existing
	changed := false
	setString := func(dst *string, v string) {
		if *dst != v {
			*dst = v
			changed = true
		}
	}

	setString(&n.Name, in.Name)
	setString(&n.PackageName, in.PackageName)
	setString(&n.FilePath, in.FilePath)
	setString(&n.DocComment, in.DocComment)
	setString(&n.Signature, in.Signature)
	if n.Kind != in.Kind {
		n.Kind = in.Kind
		changed = true
	}
	if n.Lang != in.Lang {
		n.Lang = in.Lang
		changed = true
	}
	if pid := parentID(in.Parent); !equalInt64Ptr(n.ParentID, pid) {
		n.ParentID = pid
		changed = true
	}

	if !equalStringPtr(n.CodeHash, hash) {
		n.CodeHash = hash
		n.SourceCode = src
		n.LineStart, n.LineEnd = nil, nil
		if span != nil {
			n.LineStart, n.LineEnd = intPtr(span.Start), intPtr(span.End)
		}
		changed = true
	} else if span != nil {
		if n.LineStart == nil || *n.LineStart != span.Start {
			n.LineStart = intPtr(span.Start)
			changed = true
		}
		if n.LineEnd == nil || *n.LineEnd != span.End {
			n.LineEnd = intPtr(span.End)
			changed = true
		}
	}

	merged := mergeMeta(existing.Meta, meta)
	if !metaEqual(existing.Meta, merged) {
		n.Meta = merged
		changed = true
	}
	return &n, changed
}

func parentID(p *domain.Node) *int64 {
	if p == nil {
		return nil
	}
	id := p.ID
	return &id
}

func intPtr(v int) *int { return &v }

func equalInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
