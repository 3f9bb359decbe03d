// Package walker parses Kotlin and Java sources and emits raw declarations.
package walker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/DeusData/docgraph/internal/discover"
	"github.com/DeusData/docgraph/internal/domain"
	"github.com/DeusData/docgraph/internal/lang"
	"github.com/DeusData/docgraph/internal/parser"
)

// ErrInvalidRoot is returned when the walk root is not a directory.
var ErrInvalidRoot = errors.New("walker: source root must be a directory")

// Visitor receives declarations in emission order. A non-nil error stops the walk.
type Visitor func(decl domain.RawDecl) error

// Options configures a Walker.
type Options struct {
	// IgnoreFile is an extra gitignore-style file applied on top of
	// .gitignore and .docgraphignore.
	IgnoreFile string
	Languages  []lang.Language
	// OnFileError is called for files that cannot be read or parsed.
	// The file is skipped and the walk continues.
	OnFileError func(path string, err error)
}

// Summary describes a finished walk.
type Summary struct {
	Root      string
	Files     int
	Failed    int
	Decls     int
	Classpath []string
	Elapsed   time.Duration
}

// Walker walks a source tree.
type Walker struct {
	opts Options
}

// New creates a Walker.
func New(opts Options) *Walker {
	return &Walker{opts: opts}
}

// Walk is a convenience wrapper around a default Walker.
func Walk(ctx context.Context, root string, visit Visitor, classpath []string) error {
	_, err := New(Options{}).Walk(ctx, root, visit, classpath)
	return err
}

// Walk parses every supported file under root in lexical order and passes
// the resulting declarations to visit. The classpath is recorded in the
// summary and never used for symbol resolution.
func (w *Walker) Walk(ctx context.Context, root string, visit Visitor, classpath []string) (Summary, error) {
	start := time.Now()
	sum := Summary{Root: root, Classpath: append([]string(nil), classpath...)}

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return sum, fmt.Errorf("%w: %s", ErrInvalidRoot, root)
	}

	slog.Info("walker.start", "root", root, "classpath", len(classpath))

	files, err := discover.Discover(ctx, root, &discover.Options{
		IgnoreFile: w.opts.IgnoreFile,
		Languages:  w.opts.Languages,
	})
	if err != nil {
		return sum, fmt.Errorf("discover: %w", err)
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		decls, err := w.parseFile(f)
		if err != nil {
			sum.Failed++
			slog.Warn("walker.file.err", "path", f.RelPath, "err", err)
			if w.opts.OnFileError != nil {
				w.opts.OnFileError(f.RelPath, err)
			}
			continue
		}
		sum.Files++
		for _, d := range decls {
			if err := visit(d); err != nil {
				return sum, err
			}
			sum.Decls++
		}
	}

	sum.Elapsed = time.Since(start)
	slog.Info("walker.done", "files", sum.Files, "failed", sum.Failed, "decls", sum.Decls, "elapsed", sum.Elapsed)
	return sum, nil
}

func (w *Walker) parseFile(f discover.FileInfo) ([]domain.RawDecl, error) {
	source, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	return ParseSource(f.Language, f.RelPath, source)
}

// ParseSource extracts the declarations of a single compilation unit.
func ParseSource(l lang.Language, path string, source []byte) ([]domain.RawDecl, error) {
	spec := lang.ForLanguage(l)
	if spec == nil {
		return nil, fmt.Errorf("unsupported language: %s", l)
	}
	tree, err := parser.Parse(l, source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, fmt.Errorf("empty parse tree: %s", path)
	}
	if root.HasError() {
		slog.Debug("walker.parse.partial", "path", path)
	}

	e := newExtractor(l, spec, path, source)
	return e.extract(root), nil
}
