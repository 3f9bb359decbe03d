package bytecode

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// maxClassBytes skips absurdly large entries instead of reading them into memory.
const maxClassBytes = 16 << 20

// Analysis is everything found in one artifact. It shares no state with
// other analyses, so artifacts can be analyzed in parallel.
type Analysis struct {
	Classes   []*ClassFile
	Sites     map[MethodID][]Site // direct sites per method
	Graph     *CallGraph
	Summaries map[MethodID]*MethodSummary
	Errors    []error // unreadable entries and method bodies
}

// Analyze scans the classes of one artifact: direct sites first, then the
// call graph rollup. Static initializers are not scanned.
func Analyze(classes []*ClassFile) *Analysis {
	a := &Analysis{
		Classes: classes,
		Sites:   map[MethodID][]Site{},
		Graph:   NewCallGraph(),
	}
	for _, c := range classes {
		for i := range c.Methods {
			m := &c.Methods[i]
			if m.Name == "<clinit>" {
				continue
			}
			sites, err := scanMethod(c, m, a.Graph)
			if err != nil {
				a.Errors = append(a.Errors, err)
			}
			if len(sites) > 0 {
				id := MethodID{Owner: c.ThisClass, Name: m.Name, Descriptor: m.Descriptor}
				a.Sites[id] = sites
			}
		}
	}
	a.Summaries = rollup(a.Graph, a.Sites)
	return a
}

// Summary returns the rolled-up summary of a method, or nil when it reaches
// no integration.
func (a *Analysis) Summary(id MethodID) *MethodSummary { return a.Summaries[id] }

// AnalyzeJar opens a jar and analyzes its classes.
func AnalyzeJar(ctx context.Context, path string) (*Analysis, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open jar %s: %w", path, err)
	}
	defer zr.Close()
	return AnalyzeZip(ctx, &zr.Reader)
}

// AnalyzeZip analyzes the classes of an opened archive.
func AnalyzeZip(ctx context.Context, zr *zip.Reader) (*Analysis, error) {
	classes, readErrs, err := ReadClasses(ctx, zr)
	if err != nil {
		return nil, err
	}
	a := Analyze(classes)
	a.Errors = append(readErrs, a.Errors...)
	slog.Debug("bytecode.analyzed", "classes", len(classes), "methods", a.Graph.Len(),
		"sites", len(a.Sites), "summaries", len(a.Summaries), "errors", len(a.Errors))
	return a, nil
}

// ReadClasses parses every class entry of an archive. Entries that fail to
// parse are returned as errors and skipped; only cancellation aborts.
// Module descriptors, package-info and multi-release variants are ignored.
func ReadClasses(ctx context.Context, zr *zip.Reader) ([]*ClassFile, []error, error) {
	var classes []*ClassFile
	var errs []error
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		name := f.Name
		if !strings.HasSuffix(name, ".class") ||
			strings.HasPrefix(name, "META-INF/") ||
			strings.HasSuffix(name, "module-info.class") ||
			strings.HasSuffix(name, "package-info.class") {
			continue
		}
		if f.UncompressedSize64 > maxClassBytes {
			errs = append(errs, fmt.Errorf("%s: entry too large (%d bytes)", name, f.UncompressedSize64))
			continue
		}
		c, err := readClass(f)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		classes = append(classes, c)
	}
	return classes, errs, nil
}

func readClass(f *zip.File) (*ClassFile, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxClassBytes))
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
