package discover

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/DeusData/docgraph/internal/lang"
)

// IGNORE_PATTERNS are directory names to skip during discovery.
var IGNORE_PATTERNS = map[string]bool{
	".cache": true, ".eclipse": true, ".git": true, ".gradle": true,
	".hg": true, ".idea": true, ".kotlin": true, ".maven": true,
	".svn": true, ".tmp": true, ".vscode": true, "bin": true,
	"build": true, "coverage": true, "dist": true, "node_modules": true,
	"out": true, "target": true, "tmp": true, "vendor": true,
}

// IGNORE_SUFFIXES are file suffixes to skip.
var IGNORE_SUFFIXES = map[string]bool{
	".tmp": true, "~": true, ".class": true, ".jar": true,
}

// ignoreFiles are read from the repository root, in order.
var ignoreFiles = []string{".gitignore", ".docgraphignore"}

// FileInfo represents a discovered source file.
type FileInfo struct {
	Path     string        // absolute path
	RelPath  string        // relative to repo root, slash separated
	Language lang.Language // detected language
}

// Options configures file discovery.
type Options struct {
	IgnoreFile string // extra gitignore-style file (optional)
	// Languages restricts discovery; empty means all registered languages.
	Languages []lang.Language
}

// matcher combines the gitignore-style rules found for a repository.
type matcher struct {
	rules []*ignore.GitIgnore
}

func (m *matcher) match(rel string, isDir bool) bool {
	if rel == "." || rel == "" {
		return false
	}
	if isDir {
		rel += "/"
	}
	for _, r := range m.rules {
		if r.MatchesPath(rel) {
			return true
		}
	}
	return false
}

func loadMatcher(repoPath string, opts *Options) *matcher {
	m := &matcher{}
	paths := make([]string, 0, len(ignoreFiles)+1)
	for _, name := range ignoreFiles {
		paths = append(paths, filepath.Join(repoPath, name))
	}
	if opts != nil && opts.IgnoreFile != "" {
		paths = append(paths, opts.IgnoreFile)
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		gi, err := ignore.CompileIgnoreFile(p)
		if err != nil || gi == nil {
			continue
		}
		m.rules = append(m.rules, gi)
	}
	return m
}

// shouldSkipDir returns true if the directory should be skipped during discovery.
func shouldSkipDir(name, rel string, m *matcher) bool {
	if IGNORE_PATTERNS[name] {
		return true
	}
	return m.match(rel, true)
}

func wanted(l lang.Language, opts *Options) bool {
	if opts == nil || len(opts.Languages) == 0 {
		return true
	}
	for _, want := range opts.Languages {
		if want == l {
			return true
		}
	}
	return false
}

// Discover walks a repository and returns all source files in lexical order.
func Discover(ctx context.Context, repoPath string, opts *Options) ([]FileInfo, error) {
	repoPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := loadMatcher(repoPath, opts)

	var files []FileInfo

	err = filepath.Walk(repoPath, func(path string, info os.FileInfo, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if walkErr != nil {
			return filepath.SkipDir
		}

		rel, _ := filepath.Rel(repoPath, path)
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if path != repoPath && shouldSkipDir(info.Name(), rel, m) {
				return filepath.SkipDir
			}
			return nil
		}

		for suffix := range IGNORE_SUFFIXES {
			if strings.HasSuffix(path, suffix) {
				return nil
			}
		}
		if m.match(rel, false) {
			return nil
		}

		l, ok := lang.LanguageForExtension(filepath.Ext(path))
		if ok && wanted(l, opts) {
			files = append(files, FileInfo{
				Path:     path,
				RelPath:  rel,
				Language: l,
			})
		}
		return nil
	})

	return files, err
}
