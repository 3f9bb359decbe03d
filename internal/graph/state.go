// Package graph turns planned declaration commands into persisted nodes.
// It owns the per-build lookup state, FQN rules, kind refinement and API
// metadata extraction.
package graph

import "github.com/DeusData/docgraph/internal/domain"

// typeEntry keeps the raw declaration next to its node so member handlers can
// read owner annotations.
type typeEntry struct {
	node *domain.Node
	raw  domain.RawType
}

// State is the lookup state of one build. It is not safe for concurrent use.
type State struct {
	packages    map[string]*domain.Node
	types       map[string]typeEntry
	functions   map[string]*domain.Node
	filePackage map[string]string
	fileImports map[string][]string
	fileUnits   map[string]domain.RawFileUnit
}

// NewState returns empty build state.
func NewState() *State {
	return &State{
		packages:    make(map[string]*domain.Node),
		types:       make(map[string]typeEntry),
		functions:   make(map[string]*domain.Node),
		filePackage: make(map[string]string),
		fileImports: make(map[string][]string),
		fileUnits:   make(map[string]domain.RawFileUnit),
	}
}

// GetOrPutPackage returns the package node for fqn, creating it with supplier
// on first use. A supplier error leaves the state unchanged.
func (s *State) GetOrPutPackage(fqn string, supplier func() (*domain.Node, error)) (*domain.Node, error) {
	if n, ok := s.packages[fqn]; ok {
		return n, nil
	}
	n, err := supplier()
	if err != nil {
		return nil, err
	}
	s.packages[fqn] = n
	return n, nil
}

// Package returns a package node seen in this build, or nil.
func (s *State) Package(fqn string) *domain.Node { return s.packages[fqn] }

// PutType records a type node and its raw declaration.
func (s *State) PutType(fqn string, n *domain.Node, raw domain.RawType) {
	s.types[fqn] = typeEntry{node: n, raw: raw}
}

// Type returns a type node seen in this build, or nil.
func (s *State) Type(fqn string) *domain.Node { return s.types[fqn].node }

// RawType returns the raw declaration of a type seen in this build.
func (s *State) RawType(fqn string) (domain.RawType, bool) {
	e, ok := s.types[fqn]
	return e.raw, ok
}

// PutFunction records a function node.
func (s *State) PutFunction(fqn string, n *domain.Node) { s.functions[fqn] = n }

// Function returns a function node seen in this build, or nil.
func (s *State) Function(fqn string) *domain.Node { return s.functions[fqn] }

// RememberFile stores the package, imports and unit of a source file.
func (s *State) RememberFile(u domain.RawFileUnit) {
	s.filePackage[u.FilePath] = u.PkgFQN
	s.fileImports[u.FilePath] = u.Imports
	s.fileUnits[u.FilePath] = u
}

// FilePackage returns the package declared by a file.
func (s *State) FilePackage(path string) string { return s.filePackage[path] }

// FileImports returns the imports declared by a file.
func (s *State) FileImports(path string) []string { return s.fileImports[path] }

// FileUnit returns the remembered compilation unit of a file.
func (s *State) FileUnit(path string) (domain.RawFileUnit, bool) {
	u, ok := s.fileUnits[path]
	return u, ok
}

// Counts returns how many packages, types and functions the build has seen.
func (s *State) Counts() (packages, types, functions int) {
	return len(s.packages), len(s.types), len(s.functions)
}
