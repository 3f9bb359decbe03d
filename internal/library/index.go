// Package library indexes analyzed library methods and exposes their
// integration summaries to the linker.
package library

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/DeusData/docgraph/internal/domain"
)

// Source lists every persisted library node. *store.Store satisfies it.
type Source interface {
	AllLibraryNodes() ([]*domain.LibraryNode, error)
}

// Index resolves library methods by FQN. Reads are cheap and concurrent;
// Add takes the write lock.
type Index struct {
	mu               sync.RWMutex
	byMethodFQN      map[string]*domain.LibraryNode
	byClassAndMethod map[string]*domain.LibraryNode
}

// NewIndex builds an index over nodes. Only methods are indexed.
func NewIndex(nodes []*domain.LibraryNode) *Index {
	idx := &Index{
		byMethodFQN:      make(map[string]*domain.LibraryNode),
		byClassAndMethod: make(map[string]*domain.LibraryNode),
	}
	for _, n := range nodes {
		idx.add(n)
	}
	return idx
}

// Load builds an index from every library node in src.
func Load(src Source) (*Index, error) {
	nodes, err := src.AllLibraryNodes()
	if err != nil {
		return nil, fmt.Errorf("load library nodes: %w", err)
	}
	idx := NewIndex(nodes)
	slog.Info("library.index", "methods", idx.Len())
	return idx, nil
}

// Add indexes one more node.
func (i *Index) Add(n *domain.LibraryNode) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.add(n)
}

func (i *Index) add(n *domain.LibraryNode) {
	if n == nil || n.Kind != domain.KindMethod {
		return
	}
	i.byMethodFQN[n.FQN] = n
	if cls, method, ok := splitMethodFQN(n.FQN); ok {
		i.byClassAndMethod[classMethodKey(cls, method)] = n
	}
}

// Len returns the number of indexed methods.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.byMethodFQN)
}

// FindByMethodFQN returns the method with the exact FQN.
func (i *Index) FindByMethodFQN(fqn string) *domain.LibraryNode {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.byMethodFQN[fqn]
}

// FindByClassAndMethod looks a method up by its declaring class and name.
// Nested classes may be given with '.' or '$'.
func (i *Index) FindByClassAndMethod(classFQN, method string) *domain.LibraryNode {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.byClassAndMethod[classMethodKey(classFQN, method)]
}

// IsParentClient reports whether the method is the outermost integration entry point.
func (i *Index) IsParentClient(methodFQN string) bool {
	n := i.FindByMethodFQN(methodFQN)
	if n == nil {
		return false
	}
	a, ok := domain.IntegrationAnalysisFromMeta(n.Meta[domain.MetaIntegrationAnalysis])
	return ok && a.IsParentClient
}

func splitMethodFQN(fqn string) (string, string, bool) {
	dot := strings.LastIndexByte(fqn, '.')
	if dot <= 0 || dot == len(fqn)-1 {
		return "", "", false
	}
	return fqn[:dot], fqn[dot+1:], true
}

func classMethodKey(classFQN, method string) string {
	return strings.ReplaceAll(classFQN, "$", ".") + "#" + method
}
