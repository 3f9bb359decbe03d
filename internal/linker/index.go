package linker

import (
	"strings"
	"sync"

	"github.com/DeusData/docgraph/internal/domain"
)

// NodeIndex is the in-memory view of one application's nodes used during a
// link pass. Virtual nodes are added while strategies run, so every access
// goes through the mutex.
type NodeIndex struct {
	mu       sync.RWMutex
	byFQN    map[string]*domain.Node
	bySimple map[string][]*domain.Node
	// byBaseFQN maps binary-style names (Outer$Inner) to their source FQN.
	byBaseFQN map[string]*domain.Node
}

// NewNodeIndex indexes nodes.
func NewNodeIndex(nodes []*domain.Node) *NodeIndex {
	idx := &NodeIndex{
		byFQN:     make(map[string]*domain.Node, len(nodes)),
		bySimple:  make(map[string][]*domain.Node),
		byBaseFQN: make(map[string]*domain.Node),
	}
	idx.AddNodes(nodes...)
	return idx
}

// AddNodes indexes additional nodes. Re-adding an FQN replaces the old entry.
func (x *NodeIndex) AddNodes(nodes ...*domain.Node) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if old, ok := x.byFQN[n.FQN]; ok {
			x.removeSimple(old)
		}
		x.byFQN[n.FQN] = n
		if n.Name != "" {
			x.bySimple[n.Name] = append(x.bySimple[n.Name], n)
		}
		if isTypeNode(n) {
			x.byBaseFQN[binaryName(n)] = n
		}
	}
}

func (x *NodeIndex) removeSimple(old *domain.Node) {
	list := x.bySimple[old.Name]
	for i, n := range list {
		if n == old {
			x.bySimple[old.Name] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Get returns the node with exactly this FQN.
func (x *NodeIndex) Get(fqn string) *domain.Node {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if n, ok := x.byFQN[fqn]; ok {
		return n
	}
	return x.byBaseFQN[fqn]
}

// BySimpleName returns every node with the given simple name.
func (x *NodeIndex) BySimpleName(name string) []*domain.Node {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return append([]*domain.Node(nil), x.bySimple[name]...)
}

// Nodes returns a snapshot of all indexed nodes.
func (x *NodeIndex) Nodes() []*domain.Node {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]*domain.Node, 0, len(x.byFQN))
	for _, n := range x.byFQN {
		out = append(out, n)
	}
	return out
}

// Len returns the number of indexed nodes.
func (x *NodeIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byFQN)
}

func isTypeNode(n *domain.Node) bool {
	if n == nil {
		return false
	}
	if n.IsType() {
		return true
	}
	return n.MetaString(domain.MetaSource) == "" && n.Kind.IsTypeKind()
}

func isFunctionNode(n *domain.Node) bool {
	return n != nil && n.IsFunction()
}

func isInterface(n *domain.Node) bool {
	return n.Kind == domain.KindInterface || n.MetaString(domain.MetaDeclKind) == "interface"
}

// binaryName renders a nested type FQN the way class files name it.
func binaryName(n *domain.Node) string {
	owner := n.MetaString(domain.MetaOwnerFQN)
	if owner == "" || !strings.HasPrefix(n.FQN, owner+".") {
		return n.FQN
	}
	return owner + "$" + n.Name
}
