package bytecode

import (
	"sort"
	"sync"
)

// MethodID identifies a method by its owner's internal name, its name and
// its descriptor.
type MethodID struct {
	Owner      string
	Name       string
	Descriptor string
}

func (m MethodID) String() string { return m.Owner + "." + m.Name + m.Descriptor }

// OwnerFQN returns the owner's binary name with dots.
func (m MethodID) OwnerFQN() string { return InternalToFQN(m.Owner) }

// CallGraph is the static call graph of one artifact. Edges are added while
// scanning; Callers must not be called before all edges are in.
type CallGraph struct {
	forward map[MethodID]map[MethodID]struct{}

	once    sync.Once
	reverse map[MethodID][]MethodID
}

func NewCallGraph() *CallGraph {
	return &CallGraph{forward: map[MethodID]map[MethodID]struct{}{}}
}

// Add records that from invokes to.
func (g *CallGraph) Add(from, to MethodID) {
	out, ok := g.forward[from]
	if !ok {
		out = map[MethodID]struct{}{}
		g.forward[from] = out
	}
	out[to] = struct{}{}
}

// Callees returns the methods m invokes, sorted.
func (g *CallGraph) Callees(m MethodID) []MethodID {
	out := make([]MethodID, 0, len(g.forward[m]))
	for to := range g.forward[m] {
		out = append(out, to)
	}
	sortMethods(out)
	return out
}

// Callers returns the methods that invoke m, sorted.
func (g *CallGraph) Callers(m MethodID) []MethodID {
	g.once.Do(func() {
		g.reverse = map[MethodID][]MethodID{}
		for from, tos := range g.forward {
			for to := range tos {
				g.reverse[to] = append(g.reverse[to], from)
			}
		}
		for _, callers := range g.reverse {
			sortMethods(callers)
		}
	})
	return g.reverse[m]
}

// Len returns the number of methods with outgoing calls.
func (g *CallGraph) Len() int { return len(g.forward) }

func sortMethods(ms []MethodID) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].String() < ms[j].String() })
}
