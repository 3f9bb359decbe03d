package bytecode

import (
	"log/slog"
	"sort"

	"github.com/DeusData/docgraph/internal/domain"
)

// MethodSummary is the integration behavior of a method: its own sites plus
// those of everything it transitively calls within the artifact.
type MethodSummary struct {
	Method MethodID
	Sites  []Site
	// IsParentClient is set when no method outside the summary's call cycle
	// calls it, i.e. it is an entry point into the integration.
	IsParentClient bool
}

// Points returns the integration points of all sites.
func (m *MethodSummary) Points() []domain.IntegrationPoint {
	out := make([]domain.IntegrationPoint, 0, len(m.Sites))
	for _, s := range m.Sites {
		out = append(out, s.Point)
	}
	return out
}

// Analysis folds the summary into its persisted shape.
func (m *MethodSummary) Analysis() domain.IntegrationAnalysis {
	return domain.NewIntegrationAnalysis(m.Points(), m.IsParentClient)
}

// Meta returns the value stored under the integrationAnalysis meta key.
func (m *MethodSummary) Meta() map[string]any { return m.Analysis().Meta() }

// rollup propagates direct sites up the call graph. Only seeds (methods with
// direct sites) and their transitive callers are visited. Strongly connected
// components are summarized once, callees before callers, so cycles
// terminate and every member of a cycle sees the same union of sites.
func rollup(g *CallGraph, direct map[MethodID][]Site) map[MethodID]*MethodSummary {
	relevant := map[MethodID]bool{}
	var queue []MethodID
	for m, sites := range direct {
		if len(sites) > 0 && !relevant[m] {
			relevant[m] = true
			queue = append(queue, m)
		}
	}
	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]
		for _, caller := range g.Callers(m) {
			if !relevant[caller] {
				relevant[caller] = true
				queue = append(queue, caller)
			}
		}
	}

	nodes := make([]MethodID, 0, len(relevant))
	for m := range relevant {
		nodes = append(nodes, m)
	}
	sortMethods(nodes)

	t := &tarjan{
		graph:    g,
		relevant: relevant,
		index:    map[MethodID]int{},
		low:      map[MethodID]int{},
		onStack:  map[MethodID]bool{},
		comp:     map[MethodID]int{},
	}
	for _, m := range nodes {
		if _, seen := t.index[m]; !seen {
			t.connect(m)
		}
	}

	// Components come out of Tarjan's algorithm in reverse topological
	// order, so every callee component is summarized before its callers.
	compSites := make([][]Site, len(t.comps))
	for ci, members := range t.comps {
		seen := map[siteKey]bool{}
		var sites []Site
		add := func(list []Site) {
			for _, s := range list {
				if !seen[s.key()] {
					seen[s.key()] = true
					sites = append(sites, s)
				}
			}
		}
		for _, m := range members {
			add(direct[m])
			for _, callee := range g.Callees(m) {
				if cj, ok := t.comp[callee]; ok && cj != ci {
					add(compSites[cj])
				}
			}
		}
		sort.Slice(sites, func(i, j int) bool {
			a, b := sites[i], sites[j]
			if a.Method != b.Method {
				return a.Method.String() < b.Method.String()
			}
			if a.Offset != b.Offset {
				return a.Offset < b.Offset
			}
			return a.Seq < b.Seq
		})
		compSites[ci] = sites
		if len(members) > 1 || t.selfLoop(members[0]) {
			slog.Debug("rollup.cycle", "size", len(members), "method", members[0].String(), "sites", len(sites))
		}
	}

	out := make(map[MethodID]*MethodSummary, len(nodes))
	for _, m := range nodes {
		ci := t.comp[m]
		parent := true
		for _, caller := range g.Callers(m) {
			if t.comp[caller] != ci {
				parent = false
				break
			}
		}
		out[m] = &MethodSummary{Method: m, Sites: compSites[ci], IsParentClient: parent}
	}
	return out
}

type tarjan struct {
	graph    *CallGraph
	relevant map[MethodID]bool
	next     int
	index    map[MethodID]int
	low      map[MethodID]int
	stack    []MethodID
	onStack  map[MethodID]bool
	comp     map[MethodID]int
	comps    [][]MethodID
}

func (t *tarjan) connect(v MethodID) {
	t.index[v] = t.next
	t.low[v] = t.next
	t.next++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.graph.Callees(v) {
		if !t.relevant[w] {
			continue
		}
		if _, seen := t.index[w]; !seen {
			t.connect(w)
			t.low[v] = min(t.low[v], t.low[w])
		} else if t.onStack[w] {
			t.low[v] = min(t.low[v], t.index[w])
		}
	}

	if t.low[v] != t.index[v] {
		return
	}
	var members []MethodID
	for {
		w := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.onStack[w] = false
		t.comp[w] = len(t.comps)
		members = append(members, w)
		if w == v {
			break
		}
	}
	sortMethods(members)
	t.comps = append(t.comps, members)
}

func (t *tarjan) selfLoop(m MethodID) bool {
	_, ok := t.graph.forward[m][m]
	return ok
}
