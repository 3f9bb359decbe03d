package library

import (
	"sort"

	"github.com/DeusData/docgraph/internal/domain"
)

// IntegrationPoints decodes the integration summary stored on a library method.
func IntegrationPoints(n *domain.LibraryNode) []domain.IntegrationPoint {
	if n == nil || n.Meta == nil {
		return nil
	}
	a, ok := domain.IntegrationAnalysisFromMeta(n.Meta[domain.MetaIntegrationAnalysis])
	if !ok {
		return nil
	}
	return a.Points()
}

// Enricher turns the library methods a function calls into a meta patch.
type Enricher struct{}

// Patch returns {"libraryIntegration": ...} with the union of the matched
// summaries, or nil when none of them integrates with anything.
func (Enricher) Patch(matches []*domain.LibraryNode) map[string]any {
	var points []domain.IntegrationPoint
	var methods []string
	seen := map[string]bool{}
	for _, m := range matches {
		p := IntegrationPoints(m)
		if len(p) == 0 || seen[m.FQN] {
			continue
		}
		seen[m.FQN] = true
		methods = append(methods, m.FQN)
		points = append(points, p...)
	}
	if len(points) == 0 {
		return nil
	}
	sort.Strings(methods)

	summary := domain.NewIntegrationAnalysis(points, false).Meta()
	delete(summary, "isParentClient")
	summary["methods"] = methods
	return map[string]any{domain.MetaLibraryIntegration: summary}
}
