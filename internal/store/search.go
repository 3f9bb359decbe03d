package store

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/DeusData/docgraph/internal/domain"
)

// SearchParams defines structured node search parameters.
type SearchParams struct {
	AppID       int64
	Kind        string
	NamePattern string // regex over name and fqn
	FilePattern string // glob over file path
	EdgeKind    string // degree counting restricted to this kind when set
	Limit       int
	Offset      int
}

// SearchResult is a node with edge degree info.
type SearchResult struct {
	Node      *domain.Node
	InDegree  int
	OutDegree int
}

// SearchOutput wraps search results with total count for pagination.
type SearchOutput struct {
	Results []*SearchResult
	Total   int
}

// Search executes a parameterized node search with pagination support.
func (s *Store) Search(params SearchParams) (*SearchOutput, error) {
	if params.Limit <= 0 {
		params.Limit = 100
	}

	conditions := []string{"app_id = ?"}
	args := []any{params.AppID}

	if params.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, params.Kind)
	}
	if params.FilePattern != "" {
		conditions = append(conditions, "file_path LIKE ?")
		args = append(args, globToLike(params.FilePattern))
	}

	sqlLimit := params.Offset + params.Limit
	if params.NamePattern != "" {
		sqlLimit = 10000 // fetch enough rows for Go-side regex filtering
	}

	query := fmt.Sprintf(`SELECT `+nodeColumns+` FROM nodes WHERE %s ORDER BY fqn LIMIT ?`, strings.Join(conditions, " AND "))
	args = append(args, sqlLimit)

	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	nodes, err := scanNodes(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	if params.NamePattern != "" {
		nodes, err = filterByNamePattern(nodes, params.NamePattern)
		if err != nil {
			return nil, err
		}
	}

	total := len(nodes)
	start := params.Offset
	if start > total {
		start = total
	}
	end := start + params.Limit
	if end > total {
		end = total
	}

	results := make([]*SearchResult, 0, end-start)
	for _, n := range nodes[start:end] {
		sr := &SearchResult{Node: n}
		if params.EdgeKind != "" {
			_ = s.q.QueryRow("SELECT COUNT(*) FROM edges WHERE dst_id=? AND kind=?", n.ID, params.EdgeKind).Scan(&sr.InDegree)
			_ = s.q.QueryRow("SELECT COUNT(*) FROM edges WHERE src_id=? AND kind=?", n.ID, params.EdgeKind).Scan(&sr.OutDegree)
		} else {
			_ = s.q.QueryRow("SELECT COUNT(*) FROM edges WHERE dst_id=?", n.ID).Scan(&sr.InDegree)
			_ = s.q.QueryRow("SELECT COUNT(*) FROM edges WHERE src_id=?", n.ID).Scan(&sr.OutDegree)
		}
		results = append(results, sr)
	}

	return &SearchOutput{Results: results, Total: total}, nil
}

// globToLike converts a glob pattern to SQL LIKE pattern.
func globToLike(pattern string) string {
	result := strings.ReplaceAll(pattern, "**", "%")
	result = strings.ReplaceAll(result, "*", "%")
	result = strings.ReplaceAll(result, "?", "_")
	return result
}

// filterByNamePattern filters nodes by a regex over name or fqn.
func filterByNamePattern(nodes []*domain.Node, pattern string) ([]*domain.Node, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid name pattern: %w", err)
	}
	var filtered []*domain.Node
	for _, n := range nodes {
		if re.MatchString(n.Name) || re.MatchString(n.FQN) {
			filtered = append(filtered, n)
		}
	}
	return filtered, nil
}
