package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) handleListApplications(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	apps, err := s.store.ListApplications()
	if err != nil {
		return errResult(fmt.Sprintf("list applications: %v", err)), nil
	}

	type appInfo struct {
		Key          string         `json:"key"`
		Name         string         `json:"name"`
		RepoPath     string         `json:"repo_path"`
		CreatedAt    string         `json:"created_at"`
		Nodes        int            `json:"nodes"`
		Edges        int            `json:"edges"`
		LibraryEdges int            `json:"library_edges"`
		EdgesByKind  map[string]int `json:"edges_by_kind,omitempty"`
	}

	result := make([]appInfo, 0, len(apps))
	for _, a := range apps {
		nc, _ := s.store.CountNodes(a.ID)
		ec, _ := s.store.CountEdges(a.ID)
		lc, _ := s.store.CountNodeLibraryEdges(a.ID)
		byKind, _ := s.store.CountEdgesByKind(a.ID)
		kinds := make(map[string]int, len(byKind))
		for k, n := range byKind {
			kinds[string(k)] = n
		}
		result = append(result, appInfo{
			Key:          a.Key,
			Name:         a.Name,
			RepoPath:     a.RepoPath,
			CreatedAt:    a.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			Nodes:        nc,
			Edges:        ec,
			LibraryEdges: lc,
			EdgesByKind:  kinds,
		})
	}

	return jsonResult(result), nil
}
