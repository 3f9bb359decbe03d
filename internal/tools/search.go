package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/docgraph/internal/domain"
	"github.com/DeusData/docgraph/internal/store"
)

func (s *Server) handleSearchNodes(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	app, err := s.application(args)
	if err != nil {
		return errResult(err.Error()), nil
	}

	kind := strings.ToUpper(getStringArg(args, "kind"))
	if kind != "" && !domain.NodeKind(kind).Valid() {
		return errResult(fmt.Sprintf("unknown node kind: %s", kind)), nil
	}

	params := store.SearchParams{
		AppID:       app.ID,
		Kind:        kind,
		NamePattern: getStringArg(args, "name_pattern"),
		FilePattern: getStringArg(args, "file_pattern"),
		EdgeKind:    strings.ToUpper(getStringArg(args, "edge_kind")),
		Limit:       getIntArg(args, "limit", 50),
		Offset:      getIntArg(args, "offset", 0),
	}
	out, err := s.store.Search(params)
	if err != nil {
		return errResult(fmt.Sprintf("search failed: %v", err)), nil
	}

	results := make([]map[string]any, 0, len(out.Results))
	for _, r := range out.Results {
		info := nodeInfo(r.Node)
		info["in_degree"] = r.InDegree
		info["out_degree"] = r.OutDegree
		results = append(results, info)
	}
	return jsonResult(map[string]any{
		"app":      app.Key,
		"total":    out.Total,
		"results":  results,
		"has_more": params.Offset+len(results) < out.Total,
	}), nil
}
