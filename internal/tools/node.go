package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/docgraph/internal/domain"
)

func (s *Server) handleGetNode(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	app, err := s.application(args)
	if err != nil {
		return errResult(err.Error()), nil
	}
	node, err := s.findNode(app, args)
	if err != nil {
		return errResult(err.Error()), nil
	}

	info := nodeInfo(node)
	if len(node.Meta) > 0 {
		info["meta"] = node.Meta
	}
	if node.DocComment != "" {
		info["doc"] = node.DocComment
	}
	if getBoolArg(args, "include_source") && node.SourceCode != "" {
		info["source_code"] = node.SourceCode
	}
	if node.ParentID != nil {
		if parent, _ := s.store.FindNodeByID(*node.ParentID); parent != nil {
			info["parent"] = parent.FQN
		}
	}

	out, err := s.store.FindEdgesBySource(node.ID)
	if err != nil {
		return errResult(fmt.Sprintf("edges: %v", err)), nil
	}
	in, err := s.store.FindEdgesByTarget(node.ID)
	if err != nil {
		return errResult(fmt.Sprintf("edges: %v", err)), nil
	}
	names := map[int64]string{node.ID: node.FQN}
	info["outgoing"] = s.edgeList(out, names, false)
	info["incoming"] = s.edgeList(in, names, true)

	libEdges, err := s.store.FindNodeLibraryEdges(node.ID)
	if err != nil {
		return errResult(fmt.Sprintf("library edges: %v", err)), nil
	}
	if len(libEdges) > 0 {
		list := make([]map[string]any, 0, len(libEdges))
		for _, e := range libEdges {
			entry := map[string]any{"kind": e.Kind}
			if ln, _ := s.store.FindLibraryNodeByID(e.LibraryNodeID); ln != nil {
				entry["target"] = ln.FQN
				if ia := ln.MetaMap(domain.MetaIntegrationAnalysis); ia != nil {
					entry["integration"] = ia
				}
			}
			if len(e.Evidence) > 0 {
				entry["evidence"] = e.Evidence
			}
			list = append(list, entry)
		}
		info["library_edges"] = list
	}

	return jsonResult(info), nil
}

// edgeList renders edges with the FQN of the far end. names caches lookups.
func (s *Server) edgeList(edges []*domain.Edge, names map[int64]string, incoming bool) []map[string]any {
	result := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		other := e.DstID
		key := "to"
		if incoming {
			other, key = e.SrcID, "from"
		}
		name, ok := names[other]
		if !ok {
			if n, _ := s.store.FindNodeByID(other); n != nil {
				name = n.FQN
			}
			names[other] = name
		}
		entry := map[string]any{
			"kind":       e.Kind,
			key:          name,
			"confidence": e.Confidence,
		}
		if e.Strength != "" {
			entry["strength"] = e.Strength
		}
		if e.Explain != "" {
			entry["explain"] = e.Explain
		}
		result = append(result, entry)
	}
	return result
}
