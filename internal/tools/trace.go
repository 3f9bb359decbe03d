package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/docgraph/internal/domain"
	"github.com/DeusData/docgraph/internal/store"
)

const traceMaxResults = 200

func (s *Server) handleTraceCalls(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	app, err := s.application(args)
	if err != nil {
		return errResult(err.Error()), nil
	}
	root, err := s.findNode(app, args)
	if err != nil {
		return errResult(err.Error()), nil
	}

	direction := getStringArg(args, "direction")
	if direction == "" {
		direction = "outbound"
	}
	if direction != "outbound" && direction != "inbound" && direction != "both" {
		return errResult(fmt.Sprintf("invalid direction: %s", direction)), nil
	}
	depth := getIntArg(args, "depth", 3)
	if depth < 1 {
		depth = 1
	}
	if depth > 10 {
		depth = 10
	}
	kinds := []domain.EdgeKind{domain.EdgeCallsCode}
	if raw := getStringSliceArg(args, "edge_kinds"); len(raw) > 0 {
		kinds = kinds[:0]
		for _, k := range raw {
			kinds = append(kinds, domain.EdgeKind(strings.ToUpper(k)))
		}
	}

	visited, edges, err := runTraceBFS(s.store, root.ID, direction, kinds, depth)
	if err != nil {
		return errResult(fmt.Sprintf("trace failed: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"root":          nodeInfo(root),
		"direction":     direction,
		"hops":          buildHops(visited),
		"edges":         buildEdgeList(edges),
		"total_results": len(visited),
	}), nil
}

func runTraceBFS(st *store.Store, rootID int64, direction string, kinds []domain.EdgeKind, depth int) ([]*store.NodeHop, []store.EdgeInfo, error) {
	if direction != "both" {
		result, err := st.BFS(rootID, direction, kinds, depth, traceMaxResults)
		if err != nil {
			return nil, nil, err
		}
		return result.Visited, result.Edges, nil
	}
	var visited []*store.NodeHop
	var edges []store.EdgeInfo
	for _, dir := range []string{"outbound", "inbound"} {
		result, err := st.BFS(rootID, dir, kinds, depth, traceMaxResults)
		if err != nil {
			return nil, nil, err
		}
		visited = append(visited, result.Visited...)
		edges = append(edges, result.Edges...)
	}
	return visited, edges, nil
}

type hopEntry struct {
	Hop   int              `json:"hop"`
	Nodes []map[string]any `json:"nodes"`
}

func buildHops(visited []*store.NodeHop) []hopEntry {
	hopMap := map[int][]map[string]any{}
	maxHop := 0
	for _, nh := range visited {
		info := map[string]any{
			"fqn":  nh.Node.FQN,
			"name": nh.Node.Name,
			"kind": nh.Node.Kind,
		}
		if nh.Node.Signature != "" {
			info["signature"] = nh.Node.Signature
		}
		hopMap[nh.Hop] = append(hopMap[nh.Hop], info)
		maxHop = max(maxHop, nh.Hop)
	}

	var hops []hopEntry
	for h := 1; h <= maxHop; h++ {
		if nodes, ok := hopMap[h]; ok {
			hops = append(hops, hopEntry{Hop: h, Nodes: nodes})
		}
	}
	return hops
}

func buildEdgeList(edges []store.EdgeInfo) []map[string]any {
	result := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		result = append(result, map[string]any{
			"from": e.From,
			"to":   e.To,
			"kind": e.Kind,
		})
	}
	return result
}
