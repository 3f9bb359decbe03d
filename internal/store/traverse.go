package store

import "github.com/DeusData/docgraph/internal/domain"

// TraverseResult holds BFS traversal results.
type TraverseResult struct {
	Root    *domain.Node
	Visited []*NodeHop
	Edges   []EdgeInfo
}

// NodeHop is a node with its BFS hop distance.
type NodeHop struct {
	Node *domain.Node
	Hop  int
}

// EdgeInfo is a simplified edge for output.
type EdgeInfo struct {
	From string
	To   string
	Kind domain.EdgeKind
}

type bfsQueue struct {
	nodeID int64
	hop    int
}

// fetchEdgesForNode retrieves edges from a node in the given direction and kinds.
func (s *Store) fetchEdgesForNode(nodeID int64, direction string, kinds []domain.EdgeKind) ([]*domain.Edge, error) {
	var edges []*domain.Edge
	for _, k := range kinds {
		var found []*domain.Edge
		var err error
		if direction == "outbound" {
			found, err = s.FindEdgesBySourceAndKind(nodeID, k)
		} else {
			found, err = s.FindEdgesByTargetAndKind(nodeID, k)
		}
		if err != nil {
			return nil, err
		}
		edges = append(edges, found...)
	}
	return edges, nil
}

// BFS performs breadth-first traversal following edges of the given kinds.
// direction: "outbound" follows src->dst, "inbound" follows dst->src.
func (s *Store) BFS(startNodeID int64, direction string, kinds []domain.EdgeKind, maxDepth, maxResults int) (*TraverseResult, error) {
	if maxDepth <= 0 {
		maxDepth = 3
	}
	if maxResults <= 0 {
		maxResults = 200
	}

	result := &TraverseResult{}
	visited := map[int64]int{startNodeID: 0}
	nodeCache := make(map[int64]*domain.Node)

	root, err := s.FindNodeByID(startNodeID)
	if err != nil {
		return nil, err
	}
	if root != nil {
		nodeCache[startNodeID] = root
	}
	result.Root = root

	queue := []bfsQueue{{startNodeID, 0}}

	for len(queue) > 0 && len(result.Visited) < maxResults {
		item := queue[0]
		queue = queue[1:]

		if item.hop >= maxDepth {
			continue
		}

		edges, err := s.fetchEdgesForNode(item.nodeID, direction, kinds)
		if err != nil {
			return nil, err
		}

		for _, e := range edges {
			nextID := e.DstID
			if direction != "outbound" {
				nextID = e.SrcID
			}

			if _, seen := visited[nextID]; !seen {
				visited[nextID] = item.hop + 1

				next, lookupErr := s.FindNodeByID(nextID)
				if lookupErr != nil || next == nil {
					continue
				}
				nodeCache[nextID] = next

				result.Visited = append(result.Visited, &NodeHop{Node: next, Hop: item.hop + 1})
				queue = append(queue, bfsQueue{nextID, item.hop + 1})

				if len(result.Visited) >= maxResults {
					break
				}
			}

			result.Edges = append(result.Edges, EdgeInfo{
				From: resolveNodeFQN(nodeCache, s, e.SrcID),
				To:   resolveNodeFQN(nodeCache, s, e.DstID),
				Kind: e.Kind,
			})
		}
	}

	return result, nil
}

// resolveNodeFQN returns the FQN for a node ID, using the cache first.
func resolveNodeFQN(cache map[int64]*domain.Node, s *Store, id int64) string {
	if n, ok := cache[id]; ok {
		return n.FQN
	}
	n, err := s.FindNodeByID(id)
	if err != nil || n == nil {
		return ""
	}
	cache[id] = n
	return n.FQN
}
