package graph

// TraversalNode is a node discovered during BFS traversal, with its depth
// and the path from the start node.
type TraversalNode struct {
	NodeID string   `json:"nodeId"`
	Depth  int      `json:"depth"`
	Path   []string `json:"path"`
}

// Traverse walks the graph breadth-first from startID up to maxDepth hops.
// Neighbors are enumerated strongest-edge first; nodes are deduplicated by
// first visit; the start node itself is never emitted. Output is capped at
// maxResults.
func (g *Index) Traverse(startID string, maxDepth int, edgeTypes []EdgeType, maxResults int) []TraversalNode {
	visited := map[string]struct{}{startID: {}}

	type queueItem struct {
		id    string
		depth int
		path  []string
	}
	queue := []queueItem{{id: startID, depth: 0, path: []string{startID}}}

	var results []TraversalNode

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.depth >= maxDepth {
			continue
		}

		var edges []Edge
		if edgeTypes != nil {
			edges = g.NeighborsByType(current.id, edgeTypes)
		} else {
			edges = g.Neighbors(current.id)
		}

		for _, edge := range edges {
			if _, seen := visited[edge.TargetID]; seen {
				continue
			}
			visited[edge.TargetID] = struct{}{}

			path := make([]string, len(current.path)+1)
			copy(path, current.path)
			path[len(current.path)] = edge.TargetID

			results = append(results, TraversalNode{
				NodeID: edge.TargetID,
				Depth:  current.depth + 1,
				Path:   path,
			})
			if len(results) >= maxResults {
				return results
			}

			queue = append(queue, queueItem{id: edge.TargetID, depth: current.depth + 1, path: path})
		}
	}

	return results
}

// ComputeGraphScore returns the maximum weight of any outgoing edge from
// candidateID into the relevant set, or 0 when no connection exists.
func (g *Index) ComputeGraphScore(candidateID string, relevantIDs []string) float64 {
	edges, ok := g.adjacency[candidateID]
	if !ok {
		return 0.0
	}

	var maxWeight float64
	for _, edge := range edges {
		if edge.Weight <= maxWeight {
			continue
		}
		for _, id := range relevantIDs {
			if id == edge.TargetID {
				maxWeight = edge.Weight
				break
			}
		}
	}
	return maxWeight
}

// ApplyGraphBoost blends an existing score with a graph score:
// (1-w)*existing + w*graph, with w = Config.BoostWeight.
func (g *Index) ApplyGraphBoost(existingScore, graphScore float64) float64 {
	w := g.config.BoostWeight
	return (1.0-w)*existingScore + w*graphScore
}
