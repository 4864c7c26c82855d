// Package graph maintains a directed graph of typed, weighted edges between
// vector store volumes.
//
// Three edge populations coexist:
//
//  1. Explicit edges, declared through rel:* metadata keys or API calls.
//  2. Similarity edges, auto-created when cosine similarity exceeds a
//     threshold and no explicit edge already links the pair.
//  3. Correlation edges, derived from co-occurrence counts in the learning
//     engine.
//
// The graph augments search and recommendation with relationship-aware
// scoring and BFS traversal. Only explicit edges are persisted; implicit
// edges are rebuilt from embeddings and learning state on load.
package graph

import (
	"sort"
	"strings"
)

// EdgeType is the semantic kind of relationship between two volumes.
type EdgeType string

// Edge types.
const (
	EdgeRelated     EdgeType = "Related"
	EdgeParent      EdgeType = "Parent"
	EdgeChild       EdgeType = "Child"
	EdgeExtends     EdgeType = "Extends"
	EdgeContradicts EdgeType = "Contradicts"
	EdgeSimilar     EdgeType = "Similar"
	EdgeCoOccurs    EdgeType = "CoOccurs"
)

// ParseEdgeType maps a wire name to an EdgeType. The second return value is
// false for unknown names.
func ParseEdgeType(s string) (EdgeType, bool) {
	switch EdgeType(s) {
	case EdgeRelated, EdgeParent, EdgeChild, EdgeExtends, EdgeContradicts, EdgeSimilar, EdgeCoOccurs:
		return EdgeType(s), true
	default:
		return "", false
	}
}

// EdgeOrigin records how an edge was created.
type EdgeOrigin string

// Edge origins.
const (
	OriginExplicit    EdgeOrigin = "Explicit"
	OriginSimilarity  EdgeOrigin = "Similarity"
	OriginCorrelation EdgeOrigin = "Correlation"
)

// Edge is a single directed, weighted edge from SourceID to TargetID.
type Edge struct {
	SourceID  string     `json:"sourceId"`
	TargetID  string     `json:"targetId"`
	EdgeType  EdgeType   `json:"edgeType"`
	Weight    float64    `json:"weight"`
	Origin    EdgeOrigin `json:"origin"`
	Timestamp uint64     `json:"timestamp"`
}

// Config holds the tuning knobs for the graph index.
type Config struct {
	// SimilarityThreshold is the minimum cosine similarity to auto-create a
	// Similar edge.
	SimilarityThreshold float64 `json:"similarityThreshold"`
	// CorrelationThreshold is the minimum co-occurrence count to create a
	// CoOccurs edge.
	CorrelationThreshold int `json:"correlationThreshold"`
	// MaxEdgesPerNode caps outgoing edges per node; the weakest is evicted.
	MaxEdgesPerNode int `json:"maxEdgesPerNode"`
	// BoostWeight blends graph scores into search scores.
	BoostWeight float64 `json:"graphBoostWeight"`
}

// DefaultConfig returns the default graph configuration.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold:  0.85,
		CorrelationThreshold: 3,
		MaxEdgesPerNode:      50,
		BoostWeight:          0.15,
	}
}

// Index is the in-memory edge graph. adjacency maps source to outgoing
// edges, reverse maps target to incoming edges; every mutation keeps both
// sides coherent.
type Index struct {
	adjacency map[string][]Edge
	reverse   map[string][]Edge
	config    Config
}

// NewIndex creates an empty graph index with the given configuration.
func NewIndex(config Config) *Index {
	return &Index{
		adjacency: make(map[string][]Edge),
		reverse:   make(map[string][]Edge),
		config:    config,
	}
}

// Config returns the index configuration.
func (g *Index) Config() Config {
	return g.config
}

// EdgeCount returns the total number of directed edges.
func (g *Index) EdgeCount() int {
	total := 0
	for _, edges := range g.adjacency {
		total += len(edges)
	}
	return total
}

// AddEdge inserts a directed edge. An existing edge with the same (source,
// target, type) is updated only when the new weight is strictly greater.
// After insertion the source's edge list is capped at MaxEdgesPerNode by
// evicting the weakest edge; the reverse index is only populated once the
// new edge is known to have survived eviction.
func (g *Index) AddEdge(edge Edge) {
	edges := g.adjacency[edge.SourceID]

	found := false
	for i := range edges {
		existing := &edges[i]
		if existing.TargetID == edge.TargetID && existing.EdgeType == edge.EdgeType {
			if edge.Weight > existing.Weight {
				existing.Weight = edge.Weight
				existing.Timestamp = edge.Timestamp
				existing.Origin = edge.Origin
			}
			found = true
			break
		}
	}

	if !found {
		edges = append(edges, edge)
	}
	g.adjacency[edge.SourceID] = edges

	// Enforce the per-node cap by evicting this node's weakest edge.
	if len(edges) > g.config.MaxEdgesPerNode {
		sort.SliceStable(edges, func(i, j int) bool { return edges[i].Weight < edges[j].Weight })
		evicted := edges[0]
		edges = edges[1:]
		g.adjacency[edge.SourceID] = edges
		if rev, ok := g.reverse[evicted.TargetID]; ok {
			g.reverse[evicted.TargetID] = removeEdges(rev, func(e Edge) bool {
				return e.SourceID == evicted.SourceID && e.EdgeType == evicted.EdgeType
			})
		}
	}

	if found {
		// Mirror the in-place update into the reverse index.
		if rev, ok := g.reverse[edge.TargetID]; ok {
			for i := range rev {
				existing := &rev[i]
				if existing.SourceID == edge.SourceID && existing.EdgeType == edge.EdgeType {
					if edge.Weight > existing.Weight {
						existing.Weight = edge.Weight
						existing.Timestamp = edge.Timestamp
						existing.Origin = edge.Origin
					}
					break
				}
			}
		}
		return
	}

	survived := false
	for _, e := range g.adjacency[edge.SourceID] {
		if e.TargetID == edge.TargetID && e.EdgeType == edge.EdgeType {
			survived = true
			break
		}
	}
	if survived {
		g.reverse[edge.TargetID] = append(g.reverse[edge.TargetID], edge)
	}
}

// AddBidirectionalEdge creates edges in both directions between a and b.
func (g *Index) AddBidirectionalEdge(a, b string, edgeType EdgeType, weight float64, origin EdgeOrigin, timestamp uint64) {
	g.AddEdge(Edge{SourceID: a, TargetID: b, EdgeType: edgeType, Weight: weight, Origin: origin, Timestamp: timestamp})
	g.AddEdge(Edge{SourceID: b, TargetID: a, EdgeType: edgeType, Weight: weight, Origin: origin, Timestamp: timestamp})
}

// RemoveNode drops every edge that involves id as source or target, pruning
// empty adjacency buckets on both sides.
func (g *Index) RemoveNode(id string) {
	if outgoing, ok := g.adjacency[id]; ok {
		delete(g.adjacency, id)
		for _, edge := range outgoing {
			if rev, ok := g.reverse[edge.TargetID]; ok {
				rev = removeEdges(rev, func(e Edge) bool { return e.SourceID == id })
				if len(rev) == 0 {
					delete(g.reverse, edge.TargetID)
				} else {
					g.reverse[edge.TargetID] = rev
				}
			}
		}
	}

	if incoming, ok := g.reverse[id]; ok {
		delete(g.reverse, id)
		for _, edge := range incoming {
			if adj, ok := g.adjacency[edge.SourceID]; ok {
				adj = removeEdges(adj, func(e Edge) bool { return e.TargetID == id })
				if len(adj) == 0 {
					delete(g.adjacency, edge.SourceID)
				} else {
					g.adjacency[edge.SourceID] = adj
				}
			}
		}
	}
}

// Neighbors returns outgoing edges from id, sorted by weight descending.
func (g *Index) Neighbors(id string) []Edge {
	edges, ok := g.adjacency[id]
	if !ok {
		return nil
	}
	result := append([]Edge(nil), edges...)
	sortEdgesByWeight(result)
	return result
}

// NeighborsByType returns outgoing edges from id restricted to the given
// types, sorted by weight descending.
func (g *Index) NeighborsByType(id string, types []EdgeType) []Edge {
	edges, ok := g.adjacency[id]
	if !ok {
		return nil
	}
	var result []Edge
	for _, e := range edges {
		for _, t := range types {
			if e.EdgeType == t {
				result = append(result, e)
				break
			}
		}
	}
	sortEdgesByWeight(result)
	return result
}

// ParseMetadataEdges walks rel:* metadata keys and creates explicit edges.
//
// Supported keys (values are comma-separated volume IDs):
//
//	rel:related     -- Related (bidirectional), weight 1.0
//	rel:parent      -- Parent (source->target) + Child (target->source)
//	rel:extends     -- Extends (source->target only)
//	rel:contradicts -- Contradicts (bidirectional), weight 1.0
func (g *Index) ParseMetadataEdges(sourceID string, metadata map[string]string, timestamp uint64) {
	for key, value := range metadata {
		var targets []string
		for _, t := range strings.Split(value, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				targets = append(targets, t)
			}
		}

		switch key {
		case "rel:related":
			for _, target := range targets {
				g.AddBidirectionalEdge(sourceID, target, EdgeRelated, 1.0, OriginExplicit, timestamp)
			}
		case "rel:parent":
			for _, target := range targets {
				g.AddEdge(Edge{SourceID: sourceID, TargetID: target, EdgeType: EdgeParent, Weight: 1.0, Origin: OriginExplicit, Timestamp: timestamp})
				g.AddEdge(Edge{SourceID: target, TargetID: sourceID, EdgeType: EdgeChild, Weight: 1.0, Origin: OriginExplicit, Timestamp: timestamp})
			}
		case "rel:extends":
			for _, target := range targets {
				g.AddEdge(Edge{SourceID: sourceID, TargetID: target, EdgeType: EdgeExtends, Weight: 1.0, Origin: OriginExplicit, Timestamp: timestamp})
			}
		case "rel:contradicts":
			for _, target := range targets {
				g.AddBidirectionalEdge(sourceID, target, EdgeContradicts, 1.0, OriginExplicit, timestamp)
			}
		}
	}
}

// HasExplicitEdge reports whether an explicit edge links a and b in either
// direction.
func (g *Index) HasExplicitEdge(a, b string) bool {
	check := func(src, tgt string) bool {
		for _, e := range g.adjacency[src] {
			if e.TargetID == tgt && e.Origin == OriginExplicit {
				return true
			}
		}
		return false
	}
	return check(a, b) || check(b, a)
}

// AddSimilarityEdge creates a bidirectional Similar edge when the similarity
// meets the configured threshold and no explicit edge already links the
// pair.
func (g *Index) AddSimilarityEdge(a, b string, similarity float64, timestamp uint64) {
	if similarity < g.config.SimilarityThreshold {
		return
	}
	if g.HasExplicitEdge(a, b) {
		return
	}
	g.AddBidirectionalEdge(a, b, EdgeSimilar, similarity, OriginSimilarity, timestamp)
}

// SyncCorrelations creates CoOccurs edges from the learning engine's
// co-occurrence map. Pairs below the correlation threshold, or already
// joined by an explicit edge, are skipped. Edge weight is count normalized
// by maxCount.
func (g *Index) SyncCorrelations(correlations map[string]map[string]int, maxCount int, timestamp uint64) {
	if maxCount == 0 {
		return
	}

	processed := make(map[string]struct{})
	for entryID, peers := range correlations {
		for peerID, count := range peers {
			if count < g.config.CorrelationThreshold {
				continue
			}
			pair := pairKey(entryID, peerID)
			if _, done := processed[pair]; done {
				continue
			}
			processed[pair] = struct{}{}

			if g.HasExplicitEdge(entryID, peerID) {
				continue
			}

			weight := float64(count) / float64(maxCount)
			g.AddBidirectionalEdge(entryID, peerID, EdgeCoOccurs, weight, OriginCorrelation, timestamp)
		}
	}
}

// PruneWeakImplicitEdges drops non-explicit edges below minWeight, cleaning
// the reverse index and empty buckets.
func (g *Index) PruneWeakImplicitEdges(minWeight float64) {
	for source, edges := range g.adjacency {
		for _, e := range edges {
			if e.Origin == OriginExplicit || e.Weight >= minWeight {
				continue
			}
			if rev, ok := g.reverse[e.TargetID]; ok {
				g.reverse[e.TargetID] = removeEdges(rev, func(r Edge) bool {
					return r.SourceID == source && r.EdgeType == e.EdgeType
				})
			}
		}
		g.adjacency[source] = removeEdges(edges, func(e Edge) bool {
			return e.Origin != OriginExplicit && e.Weight < minWeight
		})
	}

	for id, edges := range g.adjacency {
		if len(edges) == 0 {
			delete(g.adjacency, id)
		}
	}
	for id, edges := range g.reverse {
		if len(edges) == 0 {
			delete(g.reverse, id)
		}
	}
}

// removeEdges filters out edges matching the predicate.
func removeEdges(edges []Edge, match func(Edge) bool) []Edge {
	kept := edges[:0]
	for _, e := range edges {
		if !match(e) {
			kept = append(kept, e)
		}
	}
	return kept
}

func sortEdgesByWeight(edges []Edge) {
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].Weight > edges[j].Weight })
}

func pairKey(a, b string) string {
	if a < b {
		return a + "\x00" + b
	}
	return b + "\x00" + a
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

// SerializedEdge is a single persisted edge. Origin is omitted: only
// explicit edges survive serialization.
type SerializedEdge struct {
	SourceID  string   `json:"sourceId"`
	TargetID  string   `json:"targetId"`
	EdgeType  EdgeType `json:"edgeType"`
	Weight    float64  `json:"weight"`
	Timestamp uint64   `json:"timestamp"`
}

// State is a persistable snapshot of the graph.
type State struct {
	ExplicitEdges []SerializedEdge `json:"explicitEdges"`
	Config        Config           `json:"config"`
}

// Serialize captures the explicit edges for persistence. Implicit edges are
// rebuilt from similarity data and the learning engine on load.
func (g *Index) Serialize() State {
	var explicit []SerializedEdge
	sources := make([]string, 0, len(g.adjacency))
	for source := range g.adjacency {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	for _, source := range sources {
		for _, edge := range g.adjacency[source] {
			if edge.Origin != OriginExplicit {
				continue
			}
			explicit = append(explicit, SerializedEdge{
				SourceID:  edge.SourceID,
				TargetID:  edge.TargetID,
				EdgeType:  edge.EdgeType,
				Weight:    edge.Weight,
				Timestamp: edge.Timestamp,
			})
		}
	}

	return State{ExplicitEdges: explicit, Config: g.config}
}

// FromState rebuilds a graph from persisted state, re-inserting each edge as
// explicit.
func FromState(state State, config Config) *Index {
	g := NewIndex(config)
	for _, edge := range state.ExplicitEdges {
		g.AddEdge(Edge{
			SourceID:  edge.SourceID,
			TargetID:  edge.TargetID,
			EdgeType:  edge.EdgeType,
			Weight:    edge.Weight,
			Origin:    OriginExplicit,
			Timestamp: edge.Timestamp,
		})
	}
	return g
}
