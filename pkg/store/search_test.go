package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shmor3/simse/pkg/core"
	"github.com/shmor3/simse/pkg/graph"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func rawJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestAdvancedSearchVectorAndTopicFilter(t *testing.T) {
	s := initStore(t, testConfig())
	mustAdd(t, s, "rust memory model", []float32{1, 0, 0}, map[string]string{"topic": "rust"})
	mustAdd(t, s, "go scheduler", []float32{0.9, 0.1, 0}, map[string]string{"topic": "go"})

	results, err := s.AdvancedSearch(core.SearchOptions{
		QueryEmbedding: []float32{1, 0, 0},
		TopicFilter:    []string{"rust"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "rust memory model", results[0].Volume.Text)
	require.NotNil(t, results[0].Scores.Vector)
	assert.InDelta(t, 1.0, *results[0].Scores.Vector, 1e-6)
}

func TestAdvancedSearchSimilarityThresholdDropsWeakVectors(t *testing.T) {
	s := initStore(t, testConfig())
	mustAdd(t, s, "aligned", []float32{1, 0, 0}, nil)
	mustAdd(t, s, "sideways", []float32{0, 1, 0}, nil)

	results, err := s.AdvancedSearch(core.SearchOptions{
		QueryEmbedding:      []float32{1, 0, 0},
		SimilarityThreshold: floatPtr(0.5),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "aligned", results[0].Volume.Text)
}

func TestAdvancedSearchRankModes(t *testing.T) {
	s := initStore(t, testConfig())
	mustAdd(t, s, "hello world", []float32{1, 0}, nil)

	query := core.SearchOptions{
		QueryEmbedding: []float32{1, 0},
		Text:           &core.TextSearchOptions{Query: "hello world", Mode: "fuzzy", Threshold: floatPtr(0.1)},
	}

	for _, rankBy := range []string{"vector", "text", "multiply", "average"} {
		query.RankBy = rankBy
		results, err := s.AdvancedSearch(query)
		require.NoError(t, err, rankBy)
		require.Len(t, results, 1, rankBy)
		assert.InDelta(t, 1.0, results[0].Score, 1e-6, rankBy)
	}

	query.RankBy = "weighted"
	query.RankWeights = &core.RankWeights{Vector: floatPtr(3), Text: floatPtr(1)}
	results, err := s.AdvancedSearch(query)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestAdvancedSearchFieldBoosts(t *testing.T) {
	s := initStore(t, testConfig())
	mustAdd(t, s, "hello world", []float32{1, 0}, nil)

	results, err := s.AdvancedSearch(core.SearchOptions{
		QueryEmbedding: []float32{1, 0},
		Text:           &core.TextSearchOptions{Query: "hello world", Mode: "fuzzy", Threshold: floatPtr(0.1)},
		RankBy:         "multiply",
		FieldBoosts:    &core.FieldBoosts{Text: floatPtr(0.5), Metadata: floatPtr(0.5)},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	// multiply: (vector*metadataBoost) * (text*textBoost) = 0.5 * 0.5
	assert.InDelta(t, 0.25, results[0].Score, 1e-6)
	// The breakdown keeps the raw text score.
	require.NotNil(t, results[0].Scores.Text)
	assert.InDelta(t, 1.0, *results[0].Scores.Text, 1e-6)
}

func TestAdvancedSearchSkipsSignallessCandidates(t *testing.T) {
	s := initStore(t, testConfig())
	mustAdd(t, s, "some entry", []float32{1, 0}, map[string]string{"lang": "go"})

	// Pure filter query, no vector and no text: nothing scores.
	results, err := s.AdvancedSearch(core.SearchOptions{
		Metadata: []core.MetadataFilter{{Key: "lang", Value: rawJSON(t, "go")}},
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAdvancedSearchIntersectsFilters(t *testing.T) {
	s := initStore(t, testConfig())
	mustAdd(t, s, "rust entry", []float32{1, 0}, map[string]string{"topic": "rust", "lang": "rust"})
	mustAdd(t, s, "go entry", []float32{1, 0.1}, map[string]string{"topic": "rust", "lang": "go"})

	results, err := s.AdvancedSearch(core.SearchOptions{
		QueryEmbedding: []float32{1, 0},
		TopicFilter:    []string{"rust"},
		Metadata:       []core.MetadataFilter{{Key: "lang", Value: rawJSON(t, "go")}},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "go entry", results[0].Volume.Text)
}

func TestAdvancedSearchBM25TextSignal(t *testing.T) {
	s := initStore(t, testConfig())
	mustAdd(t, s, "the quick brown fox", []float32{1, 0}, nil)
	mustAdd(t, s, "hello world", []float32{0, 1}, nil)

	results, err := s.AdvancedSearch(core.SearchOptions{
		Text:   &core.TextSearchOptions{Query: "quick fox", Mode: "bm25"},
		RankBy: "text",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "the quick brown fox", results[0].Volume.Text)
}

func TestAdvancedSearchMaxResults(t *testing.T) {
	s := initStore(t, testConfig())
	mustAdd(t, s, "one", []float32{1, 0}, nil)
	mustAdd(t, s, "two", []float32{0.9, 0.1}, nil)
	mustAdd(t, s, "three", []float32{0.8, 0.2}, nil)

	results, err := s.AdvancedSearch(core.SearchOptions{
		QueryEmbedding: []float32{1, 0},
		MaxResults:     intPtr(2),
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

// ---------------------------------------------------------------------------
// Graph integration scenarios
// ---------------------------------------------------------------------------

func TestSimilarityEdgesAutoCreated(t *testing.T) {
	s := initStore(t, testConfig())
	first := mustAdd(t, s, "first", []float32{1, 0, 0}, nil)
	second := mustAdd(t, s, "second", []float32{0.99, 0.01, 0}, nil)

	neighbors := s.GraphNeighbors(first, nil, 20)
	require.Len(t, neighbors, 1)
	assert.Equal(t, graph.EdgeSimilar, neighbors[0].Edge.EdgeType)
	assert.Equal(t, graph.OriginSimilarity, neighbors[0].Edge.Origin)
	require.NotNil(t, neighbors[0].Volume)
	assert.Equal(t, second, neighbors[0].Volume.ID)
}

func TestExplicitEdgesSuppressRedundantSimilar(t *testing.T) {
	s := initStore(t, testConfig())
	first := mustAdd(t, s, "first", []float32{1, 0, 0}, nil)
	second := mustAdd(t, s, "second", []float32{0.99, 0.01, 0}, map[string]string{"rel:related": first})

	for _, neighbors := range [][]GraphNeighbor{
		s.GraphNeighbors(first, nil, 20),
		s.GraphNeighbors(second, nil, 20),
	} {
		require.Len(t, neighbors, 1)
		assert.Equal(t, graph.EdgeRelated, neighbors[0].Edge.EdgeType)
		assert.Equal(t, graph.OriginExplicit, neighbors[0].Edge.Origin)
	}
}

func TestGraphTraverseJoinsVolumes(t *testing.T) {
	s := initStore(t, testConfig())
	a := mustAdd(t, s, "a", []float32{1, 0, 0}, nil)
	b := mustAdd(t, s, "b", []float32{0, 1, 0}, map[string]string{"rel:related": a})
	mustAdd(t, s, "c", []float32{0, 0, 1}, map[string]string{"rel:related": b})

	results := s.GraphTraverse(a, 2, nil, 50)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Node.Depth)
	assert.Equal(t, 2, results[1].Node.Depth)
	for _, r := range results {
		assert.NotNil(t, r.Volume)
	}
}

func TestDeleteDropsGraphNode(t *testing.T) {
	s := initStore(t, testConfig())
	first := mustAdd(t, s, "first", []float32{1, 0, 0}, nil)
	second := mustAdd(t, s, "second", []float32{0.99, 0.01, 0}, nil)

	require.True(t, s.Delete(second))
	assert.Empty(t, s.GraphNeighbors(first, nil, 20))
}
