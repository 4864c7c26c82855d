package learning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shmor3/simse/pkg/core"
)

func defaultEngine() *Engine {
	return NewEngine(DefaultOptions())
}

func TestRecordQueryIncrementsTotal(t *testing.T) {
	e := defaultEngine()
	e.RecordQuery([]float32{1, 0, 0}, []string{"a", "b"}, "", 1000)
	assert.Equal(t, 1, e.TotalQueries())
	assert.True(t, e.HasData())
}

func TestRecordQuerySkipsWhenDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.Enabled = false
	e := NewEngine(opts)
	e.RecordQuery([]float32{1, 0, 0}, []string{"a"}, "", 1000)
	assert.Equal(t, 0, e.TotalQueries())
	assert.False(t, e.HasData())
}

func TestRecordQuerySkipsEmptyInputs(t *testing.T) {
	e := defaultEngine()
	e.RecordQuery(nil, []string{"a"}, "", 1000)
	e.RecordQuery([]float32{1, 0, 0}, nil, "", 1000)
	assert.Equal(t, 0, e.TotalQueries())
}

func TestRecordQueryCapsHistory(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxQueryHistory = 3
	e := NewEngine(opts)

	for i := 0; i < 5; i++ {
		e.RecordQuery([]float32{float32(i), 0, 0}, []string{"a"}, "", uint64(1000+i*100))
	}

	require.Len(t, e.queryHistory, 3)
	assert.Equal(t, uint64(1200), e.queryHistory[0].Timestamp)
	assert.Equal(t, uint64(1400), e.queryHistory[2].Timestamp)
}

func TestRecordQueryDiversityGating(t *testing.T) {
	e := defaultEngine()

	// The same embedding again is not diverse: queryCount stays at one while
	// totalRetrievals keeps counting.
	e.RecordQuery([]float32{1, 0, 0}, []string{"a"}, "", 1000)
	e.RecordQuery([]float32{1, 0, 0}, []string{"a"}, "", 2000)

	fb := e.feedback["a"]
	require.NotNil(t, fb)
	assert.Equal(t, 1, fb.queryCount)
	assert.Equal(t, 2, fb.totalRetrievals)

	// An orthogonal query is diverse.
	e.RecordQuery([]float32{0, 1, 0}, []string{"a"}, "", 3000)
	assert.Equal(t, 2, fb.queryCount)
	assert.Equal(t, 3, fb.totalRetrievals)
}

func TestRecordQueryCorrelations(t *testing.T) {
	e := defaultEngine()
	e.RecordQuery([]float32{1, 0, 0}, []string{"a", "b", "c"}, "", 1000)

	assert.Equal(t, 1, e.correlations["a"]["b"])
	assert.Equal(t, 1, e.correlations["b"]["a"])
	assert.Equal(t, 1, e.correlations["a"]["c"])
	assert.Equal(t, 1, e.correlations["c"]["b"])

	correlated := e.GetCorrelatedEntries("a")
	require.Len(t, correlated, 2)

	assert.Empty(t, e.GetCorrelatedEntries("unknown"))
}

func TestRecordFeedback(t *testing.T) {
	e := defaultEngine()
	e.RecordFeedback("a", true, 1000)
	e.RecordFeedback("a", true, 2000)
	e.RecordFeedback("a", false, 3000)

	fb := e.explicit["a"]
	require.NotNil(t, fb)
	assert.Equal(t, 2, fb.positive)
	assert.Equal(t, 1, fb.negative)

	disabled := NewEngine(Options{Enabled: false, MaxQueryHistory: 50, QueryDecayMs: 1000, WeightAdaptationRate: 0.05, InterestBoostWeight: 0.15})
	disabled.RecordFeedback("a", true, 1000)
	assert.Empty(t, disabled.explicit)
}

func TestWeightsAdaptAndStayNormalized(t *testing.T) {
	e := defaultEngine()
	initial := e.GetAdaptedWeights("")

	for i := 0; i < 10; i++ {
		e.RecordQuery([]float32{1, float32(i) * 0.1, 0}, []string{"a", "b"}, "", uint64(1000+i*100))
	}

	adapted := e.GetAdaptedWeights("")
	changed := adapted.Vector != initial.Vector ||
		adapted.Recency != initial.Recency ||
		adapted.Frequency != initial.Frequency
	assert.True(t, changed, "weights should adapt after queries")
	assert.InDelta(t, 1.0, adapted.Vector+adapted.Recency+adapted.Frequency, 1e-10)
}

func TestTopicWeightsRequireTenQueries(t *testing.T) {
	e := defaultEngine()
	for i := 0; i < 9; i++ {
		e.RecordQuery([]float32{1, float32(i), 0}, []string{"a"}, "rust", uint64(1000+i))
	}
	// Below the threshold the global profile answers.
	assert.Equal(t, e.adaptedWeights, e.GetAdaptedWeights("rust"))

	e.RecordQuery([]float32{1, 9, 0}, []string{"a"}, "rust", 2000)
	assert.Equal(t, e.topicStates["rust"].weights, e.GetAdaptedWeights("rust"))
}

func TestInterestEmbeddingDirection(t *testing.T) {
	e := defaultEngine()
	assert.Nil(t, e.GetInterestEmbedding(""))

	for i := 0; i < 5; i++ {
		e.RecordQuery([]float32{1, 0, 0}, []string{"a"}, "", uint64(1000+i*100))
	}

	interest := e.GetInterestEmbedding("")
	require.NotNil(t, interest)
	require.Len(t, interest, 3)
	assert.Greater(t, core.CosineSimilarity([]float32{1, 0, 0}, interest), 0.99)
}

func TestInterestEmbeddingPerTopic(t *testing.T) {
	e := defaultEngine()
	e.RecordQuery([]float32{1, 0, 0}, []string{"a"}, "rust", 1000)

	assert.NotNil(t, e.GetInterestEmbedding("rust"))
	assert.Nil(t, e.GetInterestEmbedding("python"))
}

func TestComputeBoostBounds(t *testing.T) {
	e := defaultEngine()
	boost := e.ComputeBoost("unknown", []float32{1, 0, 0}, "")
	assert.GreaterOrEqual(t, boost, 0.8)
	assert.LessOrEqual(t, boost, 1.2)

	opts := DefaultOptions()
	opts.Enabled = false
	disabled := NewEngine(opts)
	assert.Equal(t, 1.0, disabled.ComputeBoost("a", []float32{1, 0, 0}, ""))
}

func TestComputeBoostIncreasesWithRelevance(t *testing.T) {
	e := defaultEngine()
	emb := []float32{1, 0, 0}
	base := e.ComputeBoost("a", emb, "")

	for i := 0; i < 5; i++ {
		e.RecordQuery([]float32{1, float32(i) * 0.5, 0}, []string{"a"}, "", uint64(1000+i*100))
	}
	e.RecordFeedback("a", true, 5000)
	e.RecordFeedback("a", true, 6000)

	boosted := e.ComputeBoost("a", emb, "")
	assert.Greater(t, boosted, base)
	assert.LessOrEqual(t, boosted, 1.2)
}

func TestPruneEntries(t *testing.T) {
	e := defaultEngine()
	e.RecordQuery([]float32{1, 0, 0}, []string{"a", "b"}, "", 1000)
	e.RecordFeedback("a", true, 2000)
	e.RecordFeedback("b", false, 3000)

	e.PruneEntries(map[string]struct{}{"a": {}})

	assert.Contains(t, e.feedback, "a")
	assert.NotContains(t, e.feedback, "b")
	assert.Contains(t, e.explicit, "a")
	assert.NotContains(t, e.explicit, "b")
	assert.NotContains(t, e.correlations, "b")
	// References inside surviving maps are cleaned too.
	assert.NotContains(t, e.correlations["a"], "b")
}

func TestClear(t *testing.T) {
	e := defaultEngine()
	e.RecordQuery([]float32{1, 0, 0}, []string{"a"}, "rust", 1000)
	e.RecordFeedback("a", true, 2000)

	e.Clear()

	assert.Equal(t, 0, e.TotalQueries())
	assert.Empty(t, e.feedback)
	assert.Empty(t, e.explicit)
	assert.Empty(t, e.topicStates)
	assert.Empty(t, e.correlations)
	assert.Nil(t, e.GetInterestEmbedding(""))
	assert.Equal(t, core.RequiredWeights{Vector: 0.6, Recency: 0.2, Frequency: 0.2}, e.GetAdaptedWeights(""))
}

func TestGetProfile(t *testing.T) {
	e := defaultEngine()
	e.RecordQuery([]float32{1, 0, 0}, []string{"a"}, "", 1234)

	profile := e.GetProfile()
	assert.Equal(t, 1, profile.TotalQueries)
	assert.Equal(t, uint64(1234), profile.LastUpdated)
	require.Len(t, profile.QueryHistory, 1)
	assert.Equal(t, 1, profile.QueryHistory[0].ResultCount)
	assert.NotNil(t, profile.InterestEmbedding)
}

func TestMaxCorrelationCount(t *testing.T) {
	e := defaultEngine()
	assert.Equal(t, 0, e.MaxCorrelationCount())

	for i := 0; i < 4; i++ {
		e.RecordQuery([]float32{1, float32(i), 0}, []string{"a", "b"}, "", uint64(1000+i))
	}
	assert.Equal(t, 4, e.MaxCorrelationCount())
}
