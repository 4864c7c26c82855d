package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shmor3/simse/pkg/core"
)

func testConfig() Config {
	cfg := DefaultConfig()
	// Duplicate detection off unless a test opts in.
	cfg.DuplicateThreshold = 1.0
	return cfg
}

func initStore(t *testing.T, cfg Config) *VolumeStore {
	t.Helper()
	s := New(cfg)
	require.NoError(t, s.Initialize(""))
	return s
}

func mustAdd(t *testing.T, s *VolumeStore, text string, embedding []float32, metadata map[string]string) string {
	t.Helper()
	id, err := s.Add(text, embedding, metadata)
	require.NoError(t, err)
	return id
}

func TestLifecycle(t *testing.T) {
	s := New(testConfig())
	assert.False(t, s.Initialized())
	assert.Equal(t, 0, s.Size())

	_, err := s.Add("text", []float32{1}, nil)
	assert.ErrorIs(t, err, core.ErrNotInitialized)

	require.NoError(t, s.Initialize(""))
	assert.True(t, s.Initialized())
	assert.False(t, s.IsDirty())
}

func TestAddAndGetByID(t *testing.T) {
	s := initStore(t, testConfig())

	id := mustAdd(t, s, "hello world", []float32{1, 0, 0}, nil)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, s.Size())
	assert.True(t, s.IsDirty())

	vol, ok := s.GetByID(id)
	require.True(t, ok)
	assert.Equal(t, "hello world", vol.Text)
	assert.Equal(t, []float32{1, 0, 0}, vol.Embedding)

	_, ok = s.GetByID("missing")
	assert.False(t, ok)
}

func TestAddValidation(t *testing.T) {
	s := initStore(t, testConfig())

	_, err := s.Add("", []float32{1}, nil)
	assert.ErrorIs(t, err, core.ErrEmptyText)

	_, err = s.Add("hello", nil, nil)
	assert.ErrorIs(t, err, core.ErrEmptyEmbedding)
}

func TestAddBatchAbortsOnFirstFailure(t *testing.T) {
	s := initStore(t, testConfig())

	ids, err := s.AddBatch([]core.AddEntry{
		{Text: "first", Embedding: []float32{1, 0}},
		{Text: "second", Embedding: []float32{0, 1}},
	})
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Equal(t, 2, s.Size())

	_, err = s.AddBatch([]core.AddEntry{
		{Text: "third", Embedding: []float32{1, 1}},
		{Text: "", Embedding: []float32{1, 1}},
	})
	assert.ErrorIs(t, err, core.ErrEmptyText)
	// The entry before the failure landed.
	assert.Equal(t, 3, s.Size())
}

func TestDuplicateSkipReturnsExistingID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DuplicateThreshold = 0.99
	cfg.DuplicateBehavior = DuplicateSkip
	s := initStore(t, cfg)

	first := mustAdd(t, s, "A", []float32{1, 0, 0}, nil)
	second := mustAdd(t, s, "B", []float32{1, 0, 0}, nil)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, s.Size())
}

func TestDuplicateErrorBehavior(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DuplicateThreshold = 0.99
	cfg.DuplicateBehavior = DuplicateError
	s := initStore(t, cfg)

	mustAdd(t, s, "A", []float32{1, 0, 0}, nil)
	_, err := s.Add("B", []float32{1, 0, 0}, nil)

	var dup *core.DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.InDelta(t, 1.0, dup.Similarity, 1e-6)
	assert.Equal(t, 1, s.Size())
}

func TestDeleteRemovesEverywhere(t *testing.T) {
	s := initStore(t, testConfig())
	id := mustAdd(t, s, "test entry", []float32{1, 0, 0}, map[string]string{"topic": "rust"})

	require.True(t, s.Delete(id))
	assert.Equal(t, 0, s.Size())
	_, ok := s.GetByID(id)
	assert.False(t, ok)

	// Topic entries cleaned up with the volume.
	for _, info := range s.GetTopics() {
		assert.NotEqual(t, "rust", info.Topic)
	}

	assert.False(t, s.Delete(id))
}

func TestDeleteBatch(t *testing.T) {
	s := initStore(t, testConfig())
	id1 := mustAdd(t, s, "first", []float32{1, 0, 0}, nil)
	id2 := mustAdd(t, s, "second", []float32{0, 1, 0}, nil)
	mustAdd(t, s, "third", []float32{0, 0, 1}, nil)

	assert.Equal(t, 2, s.DeleteBatch([]string{id1, id2, "missing"}))
	assert.Equal(t, 1, s.Size())
}

func TestClear(t *testing.T) {
	s := initStore(t, testConfig())
	mustAdd(t, s, "first", []float32{1, 0}, map[string]string{"topic": "a"})
	mustAdd(t, s, "second", []float32{0, 1}, nil)

	s.Clear()
	assert.Equal(t, 0, s.Size())
	assert.True(t, s.IsDirty())
	assert.Empty(t, s.GetTopics())
	assert.Equal(t, 0, s.GraphIndex().EdgeCount())
}

func TestSearchSortedAndThresholded(t *testing.T) {
	s := initStore(t, testConfig())
	mustAdd(t, s, "close match", []float32{0.9, 0.1, 0}, nil)
	mustAdd(t, s, "exact match", []float32{1, 0, 0}, nil)
	mustAdd(t, s, "orthogonal", []float32{0, 1, 0}, nil)

	results, err := s.Search([]float32{1, 0, 0}, 10, 0.5)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(results), 2)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	assert.Equal(t, "exact match", results[0].Volume.Text)
	for _, r := range results {
		assert.NotEqual(t, "orthogonal", r.Volume.Text)
	}
}

func TestSearchZeroQueryMagnitude(t *testing.T) {
	s := initStore(t, testConfig())
	mustAdd(t, s, "entry", []float32{1, 0}, nil)

	results, err := s.Search([]float32{0, 0}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchTracksAccess(t *testing.T) {
	s := initStore(t, testConfig())
	id := mustAdd(t, s, "entry", []float32{1, 0}, nil)

	_, err := s.Search([]float32{1, 0}, 10, 0)
	require.NoError(t, err)
	_, err = s.Search([]float32{1, 0}, 10, 0)
	require.NoError(t, err)

	assert.Equal(t, uint32(2), s.accessStats[id].AccessCount)
}

func TestTextSearchBM25Scenario(t *testing.T) {
	s := initStore(t, testConfig())
	mustAdd(t, s, "the quick brown fox", []float32{1, 0, 0}, nil)
	mustAdd(t, s, "the quick brown fox jumps over the lazy dog", []float32{0, 1, 0}, nil)
	mustAdd(t, s, "hello world", []float32{0, 0, 1}, nil)

	results, err := s.TextSearch(core.TextSearchOptions{Query: "quick brown fox", Mode: "bm25"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	texts := []string{results[0].Volume.Text, results[1].Volume.Text}
	assert.Contains(t, texts, "the quick brown fox")
	assert.Contains(t, texts, "the quick brown fox jumps over the lazy dog")

	// Normalized scores: the best result scores exactly one.
	assert.InDelta(t, 1.0, results[0].Score, 1e-10)
}

func TestTextSearchFuzzyDefault(t *testing.T) {
	s := initStore(t, testConfig())
	mustAdd(t, s, "hello world", []float32{1, 0}, nil)
	mustAdd(t, s, "completely different text", []float32{0, 1}, nil)

	results, err := s.TextSearch(core.TextSearchOptions{Query: "hello world", Threshold: floatPtr(0.5)})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "hello world", results[0].Volume.Text)
}

func TestTextSearchRegexPatternLengthCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRegexPatternLength = 5
	s := initStore(t, cfg)
	mustAdd(t, s, "hello world", []float32{1, 0}, nil)

	results, err := s.TextSearch(core.TextSearchOptions{Query: "^hello world.*$", Mode: "regex"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFilterByMetadata(t *testing.T) {
	s := initStore(t, testConfig())
	mustAdd(t, s, "go entry", []float32{1, 0}, map[string]string{"lang": "go", "level": "3"})
	mustAdd(t, s, "rust entry", []float32{0, 1}, map[string]string{"lang": "rust", "level": "7"})

	// Single eq filter takes the index fast path.
	volumes := s.FilterByMetadata([]core.MetadataFilter{{Key: "lang", Value: rawJSON(t, "go")}})
	require.Len(t, volumes, 1)
	assert.Equal(t, "go entry", volumes[0].Text)

	// Conjunctive linear scan.
	volumes = s.FilterByMetadata([]core.MetadataFilter{
		{Key: "lang", Value: rawJSON(t, "rust")},
		{Key: "level", Value: rawJSON(t, "5"), Mode: "gt"},
	})
	require.Len(t, volumes, 1)
	assert.Equal(t, "rust entry", volumes[0].Text)

	assert.Empty(t, s.FilterByMetadata(nil))
}

func TestFilterByDateRange(t *testing.T) {
	s := initStore(t, testConfig())
	id := mustAdd(t, s, "entry", []float32{1, 0}, nil)

	vol, _ := s.GetByID(id)
	after := vol.Timestamp
	before := vol.Timestamp

	// Bounds are inclusive.
	assert.Len(t, s.FilterByDateRange(core.DateRange{After: &after, Before: &before}), 1)

	tooLate := vol.Timestamp + 1
	assert.Empty(t, s.FilterByDateRange(core.DateRange{After: &tooLate}))

	assert.Len(t, s.FilterByDateRange(core.DateRange{}), 1)
}

func TestFilterByTopicIncludesDescendants(t *testing.T) {
	s := initStore(t, testConfig())
	mustAdd(t, s, "root entry", []float32{1, 0}, map[string]string{"topic": "code"})
	mustAdd(t, s, "leaf entry", []float32{0, 1}, map[string]string{"topic": "code/rust"})

	assert.Len(t, s.FilterByTopic([]string{"code"}), 2)
	assert.Len(t, s.FilterByTopic([]string{"code/rust"}), 1)
	assert.Empty(t, s.FilterByTopic(nil))
}
