package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvertedIndexAddAndGet(t *testing.T) {
	ix := NewInvertedIndex()
	ix.AddEntry("doc1", "hello world")
	ix.AddEntry("doc2", "hello rust")

	entries := ix.GetEntries("hello")
	assert.ElementsMatch(t, []string{"doc1", "doc2"}, entries)
	// Term lookup is case-insensitive.
	assert.Len(t, ix.GetEntries("HELLO"), 2)
}

func TestBM25BasicRanking(t *testing.T) {
	ix := NewInvertedIndex()
	ix.AddEntry("doc1", "the quick brown fox")
	ix.AddEntry("doc2", "the quick brown fox jumps over the lazy dog")
	ix.AddEntry("doc3", "hello world")

	results := ix.BM25Search("quick brown fox", 1.2, 0.75)
	require.GreaterOrEqual(t, len(results), 2)

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	assert.Contains(t, ids, "doc1")
	assert.Contains(t, ids, "doc2")
	assert.NotContains(t, ids, "doc3")
}

func TestBM25HigherTermFrequencyScoresHigher(t *testing.T) {
	ix := NewInvertedIndex()
	ix.AddEntry("doc1", "rust rust rust foo")
	ix.AddEntry("doc2", "rust foo bar baz")

	results := ix.BM25Search("rust", 1.2, 0.75)
	require.Len(t, results, 2)
	assert.Equal(t, "doc1", results[0].ID)
	assert.Equal(t, "doc2", results[1].ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestBM25ResultsSortedDescending(t *testing.T) {
	ix := NewInvertedIndex()
	ix.AddEntry("doc1", "rust rust rust")
	ix.AddEntry("doc2", "rust programming")
	ix.AddEntry("doc3", "hello world")

	results := ix.BM25Search("rust", 1.2, 0.75)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestBM25EmptyCases(t *testing.T) {
	ix := NewInvertedIndex()
	assert.Empty(t, ix.BM25Search("hello", 1.2, 0.75))

	ix.AddEntry("doc1", "hello")
	assert.Empty(t, ix.BM25Search("", 1.2, 0.75))
	assert.Empty(t, ix.BM25Search("!!!", 1.2, 0.75))
}

func TestInvertedIndexRemoveEntry(t *testing.T) {
	ix := NewInvertedIndex()
	ix.AddEntry("doc1", "hello world")
	ix.AddEntry("doc2", "hello rust")
	assert.Equal(t, 2, ix.DocumentCount())

	ix.RemoveEntry("doc1", "hello world")
	assert.Equal(t, 1, ix.DocumentCount())
	assert.Empty(t, ix.GetEntries("world"))
	assert.ElementsMatch(t, []string{"doc2"}, ix.GetEntries("hello"))
}

func TestInvertedIndexRemoveCleansTermFreqs(t *testing.T) {
	ix := NewInvertedIndex()
	ix.AddEntry("doc1", "rust rust rust")
	ix.RemoveEntry("doc1", "rust rust rust")
	assert.Equal(t, 0, ix.DocumentCount())
	assert.Empty(t, ix.GetEntries("rust"))
	assert.Empty(t, ix.termFreqs)
	assert.Empty(t, ix.index)
	assert.Equal(t, 0, ix.totalDocLength)
}

func TestInvertedIndexClearResets(t *testing.T) {
	ix := NewInvertedIndex()
	ix.AddEntry("doc1", "hello")
	ix.Clear()
	assert.Equal(t, 0, ix.DocumentCount())
	assert.Equal(t, 0.0, ix.AverageDocumentLength())
}

func TestAverageDocumentLength(t *testing.T) {
	ix := NewInvertedIndex()
	ix.AddEntry("d1", "one two three")
	ix.AddEntry("d2", "four five")
	assert.Equal(t, 2, ix.DocumentCount())
	assert.InDelta(t, 2.5, ix.AverageDocumentLength(), 0.01)
}
