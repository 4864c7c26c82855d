package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func makeLookup(text string, score float64, topic string, timestamp uint64) Lookup {
	return Lookup{
		Volume: Volume{
			ID:        "vol-" + text,
			Text:      text,
			Metadata:  map[string]string{"topic": topic},
			Timestamp: timestamp,
		},
		Score: score,
	}
}

func TestFormatMemoryContextEmpty(t *testing.T) {
	assert.Equal(t, "", FormatMemoryContext(nil, MemoryContextOptions{}, 1000))
}

func TestFormatMemoryContextStructured(t *testing.T) {
	results := []Lookup{makeLookup("Hello world", 0.92, "rust", 1000)}
	out := FormatMemoryContext(results, MemoryContextOptions{}, 2000)

	assert.Contains(t, out, "<memory-context>")
	assert.Contains(t, out, "</memory-context>")
	assert.Contains(t, out, `topic="rust"`)
	assert.Contains(t, out, `relevance="0.92"`)
	assert.Contains(t, out, "Hello world")
}

func TestFormatMemoryContextNatural(t *testing.T) {
	results := []Lookup{makeLookup("Hello world", 0.85, "go", 1000)}
	out := FormatMemoryContext(results, MemoryContextOptions{Format: "natural"}, 2000)

	assert.True(t, strings.HasPrefix(out, "Relevant context from library:"))
	assert.Contains(t, out, "[go]")
	assert.Contains(t, out, "relevance: 0.85")
	assert.Contains(t, out, "Hello world")
}

func TestFormatMemoryContextMinScore(t *testing.T) {
	results := []Lookup{
		makeLookup("high score", 0.9, "rust", 1000),
		makeLookup("low score", 0.3, "rust", 1000),
	}
	out := FormatMemoryContext(results, MemoryContextOptions{MinScore: floatPtr(0.5)}, 2000)
	assert.Contains(t, out, "high score")
	assert.NotContains(t, out, "low score")

	allFiltered := FormatMemoryContext(results[1:], MemoryContextOptions{MinScore: floatPtr(0.5)}, 2000)
	assert.Equal(t, "", allFiltered)
}

func TestFormatMemoryContextMaxResults(t *testing.T) {
	results := []Lookup{
		makeLookup("first", 0.9, "rust", 1000),
		makeLookup("second", 0.8, "rust", 1000),
		makeLookup("third", 0.7, "rust", 1000),
	}
	two := 2
	out := FormatMemoryContext(results, MemoryContextOptions{MaxResults: &two}, 2000)
	assert.Contains(t, out, "first")
	assert.Contains(t, out, "second")
	assert.NotContains(t, out, "third")
}

func TestFormatMemoryContextCustomTag(t *testing.T) {
	results := []Lookup{makeLookup("text", 0.9, "rust", 1000)}
	out := FormatMemoryContext(results, MemoryContextOptions{Tag: "context"}, 2000)
	assert.Contains(t, out, "<context>")
	assert.Contains(t, out, "</context>")
}

func TestFormatMemoryContextMaxCharsTruncates(t *testing.T) {
	long := strings.Repeat("a", 200)
	results := []Lookup{
		makeLookup(long, 0.9, "rust", 1000),
		makeLookup(long, 0.8, "rust", 1000),
	}
	maxChars := 300
	out := FormatMemoryContext(results, MemoryContextOptions{MaxChars: &maxChars}, 2000)
	assert.Equal(t, 1, strings.Count(out, "<entry"))
}

func TestFormatMemoryContextAge(t *testing.T) {
	results := []Lookup{makeLookup("text", 0.9, "rust", 3000)}
	out := FormatMemoryContext(results, MemoryContextOptions{}, 10000)
	assert.Contains(t, out, `age="7s"`)
}

func TestFormatMemoryContextUncategorized(t *testing.T) {
	results := []Lookup{{
		Volume: Volume{ID: "vol-1", Text: "no topic text", Metadata: map[string]string{}, Timestamp: 1000},
		Score:  0.9,
	}}
	out := FormatMemoryContext(results, MemoryContextOptions{}, 2000)
	assert.Contains(t, out, `topic="uncategorized"`)
}

func TestFormatAge(t *testing.T) {
	assert.Equal(t, "5s", FormatAge(5000))
	assert.Equal(t, "59s", FormatAge(59000))
	assert.Equal(t, "1m", FormatAge(60_000))
	assert.Equal(t, "59m", FormatAge(3_540_000))
	assert.Equal(t, "1h", FormatAge(3_600_000))
	assert.Equal(t, "23h", FormatAge(82_800_000))
	assert.Equal(t, "1d", FormatAge(86_400_000))
	assert.Equal(t, "2d", FormatAge(172_800_000))
}
