package core

import (
	"math"
	"sort"
	"strings"
)

// BM25Result is a single BM25 search hit: document ID and relevance score.
type BM25Result struct {
	ID    string
	Score float64
}

// InvertedIndex maps terms to the set of document IDs containing them,
// together with the per-document term frequencies and lengths needed for
// Okapi BM25 scoring.
//
// Invariant: a term key exists iff it has at least one posting; removing the
// last posting for a term removes the term entry.
type InvertedIndex struct {
	// term -> set of entry IDs
	index map[string]map[string]struct{}
	// entry ID -> token count (document length)
	docLengths map[string]int
	// term -> (entry ID -> frequency)
	termFreqs map[string]map[string]int
	// sum of all document lengths
	totalDocLength int
}

// NewInvertedIndex creates an empty inverted index.
func NewInvertedIndex() *InvertedIndex {
	return &InvertedIndex{
		index:      make(map[string]map[string]struct{}),
		docLengths: make(map[string]int),
		termFreqs:  make(map[string]map[string]int),
	}
}

// AddEntry tokenizes text and updates postings lists, document lengths, and
// per-term frequencies for the given entry.
func (ix *InvertedIndex) AddEntry(id, text string) {
	tokens := Tokenize(text)
	ix.docLengths[id] = len(tokens)
	ix.totalDocLength += len(tokens)

	for _, token := range tokens {
		postings, ok := ix.index[token]
		if !ok {
			postings = make(map[string]struct{})
			ix.index[token] = postings
		}
		postings[id] = struct{}{}

		freqs, ok := ix.termFreqs[token]
		if !ok {
			freqs = make(map[string]int)
			ix.termFreqs[token] = freqs
		}
		freqs[id]++
	}
}

// RemoveEntry removes an entry by ID using its original text. Tokens are
// deduplicated so each term is cleaned once; empty posting lists and
// frequency maps are pruned.
func (ix *InvertedIndex) RemoveEntry(id, text string) {
	tokens := Tokenize(text)

	if dl, ok := ix.docLengths[id]; ok {
		ix.totalDocLength -= dl
		delete(ix.docLengths, id)
	}

	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}

		if postings, ok := ix.index[token]; ok {
			delete(postings, id)
			if len(postings) == 0 {
				delete(ix.index, token)
			}
		}
		if freqs, ok := ix.termFreqs[token]; ok {
			delete(freqs, id)
			if len(freqs) == 0 {
				delete(ix.termFreqs, token)
			}
		}
	}
}

// GetEntries returns all entry IDs containing the given term (lowercased).
func (ix *InvertedIndex) GetEntries(term string) []string {
	postings, ok := ix.index[strings.ToLower(term)]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(postings))
	for id := range postings {
		out = append(out, id)
	}
	return out
}

// BM25Search ranks documents against the query with Okapi BM25.
//
//   - k1 controls term-frequency saturation (typical default 1.2)
//   - b controls document-length normalization, 0-1 (typical default 0.75)
//
// Results are sorted descending by score. Returns nil when the query yields
// no tokens or the index is empty.
func (ix *InvertedIndex) BM25Search(query string, k1, b float64) []BM25Result {
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	n := len(ix.docLengths)
	if n == 0 {
		return nil
	}

	avgdl := float64(ix.totalDocLength) / float64(n)
	scores := make(map[string]float64)

	for _, token := range queryTokens {
		postings, ok := ix.index[token]
		if !ok {
			continue
		}

		df := float64(len(postings))
		idf := math.Log((float64(n)-df+0.5)/(df+0.5) + 1.0)

		freqs, ok := ix.termFreqs[token]
		if !ok {
			continue
		}

		for docID := range postings {
			tf := float64(freqs[docID])
			dl := float64(ix.docLengths[docID])
			tfNorm := (tf * (k1 + 1.0)) / (tf + k1*(1.0-b+b*dl/avgdl))
			scores[docID] += idf * tfNorm
		}
	}

	results := make([]BM25Result, 0, len(scores))
	for id, score := range scores {
		results = append(results, BM25Result{ID: id, Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	return results
}

// Clear removes all entries and resets internal state.
func (ix *InvertedIndex) Clear() {
	ix.index = make(map[string]map[string]struct{})
	ix.docLengths = make(map[string]int)
	ix.termFreqs = make(map[string]map[string]int)
	ix.totalDocLength = 0
}

// DocumentCount returns the number of indexed documents.
func (ix *InvertedIndex) DocumentCount() int {
	return len(ix.docLengths)
}

// AverageDocumentLength returns the mean document length in tokens, or 0 for
// an empty index.
func (ix *InvertedIndex) AverageDocumentLength() float64 {
	if len(ix.docLengths) == 0 {
		return 0.0
	}
	return float64(ix.totalDocLength) / float64(len(ix.docLengths))
}
