// Package learning implements the adaptive engine that observes search
// patterns and tunes the memory system in real time:
//
//  1. Relevance feedback -- tracks which entries keep being retrieved by
//     diverse queries, boosting consistently relevant entries.
//  2. Adaptive weight profiles -- shifts vector/recency/frequency weights
//     toward whichever signal is predicting useful results.
//  3. Interest embedding -- keeps a decayed mean of recent query embeddings
//     representing the patron's evolving interests.
//  4. Per-topic profiles -- weights, interest embedding, and query counts are
//     tracked independently per topic. A topic's weights replace the global
//     weights only once it has ten queries; its interest embedding is used
//     as soon as it exists, with the global one used otherwise.
//
// All state serializes for persistence; embeddings are encoded as base64
// Float32 little-endian strings.
package learning

import (
	"math"
	"sort"

	"github.com/shmor3/simse/pkg/core"
)

const (
	sevenDaysMs         = 7.0 * 24 * 60 * 60 * 1000
	boostMin            = 0.8
	boostMax            = 1.2
	topicQueryThreshold = 10
	// diverseSampleCap bounds the stored query-embedding samples per entry.
	diverseSampleCap = 20
	// diverseSimilarityCutoff is the cosine above which a query counts as a
	// repeat of a stored sample.
	diverseSimilarityCutoff = 0.9
)

// Options configures the learning engine.
type Options struct {
	Enabled              bool
	MaxQueryHistory      int
	QueryDecayMs         float64
	WeightAdaptationRate float64
	InterestBoostWeight  float64
}

// DefaultOptions returns the default engine configuration.
func DefaultOptions() Options {
	return Options{
		Enabled:              true,
		MaxQueryHistory:      50,
		QueryDecayMs:         sevenDaysMs,
		WeightAdaptationRate: 0.05,
		InterestBoostWeight:  0.15,
	}
}

// feedbackEntry tracks per-entry implicit retrieval feedback.
type feedbackEntry struct {
	queryCount         int
	totalRetrievals    int
	lastQueryTimestamp uint64
	// Sample of distinct query embeddings that found this entry.
	queryEmbeddings [][]float32
}

// explicitFeedback holds per-entry thumbs-up/down counts.
type explicitFeedback struct {
	positive int
	negative int
}

// topicState is the per-topic mutable learning state.
type topicState struct {
	weights           core.RequiredWeights
	interestEmbedding []float32
	queryCount        int
	queryHistory      []core.QueryRecord
}

// Engine adapts weight profiles and interest embeddings from observed
// queries and feedback.
type Engine struct {
	enabled              bool
	maxQueryHistory      int
	queryDecayMs         float64
	weightAdaptationRate float64
	interestBoostWeight  float64

	feedback          map[string]*feedbackEntry
	explicit          map[string]*explicitFeedback
	queryHistory      []core.QueryRecord
	adaptedWeights    core.RequiredWeights
	interestEmbedding []float32
	totalQueries      int
	lastUpdated       uint64
	topicStates       map[string]*topicState
	correlations      map[string]map[string]int
}

func defaultWeights() core.RequiredWeights {
	return core.RequiredWeights{Vector: 0.6, Recency: 0.2, Frequency: 0.2}
}

// NewEngine creates a learning engine with the given options.
func NewEngine(options Options) *Engine {
	return &Engine{
		enabled:              options.Enabled,
		maxQueryHistory:      options.MaxQueryHistory,
		queryDecayMs:         options.QueryDecayMs,
		weightAdaptationRate: options.WeightAdaptationRate,
		interestBoostWeight:  options.InterestBoostWeight,

		feedback:       make(map[string]*feedbackEntry),
		explicit:       make(map[string]*explicitFeedback),
		adaptedWeights: defaultWeights(),
		topicStates:    make(map[string]*topicState),
		correlations:   make(map[string]map[string]int),
	}
}

// ---------------------------------------------------------------------------
// Free helpers (shared between the global and per-topic update paths)
// ---------------------------------------------------------------------------

// computeInterestEmbedding builds a unit-norm interest vector from query
// records, weighting each by exponential age decay. Returns nil when the
// history is empty or the result degenerates.
func computeInterestEmbedding(queryDecayMs float64, history []core.QueryRecord, now uint64) []float32 {
	if len(history) == 0 {
		return nil
	}

	lambda := math.Ln2 / queryDecayMs
	dim := len(history[0].Embedding)
	if dim == 0 {
		return nil
	}

	weighted := make([]float64, dim)
	var totalWeight float64

	for _, record := range history {
		if len(record.Embedding) != dim {
			continue
		}
		var age float64
		if now > record.Timestamp {
			age = float64(now - record.Timestamp)
		}
		w := math.Exp(-lambda * age)
		totalWeight += w
		for i := 0; i < dim; i++ {
			weighted[i] += float64(record.Embedding[i]) * w
		}
	}

	if totalWeight == 0 {
		return nil
	}
	for i := range weighted {
		weighted[i] /= totalWeight
	}

	var mag float64
	for _, v := range weighted {
		mag += v * v
	}
	mag = math.Sqrt(mag)
	if mag == 0 || math.IsNaN(mag) || math.IsInf(mag, 0) {
		return nil
	}

	result := make([]float32, dim)
	for i, v := range weighted {
		result[i] = float32(v / mag)
	}
	return result
}

// adaptWeights nudges the profile toward frequency when more than half the
// result set is already heavily retrieved, otherwise toward vector
// similarity, then re-normalizes.
func adaptWeights(feedback map[string]*feedbackEntry, rate float64, current core.RequiredWeights, resultIDs []string) core.RequiredWeights {
	if len(resultIDs) == 0 {
		return current
	}

	highFeedback := 0
	for _, id := range resultIDs {
		if fb, ok := feedback[id]; ok && fb.totalRetrievals > 3 {
			highFeedback++
		}
	}

	next := current
	if float64(highFeedback)/float64(len(resultIDs)) > 0.5 {
		next.Frequency += rate * 0.5
	} else {
		next.Vector += rate * 0.5
	}
	return core.NormalizeRequiredWeights(next)
}

// ---------------------------------------------------------------------------
// Public API
// ---------------------------------------------------------------------------

// RecordQuery folds a completed query and its result set into the engine:
// history, per-entry feedback, co-occurrence correlations, weight
// adaptation, and the interest embedding. When topic is non-empty the same
// updates run against that topic's state.
func (e *Engine) RecordQuery(queryEmbedding []float32, resultIDs []string, topic string, now uint64) {
	if !e.enabled {
		return
	}
	if len(queryEmbedding) == 0 || len(resultIDs) == 0 {
		return
	}

	e.totalQueries++
	e.lastUpdated = now

	record := core.QueryRecord{
		Embedding:   append([]float32(nil), queryEmbedding...),
		Timestamp:   now,
		ResultCount: len(resultIDs),
	}
	e.queryHistory = append(e.queryHistory, record)
	if len(e.queryHistory) > e.maxQueryHistory {
		excess := len(e.queryHistory) - e.maxQueryHistory
		e.queryHistory = e.queryHistory[excess:]
	}

	for _, id := range resultIDs {
		existing, ok := e.feedback[id]
		if !ok {
			e.feedback[id] = &feedbackEntry{
				queryCount:         1,
				totalRetrievals:    1,
				lastQueryTimestamp: now,
				queryEmbeddings:    [][]float32{append([]float32(nil), queryEmbedding...)},
			}
			continue
		}
		existing.totalRetrievals++
		existing.lastQueryTimestamp = now

		// Only count diverse queries: the embedding must differ from every
		// stored sample.
		diverse := true
		for _, prev := range existing.queryEmbeddings {
			if core.CosineSimilarity(prev, queryEmbedding) >= diverseSimilarityCutoff {
				diverse = false
				break
			}
		}
		if diverse {
			existing.queryCount++
			if len(existing.queryEmbeddings) < diverseSampleCap {
				existing.queryEmbeddings = append(existing.queryEmbeddings, append([]float32(nil), queryEmbedding...))
			}
		}
	}

	// Symmetric co-occurrence counts for every unordered result pair.
	for i := 0; i < len(resultIDs); i++ {
		for j := i + 1; j < len(resultIDs); j++ {
			a, b := resultIDs[i], resultIDs[j]
			if e.correlations[a] == nil {
				e.correlations[a] = make(map[string]int)
			}
			e.correlations[a][b]++
			if e.correlations[b] == nil {
				e.correlations[b] = make(map[string]int)
			}
			e.correlations[b][a]++
		}
	}

	e.adaptedWeights = adaptWeights(e.feedback, e.weightAdaptationRate, e.adaptedWeights, resultIDs)
	e.interestEmbedding = computeInterestEmbedding(e.queryDecayMs, e.queryHistory, now)

	if topic == "" {
		return
	}

	ts, ok := e.topicStates[topic]
	if !ok {
		ts = &topicState{weights: defaultWeights()}
		e.topicStates[topic] = ts
	}
	ts.queryCount++
	ts.queryHistory = append(ts.queryHistory, record)
	if len(ts.queryHistory) > e.maxQueryHistory {
		excess := len(ts.queryHistory) - e.maxQueryHistory
		ts.queryHistory = ts.queryHistory[excess:]
	}
	ts.weights = adaptWeights(e.feedback, e.weightAdaptationRate, ts.weights, resultIDs)
	ts.interestEmbedding = computeInterestEmbedding(e.queryDecayMs, ts.queryHistory, now)
}

// RecordFeedback counts explicit user relevance feedback on an entry.
func (e *Engine) RecordFeedback(entryID string, relevant bool, now uint64) {
	if !e.enabled {
		return
	}

	existing, ok := e.explicit[entryID]
	if !ok {
		existing = &explicitFeedback{}
		e.explicit[entryID] = existing
	}
	if relevant {
		existing.positive++
	} else {
		existing.negative++
	}
	e.lastUpdated = now
}

// GetAdaptedWeights returns the current weight profile. A topic's own
// weights are used only once that topic has at least ten recorded queries;
// otherwise the global profile applies.
func (e *Engine) GetAdaptedWeights(topic string) core.RequiredWeights {
	if topic != "" {
		if ts, ok := e.topicStates[topic]; ok && ts.queryCount >= topicQueryThreshold {
			return ts.weights
		}
	}
	return e.adaptedWeights
}

// GetInterestEmbedding returns the interest embedding, per-topic when a
// topic is given (nil when that topic has none), global otherwise.
func (e *Engine) GetInterestEmbedding(topic string) []float32 {
	if topic != "" {
		if ts, ok := e.topicStates[topic]; ok {
			return ts.interestEmbedding
		}
		return nil
	}
	return e.interestEmbedding
}

// computeRelevanceScore scores an entry from implicit retrieval counts and
// explicit feedback: clamp((queryCount + 5*positive - 3*negative) / maxHistory, 0, 1).
func (e *Engine) computeRelevanceScore(entryID string, fb *feedbackEntry) float64 {
	var positive, negative int
	if ef, ok := e.explicit[entryID]; ok {
		positive = ef.positive
		negative = ef.negative
	}
	raw := float64(fb.queryCount) + float64(positive)*5.0 - float64(negative)*3.0
	score := raw / float64(e.maxQueryHistory)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// ComputeBoost returns a score multiplier for an entry, combining relevance
// feedback and interest alignment. Clamped to [0.8, 1.2]; 1.0 when the
// engine is disabled.
func (e *Engine) ComputeBoost(entryID string, entryEmbedding []float32, topic string) float64 {
	if !e.enabled {
		return 1.0
	}

	boost := 1.0

	if fb, ok := e.feedback[entryID]; ok {
		boost += e.computeRelevanceScore(entryID, fb) * 0.1
	}

	var interest []float32
	if topic != "" {
		if ts, ok := e.topicStates[topic]; ok {
			interest = ts.interestEmbedding
		}
	}
	if interest == nil {
		interest = e.interestEmbedding
	}

	if interest != nil && len(entryEmbedding) == len(interest) {
		similarity := core.CosineSimilarity(entryEmbedding, interest)
		if similarity > 0 {
			boost += similarity * e.interestBoostWeight
		}
	}

	if boost < boostMin {
		return boostMin
	}
	if boost > boostMax {
		return boostMax
	}
	return boost
}

// CorrelatedEntry is a co-occurring entry with its shared-result count.
type CorrelatedEntry struct {
	EntryID string `json:"entryId"`
	Count   int    `json:"count"`
}

// GetCorrelatedEntries returns entries that frequently co-appear with the
// given entry in query results, sorted by count descending.
func (e *Engine) GetCorrelatedEntries(entryID string) []CorrelatedEntry {
	peers, ok := e.correlations[entryID]
	if !ok || len(peers) == 0 {
		return nil
	}

	results := make([]CorrelatedEntry, 0, len(peers))
	for id, count := range peers {
		results = append(results, CorrelatedEntry{EntryID: id, Count: count})
	}
	sortCorrelated(results)
	return results
}

// Correlations exposes the symmetric co-occurrence map for graph syncing.
func (e *Engine) Correlations() map[string]map[string]int {
	return e.correlations
}

// MaxCorrelationCount returns the largest co-occurrence count across all
// pairs, for normalizing correlation edge weights.
func (e *Engine) MaxCorrelationCount() int {
	maxCount := 0
	for _, peers := range e.correlations {
		for _, count := range peers {
			if count > maxCount {
				maxCount = count
			}
		}
	}
	return maxCount
}

// GetProfile snapshots the public learning state.
func (e *Engine) GetProfile() core.PatronProfile {
	history := append([]core.QueryRecord(nil), e.queryHistory...)
	return core.PatronProfile{
		QueryHistory:      history,
		AdaptedWeights:    e.adaptedWeights,
		InterestEmbedding: e.interestEmbedding,
		TotalQueries:      e.totalQueries,
		LastUpdated:       e.lastUpdated,
	}
}

// Clear resets all learning state.
func (e *Engine) Clear() {
	e.feedback = make(map[string]*feedbackEntry)
	e.explicit = make(map[string]*explicitFeedback)
	e.queryHistory = nil
	e.adaptedWeights = defaultWeights()
	e.interestEmbedding = nil
	e.totalQueries = 0
	e.lastUpdated = 0
	e.topicStates = make(map[string]*topicState)
	e.correlations = make(map[string]map[string]int)
}

// PruneEntries drops feedback, explicit feedback, and correlation state for
// ids outside the valid set, including references inside surviving
// correlation maps.
func (e *Engine) PruneEntries(validIDs map[string]struct{}) {
	for id := range e.feedback {
		if _, ok := validIDs[id]; !ok {
			delete(e.feedback, id)
		}
	}
	for id := range e.explicit {
		if _, ok := validIDs[id]; !ok {
			delete(e.explicit, id)
		}
	}
	for id := range e.correlations {
		if _, ok := validIDs[id]; !ok {
			delete(e.correlations, id)
		}
	}
	for _, peers := range e.correlations {
		for id := range peers {
			if _, ok := validIDs[id]; !ok {
				delete(peers, id)
			}
		}
	}
}

// TotalQueries returns the number of queries recorded.
func (e *Engine) TotalQueries() int {
	return e.totalQueries
}

// HasData reports whether any learning state exists.
func (e *Engine) HasData() bool {
	return e.totalQueries > 0
}

func sortCorrelated(results []CorrelatedEntry) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Count != results[j].Count {
			return results[i].Count > results[j].Count
		}
		return results[i].EntryID < results[j].EntryID
	})
}
