package learning

import (
	"sort"

	"github.com/shmor3/simse/internal/encoding"
	"github.com/shmor3/simse/pkg/core"
)

// SerializedFeedback is per-entry implicit feedback in persisted form.
// Diverse query samples are not persisted; they rebuild from future queries.
type SerializedFeedback struct {
	ID                 string `json:"id"`
	QueryCount         int    `json:"queryCount"`
	TotalRetrievals    int    `json:"totalRetrievals"`
	LastQueryTimestamp uint64 `json:"lastQueryTimestamp"`
}

// SerializedQueryRecord is one query record with a base64-encoded embedding.
type SerializedQueryRecord struct {
	Embedding   string `json:"embedding"`
	Timestamp   uint64 `json:"timestamp"`
	ResultCount int    `json:"resultCount"`
}

// SerializedExplicitFeedback is per-entry explicit feedback in persisted form.
type SerializedExplicitFeedback struct {
	EntryID       string `json:"entryId"`
	PositiveCount int    `json:"positiveCount"`
	NegativeCount int    `json:"negativeCount"`
}

// SerializedTopicProfile is one topic's learning state in persisted form.
// Query history is not persisted per topic.
type SerializedTopicProfile struct {
	Topic             string               `json:"topic"`
	Weights           core.RequiredWeights `json:"weights"`
	InterestEmbedding *string              `json:"interestEmbedding"`
	QueryCount        int                  `json:"queryCount"`
}

// SerializedCorrelatedPair is one co-occurrence counter.
type SerializedCorrelatedPair struct {
	EntryID string `json:"entryId"`
	Count   int    `json:"count"`
}

// SerializedCorrelation is one entry's co-occurrence list.
type SerializedCorrelation struct {
	EntryID    string                     `json:"entryId"`
	Correlated []SerializedCorrelatedPair `json:"correlated"`
}

// State is the complete persisted learning state.
type State struct {
	Version           int                          `json:"version"`
	Feedback          []SerializedFeedback         `json:"feedback"`
	QueryHistory      []SerializedQueryRecord      `json:"queryHistory"`
	AdaptedWeights    core.RequiredWeights         `json:"adaptedWeights"`
	InterestEmbedding *string                      `json:"interestEmbedding"`
	TotalQueries      int                          `json:"totalQueries"`
	LastUpdated       uint64                       `json:"lastUpdated"`
	ExplicitFeedback  []SerializedExplicitFeedback `json:"explicitFeedback,omitempty"`
	TopicProfiles     []SerializedTopicProfile     `json:"topicProfiles,omitempty"`
	Correlations      []SerializedCorrelation      `json:"correlations,omitempty"`
}

// Serialize snapshots all learning state for persistence.
func (e *Engine) Serialize() State {
	feedback := make([]SerializedFeedback, 0, len(e.feedback))
	for id, entry := range e.feedback {
		feedback = append(feedback, SerializedFeedback{
			ID:                 id,
			QueryCount:         entry.queryCount,
			TotalRetrievals:    entry.totalRetrievals,
			LastQueryTimestamp: entry.lastQueryTimestamp,
		})
	}
	sort.Slice(feedback, func(i, j int) bool { return feedback[i].ID < feedback[j].ID })

	history := make([]SerializedQueryRecord, 0, len(e.queryHistory))
	for _, r := range e.queryHistory {
		history = append(history, SerializedQueryRecord{
			Embedding:   encoding.EncodeEmbedding(r.Embedding),
			Timestamp:   r.Timestamp,
			ResultCount: r.ResultCount,
		})
	}

	explicit := make([]SerializedExplicitFeedback, 0, len(e.explicit))
	for id, counts := range e.explicit {
		explicit = append(explicit, SerializedExplicitFeedback{
			EntryID:       id,
			PositiveCount: counts.positive,
			NegativeCount: counts.negative,
		})
	}
	sort.Slice(explicit, func(i, j int) bool { return explicit[i].EntryID < explicit[j].EntryID })

	topics := make([]SerializedTopicProfile, 0, len(e.topicStates))
	for topic, ts := range e.topicStates {
		profile := SerializedTopicProfile{
			Topic:      topic,
			Weights:    ts.weights,
			QueryCount: ts.queryCount,
		}
		if ts.interestEmbedding != nil {
			enc := encoding.EncodeEmbedding(ts.interestEmbedding)
			profile.InterestEmbedding = &enc
		}
		topics = append(topics, profile)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].Topic < topics[j].Topic })

	correlations := make([]SerializedCorrelation, 0, len(e.correlations))
	for entryID, peers := range e.correlations {
		pairs := make([]SerializedCorrelatedPair, 0, len(peers))
		for id, count := range peers {
			pairs = append(pairs, SerializedCorrelatedPair{EntryID: id, Count: count})
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].EntryID < pairs[j].EntryID })
		correlations = append(correlations, SerializedCorrelation{EntryID: entryID, Correlated: pairs})
	}
	sort.Slice(correlations, func(i, j int) bool { return correlations[i].EntryID < correlations[j].EntryID })

	state := State{
		Version:        1,
		Feedback:       feedback,
		QueryHistory:   history,
		AdaptedWeights: e.adaptedWeights,
		TotalQueries:   e.totalQueries,
		LastUpdated:    e.lastUpdated,
	}
	if e.interestEmbedding != nil {
		enc := encoding.EncodeEmbedding(e.interestEmbedding)
		state.InterestEmbedding = &enc
	}
	if len(explicit) > 0 {
		state.ExplicitFeedback = explicit
	}
	if len(topics) > 0 {
		state.TopicProfiles = topics
	}
	if len(correlations) > 0 {
		state.Correlations = correlations
	}
	return state
}

// Restore replaces the engine's state from a persisted snapshot. Corrupt
// query records are skipped; weights are re-normalized on the way in.
func (e *Engine) Restore(state State) {
	e.feedback = make(map[string]*feedbackEntry, len(state.Feedback))
	for _, entry := range state.Feedback {
		e.feedback[entry.ID] = &feedbackEntry{
			queryCount:         entry.QueryCount,
			totalRetrievals:    entry.TotalRetrievals,
			lastQueryTimestamp: entry.LastQueryTimestamp,
		}
	}

	e.queryHistory = nil
	for _, record := range state.QueryHistory {
		embedding, err := encoding.DecodeEmbedding(record.Embedding)
		if err != nil {
			continue
		}
		e.queryHistory = append(e.queryHistory, core.QueryRecord{
			Embedding:   embedding,
			Timestamp:   record.Timestamp,
			ResultCount: record.ResultCount,
		})
	}

	e.adaptedWeights = core.NormalizeRequiredWeights(state.AdaptedWeights)

	e.interestEmbedding = nil
	if state.InterestEmbedding != nil {
		if embedding, err := encoding.DecodeEmbedding(*state.InterestEmbedding); err == nil {
			e.interestEmbedding = embedding
		}
	}

	e.explicit = make(map[string]*explicitFeedback, len(state.ExplicitFeedback))
	for _, entry := range state.ExplicitFeedback {
		e.explicit[entry.EntryID] = &explicitFeedback{
			positive: entry.PositiveCount,
			negative: entry.NegativeCount,
		}
	}

	e.topicStates = make(map[string]*topicState, len(state.TopicProfiles))
	for _, profile := range state.TopicProfiles {
		ts := &topicState{
			weights:    core.NormalizeRequiredWeights(profile.Weights),
			queryCount: profile.QueryCount,
		}
		if profile.InterestEmbedding != nil {
			if embedding, err := encoding.DecodeEmbedding(*profile.InterestEmbedding); err == nil {
				ts.interestEmbedding = embedding
			}
		}
		e.topicStates[profile.Topic] = ts
	}

	e.correlations = make(map[string]map[string]int, len(state.Correlations))
	for _, entry := range state.Correlations {
		peers := make(map[string]int, len(entry.Correlated))
		for _, pair := range entry.Correlated {
			peers[pair.EntryID] = pair.Count
		}
		e.correlations[entry.EntryID] = peers
	}

	e.totalQueries = state.TotalQueries
	e.lastUpdated = state.LastUpdated
}
