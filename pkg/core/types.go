package core

import "encoding/json"

// Volume is a single stored memory record. Immutable after insert.
type Volume struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Embedding []float32         `json:"embedding"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp uint64            `json:"timestamp"`
}

// Lookup pairs a volume with its vector similarity score.
type Lookup struct {
	Volume Volume  `json:"volume"`
	Score  float64 `json:"score"`
}

// TextLookup pairs a volume with its text relevance score.
type TextLookup struct {
	Volume Volume  `json:"volume"`
	Score  float64 `json:"score"`
}

// ScoreBreakdown exposes the per-signal components of an advanced search score.
type ScoreBreakdown struct {
	Vector *float64 `json:"vector"`
	Text   *float64 `json:"text"`
}

// AdvancedLookup is a single advanced-search result with its score breakdown.
type AdvancedLookup struct {
	Volume Volume         `json:"volume"`
	Score  float64        `json:"score"`
	Scores ScoreBreakdown `json:"scores"`
}

// DuplicateCheckResult reports whether an embedding duplicates a stored volume.
type DuplicateCheckResult struct {
	IsDuplicate    bool     `json:"isDuplicate"`
	ExistingVolume *Volume  `json:"existingVolume"`
	Similarity     *float64 `json:"similarity"`
}

// DuplicateGroup is a cluster of near-duplicate volumes. The representative
// is always the oldest member.
type DuplicateGroup struct {
	Representative    Volume   `json:"representative"`
	Duplicates        []Volume `json:"duplicates"`
	AverageSimilarity float64  `json:"averageSimilarity"`
}

// TopicInfo describes one topic tracked by the TopicIndex.
type TopicInfo struct {
	Topic      string   `json:"topic"`
	EntryCount int      `json:"entryCount"`
	EntryIDs   []string `json:"entryIds"`
	Parent     *string  `json:"parent"`
	Children   []string `json:"children"`
}

// CatalogSection describes one topic in the TopicCatalog hierarchy.
type CatalogSection struct {
	Topic       string   `json:"topic"`
	Parent      *string  `json:"parent"`
	Children    []string `json:"children"`
	VolumeCount int      `json:"volumeCount"`
}

// RecommendationScores is the per-signal breakdown of a recommendation score.
type RecommendationScores struct {
	Vector    *float64 `json:"vector"`
	Recency   *float64 `json:"recency"`
	Frequency *float64 `json:"frequency"`
}

// Recommendation is a single recommend result.
type Recommendation struct {
	Volume Volume               `json:"volume"`
	Score  float64              `json:"score"`
	Scores RecommendationScores `json:"scores"`
}

// WeightProfile is a partial (vector, recency, frequency) weight triple as
// supplied by callers. Missing components fall back to defaults.
type WeightProfile struct {
	Vector    *float64 `json:"vector"`
	Recency   *float64 `json:"recency"`
	Frequency *float64 `json:"frequency"`
}

// RequiredWeights is a fully-resolved weight triple that sums to 1.
type RequiredWeights struct {
	Vector    float64 `json:"vector"`
	Recency   float64 `json:"recency"`
	Frequency float64 `json:"frequency"`
}

// MetadataFilter tests one metadata key against a value under a mode
// (eq, neq, contains, startsWith, endsWith, regex, gt, gte, lt, lte, in,
// notIn, between, exists, notExists). Mode defaults to eq.
type MetadataFilter struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value,omitempty"`
	Mode  string          `json:"mode,omitempty"`
}

// DateRange bounds volumes by insert timestamp, both ends inclusive.
type DateRange struct {
	After  *uint64 `json:"after,omitempty"`
	Before *uint64 `json:"before,omitempty"`
}

// QueryRecord is one remembered query in the learning history.
type QueryRecord struct {
	Embedding   []float32 `json:"embedding"`
	Timestamp   uint64    `json:"timestamp"`
	ResultCount int       `json:"resultCount"`
}

// PatronProfile is a snapshot of the learning engine's public state.
type PatronProfile struct {
	QueryHistory      []QueryRecord   `json:"queryHistory"`
	AdaptedWeights    RequiredWeights `json:"adaptedWeights"`
	InterestEmbedding []float32       `json:"interestEmbedding"`
	TotalQueries      int             `json:"totalQueries"`
	LastUpdated       uint64          `json:"lastUpdated"`
}

// TextSearchOptions controls text-only search.
type TextSearchOptions struct {
	Query     string   `json:"query"`
	Mode      string   `json:"mode,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// FieldBoosts multiplies individual signals during advanced search: Text
// scales the text score and Metadata scales the vector score. Topic is
// accepted but not applied.
type FieldBoosts struct {
	Text     *float64 `json:"text,omitempty"`
	Metadata *float64 `json:"metadata,omitempty"`
	Topic    *float64 `json:"topic,omitempty"`
}

// RankWeights weights signals for the "weighted" rank mode. Only Vector and
// Text are applied; Metadata and Recency are accepted but not used.
type RankWeights struct {
	Vector   *float64 `json:"vector,omitempty"`
	Text     *float64 `json:"text,omitempty"`
	Metadata *float64 `json:"metadata,omitempty"`
	Recency  *float64 `json:"recency,omitempty"`
}

// SearchOptions parameterizes advanced search.
type SearchOptions struct {
	QueryEmbedding      []float32          `json:"queryEmbedding,omitempty"`
	SimilarityThreshold *float64           `json:"similarityThreshold,omitempty"`
	Text                *TextSearchOptions `json:"text,omitempty"`
	Metadata            []MetadataFilter   `json:"metadata,omitempty"`
	DateRange           *DateRange         `json:"dateRange,omitempty"`
	MaxResults          *int               `json:"maxResults,omitempty"`
	RankBy              string             `json:"rankBy,omitempty"`
	FieldBoosts         *FieldBoosts       `json:"fieldBoosts,omitempty"`
	RankWeights         *RankWeights       `json:"rankWeights,omitempty"`
	TopicFilter         []string           `json:"topicFilter,omitempty"`
}

// RecommendOptions parameterizes recommend.
type RecommendOptions struct {
	QueryEmbedding []float32        `json:"queryEmbedding,omitempty"`
	Weights        *WeightProfile   `json:"weights,omitempty"`
	MaxResults     *int             `json:"maxResults,omitempty"`
	MinScore       *float64         `json:"minScore,omitempty"`
	Metadata       []MetadataFilter `json:"metadata,omitempty"`
	Topics         []string         `json:"topics,omitempty"`
	DateRange      *DateRange       `json:"dateRange,omitempty"`
}

// AddEntry is one input record for AddBatch.
type AddEntry struct {
	Text      string            `json:"text"`
	Embedding []float32         `json:"embedding"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// floatPtr is a small helper for optional score fields.
func floatPtr(v float64) *float64 { return &v }
