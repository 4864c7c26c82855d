package store

import (
	"encoding/json"
	"sort"

	"github.com/shmor3/simse/pkg/core"
)

// BM25 parameters used for every lexical search.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Search runs a linear cosine scan over cached magnitudes, filters by
// threshold, sorts descending, and caps at maxResults. Returned ids have
// their access tracked; with learning enabled the query is recorded.
func (s *VolumeStore) Search(queryEmbedding []float32, maxResults int, threshold float64) ([]core.Lookup, error) {
	if !s.initialized {
		return nil, core.ErrNotInitialized
	}

	queryMag := core.Magnitude(queryEmbedding)
	if queryMag == 0 {
		return nil, nil
	}

	var results []core.Lookup
	for i := range s.volumes {
		vol := &s.volumes[i]
		score, ok := s.fastCosine(queryEmbedding, queryMag, vol)
		if !ok || score < threshold {
			continue
		}
		results = append(results, core.Lookup{Volume: *vol, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	selectedIDs := make([]string, len(results))
	for i, r := range results {
		selectedIDs[i] = r.Volume.ID
	}
	for _, id := range selectedIDs {
		s.trackAccess(id)
	}
	if s.learningEngine != nil {
		s.learningEngine.RecordQuery(queryEmbedding, selectedIDs, "", nowMillis())
		s.SyncCorrelationEdges()
	}

	return results, nil
}

// TextSearch scores volumes lexically. Mode bm25 uses the inverted index and
// normalizes raw scores by the result set's maximum before thresholding; the
// other modes score each volume individually and keep scores at or above the
// threshold, sorted descending. The default mode is fuzzy, the default
// threshold 0.3.
func (s *VolumeStore) TextSearch(options core.TextSearchOptions) ([]core.TextLookup, error) {
	if !s.initialized {
		return nil, core.ErrNotInitialized
	}

	mode := options.Mode
	if mode == "" {
		mode = "fuzzy"
	}
	threshold := 0.3
	if options.Threshold != nil {
		threshold = *options.Threshold
	}

	// Oversized patterns are rejected outright rather than compiled.
	if mode == "regex" && len(options.Query) > s.config.MaxRegexPatternLength {
		return nil, nil
	}

	if mode == "bm25" {
		bm25Results := s.invertedIndex.BM25Search(options.Query, bm25K1, bm25B)
		if len(bm25Results) == 0 {
			return nil, nil
		}

		maxScore := bm25Results[0].Score
		for _, r := range bm25Results {
			if r.Score > maxScore {
				maxScore = r.Score
			}
		}

		var results []core.TextLookup
		for _, r := range bm25Results {
			normalized := 0.0
			if maxScore > 0 {
				normalized = r.Score / maxScore
			}
			if normalized < threshold {
				continue
			}
			if vol := s.findVolume(r.ID); vol != nil {
				results = append(results, core.TextLookup{Volume: *vol, Score: normalized})
			}
		}
		return results, nil
	}

	var results []core.TextLookup
	for i := range s.volumes {
		vol := &s.volumes[i]
		if score, ok := core.ScoreText(options.Query, vol.Text, mode, threshold); ok {
			results = append(results, core.TextLookup{Volume: *vol, Score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// FilterByMetadata returns volumes satisfying every filter. A single eq
// filter takes the metadata index fast path; everything else is a linear
// scan with conjunctive evaluation.
func (s *VolumeStore) FilterByMetadata(filters []core.MetadataFilter) []core.Volume {
	if !s.initialized || len(filters) == 0 {
		return nil
	}

	if len(filters) == 1 {
		f := filters[0]
		mode := f.Mode
		if mode == "" {
			mode = "eq"
		}
		if mode == "eq" {
			if value, ok := filterValueString(f); ok {
				ids := s.metadataIndex.GetEntries(f.Key, value)
				var out []core.Volume
				for i := range s.volumes {
					if _, hit := ids[s.volumes[i].ID]; hit {
						out = append(out, s.volumes[i])
					}
				}
				return out
			}
		}
	}

	var out []core.Volume
	for i := range s.volumes {
		if core.MatchesAllMetadataFilters(s.volumes[i].Metadata, filters) {
			out = append(out, s.volumes[i])
		}
	}
	return out
}

// FilterByDateRange returns volumes within the inclusive timestamp range.
// Either bound may be absent.
func (s *VolumeStore) FilterByDateRange(dateRange core.DateRange) []core.Volume {
	if !s.initialized {
		return nil
	}

	var out []core.Volume
	for i := range s.volumes {
		if inDateRange(&s.volumes[i], &dateRange) {
			out = append(out, s.volumes[i])
		}
	}
	return out
}

// FilterByTopic returns volumes under any of the given topics, descendants
// included.
func (s *VolumeStore) FilterByTopic(topics []string) []core.Volume {
	if !s.initialized || len(topics) == 0 {
		return nil
	}

	ids := make(map[string]struct{})
	for _, topic := range topics {
		for _, id := range s.topicIndex.GetEntries(topic) {
			ids[id] = struct{}{}
		}
	}

	var out []core.Volume
	for i := range s.volumes {
		if _, hit := ids[s.volumes[i].ID]; hit {
			out = append(out, s.volumes[i])
		}
	}
	return out
}

// AdvancedSearch intersects the topic, metadata, and date-range filters into
// a candidate set, scores each candidate with the requested vector and text
// signals, combines per rankBy, sorts descending, caps at maxResults, and
// tracks access. Candidates with neither a vector nor a text signal are
// skipped.
func (s *VolumeStore) AdvancedSearch(options core.SearchOptions) ([]core.AdvancedLookup, error) {
	if !s.initialized {
		return nil, core.ErrNotInitialized
	}

	maxResults := 10
	if options.MaxResults != nil {
		maxResults = *options.MaxResults
	}
	rankBy := options.RankBy
	if rankBy == "" {
		rankBy = "average"
	}
	simThreshold := 0.0
	if options.SimilarityThreshold != nil {
		simThreshold = *options.SimilarityThreshold
	}

	// Candidate set: nil means unfiltered.
	var candidateIDs map[string]struct{}

	if len(options.TopicFilter) > 0 {
		ids := make(map[string]struct{})
		for _, topic := range options.TopicFilter {
			for _, id := range s.topicIndex.GetEntries(topic) {
				ids[id] = struct{}{}
			}
		}
		candidateIDs = ids
	}

	if len(options.Metadata) > 0 {
		matching := make(map[string]struct{})
		for i := range s.volumes {
			if core.MatchesAllMetadataFilters(s.volumes[i].Metadata, options.Metadata) {
				matching[s.volumes[i].ID] = struct{}{}
			}
		}
		candidateIDs = intersect(candidateIDs, matching)
	}

	if options.DateRange != nil {
		matching := make(map[string]struct{})
		for i := range s.volumes {
			if inDateRange(&s.volumes[i], options.DateRange) {
				matching[s.volumes[i].ID] = struct{}{}
			}
		}
		candidateIDs = intersect(candidateIDs, matching)
	}

	var queryMag float64
	hasQuery := len(options.QueryEmbedding) > 0
	if hasQuery {
		queryMag = core.Magnitude(options.QueryEmbedding)
	}

	textScores := s.advancedTextScores(options.Text)

	textBoost := 1.0
	metadataBoost := 1.0
	if options.FieldBoosts != nil {
		if options.FieldBoosts.Text != nil {
			textBoost = *options.FieldBoosts.Text
		}
		if options.FieldBoosts.Metadata != nil {
			metadataBoost = *options.FieldBoosts.Metadata
		}
	}

	var results []core.AdvancedLookup
	for i := range s.volumes {
		vol := &s.volumes[i]
		if candidateIDs != nil {
			if _, hit := candidateIDs[vol.ID]; !hit {
				continue
			}
		}

		var vectorScore *float64
		if hasQuery && queryMag > 0 {
			if score, ok := s.fastCosine(options.QueryEmbedding, queryMag, vol); ok {
				vectorScore = &score
			}
		}

		if vectorScore != nil && *vectorScore < simThreshold {
			continue
		}

		var textScore *float64
		if raw, ok := textScores[vol.ID]; ok {
			boosted := raw * textBoost
			textScore = &boosted
		}

		var boostedVector *float64
		if vectorScore != nil {
			bv := *vectorScore * metadataBoost
			boostedVector = &bv
		}

		combined := combineScores(boostedVector, textScore, rankBy, options.RankWeights)
		if combined == nil && vectorScore == nil && textScore == nil {
			continue
		}

		finalScore := 0.0
		if combined != nil {
			finalScore = *combined
		}

		var rawText *float64
		if raw, ok := textScores[vol.ID]; ok {
			rawText = &raw
		}
		results = append(results, core.AdvancedLookup{
			Volume: *vol,
			Score:  finalScore,
			Scores: core.ScoreBreakdown{Vector: vectorScore, Text: rawText},
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	for _, r := range results {
		s.trackAccess(r.Volume.ID)
	}

	return results, nil
}

// advancedTextScores computes the per-volume text score map for advanced
// search, using BM25 normalization for mode bm25 and ScoreText otherwise.
func (s *VolumeStore) advancedTextScores(textOpts *core.TextSearchOptions) map[string]float64 {
	scores := make(map[string]float64)
	if textOpts == nil {
		return scores
	}

	mode := textOpts.Mode
	if mode == "" {
		mode = "fuzzy"
	}
	threshold := 0.0
	if textOpts.Threshold != nil {
		threshold = *textOpts.Threshold
	}

	if mode == "regex" && len(textOpts.Query) > s.config.MaxRegexPatternLength {
		return scores
	}

	if mode == "bm25" {
		bm25Results := s.invertedIndex.BM25Search(textOpts.Query, bm25K1, bm25B)
		var maxScore float64
		for _, r := range bm25Results {
			if r.Score > maxScore {
				maxScore = r.Score
			}
		}
		for _, r := range bm25Results {
			normalized := 0.0
			if maxScore > 0 {
				normalized = r.Score / maxScore
			}
			if normalized >= threshold {
				scores[r.ID] = normalized
			}
		}
		return scores
	}

	for i := range s.volumes {
		vol := &s.volumes[i]
		if score, ok := core.ScoreText(textOpts.Query, vol.Text, mode, threshold); ok {
			scores[vol.ID] = score
		}
	}
	return scores
}

// combineScores merges the vector and text signals per the rank mode:
// vector, text, multiply (absent signals default to 0), weighted
// (rank-weight mean normalized by the weight sum, falling back to average),
// or average (mean of present signals).
func combineScores(vectorScore, textScore *float64, rankBy string, rankWeights *core.RankWeights) *float64 {
	average := func() *float64 {
		switch {
		case vectorScore != nil && textScore != nil:
			avg := (*vectorScore + *textScore) / 2.0
			return &avg
		case vectorScore != nil:
			v := *vectorScore
			return &v
		case textScore != nil:
			t := *textScore
			return &t
		default:
			return nil
		}
	}

	switch rankBy {
	case "vector":
		return vectorScore
	case "text":
		return textScore
	case "multiply":
		if vectorScore == nil && textScore == nil {
			return nil
		}
		v, t := 0.0, 0.0
		if vectorScore != nil {
			v = *vectorScore
		}
		if textScore != nil {
			t = *textScore
		}
		product := v * t
		return &product
	case "weighted":
		if rankWeights == nil {
			return average()
		}
		score, totalWeight := 0.0, 0.0
		if vectorScore != nil && rankWeights.Vector != nil {
			score += *vectorScore * *rankWeights.Vector
			totalWeight += *rankWeights.Vector
		}
		if textScore != nil && rankWeights.Text != nil {
			score += *textScore * *rankWeights.Text
			totalWeight += *rankWeights.Text
		}
		if totalWeight == 0 {
			return nil
		}
		weighted := score / totalWeight
		return &weighted
	default:
		return average()
	}
}

// intersect merges candidate sets; a nil existing set means unfiltered.
func intersect(existing, matching map[string]struct{}) map[string]struct{} {
	if existing == nil {
		return matching
	}
	out := make(map[string]struct{})
	for id := range existing {
		if _, ok := matching[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func inDateRange(vol *core.Volume, dateRange *core.DateRange) bool {
	if dateRange.After != nil && vol.Timestamp < *dateRange.After {
		return false
	}
	if dateRange.Before != nil && vol.Timestamp > *dateRange.Before {
		return false
	}
	return true
}

// filterValueString extracts a filter's value as a plain string.
func filterValueString(f core.MetadataFilter) (string, bool) {
	if len(f.Value) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(f.Value, &s); err != nil {
		return "", false
	}
	return s, true
}
