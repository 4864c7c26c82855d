package store

import (
	"sort"
	"strings"

	"github.com/shmor3/simse/pkg/core"
)

// Recommend scores candidates by blending vector similarity, recency decay,
// and access frequency under adapted or user weights, applies the learning
// boost, filters by minScore, and returns the top results.
//
// Pre-filtering: topics match case-insensitively against metadata["topic"],
// metadata filters are conjunctive, and the date range is inclusive.
func (s *VolumeStore) Recommend(options core.RecommendOptions) ([]core.Recommendation, error) {
	if !s.initialized {
		return nil, core.ErrNotInitialized
	}

	maxResults := 10
	if options.MaxResults != nil {
		maxResults = *options.MaxResults
	}
	minScore := 0.0
	if options.MinScore != nil {
		minScore = *options.MinScore
	}

	// Adapted weights apply once the learning engine has seen a query.
	var weights core.RequiredWeights
	if s.learningEngine != nil && s.learningEngine.TotalQueries() > 0 {
		weights = s.learningEngine.GetAdaptedWeights("")
	} else {
		weights = core.NormalizeWeights(options.Weights)
	}

	var candidates []*core.Volume
	for i := range s.volumes {
		vol := &s.volumes[i]

		if len(options.Topics) > 0 {
			volTopic, hasTopic := vol.Metadata["topic"]
			matched := false
			if hasTopic {
				for _, t := range options.Topics {
					if strings.EqualFold(volTopic, t) {
						matched = true
						break
					}
				}
			}
			if !matched {
				continue
			}
		}

		if len(options.Metadata) > 0 && !core.MatchesAllMetadataFilters(vol.Metadata, options.Metadata) {
			continue
		}

		if options.DateRange != nil && !inDateRange(vol, options.DateRange) {
			continue
		}

		candidates = append(candidates, vol)
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	maxAccess := 0
	for _, stats := range s.accessStats {
		if int(stats.AccessCount) > maxAccess {
			maxAccess = int(stats.AccessCount)
		}
	}

	now := nowMillis()
	halfLife := s.config.RecencyHalfLifeMs

	var queryMag float64
	hasQuery := len(options.QueryEmbedding) > 0
	if hasQuery {
		queryMag = core.Magnitude(options.QueryEmbedding)
	}

	var results []core.Recommendation
	for _, vol := range candidates {
		var vectorScore *float64
		if hasQuery && queryMag > 0 {
			if score, ok := s.fastCosine(options.QueryEmbedding, queryMag, vol); ok {
				vectorScore = &score
			}
		}

		recencyScore := core.RecencyScore(vol.Timestamp, halfLife, now)

		accessCount := 0
		if stats, ok := s.accessStats[vol.ID]; ok {
			accessCount = int(stats.AccessCount)
		}
		frequencyScore := core.FrequencyScore(accessCount, maxAccess)

		scoreResult := core.ComputeRecommendationScore(core.RecommendationScoreInput{
			VectorScore:    vectorScore,
			RecencyScore:   &recencyScore,
			FrequencyScore: &frequencyScore,
		}, weights)

		finalScore := scoreResult.Score
		if s.learningEngine != nil {
			finalScore *= s.learningEngine.ComputeBoost(vol.ID, vol.Embedding, "")
		}

		if finalScore < minScore {
			continue
		}
		results = append(results, core.Recommendation{
			Volume: *vol,
			Score:  finalScore,
			Scores: core.RecommendationScores{
				Vector:    scoreResult.Vector,
				Recency:   scoreResult.Recency,
				Frequency: scoreResult.Frequency,
			},
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	return results, nil
}
