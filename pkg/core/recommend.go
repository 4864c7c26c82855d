package core

import "math"

// DefaultRecencyHalfLifeMs is the default half-life for recency decay:
// 30 days in milliseconds.
const DefaultRecencyHalfLifeMs = 30.0 * 24 * 60 * 60 * 1000

// Weight clamping bounds shared with the learning engine.
const (
	minWeight = 0.05
	maxWeight = 0.9
)

func clampWeight(w float64) float64 {
	return clamp(w, minWeight, maxWeight)
}

// NormalizeWeights resolves a partial weight profile to a triple summing to
// 1. Missing components take the defaults (0.6, 0.2, 0.2); each component is
// clamped to [0.05, 0.9] before scaling; an all-zero profile reverts to the
// defaults.
func NormalizeWeights(weights *WeightProfile) RequiredWeights {
	rawV, rawR, rawF := 0.6, 0.2, 0.2
	if weights != nil {
		if weights.Vector != nil {
			rawV = *weights.Vector
		}
		if weights.Recency != nil {
			rawR = *weights.Recency
		}
		if weights.Frequency != nil {
			rawF = *weights.Frequency
		}
	}
	if rawV+rawR+rawF == 0 {
		return RequiredWeights{Vector: 0.6, Recency: 0.2, Frequency: 0.2}
	}
	return NormalizeRequiredWeights(RequiredWeights{Vector: rawV, Recency: rawR, Frequency: rawF})
}

// NormalizeRequiredWeights clamps each component to [0.05, 0.9] and scales
// the triple so it sums to exactly 1.
func NormalizeRequiredWeights(weights RequiredWeights) RequiredWeights {
	v := clampWeight(weights.Vector)
	r := clampWeight(weights.Recency)
	f := clampWeight(weights.Frequency)
	total := v + r + f
	return RequiredWeights{
		Vector:    v / total,
		Recency:   r / total,
		Frequency: f / total,
	}
}

// RecencyScore computes an exponential half-life decay score in (0, 1].
// Entries stamped now score 1.0; entries one half-life old score ~0.5.
// Future timestamps clamp the age to zero.
func RecencyScore(entryTimestamp uint64, halfLifeMs float64, now uint64) float64 {
	var ageMs float64
	if now > entryTimestamp {
		ageMs = float64(now - entryTimestamp)
	}
	lambda := math.Ln2 / halfLifeMs
	return math.Exp(-lambda * ageMs)
}

// FrequencyScore computes a log-scaled frequency score in [0, 1]:
// log(1+count) / log(1+max). A zero max yields 0.
func FrequencyScore(accessCount, maxAccessCount int) float64 {
	if maxAccessCount == 0 {
		return 0.0
	}
	return math.Log(1.0+float64(accessCount)) / math.Log(1.0+float64(maxAccessCount))
}

// RecommendationScoreInput carries the optional per-signal inputs for a
// recommendation score.
type RecommendationScoreInput struct {
	VectorScore    *float64
	RecencyScore   *float64
	FrequencyScore *float64
}

// RecommendationScoreResult is a combined score plus its per-signal
// breakdown.
type RecommendationScoreResult struct {
	Score     float64
	Vector    *float64
	Recency   *float64
	Frequency *float64
}

// ComputeRecommendationScore combines the present signals weighted by the
// resolved profile. Missing signals contribute nothing; the weights are not
// re-normalized over the present subset.
func ComputeRecommendationScore(input RecommendationScoreInput, weights RequiredWeights) RecommendationScoreResult {
	var score float64
	if input.VectorScore != nil {
		score += *input.VectorScore * weights.Vector
	}
	if input.RecencyScore != nil {
		score += *input.RecencyScore * weights.Recency
	}
	if input.FrequencyScore != nil {
		score += *input.FrequencyScore * weights.Frequency
	}
	return RecommendationScoreResult{
		Score:     score,
		Vector:    input.VectorScore,
		Recency:   input.RecencyScore,
		Frequency: input.FrequencyScore,
	}
}
