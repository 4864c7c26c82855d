package core

import "sort"

// CheckDuplicate reports whether newEmbedding is a near-duplicate of any
// existing volume. Dimension mismatches are skipped; among candidates with
// cosine similarity at or above threshold, the highest-scoring one wins.
// Linear scan, O(N).
func CheckDuplicate(newEmbedding []float32, volumes []Volume, threshold float64) DuplicateCheckResult {
	var best *Volume
	bestSimilarity := -1.0

	for i := range volumes {
		vol := &volumes[i]
		if len(vol.Embedding) != len(newEmbedding) {
			continue
		}
		sim := CosineSimilarity(newEmbedding, vol.Embedding)
		if sim >= threshold && sim > bestSimilarity {
			bestSimilarity = sim
			best = vol
		}
	}

	if best == nil {
		return DuplicateCheckResult{}
	}
	found := *best
	return DuplicateCheckResult{
		IsDuplicate:    true,
		ExistingVolume: &found,
		Similarity:     floatPtr(bestSimilarity),
	}
}

// FindDuplicateGroups clusters near-duplicate volumes greedily. Entries are
// processed oldest first; each joins the first group whose representative
// scores at or above threshold, otherwise it starts a new group. Only groups
// with at least one duplicate are returned; the oldest member is always the
// representative.
//
// O(N^2) -- intended for explicit user-triggered deduplication, not hot paths.
func FindDuplicateGroups(volumes []Volume, threshold float64) []DuplicateGroup {
	if len(volumes) < 2 {
		return nil
	}

	sorted := append([]Volume(nil), volumes...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	type group struct {
		representative  Volume
		duplicates      []Volume
		totalSimilarity float64
	}
	var groups []*group

	for _, vol := range sorted {
		assigned := false
		for _, g := range groups {
			if len(g.representative.Embedding) != len(vol.Embedding) {
				continue
			}
			sim := CosineSimilarity(g.representative.Embedding, vol.Embedding)
			if sim >= threshold {
				g.duplicates = append(g.duplicates, vol)
				g.totalSimilarity += sim
				assigned = true
				break
			}
		}
		if !assigned {
			groups = append(groups, &group{representative: vol})
		}
	}

	var result []DuplicateGroup
	for _, g := range groups {
		if len(g.duplicates) == 0 {
			continue
		}
		result = append(result, DuplicateGroup{
			Representative:    g.representative,
			Duplicates:        g.duplicates,
			AverageSimilarity: g.totalSimilarity / float64(len(g.duplicates)),
		})
	}
	return result
}
