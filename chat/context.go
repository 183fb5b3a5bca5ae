package chat

import (
	"fmt"
	"sort"
	"strings"
)

// RefusalAnswer is the exact text of a grounding refusal. The confidence
// gate emits it directly and the generation prompt instructs the model to
// reply with it verbatim, so both paths stay byte-identical.
const RefusalAnswer = "I don't know."

// DefaultMinConfidence is the aggregate-score threshold below which the
// gate refuses instead of generating.
const DefaultMinConfidence = 0.72

// MeanScore returns the arithmetic mean of the candidate scores, unweighted
// by rank or content length. Zero for an empty set.
func MeanScore(results []ChunkResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.Score
	}
	return sum / float64(len(results))
}

// BuildContext concatenates the candidates into the grounding context, in
// retrieval order. The ordering is what the model sees and may influence
// which facts it surfaces first.
func BuildContext(results []ChunkResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("[Source: %s, Page: %d]\n%s", r.Filename, r.PageNumber, r.Content))
	}
	return strings.Join(parts, "\n\n")
}

// DedupSources folds the candidates into one citation per (filename, page),
// keeping the highest score on collision, sorted by score descending.
// Applying it to an already-deduplicated set is a no-op.
func DedupSources(results []ChunkResult) []SourceCitation {
	best := make(map[string]SourceCitation, len(results))
	order := make([]string, 0, len(results))
	for _, r := range results {
		key := fmt.Sprintf("%s-%d", r.Filename, r.PageNumber)
		existing, ok := best[key]
		if !ok {
			order = append(order, key)
		}
		if !ok || r.Score > existing.SimilarityScore {
			best[key] = SourceCitation{
				Filename:        r.Filename,
				Page:            r.PageNumber,
				SimilarityScore: r.Score,
			}
		}
	}

	sources := make([]SourceCitation, 0, len(best))
	for _, key := range order {
		sources = append(sources, best[key])
	}

	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].SimilarityScore > sources[j].SimilarityScore
	})

	return sources
}
