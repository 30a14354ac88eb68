// Package retrieval implements the retrieval pipeline: query embedding,
// over-fetched vector search, diversity-aware reranking, optional section
// label enrichment, and source citation assembly.
package retrieval

import (
	"sort"

	"go.uber.org/zap"

	"github.com/mamaope/legalrag/vectorstore"
)

// Reranker orders an over-fetched candidate list and truncates it to at
// most k hits.
type Reranker interface {
	Rerank(hits []vectorstore.SearchHit, k int) []vectorstore.SearchHit
}

// Diversity bonus by number of chunks already selected from the same
// source. New sources get a strong bonus; overrepresented ones are
// penalized hard.
func diversityBonus(selected int) float64 {
	switch selected {
	case 0:
		return 1.5
	case 1:
		return 1.0
	case 2:
		return 0.5
	default:
		return 0.2
	}
}

// maxPerSource is the hard cap on chunks from a single source.
func maxPerSource(k int) int {
	limit := k / 4
	if limit < 2 {
		limit = 2
	}
	return limit
}

// MMRReranker balances relevance against source diversity using a
// maximal-marginal-relevance variant. Pure top-k similarity tends to fill
// the result with chunks from one dominant document; legal answers need to
// cite multiple independent authorities.
type MMRReranker struct {
	// Lambda is the relevance/diversity trade-off in [0,1]; higher favors
	// relevance.
	Lambda float64
	logger *zap.Logger
}

// NewMMRReranker creates a diversity-aware reranker.
func NewMMRReranker(lambda float64, logger *zap.Logger) *MMRReranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MMRReranker{
		Lambda: lambda,
		logger: logger.With(zap.String("component", "mmr_reranker")),
	}
}

// Rerank selects up to k hits. The highest-similarity hit always seeds the
// result; subsequent picks maximize lambda*similarity +
// (1-lambda)*diversityBonus, with no source exceeding maxPerSource(k)
// selections. If every remaining source is at its cap the result may be
// shorter than k.
func (r *MMRReranker) Rerank(hits []vectorstore.SearchHit, k int) []vectorstore.SearchHit {
	if len(hits) <= k {
		return hits
	}

	remaining := make([]vectorstore.SearchHit, len(hits))
	copy(remaining, hits)
	sort.SliceStable(remaining, func(i, j int) bool {
		return remaining[i].Similarity > remaining[j].Similarity
	})

	selected := make([]vectorstore.SearchHit, 0, k)
	sourceCounts := make(map[string]int)

	// Seed with the most relevant hit.
	seed := remaining[0]
	remaining = remaining[1:]
	selected = append(selected, seed)
	sourceCounts[seed.SourceID]++

	sourceCap := maxPerSource(k)

	for len(selected) < k && len(remaining) > 0 {
		bestScore := 0.0
		bestIdx := -1

		for idx, candidate := range remaining {
			count := sourceCounts[candidate.SourceID]
			if count >= sourceCap {
				continue
			}

			score := r.Lambda*candidate.Similarity + (1-r.Lambda)*diversityBonus(count)
			// Strict comparison keeps ties resolved by sort order.
			if bestIdx < 0 || score > bestScore {
				bestScore = score
				bestIdx = idx
			}
		}

		if bestIdx < 0 {
			// Every remaining source is at its cap.
			break
		}

		pick := remaining[bestIdx]
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
		selected = append(selected, pick)
		sourceCounts[pick.SourceID]++
	}

	r.logger.Debug("mmr reranking complete",
		zap.Int("candidates", len(hits)),
		zap.Int("selected", len(selected)),
		zap.Int("unique_sources", len(sourceCounts)))

	return selected
}

// FlatReranker sorts by similarity and truncates. It drops the diversity
// guarantee and exists as an explicit degraded mode for latency-sensitive
// deployments.
type FlatReranker struct{}

// NewFlatReranker creates a similarity-only reranker.
func NewFlatReranker() *FlatReranker {
	return &FlatReranker{}
}

// Rerank sorts hits by similarity descending and returns the top k.
func (r *FlatReranker) Rerank(hits []vectorstore.SearchHit, k int) []vectorstore.SearchHit {
	if len(hits) <= k {
		return hits
	}

	sorted := make([]vectorstore.SearchHit, len(hits))
	copy(sorted, hits)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Similarity > sorted[j].Similarity
	})

	return sorted[:k]
}
