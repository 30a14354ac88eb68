package retrieval

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mamaope/legalrag/vectorstore"
)

func hit(source string, similarity float64) vectorstore.SearchHit {
	return vectorstore.SearchHit{
		Content:    fmt.Sprintf("chunk from %s @ %.2f", source, similarity),
		SourceID:   source,
		PageLabel:  "1",
		Similarity: similarity,
	}
}

func TestMMRNoOpWhenFewerHitsThanK(t *testing.T) {
	r := NewMMRReranker(0.5, zap.NewNop())

	hits := []vectorstore.SearchHit{
		hit("a.pdf", 0.4),
		hit("b.pdf", 0.9), // deliberately unsorted
	}

	got := r.Rerank(hits, 5)
	assert.Equal(t, hits, got, "must return input unchanged, original order")
}

func TestMMRSeedIsHighestSimilarity(t *testing.T) {
	r := NewMMRReranker(0.5, zap.NewNop())

	// Similarities [0.9, 0.7, 0.95, 0.6] across sources A,A,B,B with k=3:
	// the 0.95 hit from B seeds, then MMR scoring picks 0.9 A, then 0.7 A.
	hits := []vectorstore.SearchHit{
		hit("A.pdf", 0.9),
		hit("A.pdf", 0.7),
		hit("B.pdf", 0.95),
		hit("B.pdf", 0.6),
	}

	got := r.Rerank(hits, 3)
	require.Len(t, got, 3)
	assert.Equal(t, 0.95, got[0].Similarity)
	assert.Equal(t, "B.pdf", got[0].SourceID)
	assert.Equal(t, 0.9, got[1].Similarity)
	assert.Equal(t, "A.pdf", got[1].SourceID)
	assert.Equal(t, 0.7, got[2].Similarity)
	assert.Equal(t, "A.pdf", got[2].SourceID)
}

func TestMMRDiversityCap(t *testing.T) {
	r := NewMMRReranker(0.5, zap.NewNop())

	// One dominant source with the highest similarities, plus two others.
	var hits []vectorstore.SearchHit
	for i := 0; i < 10; i++ {
		hits = append(hits, hit("dominant.pdf", 0.99-float64(i)*0.001))
	}
	for i := 0; i < 5; i++ {
		hits = append(hits, hit("minor1.pdf", 0.8-float64(i)*0.01))
		hits = append(hits, hit("minor2.pdf", 0.7-float64(i)*0.01))
	}

	for _, k := range []int{4, 8, 12} {
		got := r.Rerank(hits, k)

		counts := map[string]int{}
		for _, h := range got {
			counts[h.SourceID]++
		}

		limit := maxPerSource(k)
		for source, n := range counts {
			assert.LessOrEqual(t, n, limit, "k=%d source=%s", k, source)
		}
	}
}

func TestMMRMonotonicSafety(t *testing.T) {
	r := NewMMRReranker(0.5, zap.NewNop())

	hits := []vectorstore.SearchHit{
		hit("a.pdf", 0.9), hit("a.pdf", 0.8), hit("b.pdf", 0.7),
		hit("b.pdf", 0.6), hit("c.pdf", 0.5), hit("c.pdf", 0.4),
	}

	for k := 1; k <= 8; k++ {
		got := r.Rerank(hits, k)
		assert.LessOrEqual(t, len(got), min(k, len(hits)), "k=%d", k)

		// Every returned item is a member of the input.
		for _, g := range got {
			assert.Contains(t, hits, g)
		}
	}
}

func TestMMRStopsEarlyWhenAllSourcesCapped(t *testing.T) {
	r := NewMMRReranker(0.5, zap.NewNop())

	// Single source, k=6 means cap=2: only 2 of 7 hits are selectable.
	var hits []vectorstore.SearchHit
	for i := 0; i < 7; i++ {
		hits = append(hits, hit("only.pdf", 0.9-float64(i)*0.05))
	}

	got := r.Rerank(hits, 6)
	assert.Len(t, got, 2)
}

func TestFlatRerankerSortsAndTruncates(t *testing.T) {
	r := NewFlatReranker()

	hits := []vectorstore.SearchHit{
		hit("a.pdf", 0.7),
		hit("b.pdf", 0.95),
		hit("a.pdf", 0.9),
		hit("c.pdf", 0.6),
	}

	got := r.Rerank(hits, 2)
	require.Len(t, got, 2)
	assert.Equal(t, 0.95, got[0].Similarity)
	assert.Equal(t, 0.9, got[1].Similarity)

	// No-op shortcut preserves original order.
	short := hits[:2]
	assert.Equal(t, short, r.Rerank(short, 5))
}

func TestFlatRerankerKeepsDominantSource(t *testing.T) {
	// Regression guard on the mode difference: flat mode has no diversity
	// cap and may fill the result with one source.
	r := NewFlatReranker()

	var hits []vectorstore.SearchHit
	for i := 0; i < 6; i++ {
		hits = append(hits, hit("dominant.pdf", 0.99-float64(i)*0.001))
	}
	hits = append(hits, hit("minor.pdf", 0.5))

	got := r.Rerank(hits, 4)
	for _, h := range got {
		assert.Equal(t, "dominant.pdf", h.SourceID)
	}
}
