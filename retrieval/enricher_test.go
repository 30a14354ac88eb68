package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mamaope/legalrag/vectorstore"
)

// stubIndex returns canned neighbors keyed by filter expression.
type stubIndex struct {
	neighbors map[string][]vectorstore.SearchHit
	queryErr  error
	queries   []string
	missing   bool
}

func (s *stubIndex) Search(_ context.Context, _ []float64, _ int) ([]vectorstore.SearchHit, error) {
	return nil, errors.New("not used")
}

func (s *stubIndex) QueryByFilter(_ context.Context, filter string, _ int) ([]vectorstore.SearchHit, error) {
	s.queries = append(s.queries, filter)
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.neighbors[filter], nil
}

func (s *stubIndex) HasCollection(_ context.Context) (bool, error) { return !s.missing, nil }
func (s *stubIndex) LoadCollection(_ context.Context) error        { return nil }

func TestEnrichFindsStructuralHeading(t *testing.T) {
	h := hit("constitution.pdf", 0.9)
	h.PageLabel = "42"

	idx := &stubIndex{neighbors: map[string][]vectorstore.SearchHit{
		vectorstore.PageFilter("42", "constitution.pdf"): {
			{Content: "some preamble text\nArticle 80 Right to property\nmore body"},
		},
	}}

	e := NewEnricher(idx, 1, zap.NewNop())
	chunks := e.Enrich(context.Background(), []vectorstore.SearchHit{h})

	require.Len(t, chunks, 1)
	assert.Equal(t, "Article 80 Right to property", chunks[0].Label)
	assert.Equal(t, "42", chunks[0].Locator)
}

func TestEnrichTitleCasesShoutedHeading(t *testing.T) {
	h := hit("act.pdf", 0.9)
	h.PageLabel = "7"

	idx := &stubIndex{neighbors: map[string][]vectorstore.SearchHit{
		vectorstore.PageFilter("7", "act.pdf"): {
			{Content: "PRELIMINARY PROVISIONS\nbody text follows here"},
		},
	}}

	e := NewEnricher(idx, 1, zap.NewNop())
	chunks := e.Enrich(context.Background(), []vectorstore.SearchHit{h})

	require.Len(t, chunks, 1)
	assert.Equal(t, "Preliminary Provisions", chunks[0].Label)
}

func TestEnrichFallsBackToPageLabel(t *testing.T) {
	tests := []struct {
		name string
		idx  *stubIndex
	}{
		{"lookup fails", &stubIndex{queryErr: errors.New("index down")}},
		{"no heading found", &stubIndex{neighbors: map[string][]vectorstore.SearchHit{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := hit("act.pdf", 0.9)
			h.PageLabel = "3"

			e := NewEnricher(tt.idx, 1, zap.NewNop())
			chunks := e.Enrich(context.Background(), []vectorstore.SearchHit{h})

			require.Len(t, chunks, 1)
			assert.Equal(t, "Page 3", chunks[0].Label)
			assert.Equal(t, h.SourceID, chunks[0].SourceID)
		})
	}
}

func TestEnrichPreservesHitOrder(t *testing.T) {
	var hits []vectorstore.SearchHit
	for _, src := range []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf"} {
		hits = append(hits, hit(src, 0.8))
	}

	e := NewEnricher(&stubIndex{}, 1, zap.NewNop())
	chunks := e.Enrich(context.Background(), hits)

	require.Len(t, chunks, len(hits))
	for i := range hits {
		assert.Equal(t, hits[i].SourceID, chunks[i].SourceID)
	}
}

func TestIsShoutedHeading(t *testing.T) {
	assert.True(t, isShoutedHeading("INTERPRETATION"))
	assert.True(t, isShoutedHeading("PART II CITIZENSHIP"))
	assert.False(t, isShoutedHeading("Article 80"))
	assert.False(t, isShoutedHeading(""))
	assert.False(t, isShoutedHeading("12 34 56")) // digits only
	assert.False(t, isShoutedHeading("A B C D E F G H I J K L M"))
}
