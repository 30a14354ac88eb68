package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mamaope/legalrag/config"
	"github.com/mamaope/legalrag/types"
	"github.com/mamaope/legalrag/vectorstore"
)

// stubEmbedder records the text it was asked to embed.
type stubEmbedder struct {
	lastText string
	err      error
}

func (s *stubEmbedder) EmbedQuery(_ context.Context, text string) ([]float64, error) {
	s.lastText = text
	if s.err != nil {
		return nil, s.err
	}
	return []float64{0.1, 0.2, 0.3}, nil
}

func (s *stubEmbedder) Name() string    { return "stub" }
func (s *stubEmbedder) Dimensions() int { return 3 }

// searchIndex extends stubIndex with configurable search results.
type searchIndex struct {
	stubIndex
	hits      []vectorstore.SearchHit
	lastLimit int
}

func (s *searchIndex) Search(_ context.Context, _ []float64, limit int) ([]vectorstore.SearchHit, error) {
	s.lastLimit = limit
	return s.hits, nil
}

func newTestRetriever(t *testing.T, idx vectorstore.Index, cfg config.RetrievalConfig) *Retriever {
	t.Helper()
	r := NewRetriever(&stubEmbedder{}, idx, cfg, nil, zap.NewNop())
	require.NoError(t, r.Init(context.Background()))
	return r
}

func TestRetrieveRequiresInit(t *testing.T) {
	r := NewRetriever(&stubEmbedder{}, &searchIndex{}, config.Default().Retrieval, nil, zap.NewNop())

	_, _, err := r.Retrieve(context.Background(), "query", "", 3)
	require.Error(t, err)
	assert.Equal(t, types.ErrIndexUnavailable, types.GetErrorCode(err))
}

func TestRetrieveOverfetchesThenTruncates(t *testing.T) {
	idx := &searchIndex{}
	for i := 0; i < 20; i++ {
		idx.hits = append(idx.hits, hit("doc.pdf", 0.9-float64(i)*0.01))
	}

	cfg := config.Default().Retrieval
	cfg.DiversityMode = config.DiversityFlat
	r := newTestRetriever(t, idx, cfg)

	chunks, _, err := r.Retrieve(context.Background(), "land ownership", "", 3)
	require.NoError(t, err)

	assert.Equal(t, 18, idx.lastLimit, "3 * overfetch factor 6")
	assert.Len(t, chunks, 3)
}

func TestRetrieveOverfetchCap(t *testing.T) {
	idx := &searchIndex{}
	cfg := config.Default().Retrieval
	cfg.DiversityMode = config.DiversityFlat
	r := newTestRetriever(t, idx, cfg)

	_, _, err := r.Retrieve(context.Background(), "q", "", 20)
	require.NoError(t, err)
	assert.Equal(t, cfg.OverfetchCap, idx.lastLimit, "20 * 6 exceeds the cap")
}

func TestRetrieveEmptyResultIsNotAnError(t *testing.T) {
	r := newTestRetriever(t, &searchIndex{}, config.Default().Retrieval)

	chunks, sources, err := r.Retrieve(context.Background(), "no matches", "", 3)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Empty(t, sources)
}

func TestRetrieveJoinsQueryAndAuxContext(t *testing.T) {
	emb := &stubEmbedder{}
	idx := &searchIndex{}
	r := NewRetriever(emb, idx, config.Default().Retrieval, nil, zap.NewNop())
	require.NoError(t, r.Init(context.Background()))

	_, _, err := r.Retrieve(context.Background(), "  what is due process  ", " prior turn context ", 3)
	require.NoError(t, err)
	assert.Equal(t, "what is due process\nprior turn context", emb.lastText)
}

func TestRetrieveDedupesSourcesInOrder(t *testing.T) {
	idx := &searchIndex{hits: []vectorstore.SearchHit{
		hit("/corpus/constitution.pdf", 0.95),
		hit("/corpus/penal_code.pdf", 0.9),
		hit("/corpus/constitution.pdf", 0.85),
	}}

	cfg := config.Default().Retrieval
	cfg.DiversityMode = config.DiversityFlat
	r := newTestRetriever(t, idx, cfg)

	chunks, sources, err := r.Retrieve(context.Background(), "q", "", 3)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []string{"constitution.pdf", "penal_code.pdf"}, sources)
}

func TestRetrievePageLabelsWithoutEnrichment(t *testing.T) {
	h := hit("act.pdf", 0.9)
	h.PageLabel = "12"
	idx := &searchIndex{hits: []vectorstore.SearchHit{h}}

	cfg := config.Default().Retrieval
	cfg.Enrich = false
	r := newTestRetriever(t, idx, cfg)

	chunks, _, err := r.Retrieve(context.Background(), "q", "", 1)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Page 12", chunks[0].Label)
}

func TestInitFailsWhenCollectionMissing(t *testing.T) {
	idx := &searchIndex{}
	idx.missing = true

	r := NewRetriever(&stubEmbedder{}, idx, config.Default().Retrieval, nil, zap.NewNop())
	err := r.Init(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.ErrIndexUnavailable, types.GetErrorCode(err))
}

func TestChunkSourceName(t *testing.T) {
	assert.Equal(t, "constitution.pdf", Chunk{SourceID: "/data/laws/constitution.pdf"}.SourceName())
	assert.Equal(t, "act.pdf", Chunk{SourceID: "act.pdf"}.SourceName())
	assert.Equal(t, "Unknown document", Chunk{}.SourceName())
}
