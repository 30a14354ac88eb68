package retrieval

import (
	"context"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mamaope/legalrag/config"
	"github.com/mamaope/legalrag/embedding"
	"github.com/mamaope/legalrag/internal/metrics"
	"github.com/mamaope/legalrag/types"
	"github.com/mamaope/legalrag/vectorstore"
)

// Chunk is a unit of evidence returned by the retrieval pipeline.
type Chunk struct {
	// Label is the display locator: an inferred section heading, or
	// "Page N" when enrichment is disabled or finds nothing.
	Label    string `json:"label"`
	Content  string `json:"content"`
	Locator  string `json:"locator"`
	SourceID string `json:"source_id"`
}

// SourceName returns the citation identity of the chunk's origin document:
// the basename of its source path.
func (c Chunk) SourceName() string {
	if c.SourceID == "" {
		return "Unknown document"
	}
	return filepath.Base(c.SourceID)
}

// Retriever composes embedding, vector search, reranking and optional
// enrichment into one retrieval call.
type Retriever struct {
	embedder embedding.Provider
	index    vectorstore.Index
	reranker Reranker
	enricher *Enricher // nil disables the enrichment stage
	cfg      config.RetrievalConfig
	metrics  *metrics.Collector
	logger   *zap.Logger

	loaded atomic.Bool
}

// NewRetriever wires the retrieval pipeline. The reranker is chosen from
// cfg.DiversityMode; the enricher is attached only when cfg.Enrich is set.
func NewRetriever(
	embedder embedding.Provider,
	index vectorstore.Index,
	cfg config.RetrievalConfig,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}

	var reranker Reranker
	switch cfg.DiversityMode {
	case config.DiversityFlat:
		reranker = NewFlatReranker()
	default:
		reranker = NewMMRReranker(cfg.Lambda, logger)
	}

	var enricher *Enricher
	if cfg.Enrich {
		enricher = NewEnricher(index, cfg.NeighborWindow, logger)
	}

	return &Retriever{
		embedder: embedder,
		index:    index,
		reranker: reranker,
		enricher: enricher,
		cfg:      cfg,
		metrics:  collector,
		logger:   logger.With(zap.String("component", "retriever")),
	}
}

// Init verifies the collection exists and loads it into memory. It must
// succeed before Retrieve is called; serving with an unloaded index would
// break the grounding guarantee.
func (r *Retriever) Init(ctx context.Context) error {
	exists, err := r.index.HasCollection(ctx)
	if err != nil {
		return types.NewError(types.ErrIndexUnavailable, "failed to check collection").WithCause(err)
	}
	if !exists {
		return types.NewError(types.ErrIndexUnavailable, "collection does not exist")
	}

	if err := r.index.LoadCollection(ctx); err != nil {
		return types.NewError(types.ErrIndexUnavailable, "failed to load collection").WithCause(err)
	}

	r.loaded.Store(true)
	r.logger.Info("vector index ready")
	return nil
}

// overfetch computes the over-fetched candidate count for k.
func (r *Retriever) overfetch(k int) int {
	n := k * r.cfg.OverfetchFactor
	if r.cfg.OverfetchCap > 0 && n > r.cfg.OverfetchCap {
		n = r.cfg.OverfetchCap
	}
	if n < k {
		n = k
	}
	return n
}

// Retrieve returns up to k evidence chunks for the query plus the deduped
// list of their source document names in selection order. An empty result
// with a nil error means no grounding is available; callers must not treat
// it as a failure.
func (r *Retriever) Retrieve(ctx context.Context, query, auxContext string, k int) ([]Chunk, []string, error) {
	if !r.loaded.Load() {
		return nil, nil, types.NewError(types.ErrIndexUnavailable, "vector index not initialized")
	}
	if k < 1 {
		k = 1
	}

	start := time.Now()

	searchText := strings.TrimSpace(query)
	if aux := strings.TrimSpace(auxContext); aux != "" {
		searchText = searchText + "\n" + aux
	}

	vector, err := r.embedder.EmbedQuery(ctx, searchText)
	if err != nil {
		return nil, nil, err
	}

	limit := r.overfetch(k)
	hits, err := r.index.Search(ctx, vector, limit)
	if err != nil {
		return nil, nil, err
	}

	if len(hits) == 0 {
		r.logger.Warn("no relevant chunks found", zap.Int("limit", limit))
		r.metrics.ObserveRetrieval(time.Since(start), 0)
		return []Chunk{}, []string{}, nil
	}

	ranked := r.reranker.Rerank(hits, k)
	if len(ranked) > k {
		ranked = ranked[:k]
	}

	var chunks []Chunk
	if r.enricher != nil {
		chunks = r.enricher.Enrich(ctx, ranked)
	} else {
		chunks = make([]Chunk, len(ranked))
		for i, hit := range ranked {
			chunks[i] = Chunk{
				Label:    pageLabel(hit.PageLabel),
				Content:  strings.TrimSpace(hit.Content),
				Locator:  hit.PageLabel,
				SourceID: hit.SourceID,
			}
		}
	}

	sources := collectSources(chunks)

	r.logger.Info("retrieval complete",
		zap.Int("k", k),
		zap.Int("candidates", len(hits)),
		zap.Int("selected", len(chunks)),
		zap.Int("unique_sources", len(sources)),
		zap.Duration("took", time.Since(start)))
	r.metrics.ObserveRetrieval(time.Since(start), len(chunks))

	return chunks, sources, nil
}

// collectSources dedupes chunk source names in selection order.
func collectSources(chunks []Chunk) []string {
	seen := make(map[string]bool)
	sources := make([]string, 0, len(chunks))
	for _, c := range chunks {
		name := c.SourceName()
		if !seen[name] {
			seen[name] = true
			sources = append(sources, name)
		}
	}
	return sources
}
