// Package vectorstore provides the read-side client for the Milvus/Zilliz
// collection that holds the indexed legal corpus. Ingestion is handled by
// an external pipeline; this client only searches and queries.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamaope/legalrag/internal/tlsutil"
	"github.com/mamaope/legalrag/types"
)

// Collection field names. Fixed by the ingestion pipeline's schema.
const (
	fieldContent = "content"
	fieldSource  = "file_path"
	fieldPage    = "display_page_number"
	vectorField  = "vector"
)

// SearchHit is a vector search result: an indexed chunk plus the
// index-reported cosine similarity.
type SearchHit struct {
	Content    string  `json:"content"`
	SourceID   string  `json:"source_id"`
	PageLabel  string  `json:"page_label"`
	Similarity float64 `json:"similarity"`
}

// Index is the narrow vector index contract consumed by the retrieval
// pipeline.
type Index interface {
	// Search performs an approximate nearest-neighbor search.
	Search(ctx context.Context, vector []float64, limit int) ([]SearchHit, error)

	// QueryByFilter runs an exact-match metadata query, e.g. for neighbor
	// chunks on the same page of the same source.
	QueryByFilter(ctx context.Context, filter string, limit int) ([]SearchHit, error)

	// HasCollection reports whether the configured collection exists.
	HasCollection(ctx context.Context) (bool, error)

	// LoadCollection loads the collection into memory. Idempotent warm-up,
	// called once at startup; a failure here is fatal.
	LoadCollection(ctx context.Context) error
}

// PageFilter builds the exact-match predicate for neighbor lookups.
func PageFilter(pageLabel, sourceID string) string {
	return fmt.Sprintf("%s == %q and %s == %q", fieldPage, pageLabel, fieldSource, sourceID)
}

// MilvusConfig configures the Milvus REST (v2) client.
type MilvusConfig struct {
	BaseURL    string        `json:"base_url"`
	Token      string        `json:"token,omitempty"` // Zilliz Cloud
	Username   string        `json:"username,omitempty"`
	Password   string        `json:"password,omitempty"`
	Database   string        `json:"database,omitempty"`
	Collection string        `json:"collection"`
	Timeout    time.Duration `json:"timeout,omitempty"`
	// SearchParams are index-specific search parameters.
	SearchParams map[string]any `json:"search_params,omitempty"`
}

// MilvusIndex implements Index using the Milvus REST API (v2).
type MilvusIndex struct {
	cfg     MilvusConfig
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewMilvusIndex creates a read-only Milvus index client.
func NewMilvusIndex(cfg MilvusConfig, logger *zap.Logger) *MilvusIndex {
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.Database == "" {
		cfg.Database = "default"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.SearchParams == nil {
		cfg.SearchParams = map[string]any{"metric_type": "COSINE"}
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:19530"
	}

	return &MilvusIndex{
		cfg:     cfg,
		baseURL: baseURL,
		client:  tlsutil.SecureHTTPClient(cfg.Timeout),
		logger:  logger.With(zap.String("component", "milvus_index")),
	}
}

// applyHeaders adds auth and content-type headers to a request.
func (s *MilvusIndex) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	if s.cfg.Username != "" && s.cfg.Password != "" {
		req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
	}
}

// doJSON performs a JSON HTTP request and decodes the response.
func (s *MilvusIndex) doJSON(ctx context.Context, method, path string, in any, out any) error {
	endpoint := s.baseURL + path

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
		s.logger.Debug("milvus request", zap.String("method", method), zap.String("path", path))
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return &types.Error{
			Code:       types.ErrUpstreamError,
			Message:    err.Error(),
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
			Provider:   "milvus",
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	s.logger.Debug("milvus response", zap.Int("status", resp.StatusCode))

	// The Milvus REST API returns 200 even on errors; check the body code.
	var baseResp struct {
		Code    int    `json:"code"`
		Message string `json:"message,omitempty"`
	}
	if err := json.Unmarshal(respBody, &baseResp); err == nil {
		if baseResp.Code != 0 {
			return fmt.Errorf("milvus error: code=%d message=%s", baseResp.Code, baseResp.Message)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("milvus request failed: method=%s path=%s status=%d body=%s",
			method, path, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// Search performs a cosine-similarity ANN search over the collection.
func (s *MilvusIndex) Search(ctx context.Context, vector []float64, limit int) ([]SearchHit, error) {
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return nil, fmt.Errorf("milvus collection is required")
	}
	if limit <= 0 {
		return []SearchHit{}, nil
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is required")
	}

	req := map[string]any{
		"dbName":         s.cfg.Database,
		"collectionName": s.cfg.Collection,
		"data":           [][]float64{vector},
		"annsField":      vectorField,
		"limit":          limit,
		"outputFields":   []string{fieldContent, fieldSource, fieldPage},
		"searchParams":   s.cfg.SearchParams,
	}

	var resp struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    [][]struct {
			Distance float64        `json:"distance"`
			Entity   map[string]any `json:"entity"`
		} `json:"data"`
	}

	if err := s.doJSON(ctx, http.MethodPost, "/v2/vectordb/entities/search", req, &resp); err != nil {
		return nil, fmt.Errorf("search entities: %w", err)
	}

	hits := make([]SearchHit, 0)
	if len(resp.Data) > 0 {
		for _, h := range resp.Data[0] {
			hit := SearchHit{Similarity: h.Distance}
			fillEntity(&hit, h.Entity)
			if hit.Content == "" {
				// Records without content cannot ground an answer.
				continue
			}
			hits = append(hits, hit)
		}
	}

	return hits, nil
}

// QueryByFilter runs an exact-match metadata query against the collection.
func (s *MilvusIndex) QueryByFilter(ctx context.Context, filter string, limit int) ([]SearchHit, error) {
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return nil, fmt.Errorf("milvus collection is required")
	}
	if limit <= 0 {
		return []SearchHit{}, nil
	}

	req := map[string]any{
		"dbName":         s.cfg.Database,
		"collectionName": s.cfg.Collection,
		"filter":         filter,
		"limit":          limit,
		"outputFields":   []string{fieldContent, fieldSource, fieldPage},
	}

	var resp struct {
		Code    int              `json:"code"`
		Message string           `json:"message"`
		Data    []map[string]any `json:"data"`
	}

	if err := s.doJSON(ctx, http.MethodPost, "/v2/vectordb/entities/query", req, &resp); err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}

	hits := make([]SearchHit, 0, len(resp.Data))
	for _, entity := range resp.Data {
		var hit SearchHit
		fillEntity(&hit, entity)
		if hit.Content == "" {
			continue
		}
		hits = append(hits, hit)
	}

	return hits, nil
}

// HasCollection reports whether the configured collection exists.
func (s *MilvusIndex) HasCollection(ctx context.Context) (bool, error) {
	req := map[string]any{
		"dbName":         s.cfg.Database,
		"collectionName": s.cfg.Collection,
	}

	var resp struct {
		Code int `json:"code"`
		Data struct {
			HasCollection bool `json:"has"`
		} `json:"data"`
	}

	if err := s.doJSON(ctx, http.MethodPost, "/v2/vectordb/collections/has", req, &resp); err != nil {
		return false, fmt.Errorf("check collection existence: %w", err)
	}

	return resp.Data.HasCollection, nil
}

// LoadCollection loads the collection into memory for searching.
func (s *MilvusIndex) LoadCollection(ctx context.Context) error {
	req := map[string]any{
		"dbName":         s.cfg.Database,
		"collectionName": s.cfg.Collection,
	}

	var resp struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}

	if err := s.doJSON(ctx, http.MethodPost, "/v2/vectordb/collections/load", req, &resp); err != nil {
		return fmt.Errorf("load collection %s: %w", s.cfg.Collection, err)
	}

	s.logger.Info("collection loaded", zap.String("collection", s.cfg.Collection))
	return nil
}

// Count returns the number of chunks in the collection.
func (s *MilvusIndex) Count(ctx context.Context) (int, error) {
	req := map[string]any{
		"dbName":         s.cfg.Database,
		"collectionName": s.cfg.Collection,
	}

	var resp struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    struct {
			RowCount int `json:"rowCount"`
		} `json:"data"`
	}

	if err := s.doJSON(ctx, http.MethodPost, "/v2/vectordb/collections/get_stats", req, &resp); err != nil {
		return 0, fmt.Errorf("get collection stats: %w", err)
	}

	return resp.Data.RowCount, nil
}

// fillEntity copies the known output fields from a Milvus entity map. Page
// labels ingested as numbers are normalized to strings.
func fillEntity(hit *SearchHit, entity map[string]any) {
	if entity == nil {
		return
	}
	if content, ok := entity[fieldContent].(string); ok {
		hit.Content = content
	}
	if source, ok := entity[fieldSource].(string); ok {
		hit.SourceID = source
	}
	switch page := entity[fieldPage].(type) {
	case string:
		hit.PageLabel = page
	case float64:
		hit.PageLabel = fmt.Sprintf("%d", int(page))
	}
}
