package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mamaope/legalrag/config"
	"github.com/mamaope/legalrag/consult"
	"github.com/mamaope/legalrag/embedding"
	"github.com/mamaope/legalrag/genai"
	"github.com/mamaope/legalrag/internal/metrics"
	"github.com/mamaope/legalrag/respcache"
	"github.com/mamaope/legalrag/retrieval"
	"github.com/mamaope/legalrag/vectorstore"
)

// Server owns the HTTP surface and the pipeline behind it.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	http    *http.Server
	consult *consult.Service
	cache   respcache.Cache
}

// NewServer builds the full pipeline from config. The vector index must be
// reachable and loaded; anything less fails startup.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	collector := metrics.NewCollector("legalrag", prometheus.DefaultRegisterer, logger)

	embedder := embedding.NewAzureProvider(embedding.AzureConfig{
		Endpoint:   cfg.Embedding.Endpoint,
		APIKey:     cfg.Embedding.APIKey,
		Deployment: cfg.Embedding.Deployment,
		APIVersion: cfg.Embedding.APIVersion,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout,
	})

	index := vectorstore.NewMilvusIndex(vectorstore.MilvusConfig{
		BaseURL:    cfg.Milvus.BaseURL,
		Token:      cfg.Milvus.Token,
		Username:   cfg.Milvus.Username,
		Password:   cfg.Milvus.Password,
		Database:   cfg.Milvus.Database,
		Collection: cfg.Milvus.Collection,
		Timeout:    cfg.Milvus.Timeout,
	}, logger)

	retriever := retrieval.NewRetriever(embedder, index, cfg.Retrieval, collector, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := retriever.Init(ctx); err != nil {
		return nil, fmt.Errorf("vector index init: %w", err)
	}
	if n, err := index.Count(ctx); err == nil {
		logger.Info("collection loaded",
			zap.String("collection", cfg.Milvus.Collection),
			zap.Int("chunks", n))
	}

	model, err := genai.NewClient(genai.Config{
		BaseURL:         cfg.GenAI.BaseURL,
		APIKey:          cfg.GenAI.APIKey,
		Model:           cfg.GenAI.Model,
		Temperature:     cfg.GenAI.Temperature,
		TopP:            cfg.GenAI.TopP,
		TopK:            cfg.GenAI.TopK,
		MaxOutputTokens: cfg.GenAI.MaxOutputTokens,
		Timeout:         cfg.GenAI.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}

	cache, err := newCache(cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("response cache: %w", err)
	}

	svc := consult.NewService(retriever, model, cache, *cfg, collector, logger)

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		consult: svc,
		cache:   cache,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/consult", s.handleConsult)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s, nil
}

func newCache(cfg config.CacheConfig, logger *zap.Logger) (respcache.Cache, error) {
	if cfg.Backend == "redis" {
		return respcache.NewRedisCache(respcache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.TTL,
		}, logger)
	}
	return respcache.NewMemoryCache(cfg.TTL, cfg.MaxEntries, cfg.EvictBatch, logger), nil
}

// Start begins serving in the background.
func (s *Server) Start() error {
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("http server failed", zap.Error(err))
		}
	}()
	return nil
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then drains in-flight
// requests.
func (s *Server) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	s.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", zap.Error(err))
	}
	if err := s.cache.Close(); err != nil {
		s.logger.Warn("cache close error", zap.Error(err))
	}
}

func (s *Server) handleConsult(w http.ResponseWriter, r *http.Request) {
	var req consult.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result := s.consult.Generate(r.Context(), req)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": Version,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
