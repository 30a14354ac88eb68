// Package consult runs the end-to-end legal consultation pipeline:
// retrieve evidence, assemble the grounding prompt, enforce the token
// budget, call the model with retries, and cache the final answer.
package consult

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamaope/legalrag/config"
	"github.com/mamaope/legalrag/genai"
	"github.com/mamaope/legalrag/internal/metrics"
	"github.com/mamaope/legalrag/respcache"
	"github.com/mamaope/legalrag/retrieval"
	"github.com/mamaope/legalrag/retry"
	"github.com/mamaope/legalrag/tokenizer"
	"github.com/mamaope/legalrag/types"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Warnings appended to partial answers.
const (
	truncationWarning = "\n\n**[WARNING: The response was truncated because it exceeded the maximum output length. Please ask a more specific follow-up question if needed.]**"
	safetyWarning     = "\n\n**[WARNING: The response was partially blocked by safety filters.]**"
)

// Caller-facing failure messages. Internal error detail stays in the logs.
const (
	unavailableMessage = "The service is temporarily unavailable. Please try again shortly."
	unexpectedMessage  = "An unexpected error occurred. Please try again."
)

// Retriever is the evidence retrieval dependency.
type Retriever interface {
	Retrieve(ctx context.Context, query, auxContext string, k int) ([]retrieval.Chunk, []string, error)
}

// Generator is the model dependency.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*genai.Result, error)
	CountTokens(ctx context.Context, text string) (int, error)
}

// Request is a single consultation turn.
type Request struct {
	Query       string `json:"query"`
	ChatHistory string `json:"chat_history"`
	CaseData    string `json:"case_data"`
}

// Result is the consultation outcome. Status is "success" or "error"; on
// error, Answer holds a user-safe explanation. Answers served from cache
// carry no sources.
type Result struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
	Status  string   `json:"status"`
}

// Service orchestrates one consultation turn. All failure modes are
// contained: Generate always returns a Result, never panics the request
// path.
type Service struct {
	retriever Retriever
	model     Generator
	cache     respcache.Cache
	counter   *tokenizer.Counter
	retryer   retry.Retryer
	cfg       config.Config
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// NewService wires the consultation pipeline.
func NewService(
	retriever Retriever,
	model Generator,
	cache respcache.Cache,
	cfg config.Config,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	policy := retry.DefaultPolicy()
	policy.Retryable = types.IsRetryable
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("retrying model call",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	return &Service{
		retriever: retriever,
		model:     model,
		cache:     cache,
		counter:   tokenizer.NewCounter(""),
		retryer:   retry.NewBackoffRetryer(policy, logger),
		cfg:       cfg,
		metrics:   collector,
		logger:    logger.With(zap.String("component", "consult")),
	}
}

// Generate answers one consultation request.
func (s *Service) Generate(ctx context.Context, req Request) (result Result) {
	start := time.Now()
	logger := s.logger.With(zap.String("request_id", uuid.NewString()))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in consultation pipeline",
				zap.Any("panic", r),
				zap.Stack("stack"))
			s.metrics.ObserveGeneration(StatusError, time.Since(start))
			result = Result{Answer: unexpectedMessage, Sources: []string{}, Status: StatusError}
		}
	}()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return s.errorResult(logger, start, "Query must not be empty.", nil)
	}

	// Answers for follow-up turns depend on conversation state and are
	// never cached.
	cacheKey := ""
	if historyEmpty(req.ChatHistory) {
		cacheKey = respcache.Fingerprint(query, req.CaseData)
		if cached, ok := s.cache.Get(ctx, cacheKey); ok {
			logger.Info("cache hit", zap.Duration("took", time.Since(start)))
			s.metrics.CacheHit()
			s.metrics.ObserveGeneration(StatusSuccess, time.Since(start))
			return Result{Answer: cached, Sources: []string{}, Status: StatusSuccess}
		}
		s.metrics.CacheMiss()
	}

	chunks, sources, err := s.retriever.Retrieve(ctx, query, req.CaseData, s.cfg.Retrieval.K)
	if err != nil {
		return s.errorResult(logger, start, "Evidence retrieval failed. Please try again shortly.", err)
	}

	evidence := buildEvidence(chunks, s.cfg.Retrieval.PromptChunks)
	prompt := buildPrompt(evidence, sources, query, req.CaseData, req.ChatHistory)

	if result, ok := s.checkTokenBudget(ctx, logger, prompt); !ok {
		result.Sources = sources
		return s.finish(logger, start, result)
	}

	answer, err := s.generateWithRetry(ctx, logger, prompt)
	if err != nil {
		result := Result{Answer: userMessage(err), Sources: sources, Status: StatusError}
		return s.finish(logger, start, result)
	}

	if cacheKey != "" && answer != "" {
		s.cache.Set(ctx, cacheKey, answer)
	}

	logger.Info("consultation complete",
		zap.Int("sources", len(sources)),
		zap.Duration("took", time.Since(start)))
	s.metrics.ObserveGeneration(StatusSuccess, time.Since(start))

	return Result{Answer: answer, Sources: sources, Status: StatusSuccess}
}

// checkTokenBudget enforces the prompt token limit. The remote count is
// authoritative; the local tiktoken count is an approximation used when
// the endpoint is unavailable, and if both fail generation proceeds
// unvalidated.
func (s *Service) checkTokenBudget(ctx context.Context, logger *zap.Logger, prompt string) (Result, bool) {
	limit := s.cfg.GenAI.PromptTokenLimit
	if limit <= 0 {
		return Result{}, true
	}

	count, err := s.model.CountTokens(ctx, prompt)
	if err != nil {
		logger.Warn("remote token count unavailable, using local estimate", zap.Error(err))
		count, err = s.counter.CountTokens(prompt)
		if err != nil {
			logger.Warn("token count unavailable, proceeding without validation", zap.Error(err))
			return Result{}, true
		}
	}

	logger.Info("prompt token count", zap.Int("tokens", count), zap.Int("limit", limit))
	s.metrics.AddPromptTokens(count)

	if count > limit {
		msg := fmt.Sprintf("Error: Input prompt exceeds token limit (%d/%d).", count, limit)
		logger.Error(msg)
		return Result{Answer: msg, Status: StatusError}, false
	}
	return Result{}, true
}

// generateWithRetry calls the model, retrying transient failures, and
// folds the finish reason into the answer text.
func (s *Service) generateWithRetry(ctx context.Context, logger *zap.Logger, prompt string) (string, error) {
	result, err := retry.DoWithResultTyped(s.retryer, ctx, func() (*genai.Result, error) {
		return s.model.Generate(ctx, prompt)
	})
	if err != nil {
		logger.Error("model call failed", zap.Error(err))
		return "", err
	}

	answer := result.Text
	switch result.FinishReason {
	case genai.FinishStop:
		logger.Info("response generated", zap.Int("output_tokens", result.OutputTokens))
	case genai.FinishMaxTokens:
		logger.Warn("response truncated at max output tokens")
		answer += truncationWarning
	case genai.FinishSafety:
		logger.Warn("response partially blocked by safety filters")
		answer += safetyWarning
	case genai.FinishRecitation:
		logger.Warn("response cut short by recitation filter")
		answer += safetyWarning
	default:
		logger.Warn("unhandled finish reason", zap.String("finish_reason", result.FinishReason))
	}

	return answer, nil
}

func (s *Service) errorResult(logger *zap.Logger, start time.Time, msg string, err error) Result {
	if err != nil {
		logger.Error("consultation failed", zap.Error(err))
	} else {
		logger.Error("consultation failed", zap.String("reason", msg))
	}
	s.metrics.ObserveGeneration(StatusError, time.Since(start))
	return Result{Answer: msg, Sources: []string{}, Status: StatusError}
}

func (s *Service) finish(logger *zap.Logger, start time.Time, result Result) Result {
	if result.Sources == nil {
		result.Sources = []string{}
	}
	s.metrics.ObserveGeneration(result.Status, time.Since(start))
	logger.Info("consultation finished",
		zap.String("status", result.Status),
		zap.Duration("took", time.Since(start)))
	return result
}

// historyEmpty reports whether the conversation has no usable prior turns.
func historyEmpty(history string) bool {
	history = strings.TrimSpace(history)
	return history == "" || history == NoHistory
}

// userMessage converts an internal error into text safe to show the user.
// Content filter errors carry rephrase guidance; everything else collapses
// to a fixed message so upstream bodies and retry detail never leak
// outward.
func userMessage(err error) string {
	var appErr *types.Error
	if errors.As(err, &appErr) && appErr.Code == types.ErrContentFiltered {
		return appErr.Message
	}
	return unavailableMessage
}
