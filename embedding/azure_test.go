package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamaope/legalrag/types"
)

func TestAzureProviderEmbedQuery(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/openai/deployments/text-embedding-3-large/embeddings", r.URL.Path)
		assert.Equal(t, "2024-02-01", r.URL.Query().Get("api-version"))
		assert.Equal(t, "secret", r.Header.Get("api-key"))

		var req azureEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 1)
		assert.Equal(t, "what is habeas corpus", req.Input[0])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2,0.3]}],"model":"text-embedding-3-large","usage":{"prompt_tokens":5,"total_tokens":5}}`))
	}))
	defer srv.Close()

	p := NewAzureProvider(AzureConfig{
		Endpoint:   srv.URL,
		APIKey:     "secret",
		Dimensions: 3,
	})

	vec, err := p.EmbedQuery(context.Background(), "what is habeas corpus")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
}

func TestAzureProviderEmptyEmbeddingIsDistinctError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"object":"list","data":[],"model":"text-embedding-3-large"}`))
	}))
	defer srv.Close()

	p := NewAzureProvider(AzureConfig{Endpoint: srv.URL, APIKey: "secret"})

	vec, err := p.EmbedQuery(context.Background(), "anything")
	require.Error(t, err)
	assert.Nil(t, vec)
	assert.Equal(t, types.ErrEmptyEmbedding, types.GetErrorCode(err))
}

func TestAzureProviderDimensionMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.1,0.2]}]}`))
	}))
	defer srv.Close()

	p := NewAzureProvider(AzureConfig{Endpoint: srv.URL, APIKey: "secret", Dimensions: 3})

	_, err := p.EmbedQuery(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension mismatch")
}

func TestAzureProviderMapsRateLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewAzureProvider(AzureConfig{Endpoint: srv.URL, APIKey: "secret"})

	_, err := p.EmbedQuery(context.Background(), "anything")
	require.Error(t, err)
	assert.Equal(t, types.ErrRateLimited, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestAzureProviderNeverRetriesBadRequest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad input", http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewAzureProvider(AzureConfig{Endpoint: srv.URL, APIKey: "secret"})

	_, err := p.EmbedQuery(context.Background(), "anything")
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
	assert.False(t, types.IsRetryable(err))
}
