package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/mamaope/legalrag/types"
)

// AzureConfig configures the Azure OpenAI embedding provider.
type AzureConfig struct {
	// Endpoint is the Azure resource endpoint, e.g.
	// https://myresource.openai.azure.com.
	Endpoint string
	// APIKey is the Azure OpenAI API key.
	APIKey string
	// Deployment is the embedding model deployment name.
	Deployment string
	// APIVersion is the Azure OpenAI API version.
	APIVersion string
	// Dimensions is the expected embedding dimension.
	Dimensions int
	Timeout    time.Duration
}

// AzureProvider implements embedding via an Azure OpenAI deployment of an
// OpenAI embedding model.
type AzureProvider struct {
	*BaseProvider
	cfg AzureConfig
}

// NewAzureProvider creates a new Azure OpenAI embedding provider.
func NewAzureProvider(cfg AzureConfig) *AzureProvider {
	if cfg.Deployment == "" {
		cfg.Deployment = "text-embedding-3-large"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-02-01"
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 3072
	}

	return &AzureProvider{
		BaseProvider: NewBaseProvider(BaseConfig{
			Name:       "azure-openai-embedding",
			BaseURL:    cfg.Endpoint,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		}),
		cfg: cfg,
	}
}

type azureEmbedRequest struct {
	Input []string `json:"input"`
}

type azureEmbedResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// EmbedQuery embeds a single query string.
func (p *AzureProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	endpoint := fmt.Sprintf("/openai/deployments/%s/embeddings?api-version=%s",
		url.PathEscape(p.cfg.Deployment), url.QueryEscape(p.cfg.APIVersion))

	respBody, err := p.DoRequest(ctx, "POST", endpoint, azureEmbedRequest{
		Input: []string{query},
	}, map[string]string{
		"api-key": p.cfg.APIKey,
	})
	if err != nil {
		return nil, err
	}

	var resp azureEmbedResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, types.NewError(types.ErrEmptyEmbedding, "provider returned no embedding").
			WithProvider(p.Name())
	}

	embedding := resp.Data[0].Embedding
	if p.cfg.Dimensions > 0 && len(embedding) != p.cfg.Dimensions {
		return nil, fmt.Errorf("embedding dimension mismatch: got=%d want=%d",
			len(embedding), p.cfg.Dimensions)
	}

	return embedding, nil
}
