package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const DefaultOllamaHost = "http://localhost:11434"

// OllamaClient talks to the native /api/generate endpoint.
type OllamaClient struct {
	client *api.Client
	model  string
}

func NewOllamaClient(modelName string, baseURL string) (*OllamaClient, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaHost
	}
	base, err := url.Parse(strings.TrimSuffix(strings.TrimRight(baseURL, "/"), "/v1"))
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", baseURL, err)
	}
	if modelName == "" {
		modelName = "llava"
	}
	return &OllamaClient{
		client: api.NewClient(base, http.DefaultClient),
		model:  modelName,
	}, nil
}

func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: &stream,
	}

	var out strings.Builder
	err := c.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generation failed: %w", err)
	}
	return out.String(), nil
}
