package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codeancestry/codeancestry/internal/port"
)

// OpenRouterEndpointConfig holds the configuration for one OpenAI-compatible endpoint.
type OpenRouterEndpointConfig struct {
	BaseURL string // e.g. https://openrouter.ai/api/v1
	APIKey  string
	Model   string
}

// OpenRouterProvider implements port.AIProvider against OpenAI-style APIs.
// Completions go to the OpenRouter chat endpoint; embeddings go to a separate
// OpenAI-compatible endpoint, since OpenRouter does not serve embeddings.
type OpenRouterProvider struct {
	chat       OpenRouterEndpointConfig
	embed      OpenRouterEndpointConfig
	httpClient *http.Client
}

// NewOpenRouterProvider creates an OpenRouter-backed AI provider.
func NewOpenRouterProvider(chat, embed OpenRouterEndpointConfig, timeout time.Duration) *OpenRouterProvider {
	return &OpenRouterProvider{
		chat:       chat,
		embed:      embed,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ModelName returns the chat model identifier.
func (p *OpenRouterProvider) ModelName() string {
	return p.chat.Model
}

// Embed generates a vector embedding for the given text.
func (p *OpenRouterProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("openrouter embed: empty response: %w", port.ErrUpstreamUnavailable)
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one call.
func (p *OpenRouterProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	payload := map[string]interface{}{
		"model": p.embed.Model,
		"input": texts,
	}

	body, err := p.post(ctx, p.embed, "/embeddings", payload)
	if err != nil {
		return nil, fmt.Errorf("openrouter embed batch: %w", err)
	}

	var resp struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("openrouter embed decode: %w", err)
	}

	vectors := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("openrouter embed: index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// Complete sends a single chat completion and returns the response text.
func (p *OpenRouterProvider) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	if model == "" {
		model = p.chat.Model
	}

	payload := map[string]interface{}{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature": 0.3,
	}

	body, err := p.post(ctx, p.chat, "/chat/completions", payload)
	if err != nil {
		return "", fmt.Errorf("openrouter chat: %w", err)
	}

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("openrouter chat decode: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openrouter chat: no choices: %w", port.ErrUpstreamUnavailable)
	}

	return resp.Choices[0].Message.Content, nil
}

func (p *OpenRouterProvider) post(ctx context.Context, cfg OpenRouterEndpointConfig, path string, payload interface{}) ([]byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+path, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", port.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: openrouter API error (%d): %s", port.ErrUpstreamUnavailable, resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}
