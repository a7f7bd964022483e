package port

import "context"

// AIProvider abstracts the hosted AI backend for embeddings and completions.
// Implementations can target Ollama, OpenRouter, or any compatible API.
type AIProvider interface {
	// ModelName returns the identifier of the default completion model.
	ModelName() string

	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Complete sends a single completion request and returns the raw answer
	// text. An empty model selects the provider's default.
	Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error)
}
