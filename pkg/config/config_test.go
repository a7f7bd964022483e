package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "3001", cfg.Port)
	assert.Equal(t, "CodeAncestry", cfg.AppName)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, "ollama", cfg.AIProvider)
	assert.Equal(t, 384, cfg.EmbeddingDimension)
	assert.Equal(t, 5, cfg.TopKDefault)
	assert.Equal(t, 50, cfg.TopKMax)
	assert.Equal(t, 6000, cfg.ContextBudget)
	assert.Equal(t, 300, cfg.AnswerCacheTTL)
	assert.True(t, cfg.SummariesEnabled)
	assert.True(t, cfg.MCPEnabled)
	assert.Equal(t, "3002", cfg.MCPPort)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("TOP_K_DEFAULT", "7")
	t.Setenv("SUMMARIES_ENABLED", "false")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, 7, cfg.TopKDefault)
	assert.False(t, cfg.SummariesEnabled)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("TOP_K_MAX", "not-a-number")

	cfg := Load()

	assert.Equal(t, 50, cfg.TopKMax)
}

func TestOllamaSharedBaseURL(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://ollama:11434")

	cfg := Load()

	assert.Equal(t, "http://ollama:11434", cfg.OllamaEmbedURL)
	assert.Equal(t, "http://ollama:11434", cfg.OllamaChatURL)
}
