package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codeancestry/codeancestry/internal/adapter/cache"
	"github.com/codeancestry/codeancestry/internal/domain"
	"github.com/codeancestry/codeancestry/internal/port"
)

// RAGOptions tune the query pipeline.
type RAGOptions struct {
	TopKDefault     int
	TopKMax         int
	ContextBudget   int           // bytes of rendered context
	UpstreamTimeout time.Duration // bounds each external AI call
}

// RAGService runs the question-answering pipeline: classify the question,
// retrieve the most relevant commits, assemble a bounded context, generate a
// grounded answer and format it for rendering. Each query is a pure read of
// the commit store; concurrent queries are independent.
type RAGService struct {
	ai         port.AIProvider
	store      port.CommitStore
	answers    port.AnswerCache
	classifier *Classifier
	opts       RAGOptions
}

// NewRAGService creates a new RAG service. answers may be nil to disable caching.
func NewRAGService(ai port.AIProvider, store port.CommitStore, answers port.AnswerCache, opts RAGOptions) *RAGService {
	if opts.TopKDefault <= 0 {
		opts.TopKDefault = 5
	}
	if opts.TopKMax <= 0 {
		opts.TopKMax = 50
	}
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = 6000
	}
	if opts.UpstreamTimeout <= 0 {
		opts.UpstreamTimeout = 30 * time.Second
	}
	if answers == nil {
		answers = noopCache{}
	}
	return &RAGService{
		ai:         ai,
		store:      store,
		answers:    answers,
		classifier: NewClassifier(),
		opts:       opts,
	}
}

const answerSystemPrompt = `You are CodeAncestry, an expert on this repository's commit history.
Answer the user's question using ONLY the commits provided as context.
Cite commits by their bracketed index, e.g. [1] or [2].
Be concise and technical. Use markdown headings and lists where they help.
End with a line starting with "**Key Insight**:" giving the single most important takeaway.
If the provided commits do not fully answer the question, say so explicitly.`

// AskQuestion is the pipeline entry point. An empty source list with a nil
// error is the valid "no relevant history" state, reported via Grounded=false.
func (s *RAGService) AskQuestion(ctx context.Context, repoID, question string, topK int, model string) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, port.ErrEmptyQuestion
	}

	topK = clamp(topK, 1, s.opts.TopKMax, s.opts.TopKDefault)
	if model == "" {
		model = s.ai.ModelName()
	}

	cacheKey := cache.Key(repoID, question, topK, model)
	if cached, ok := s.answers.GetAnswer(ctx, cacheKey); ok {
		slog.Info("answer cache hit", "repo_id", repoID)
		return cached, nil
	}

	classification := s.classifier.Classify(question)
	slog.Info("RAG query", "repo_id", repoID, "kind", classification.Kind, "top_k", topK)

	retrieved, err := s.retrieve(ctx, repoID, question, classification, topK)
	if err != nil {
		return nil, err
	}

	if len(retrieved) == 0 {
		return s.ungroundedAnswer(classification, model), nil
	}

	contextBlock := AssembleContext(retrieved, s.opts.ContextBudget)

	userPrompt := fmt.Sprintf("Relevant commits:\n\n%s\nQuestion: %s", contextBlock.Text, question)

	callCtx, cancel := context.WithTimeout(ctx, s.opts.UpstreamTimeout)
	defer cancel()
	raw, err := s.ai.Complete(callCtx, model, answerSystemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	answer := &domain.Answer{
		Text:      raw,
		Document:  FormatAnswer(raw),
		Sources:   contextBlock.Citations,
		Grounded:  true,
		QueryType: classification.Kind,
		Model:     model,
	}

	// Ungrounded answers are never cached, so a repository that finishes
	// embedding becomes visible immediately.
	s.answers.SetAnswer(ctx, cacheKey, answer)

	return answer, nil
}

// retrieve produces the ranked candidate commits. Purely temporal queries
// skip embedding entirely; semantic and hybrid queries embed the question
// and rank by cosine similarity, pre-filtered by any date/author constraints.
// Store lookups get the same per-call timeout as the AI calls — a hung
// vector search must not hold the request open until client disconnect.
func (s *RAGService) retrieve(ctx context.Context, repoID, question string, cls domain.Classification, topK int) ([]domain.RetrievedCommit, error) {
	if cls.Kind == domain.QueryKindTemporal {
		listCtx, cancel := context.WithTimeout(ctx, s.opts.UpstreamTimeout)
		defer cancel()
		results, err := s.store.ListFiltered(listCtx, repoID, cls.Filters, topK)
		if err != nil {
			return nil, fmt.Errorf("list filtered: %w", err)
		}
		return results, nil
	}

	embedText := cls.SemanticQuery
	if embedText == "" {
		embedText = question
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.UpstreamTimeout)
	defer cancel()
	vector, err := s.ai.Embed(callCtx, embedText)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	searchCtx, searchCancel := context.WithTimeout(ctx, s.opts.UpstreamTimeout)
	defer searchCancel()
	results, err := s.store.SearchSimilar(searchCtx, repoID, vector, cls.Filters, topK)
	if err != nil {
		return nil, fmt.Errorf("search similar: %w", err)
	}
	return results, nil
}

// EmbeddingStatus reports how much of a repository's history is searchable.
func (s *RAGService) EmbeddingStatus(ctx context.Context, repo *domain.Repository) (*domain.EmbeddingStatus, error) {
	total, embedded, err := s.store.CountByEmbedding(ctx, repo.ID)
	if err != nil {
		return nil, fmt.Errorf("embedding status: %w", err)
	}

	pct := 0.0
	if total > 0 {
		pct = float64(embedded) / float64(total) * 100
	}
	return &domain.EmbeddingStatus{
		Repository:         repo.FullName,
		TotalCommits:       total,
		EmbeddedCommits:    embedded,
		PendingCommits:     total - embedded,
		PercentageComplete: pct,
	}, nil
}

const noHistoryText = "No relevant commit history was found for this question. " +
	"The repository may still be embedding, or nothing in its history matches — try asking something else."

func (s *RAGService) ungroundedAnswer(cls domain.Classification, model string) *domain.Answer {
	return &domain.Answer{
		Text:      noHistoryText,
		Document:  FormatAnswer(noHistoryText),
		Sources:   []domain.Citation{},
		Grounded:  false,
		QueryType: cls.Kind,
		Model:     model,
	}
}

// noopCache disables answer caching without nil checks at call sites.
type noopCache struct{}

func (noopCache) GetAnswer(context.Context, string) (*domain.Answer, bool) { return nil, false }
func (noopCache) SetAnswer(context.Context, string, *domain.Answer)        {}

// clamp bounds v to [min, max], substituting fallback when v is unset.
func clamp(v, min, max, fallback int) int {
	if v == 0 {
		v = fallback
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
