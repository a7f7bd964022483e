package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeancestry/codeancestry/internal/adapter/store"
	"github.com/codeancestry/codeancestry/internal/domain"
	"github.com/codeancestry/codeancestry/internal/port"
)

// fakeAI is a deterministic AIProvider for pipeline tests.
type fakeAI struct {
	mu            sync.Mutex
	embedVector   []float32
	embedErr      error
	completeText  string
	completeErr   error
	embedCalls    int
	completeCalls int
}

func (f *fakeAI) ModelName() string { return "fake-model" }

func (f *fakeAI) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCalls++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return f.embedVector, nil
}

func (f *fakeAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, err := f.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeAI) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls++
	if f.completeErr != nil {
		return "", f.completeErr
	}
	return f.completeText, nil
}

// fakeAnswerCache is an in-process AnswerCache for cache-path assertions.
type fakeAnswerCache struct {
	mu      sync.Mutex
	answers map[string]*domain.Answer
}

func newFakeAnswerCache() *fakeAnswerCache {
	return &fakeAnswerCache{answers: make(map[string]*domain.Answer)}
}

func (f *fakeAnswerCache) GetAnswer(ctx context.Context, key string) (*domain.Answer, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.answers[key]
	return a, ok
}

func (f *fakeAnswerCache) SetAnswer(ctx context.Context, key string, a *domain.Answer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[key] = a
}

// unitVector builds a 2-d unit vector whose cosine similarity against
// [1, 0] equals the given value.
func unitVector(cos float64) []float32 {
	return []float32{float32(cos), float32(math.Sqrt(1 - cos*cos))}
}

func seedEmbeddedCommit(t *testing.T, mem *store.MemoryStore, repoID, sha, message string, date time.Time, vector []float32) {
	t.Helper()
	c, err := mem.UpsertCommit(context.Background(), &domain.Commit{
		RepoID:     repoID,
		SHA:        sha,
		Message:    message,
		AuthorName: "Alice",
		CommitDate: date,
	})
	require.NoError(t, err)
	require.NoError(t, mem.SetEmbedding(context.Background(), c.ID, vector))
}

func newTestRAG(ai *fakeAI, mem *store.MemoryStore, answers port.AnswerCache) *RAGService {
	return NewRAGService(ai, mem, answers, RAGOptions{})
}

func TestAskQuestionRanksBySimilarity(t *testing.T) {
	mem := store.NewMemoryStore()
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	seedEmbeddedCommit(t, mem, "repo-1", "aaaa111", "refactor auth middleware", base, unitVector(0.82))
	seedEmbeddedCommit(t, mem, "repo-1", "bbbb222", "tweak session handling", base.AddDate(0, 0, 1), unitVector(0.61))
	seedEmbeddedCommit(t, mem, "repo-1", "cccc333", "update readme", base.AddDate(0, 0, 2), unitVector(0.40))

	ai := &fakeAI{
		embedVector:  []float32{1, 0},
		completeText: "Auth was refactored to isolate token checks [1].\n\n**Key Insight**: middleware boundaries matter",
	}
	svc := newTestRAG(ai, mem, nil)

	answer, err := svc.AskQuestion(context.Background(), "repo-1", "Why was auth refactored?", 2, "")

	require.NoError(t, err)
	assert.True(t, answer.Grounded)
	assert.Equal(t, domain.QueryKindSemantic, answer.QueryType)
	assert.Equal(t, "fake-model", answer.Model)

	require.Len(t, answer.Sources, 2)
	assert.Equal(t, "aaaa111", answer.Sources[0].SHA)
	assert.Equal(t, "bbbb222", answer.Sources[1].SHA)
	assert.InDelta(t, 0.82, answer.Sources[0].Similarity, 0.001)
	assert.InDelta(t, 0.61, answer.Sources[1].Similarity, 0.001)

	// The formatter ran over the raw completion.
	require.NotEmpty(t, answer.Document.Blocks)
	lastBlock := answer.Document.Blocks[len(answer.Document.Blocks)-1]
	assert.Equal(t, domain.BlockKeyInsight, lastBlock.Type)
}

func TestAskQuestionEmptyCorpusIsNotAnError(t *testing.T) {
	mem := store.NewMemoryStore()
	ai := &fakeAI{embedVector: []float32{1, 0}, completeText: "unused"}
	svc := newTestRAG(ai, mem, nil)

	answer, err := svc.AskQuestion(context.Background(), "repo-1", "Why was auth refactored?", 5, "")

	require.NoError(t, err)
	assert.False(t, answer.Grounded)
	assert.Empty(t, answer.Sources)
	assert.NotEmpty(t, answer.Text)
	assert.Equal(t, 0, ai.completeCalls, "no completion for an ungrounded answer")
}

func TestAskQuestionEmptyQuestion(t *testing.T) {
	svc := newTestRAG(&fakeAI{}, store.NewMemoryStore(), nil)

	_, err := svc.AskQuestion(context.Background(), "repo-1", "   ", 5, "")

	assert.ErrorIs(t, err, port.ErrEmptyQuestion)
}

func TestAskQuestionUpstreamErrorKind(t *testing.T) {
	mem := store.NewMemoryStore()
	ai := &fakeAI{
		embedErr: fmt.Errorf("%w: connection refused", port.ErrUpstreamUnavailable),
	}
	svc := newTestRAG(ai, mem, nil)

	_, err := svc.AskQuestion(context.Background(), "repo-1", "Why was auth refactored?", 5, "")

	assert.ErrorIs(t, err, port.ErrUpstreamUnavailable)
}

func TestAskQuestionTemporalSkipsEmbedding(t *testing.T) {
	mem := store.NewMemoryStore()
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	seedEmbeddedCommit(t, mem, "repo-1", "aaaa111", "oldest", base, unitVector(0.9))
	seedEmbeddedCommit(t, mem, "repo-1", "bbbb222", "middle", base.AddDate(0, 0, 1), unitVector(0.9))
	seedEmbeddedCommit(t, mem, "repo-1", "cccc333", "newest", base.AddDate(0, 0, 2), unitVector(0.9))

	ai := &fakeAI{completeText: "The last two commits touched the parser."}
	svc := newTestRAG(ai, mem, nil)

	answer, err := svc.AskQuestion(context.Background(), "repo-1", "What was done in the last 2 commits?", 5, "")

	require.NoError(t, err)
	assert.Equal(t, 0, ai.embedCalls, "temporal queries never embed")
	assert.Equal(t, domain.QueryKindTemporal, answer.QueryType)
	require.Len(t, answer.Sources, 2)
	assert.Equal(t, "cccc333", answer.Sources[0].SHA)
	assert.Equal(t, "bbbb222", answer.Sources[1].SHA)
}

func TestAskQuestionTemporalExcludesUnembeddedCommits(t *testing.T) {
	mem := store.NewMemoryStore()
	_, err := mem.UpsertCommit(context.Background(), &domain.Commit{
		RepoID:     "repo-1",
		SHA:        "aaaa111",
		Message:    "still pending",
		CommitDate: time.Date(2023, time.June, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	ai := &fakeAI{completeText: "unused"}
	svc := newTestRAG(ai, mem, nil)

	answer, err := svc.AskQuestion(context.Background(), "repo-1", "What happened in 2023?", 5, "")

	require.NoError(t, err)
	assert.False(t, answer.Grounded, "a commit without an embedding must never be cited")
	assert.Empty(t, answer.Sources)
	assert.Equal(t, 0, ai.completeCalls)
}

func TestAskQuestionClampsTopK(t *testing.T) {
	mem := store.NewMemoryStore()
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		sha := fmt.Sprintf("sha%04d", i)
		seedEmbeddedCommit(t, mem, "repo-1", sha, "change", base.AddDate(0, 0, i), unitVector(0.5))
	}

	ai := &fakeAI{embedVector: []float32{1, 0}, completeText: "answer"}
	svc := NewRAGService(ai, mem, nil, RAGOptions{TopKMax: 2})

	answer, err := svc.AskQuestion(context.Background(), "repo-1", "what changed in the parser", 100, "")

	require.NoError(t, err)
	assert.Len(t, answer.Sources, 2)
}

// deadlineCheckStore records whether retrieval calls carried a deadline.
type deadlineCheckStore struct {
	port.CommitStore
	searchHadDeadline bool
	listHadDeadline   bool
}

func (d *deadlineCheckStore) SearchSimilar(ctx context.Context, repoID string, vector []float32, filters domain.Filters, k int) ([]domain.RetrievedCommit, error) {
	_, d.searchHadDeadline = ctx.Deadline()
	return d.CommitStore.SearchSimilar(ctx, repoID, vector, filters, k)
}

func (d *deadlineCheckStore) ListFiltered(ctx context.Context, repoID string, filters domain.Filters, limit int) ([]domain.RetrievedCommit, error) {
	_, d.listHadDeadline = ctx.Deadline()
	return d.CommitStore.ListFiltered(ctx, repoID, filters, limit)
}

func TestAskQuestionBoundsStoreCallsWithTimeout(t *testing.T) {
	mem := store.NewMemoryStore()
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	seedEmbeddedCommit(t, mem, "repo-1", "aaaa111", "add cache", base, unitVector(0.8))

	checked := &deadlineCheckStore{CommitStore: mem}
	ai := &fakeAI{embedVector: []float32{1, 0}, completeText: "answer"}
	svc := NewRAGService(ai, checked, nil, RAGOptions{})

	_, err := svc.AskQuestion(context.Background(), "repo-1", "why a cache?", 5, "")
	require.NoError(t, err)
	assert.True(t, checked.searchHadDeadline, "vector search must run under a timeout")

	_, err = svc.AskQuestion(context.Background(), "repo-1", "What was done in the last 2 commits?", 5, "")
	require.NoError(t, err)
	assert.True(t, checked.listHadDeadline, "temporal listing must run under a timeout")
}

func TestAskQuestionCachesGroundedAnswers(t *testing.T) {
	mem := store.NewMemoryStore()
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	seedEmbeddedCommit(t, mem, "repo-1", "aaaa111", "add cache", base, unitVector(0.8))

	ai := &fakeAI{embedVector: []float32{1, 0}, completeText: "The cache was added [1]."}
	answers := newFakeAnswerCache()
	svc := newTestRAG(ai, mem, answers)

	first, err := svc.AskQuestion(context.Background(), "repo-1", "why a cache?", 5, "")
	require.NoError(t, err)
	require.True(t, first.Grounded)

	second, err := svc.AskQuestion(context.Background(), "repo-1", "why a cache?", 5, "")
	require.NoError(t, err)

	assert.Equal(t, 1, ai.completeCalls, "second ask must hit the cache")
	assert.Equal(t, first.Text, second.Text)
}

func TestAskQuestionDoesNotCacheUngroundedAnswers(t *testing.T) {
	mem := store.NewMemoryStore()
	ai := &fakeAI{embedVector: []float32{1, 0}, completeText: "unused"}
	answers := newFakeAnswerCache()
	svc := newTestRAG(ai, mem, answers)

	answer, err := svc.AskQuestion(context.Background(), "repo-1", "why a cache?", 5, "")
	require.NoError(t, err)
	require.False(t, answer.Grounded)

	assert.Empty(t, answers.answers)
}

func TestEmbeddingStatus(t *testing.T) {
	mem := store.NewMemoryStore()
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	seedEmbeddedCommit(t, mem, "repo-1", "aaaa111", "embedded one", base, unitVector(0.5))

	pending, err := mem.UpsertCommit(context.Background(), &domain.Commit{
		RepoID: "repo-1", SHA: "bbbb222", Message: "still pending", CommitDate: base,
	})
	require.NoError(t, err)
	_ = pending

	svc := newTestRAG(&fakeAI{}, mem, nil)
	status, err := svc.EmbeddingStatus(context.Background(), &domain.Repository{ID: "repo-1", FullName: "octo/demo"})

	require.NoError(t, err)
	assert.Equal(t, 2, status.TotalCommits)
	assert.Equal(t, 1, status.EmbeddedCommits)
	assert.Equal(t, 1, status.PendingCommits)
	assert.InDelta(t, 50.0, status.PercentageComplete, 0.01)
}
