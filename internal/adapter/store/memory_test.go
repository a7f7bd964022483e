package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeancestry/codeancestry/internal/domain"
	"github.com/codeancestry/codeancestry/internal/port"
)

func addEmbedded(t *testing.T, m *MemoryStore, repoID, sha string, date time.Time, vector []float32) *domain.Commit {
	t.Helper()
	c, err := m.UpsertCommit(context.Background(), &domain.Commit{
		RepoID:     repoID,
		SHA:        sha,
		Message:    "change " + sha,
		AuthorName: "Alice",
		CommitDate: date,
	})
	require.NoError(t, err)
	require.NoError(t, m.SetEmbedding(context.Background(), c.ID, vector))
	return c
}

func TestSearchSimilarOrdering(t *testing.T) {
	m := NewMemoryStore()
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	addEmbedded(t, m, "r1", "low", base, []float32{0, 1})
	addEmbedded(t, m, "r1", "high", base, []float32{1, 0})
	addEmbedded(t, m, "r1", "mid", base, []float32{1, 1})

	results, err := m.SearchSimilar(context.Background(), "r1", []float32{1, 0}, domain.Filters{}, 10)

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "high", results[0].SHA)
	assert.Equal(t, "mid", results[1].SHA)
	assert.Equal(t, "low", results[2].SHA)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
	}
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, 3, results[2].Rank)
}

func TestSearchSimilarTieBreaksOnRecency(t *testing.T) {
	m := NewMemoryStore()
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	addEmbedded(t, m, "r1", "older", base, []float32{1, 0})
	addEmbedded(t, m, "r1", "newer", base.AddDate(0, 0, 5), []float32{1, 0})

	results, err := m.SearchSimilar(context.Background(), "r1", []float32{1, 0}, domain.Filters{}, 10)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "newer", results[0].SHA)
	assert.Equal(t, "older", results[1].SHA)
}

func TestSearchSimilarTopK(t *testing.T) {
	m := NewMemoryStore()
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	addEmbedded(t, m, "r1", "a", base, []float32{1, 0})
	addEmbedded(t, m, "r1", "b", base, []float32{1, 1})
	addEmbedded(t, m, "r1", "c", base, []float32{0, 1})

	results, err := m.SearchSimilar(context.Background(), "r1", []float32{1, 0}, domain.Filters{}, 2)

	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchSimilarEmptyCorpus(t *testing.T) {
	m := NewMemoryStore()

	results, err := m.SearchSimilar(context.Background(), "r1", []float32{1, 0}, domain.Filters{}, 5)

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchSimilarSkipsUnembeddedCommits(t *testing.T) {
	m := NewMemoryStore()
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	addEmbedded(t, m, "r1", "embedded", base, []float32{1, 0})
	_, err := m.UpsertCommit(context.Background(), &domain.Commit{
		RepoID: "r1", SHA: "pending", CommitDate: base,
	})
	require.NoError(t, err)

	results, err := m.SearchSimilar(context.Background(), "r1", []float32{1, 0}, domain.Filters{}, 10)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "embedded", results[0].SHA)
}

func TestSearchSimilarDateRangeFilter(t *testing.T) {
	m := NewMemoryStore()
	in := time.Date(2023, time.June, 1, 0, 0, 0, 0, time.UTC)
	out := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	addEmbedded(t, m, "r1", "inside", in, []float32{1, 0})
	addEmbedded(t, m, "r1", "outside", out, []float32{1, 0})

	filters := domain.Filters{DateRange: &domain.DateRange{
		Start: time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
	}}
	results, err := m.SearchSimilar(context.Background(), "r1", []float32{1, 0}, filters, 10)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "inside", results[0].SHA)
}

func TestSearchSimilarDateRangeEndIsExclusive(t *testing.T) {
	m := NewMemoryStore()
	boundary := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	addEmbedded(t, m, "r1", "boundary", boundary, []float32{1, 0})

	filters := domain.Filters{DateRange: &domain.DateRange{
		Start: time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   boundary,
	}}
	results, err := m.SearchSimilar(context.Background(), "r1", []float32{1, 0}, filters, 10)

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchSimilarAuthorFilter(t *testing.T) {
	m := NewMemoryStore()
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	addEmbedded(t, m, "r1", "bya", base, []float32{1, 0})
	bob, err := m.UpsertCommit(context.Background(), &domain.Commit{
		RepoID: "r1", SHA: "byb", AuthorName: "Bob", CommitDate: base,
	})
	require.NoError(t, err)
	require.NoError(t, m.SetEmbedding(context.Background(), bob.ID, []float32{1, 0}))

	results, err := m.SearchSimilar(context.Background(), "r1", []float32{1, 0}, domain.Filters{Author: "alice"}, 10)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "bya", results[0].SHA)
}

func TestListFilteredNewestFirstWithLimit(t *testing.T) {
	m := NewMemoryStore()
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	addEmbedded(t, m, "r1", "day1", base, []float32{1, 0})
	addEmbedded(t, m, "r1", "day2", base.AddDate(0, 0, 1), []float32{1, 0})
	addEmbedded(t, m, "r1", "day3", base.AddDate(0, 0, 2), []float32{1, 0})

	results, err := m.ListFiltered(context.Background(), "r1", domain.Filters{Limit: 2}, 5)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "day3", results[0].SHA)
	assert.Equal(t, "day2", results[1].SHA)
}

func TestListFilteredDateRange(t *testing.T) {
	m := NewMemoryStore()
	addEmbedded(t, m, "r1", "in2023", time.Date(2023, time.June, 1, 0, 0, 0, 0, time.UTC), []float32{1, 0})
	addEmbedded(t, m, "r1", "in2024", time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), []float32{1, 0})

	filters := domain.Filters{DateRange: &domain.DateRange{
		Start: time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
	}}
	results, err := m.ListFiltered(context.Background(), "r1", filters, 10)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "in2023", results[0].SHA)
}

func TestListFilteredSkipsUnembeddedCommits(t *testing.T) {
	m := NewMemoryStore()
	window := time.Date(2023, time.June, 1, 0, 0, 0, 0, time.UTC)
	addEmbedded(t, m, "r1", "embedded", window, []float32{1, 0})

	_, err := m.UpsertCommit(context.Background(), &domain.Commit{
		RepoID: "r1", SHA: "pending", CommitDate: window,
	})
	require.NoError(t, err)
	failed, err := m.UpsertCommit(context.Background(), &domain.Commit{
		RepoID: "r1", SHA: "failed", CommitDate: window,
	})
	require.NoError(t, err)
	require.NoError(t, m.SetCommitStatus(context.Background(), failed.ID, domain.CommitStatusFailed))

	results, err := m.ListFiltered(context.Background(), "r1", domain.Filters{DateRange: &domain.DateRange{
		Start: time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
	}}, 10)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "embedded", results[0].SHA)
}

func TestUpsertCommitSupersedes(t *testing.T) {
	m := NewMemoryStore()
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := addEmbedded(t, m, "r1", "abc1234", base, []float32{1, 0})
	require.NoError(t, m.SetSummary(context.Background(), c.ID, "old summary"))

	again, err := m.UpsertCommit(context.Background(), &domain.Commit{
		RepoID: "r1", SHA: "abc1234", Message: "amended", CommitDate: base,
	})

	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID, "same (repo, sha) keeps its identity")
	assert.Equal(t, domain.CommitStatusPending, again.Status)
	assert.Empty(t, again.AISummary)
	assert.Nil(t, again.Vector)
}

func TestCountByEmbedding(t *testing.T) {
	m := NewMemoryStore()
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	addEmbedded(t, m, "r1", "one", base, []float32{1, 0})
	_, err := m.UpsertCommit(context.Background(), &domain.Commit{RepoID: "r1", SHA: "two", CommitDate: base})
	require.NoError(t, err)

	total, embedded, err := m.CountByEmbedding(context.Background(), "r1")

	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, embedded)
}

func TestGetRepoNotFound(t *testing.T) {
	m := NewMemoryStore()

	_, err := m.GetRepo(context.Background(), "missing")

	assert.ErrorIs(t, err, port.ErrRepoNotFound)
}

func TestCreateRepoResetsExisting(t *testing.T) {
	m := NewMemoryStore()
	first, err := m.CreateRepo(context.Background(), &domain.Repository{
		UserID: "u1", FullName: "octo/demo", Owner: "octo", Name: "demo",
	})
	require.NoError(t, err)
	require.NoError(t, m.UpdateRepoStatus(context.Background(), first.ID, domain.RepoStatusComplete, 10, 10))

	second, err := m.CreateRepo(context.Background(), &domain.Repository{
		UserID: "u1", FullName: "octo/demo", Owner: "octo", Name: "demo",
	})

	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, domain.RepoStatusPending, second.AnalysisStatus)
	assert.Equal(t, 0, second.AnalyzedCommits)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}), "mismatched lengths")
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 0}), "zero vector")
}
