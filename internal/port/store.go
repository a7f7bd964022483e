package port

import (
	"context"

	"github.com/codeancestry/codeancestry/internal/domain"
)

// CommitStore is the capability interface the RAG pipeline reads from.
// Implementations: pgvector-backed Postgres for production, in-memory for
// tests and service-free development. Retrieval methods only ever see
// commits with status "embedded" (except ListFiltered, which serves purely
// temporal queries and needs no vectors).
type CommitStore interface {
	// UpsertCommit inserts a commit or supersedes the existing (repo, sha) row.
	UpsertCommit(ctx context.Context, c *domain.Commit) (*domain.Commit, error)

	// SetSummary records the AI summary and moves the commit to "summarized".
	SetSummary(ctx context.Context, commitID, summary string) error

	// SetEmbedding stores the vector and moves the commit to "embedded".
	// Re-embedding overwrites the stored vector; the write is idempotent.
	SetEmbedding(ctx context.Context, commitID string, vector []float32) error

	// SetCommitStatus updates a commit's processing status.
	SetCommitStatus(ctx context.Context, commitID, status string) error

	// ListByStatus returns a repository's commits in the given status,
	// oldest first, capped at limit.
	ListByStatus(ctx context.Context, repoID, status string, limit int) ([]domain.Commit, error)

	// SearchSimilar returns the top-k embedded commits by similarity to the
	// query vector, candidates narrowed by filters first. Ordering: similarity
	// descending, ties broken by newer commit date. Empty corpus yields an
	// empty slice and a nil error.
	SearchSimilar(ctx context.Context, repoID string, vector []float32, filters domain.Filters, k int) ([]domain.RetrievedCommit, error)

	// ListFiltered returns filtered commits newest first with zero similarity,
	// for purely temporal queries that skip ranking entirely.
	ListFiltered(ctx context.Context, repoID string, filters domain.Filters, limit int) ([]domain.RetrievedCommit, error)

	// CountByEmbedding returns total commit count and embedded commit count.
	CountByEmbedding(ctx context.Context, repoID string) (total, embedded int, err error)
}

// RepoStore persists connected repositories.
type RepoStore interface {
	// CreateRepo registers a repository, resetting analysis state if the
	// same (user, full_name) pair already exists.
	CreateRepo(ctx context.Context, r *domain.Repository) (*domain.Repository, error)

	// GetRepo returns a repository by ID, or ErrRepoNotFound.
	GetRepo(ctx context.Context, id string) (*domain.Repository, error)

	// ListRepos returns all repositories, most recently updated first.
	ListRepos(ctx context.Context) ([]domain.Repository, error)

	// UpdateRepoStatus updates status and progress counters; negative
	// counters leave stored values untouched.
	UpdateRepoStatus(ctx context.Context, id, status string, total, analyzed int) error
}

// AnswerCache stores finished answers for a short TTL. A nil-safe no-op
// implementation is valid: caching is an optimization, never a dependency.
type AnswerCache interface {
	GetAnswer(ctx context.Context, key string) (*domain.Answer, bool)
	SetAnswer(ctx context.Context, key string, a *domain.Answer)
}
