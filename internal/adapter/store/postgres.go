package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/codeancestry/codeancestry/internal/domain"
	"github.com/codeancestry/codeancestry/internal/port"
	"github.com/lib/pq"
)

// PostgresStore handles all relational database operations.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection and returns a store instance.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Migrate creates the schema if it does not exist. The embedding column
// dimension must match the configured embedding model.
func (s *PostgresStore) Migrate(ctx context.Context, embeddingDim int) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS repositories (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id TEXT NOT NULL DEFAULT '',
			owner TEXT NOT NULL,
			name TEXT NOT NULL,
			full_name TEXT NOT NULL,
			html_url TEXT NOT NULL DEFAULT '',
			default_branch TEXT NOT NULL DEFAULT 'main',
			analysis_status TEXT NOT NULL DEFAULT 'pending',
			total_commits INT NOT NULL DEFAULT 0,
			analyzed_commits INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, full_name)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS commits (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			repo_id UUID NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
			sha TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			author_name TEXT NOT NULL DEFAULT '',
			author_email TEXT NOT NULL DEFAULT '',
			commit_date TIMESTAMPTZ NOT NULL,
			html_url TEXT NOT NULL DEFAULT '',
			files_changed TEXT[] NOT NULL DEFAULT '{}',
			additions INT NOT NULL DEFAULT 0,
			deletions INT NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			ai_summary TEXT,
			vector vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (repo_id, sha)
		)`, embeddingDim),
		`CREATE INDEX IF NOT EXISTS idx_commits_repo_status ON commits (repo_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_commits_repo_date ON commits (repo_id, commit_date DESC)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id TEXT NOT NULL DEFAULT 'anonymous',
			action TEXT NOT NULL,
			resource TEXT NOT NULL,
			resource_id TEXT NOT NULL DEFAULT '',
			details JSONB NOT NULL DEFAULT '{}',
			ip TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// --- Repositories ---

const repoColumns = `id, user_id, owner, name, full_name, html_url, default_branch,
	analysis_status, total_commits, analyzed_commits, created_at, updated_at`

func scanRepo(row interface{ Scan(...any) error }) (*domain.Repository, error) {
	var r domain.Repository
	err := row.Scan(
		&r.ID, &r.UserID, &r.Owner, &r.Name, &r.FullName, &r.HTMLURL, &r.DefaultBranch,
		&r.AnalysisStatus, &r.TotalCommits, &r.AnalyzedCommits, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRepo inserts a repository record, or resets the analysis state of an
// existing (user, full_name) pair so it can be re-analyzed.
func (s *PostgresStore) CreateRepo(ctx context.Context, r *domain.Repository) (*domain.Repository, error) {
	query := `INSERT INTO repositories (user_id, owner, name, full_name, html_url, default_branch, analysis_status)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          ON CONFLICT (user_id, full_name) DO UPDATE SET
	              analysis_status = 'pending',
	              analyzed_commits = 0,
	              updated_at = NOW()
	          RETURNING ` + repoColumns

	repo, err := scanRepo(s.db.QueryRowContext(ctx, query,
		r.UserID, r.Owner, r.Name, r.FullName, r.HTMLURL, r.DefaultBranch, domain.RepoStatusPending,
	))
	if err != nil {
		return nil, fmt.Errorf("create repo: %w", err)
	}
	return repo, nil
}

// GetRepo returns a repository by its ID.
func (s *PostgresStore) GetRepo(ctx context.Context, id string) (*domain.Repository, error) {
	repo, err := scanRepo(s.db.QueryRowContext(ctx,
		`SELECT `+repoColumns+` FROM repositories WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrRepoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get repo: %w", err)
	}
	return repo, nil
}

// ListRepos returns all repositories, most recently updated first.
func (s *PostgresStore) ListRepos(ctx context.Context) ([]domain.Repository, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+repoColumns+` FROM repositories ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list repos: %w", err)
	}
	defer rows.Close()

	var repos []domain.Repository
	for rows.Next() {
		r, err := scanRepo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repo: %w", err)
		}
		repos = append(repos, *r)
	}
	return repos, rows.Err()
}

// UpdateRepoStatus updates the analysis status and progress counters.
// Negative counters leave the stored values untouched.
func (s *PostgresStore) UpdateRepoStatus(ctx context.Context, id, status string, total, analyzed int) error {
	query := `UPDATE repositories
	          SET analysis_status = $1,
	              total_commits = CASE WHEN $2 >= 0 THEN $2 ELSE total_commits END,
	              analyzed_commits = CASE WHEN $3 >= 0 THEN $3 ELSE analyzed_commits END,
	              updated_at = NOW()
	          WHERE id = $4`
	_, err := s.db.ExecContext(ctx, query, status, total, analyzed, id)
	if err != nil {
		return fmt.Errorf("update repo status: %w", err)
	}
	return nil
}

// --- Commits ---

const commitColumns = `id, repo_id, sha, message, author_name, author_email, commit_date,
	html_url, files_changed, additions, deletions, status, COALESCE(ai_summary, ''), created_at`

func scanCommit(row interface{ Scan(...any) error }) (*domain.Commit, error) {
	var c domain.Commit
	var files pq.StringArray
	err := row.Scan(
		&c.ID, &c.RepoID, &c.SHA, &c.Message, &c.AuthorName, &c.AuthorEmail, &c.CommitDate,
		&c.HTMLURL, &files, &c.Additions, &c.Deletions, &c.Status, &c.AISummary, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.FilesChanged = files
	return &c, nil
}

// UpsertCommit inserts a commit record. Re-ingesting the same (repo, sha)
// supersedes the row: metadata is overwritten and enrichment state is reset.
func (s *PostgresStore) UpsertCommit(ctx context.Context, c *domain.Commit) (*domain.Commit, error) {
	query := `INSERT INTO commits
	              (repo_id, sha, message, author_name, author_email, commit_date, html_url, files_changed, additions, deletions, status)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	          ON CONFLICT (repo_id, sha) DO UPDATE SET
	              message = EXCLUDED.message,
	              author_name = EXCLUDED.author_name,
	              author_email = EXCLUDED.author_email,
	              commit_date = EXCLUDED.commit_date,
	              html_url = EXCLUDED.html_url,
	              files_changed = EXCLUDED.files_changed,
	              additions = EXCLUDED.additions,
	              deletions = EXCLUDED.deletions,
	              status = 'pending',
	              ai_summary = NULL,
	              vector = NULL
	          RETURNING ` + commitColumns

	commit, err := scanCommit(s.db.QueryRowContext(ctx, query,
		c.RepoID, c.SHA, c.Message, c.AuthorName, c.AuthorEmail, c.CommitDate,
		c.HTMLURL, pq.Array(c.FilesChanged), c.Additions, c.Deletions, domain.CommitStatusPending,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert commit: %w", err)
	}
	return commit, nil
}

// SetSummary records the AI summary and moves the commit to "summarized".
func (s *PostgresStore) SetSummary(ctx context.Context, commitID, summary string) error {
	query := `UPDATE commits SET ai_summary = $1, status = $2 WHERE id = $3`
	res, err := s.db.ExecContext(ctx, query, summary, domain.CommitStatusSummarized, commitID)
	if err != nil {
		return fmt.Errorf("set summary: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return port.ErrCommitNotFound
	}
	return nil
}

// SetCommitStatus updates a commit's processing status.
func (s *PostgresStore) SetCommitStatus(ctx context.Context, commitID, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE commits SET status = $1 WHERE id = $2`, status, commitID)
	if err != nil {
		return fmt.Errorf("set commit status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return port.ErrCommitNotFound
	}
	return nil
}

// ListByStatus returns a repository's commits in the given status, oldest first.
func (s *PostgresStore) ListByStatus(ctx context.Context, repoID, status string, limit int) ([]domain.Commit, error) {
	query := `SELECT ` + commitColumns + `
	          FROM commits WHERE repo_id = $1 AND status = $2
	          ORDER BY commit_date ASC LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, repoID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list commits by status: %w", err)
	}
	defer rows.Close()

	var commits []domain.Commit
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		commits = append(commits, *c)
	}
	return commits, rows.Err()
}

// CountByEmbedding returns the total and embedded commit counts for a repository.
func (s *PostgresStore) CountByEmbedding(ctx context.Context, repoID string) (int, int, error) {
	query := `SELECT COUNT(*), COUNT(*) FILTER (WHERE status = $2) FROM commits WHERE repo_id = $1`
	var total, embedded int
	if err := s.db.QueryRowContext(ctx, query, repoID, domain.CommitStatusEmbedded).Scan(&total, &embedded); err != nil {
		return 0, 0, fmt.Errorf("count embeddings: %w", err)
	}
	return total, embedded, nil
}

// --- Audit logs ---

// WriteAudit implements middleware.AuditWriter.
func (s *PostgresStore) WriteAudit(userID, action, resource, resourceID, details, ip, userAgent string) error {
	query := `INSERT INTO audit_logs (user_id, action, resource, resource_id, details, ip, user_agent)
	          VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)`
	_, err := s.db.ExecContext(context.Background(), query,
		userID, action, resource, resourceID, details, ip, userAgent,
	)
	return err
}
