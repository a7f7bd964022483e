package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/codeancestry/codeancestry/internal/domain"
	"github.com/codeancestry/codeancestry/internal/port"
	"github.com/lib/pq"
)

// VectorStore implements port.CommitStore on top of PostgresStore using
// pgvector for similarity search. Relational operations delegate to the
// wrapped store.
type VectorStore struct {
	*PostgresStore
	dimension int
}

// NewVectorStore creates a vector store backed by the given Postgres store.
func NewVectorStore(store *PostgresStore, dimension int) *VectorStore {
	return &VectorStore{PostgresStore: store, dimension: dimension}
}

// SetEmbedding stores the vector and moves the commit to "embedded".
// Overwrites any previously stored vector.
func (v *VectorStore) SetEmbedding(ctx context.Context, commitID string, vector []float32) error {
	if len(vector) != v.dimension {
		return fmt.Errorf("set embedding: got %d dimensions, want %d", len(vector), v.dimension)
	}

	query := `UPDATE commits SET vector = $1::vector, status = $2 WHERE id = $3`
	res, err := v.db.ExecContext(ctx, query, vectorToString(vector), domain.CommitStatusEmbedded, commitID)
	if err != nil {
		return fmt.Errorf("set embedding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return port.ErrCommitNotFound
	}
	return nil
}

// SearchSimilar performs a cosine similarity search over embedded commits,
// candidates narrowed by the filters first. Ordering: similarity descending,
// newer commit first on ties (pgvector's <=> distance orders ascending, so
// equal distances fall through to the commit_date sort key).
func (v *VectorStore) SearchSimilar(ctx context.Context, repoID string, vector []float32, filters domain.Filters, k int) ([]domain.RetrievedCommit, error) {
	args := []interface{}{vectorToString(vector), repoID, domain.CommitStatusEmbedded}
	query := `SELECT ` + commitColumns + `,
	                 1 - (vector <=> $1::vector) AS similarity
	          FROM commits
	          WHERE repo_id = $2 AND status = $3`

	query, args = appendFilterClauses(query, args, filters)
	args = append(args, k)
	query += fmt.Sprintf(" ORDER BY vector <=> $1::vector ASC, commit_date DESC LIMIT $%d", len(args))

	rows, err := v.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search similar: %w", err)
	}
	defer rows.Close()

	var results []domain.RetrievedCommit
	for rows.Next() {
		var rc domain.RetrievedCommit
		var files pq.StringArray
		if err := rows.Scan(
			&rc.ID, &rc.RepoID, &rc.SHA, &rc.Message, &rc.AuthorName, &rc.AuthorEmail, &rc.CommitDate,
			&rc.HTMLURL, &files, &rc.Additions, &rc.Deletions, &rc.Status, &rc.AISummary, &rc.CreatedAt,
			&rc.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scan similar: %w", err)
		}
		rc.FilesChanged = files
		rc.Rank = len(results) + 1
		results = append(results, rc)
	}
	return results, rows.Err()
}

// ListFiltered returns filtered embedded commits newest first with zero
// similarity, serving purely temporal queries that involve no ranking.
// Same status restriction as SearchSimilar: unembedded commits never
// surface as sources.
func (v *VectorStore) ListFiltered(ctx context.Context, repoID string, filters domain.Filters, limit int) ([]domain.RetrievedCommit, error) {
	if filters.Limit > 0 && filters.Limit < limit {
		limit = filters.Limit
	}

	args := []interface{}{repoID, domain.CommitStatusEmbedded}
	query := `SELECT ` + commitColumns + ` FROM commits WHERE repo_id = $1 AND status = $2`

	query, args = appendFilterClauses(query, args, filters)
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY commit_date DESC LIMIT $%d", len(args))

	rows, err := v.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list filtered: %w", err)
	}
	defer rows.Close()

	var results []domain.RetrievedCommit
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan filtered: %w", err)
		}
		results = append(results, domain.RetrievedCommit{Commit: *c, Rank: len(results) + 1})
	}
	return results, rows.Err()
}

// appendFilterClauses adds date-range and author predicates to a WHERE clause.
func appendFilterClauses(query string, args []interface{}, filters domain.Filters) (string, []interface{}) {
	if filters.DateRange != nil {
		args = append(args, filters.DateRange.Start)
		query += fmt.Sprintf(" AND commit_date >= $%d", len(args))
		args = append(args, filters.DateRange.End)
		query += fmt.Sprintf(" AND commit_date < $%d", len(args))
	}
	if filters.Author != "" {
		args = append(args, "%"+filters.Author+"%")
		query += fmt.Sprintf(" AND (author_name ILIKE $%d OR author_email ILIKE $%d)", len(args), len(args))
	}
	return query, args
}

// vectorToString converts a float32 slice to pgvector string format: [0.1,0.2,0.3].
func vectorToString(v []float32) string {
	parts := make([]string, len(v))
	for i, val := range v {
		parts[i] = fmt.Sprintf("%g", val)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
