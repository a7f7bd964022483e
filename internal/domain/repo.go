package domain

import "time"

// Repository represents a connected GitHub repository.
type Repository struct {
	ID              string    `json:"id"               db:"id"`
	UserID          string    `json:"user_id"          db:"user_id"`
	Owner           string    `json:"owner"            db:"owner"`
	Name            string    `json:"name"             db:"name"`
	FullName        string    `json:"full_name"        db:"full_name"`
	HTMLURL         string    `json:"html_url"         db:"html_url"`
	DefaultBranch   string    `json:"default_branch"   db:"default_branch"`
	AnalysisStatus  string    `json:"analysis_status"  db:"analysis_status"`
	TotalCommits    int       `json:"total_commits"    db:"total_commits"`
	AnalyzedCommits int       `json:"analyzed_commits" db:"analyzed_commits"`
	CreatedAt       time.Time `json:"created_at"       db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"       db:"updated_at"`
}

// Repository analysis status constants.
const (
	RepoStatusPending   = "pending"
	RepoStatusIngesting = "ingesting"
	RepoStatusEmbedding = "embedding"
	RepoStatusComplete  = "complete"
	RepoStatusError     = "error"
)

// EmbeddingStatus summarizes how far along a repository's enrichment is.
type EmbeddingStatus struct {
	Repository         string  `json:"repository"`
	TotalCommits       int     `json:"total_commits"`
	EmbeddedCommits    int     `json:"commits_with_embeddings"`
	PendingCommits     int     `json:"commits_without_embeddings"`
	PercentageComplete float64 `json:"percentage_complete"`
}
