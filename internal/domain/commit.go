package domain

import (
	"fmt"
	"strings"
	"time"
)

// Commit processing status constants.
const (
	CommitStatusPending    = "pending"    // ingested, not yet enriched
	CommitStatusSummarized = "summarized" // AI summary generated, no embedding yet
	CommitStatusEmbedded   = "embedded"   // vector stored, eligible for retrieval
	CommitStatusFailed     = "failed"     // enrichment failed, excluded from retrieval
)

// Commit is a single imported commit record. (RepoID, SHA) is unique;
// re-ingesting the same SHA supersedes the existing row.
type Commit struct {
	ID           string    `json:"id"            db:"id"`
	RepoID       string    `json:"repo_id"       db:"repo_id"`
	SHA          string    `json:"sha"           db:"sha"`
	Message      string    `json:"message"       db:"message"`
	AuthorName   string    `json:"author_name"   db:"author_name"`
	AuthorEmail  string    `json:"author_email"  db:"author_email"`
	CommitDate   time.Time `json:"commit_date"   db:"commit_date"`
	HTMLURL      string    `json:"html_url"      db:"html_url"`
	FilesChanged []string  `json:"files_changed" db:"files_changed"`
	Additions    int       `json:"additions"     db:"additions"`
	Deletions    int       `json:"deletions"     db:"deletions"`
	Status       string    `json:"status"        db:"status"`
	AISummary    string    `json:"ai_summary"    db:"ai_summary"`
	Vector       []float32 `json:"-"             db:"vector"`
	CreatedAt    time.Time `json:"created_at"    db:"created_at"`
}

// ShortSHA returns the abbreviated commit hash used in context blocks and citations.
func (c *Commit) ShortSHA() string {
	if len(c.SHA) > 7 {
		return c.SHA[:7]
	}
	return c.SHA
}

// EmbeddingText builds the text that gets embedded for this commit:
// the AI summary when available (it describes the actual code change),
// otherwise the raw message, plus the file list and change counts.
func (c *Commit) EmbeddingText() string {
	var b strings.Builder
	if c.AISummary != "" {
		b.WriteString(c.AISummary)
	} else {
		b.WriteString(c.Message)
	}
	if len(c.FilesChanged) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(c.FilesChanged, " "))
	}
	fmt.Fprintf(&b, " additions: %d deletions: %d", c.Additions, c.Deletions)
	return b.String()
}

// RetrievedCommit is a commit returned by similarity search, with its score
// and 1-based rank. Similarity is cosine-based: ordering is what matters,
// not the absolute value.
type RetrievedCommit struct {
	Commit
	Similarity float64 `json:"similarity"`
	Rank       int     `json:"rank"`
}
