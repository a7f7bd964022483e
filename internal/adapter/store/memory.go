package store

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/codeancestry/codeancestry/internal/domain"
	"github.com/codeancestry/codeancestry/internal/port"
	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of the commit and repository
// stores. It backs tests and service-free development mode; similarity is
// computed in-process with plain cosine over the stored vectors.
type MemoryStore struct {
	mu      sync.RWMutex
	repos   map[string]domain.Repository
	commits map[string]*domain.Commit
	bySHA   map[string]string // repoID + "\x00" + sha -> commit ID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		repos:   make(map[string]domain.Repository),
		commits: make(map[string]*domain.Commit),
		bySHA:   make(map[string]string),
	}
}

// --- Repositories ---

// CreateRepo registers a repository, resetting analysis state if the same
// (user, full_name) pair already exists.
func (m *MemoryStore) CreateRepo(ctx context.Context, r *domain.Repository) (*domain.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, existing := range m.repos {
		if existing.UserID == r.UserID && existing.FullName == r.FullName {
			existing.AnalysisStatus = domain.RepoStatusPending
			existing.AnalyzedCommits = 0
			existing.UpdatedAt = time.Now()
			m.repos[id] = existing
			out := existing
			return &out, nil
		}
	}

	repo := *r
	repo.ID = uuid.New().String()
	repo.AnalysisStatus = domain.RepoStatusPending
	repo.CreatedAt = time.Now()
	repo.UpdatedAt = repo.CreatedAt
	m.repos[repo.ID] = repo
	out := repo
	return &out, nil
}

// GetRepo returns a repository by ID.
func (m *MemoryStore) GetRepo(ctx context.Context, id string) (*domain.Repository, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	repo, ok := m.repos[id]
	if !ok {
		return nil, port.ErrRepoNotFound
	}
	out := repo
	return &out, nil
}

// ListRepos returns all repositories, most recently updated first.
func (m *MemoryStore) ListRepos(ctx context.Context) ([]domain.Repository, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	repos := make([]domain.Repository, 0, len(m.repos))
	for _, r := range m.repos {
		repos = append(repos, r)
	}
	sort.Slice(repos, func(i, j int) bool { return repos[i].UpdatedAt.After(repos[j].UpdatedAt) })
	return repos, nil
}

// UpdateRepoStatus updates status and progress counters; negative counters
// leave stored values untouched.
func (m *MemoryStore) UpdateRepoStatus(ctx context.Context, id, status string, total, analyzed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	repo, ok := m.repos[id]
	if !ok {
		return port.ErrRepoNotFound
	}
	repo.AnalysisStatus = status
	if total >= 0 {
		repo.TotalCommits = total
	}
	if analyzed >= 0 {
		repo.AnalyzedCommits = analyzed
	}
	repo.UpdatedAt = time.Now()
	m.repos[id] = repo
	return nil
}

// --- Commits ---

func shaKey(repoID, sha string) string { return repoID + "\x00" + sha }

// UpsertCommit inserts a commit or supersedes the existing (repo, sha) row.
func (m *MemoryStore) UpsertCommit(ctx context.Context, c *domain.Commit) (*domain.Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *c
	stored.Status = domain.CommitStatusPending
	stored.AISummary = ""
	stored.Vector = nil

	if id, ok := m.bySHA[shaKey(c.RepoID, c.SHA)]; ok {
		stored.ID = id
		stored.CreatedAt = m.commits[id].CreatedAt
	} else {
		stored.ID = uuid.New().String()
		stored.CreatedAt = time.Now()
		m.bySHA[shaKey(c.RepoID, c.SHA)] = stored.ID
	}
	m.commits[stored.ID] = &stored
	out := stored
	return &out, nil
}

// SetSummary records the AI summary and moves the commit to "summarized".
func (m *MemoryStore) SetSummary(ctx context.Context, commitID, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.commits[commitID]
	if !ok {
		return port.ErrCommitNotFound
	}
	c.AISummary = summary
	c.Status = domain.CommitStatusSummarized
	return nil
}

// SetEmbedding stores the vector and moves the commit to "embedded".
func (m *MemoryStore) SetEmbedding(ctx context.Context, commitID string, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.commits[commitID]
	if !ok {
		return port.ErrCommitNotFound
	}
	c.Vector = append([]float32(nil), vector...)
	c.Status = domain.CommitStatusEmbedded
	return nil
}

// SetCommitStatus updates a commit's processing status.
func (m *MemoryStore) SetCommitStatus(ctx context.Context, commitID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.commits[commitID]
	if !ok {
		return port.ErrCommitNotFound
	}
	c.Status = status
	return nil
}

// ListByStatus returns a repository's commits in the given status, oldest first.
func (m *MemoryStore) ListByStatus(ctx context.Context, repoID, status string, limit int) ([]domain.Commit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Commit
	for _, c := range m.commits {
		if c.RepoID == repoID && c.Status == status {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CommitDate.Before(out[j].CommitDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SearchSimilar computes cosine similarity against every embedded commit
// passing the filters and returns the top k. Ordering: similarity descending,
// newer commit first on ties.
func (m *MemoryStore) SearchSimilar(ctx context.Context, repoID string, vector []float32, filters domain.Filters, k int) ([]domain.RetrievedCommit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []domain.RetrievedCommit
	for _, c := range m.commits {
		if c.RepoID != repoID || c.Status != domain.CommitStatusEmbedded {
			continue
		}
		if !matchesFilters(c, filters) {
			continue
		}
		results = append(results, domain.RetrievedCommit{
			Commit:     *c,
			Similarity: cosineSimilarity(vector, c.Vector),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].CommitDate.After(results[j].CommitDate)
	})

	if len(results) > k {
		results = results[:k]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}

// ListFiltered returns filtered embedded commits newest first with zero
// similarity. Commits that are not embedded stay invisible here, same as in
// SearchSimilar.
func (m *MemoryStore) ListFiltered(ctx context.Context, repoID string, filters domain.Filters, limit int) ([]domain.RetrievedCommit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if filters.Limit > 0 && filters.Limit < limit {
		limit = filters.Limit
	}

	var results []domain.RetrievedCommit
	for _, c := range m.commits {
		if c.RepoID != repoID || c.Status != domain.CommitStatusEmbedded || !matchesFilters(c, filters) {
			continue
		}
		results = append(results, domain.RetrievedCommit{Commit: *c})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CommitDate.After(results[j].CommitDate) })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}

// CountByEmbedding returns total and embedded commit counts for a repository.
func (m *MemoryStore) CountByEmbedding(ctx context.Context, repoID string) (int, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total, embedded int
	for _, c := range m.commits {
		if c.RepoID != repoID {
			continue
		}
		total++
		if c.Status == domain.CommitStatusEmbedded {
			embedded++
		}
	}
	return total, embedded, nil
}

// WriteAudit implements middleware.AuditWriter as a no-op for the memory backend.
func (m *MemoryStore) WriteAudit(userID, action, resource, resourceID, details, ip, userAgent string) error {
	return nil
}

func matchesFilters(c *domain.Commit, f domain.Filters) bool {
	if f.DateRange != nil {
		if c.CommitDate.Before(f.DateRange.Start) || !c.CommitDate.Before(f.DateRange.End) {
			return false
		}
	}
	if f.Author != "" {
		needle := strings.ToLower(f.Author)
		if !strings.Contains(strings.ToLower(c.AuthorName), needle) &&
			!strings.Contains(strings.ToLower(c.AuthorEmail), needle) {
			return false
		}
	}
	return true
}

// cosineSimilarity is the dot product over the norms of both vectors.
// Mismatched lengths or zero vectors yield 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
