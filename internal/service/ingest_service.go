package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/codeancestry/codeancestry/internal/adapter/github"
	"github.com/codeancestry/codeancestry/internal/domain"
	"github.com/codeancestry/codeancestry/internal/port"
)

// Ingestion phases reported to progress callbacks.
const (
	PhaseFetching    = "fetching"
	PhaseSummarizing = "summarizing"
	PhaseEmbedding   = "embedding"
)

// IngestProgress receives phase updates while a repository is processed.
type IngestProgress func(phase string, done, total int)

// IngestOptions tune commit ingestion and enrichment.
type IngestOptions struct {
	MaxCommits       int
	EmbedBatchSize   int
	EmbedConcurrency int
	SummariesEnabled bool
	UpstreamTimeout  time.Duration
}

// IngestService imports a repository's commit history from GitHub and
// enriches it: an AI summary per commit, then an embedding per commit.
// Enrichment runs in bounded-concurrency batches; a failure on one commit
// never rolls back work already done for others — each commit's writes are
// independent and idempotent.
type IngestService struct {
	repos   port.RepoStore
	commits port.CommitStore
	ai      port.AIProvider
	gh      *github.Client
	opts    IngestOptions
}

// NewIngestService creates a new ingest service.
func NewIngestService(repos port.RepoStore, commits port.CommitStore, ai port.AIProvider, gh *github.Client, opts IngestOptions) *IngestService {
	if opts.MaxCommits <= 0 {
		opts.MaxCommits = 200
	}
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = 16
	}
	if opts.EmbedConcurrency <= 0 {
		opts.EmbedConcurrency = 4
	}
	if opts.UpstreamTimeout <= 0 {
		opts.UpstreamTimeout = 30 * time.Second
	}
	return &IngestService{repos: repos, commits: commits, ai: ai, gh: gh, opts: opts}
}

// Ingest runs the full pipeline for one repository. progress may be nil.
func (s *IngestService) Ingest(ctx context.Context, repo *domain.Repository, progress IngestProgress) error {
	if progress == nil {
		progress = func(string, int, int) {}
	}

	if err := s.repos.UpdateRepoStatus(ctx, repo.ID, domain.RepoStatusIngesting, -1, -1); err != nil {
		return fmt.Errorf("mark ingesting: %w", err)
	}

	total, err := s.fetchCommits(ctx, repo, progress)
	if err != nil {
		_ = s.repos.UpdateRepoStatus(ctx, repo.ID, domain.RepoStatusError, -1, -1)
		return err
	}

	if err := s.repos.UpdateRepoStatus(ctx, repo.ID, domain.RepoStatusEmbedding, total, 0); err != nil {
		return fmt.Errorf("mark embedding: %w", err)
	}

	if s.opts.SummariesEnabled {
		s.summarizeCommits(ctx, repo.ID, progress)
	}
	embedded := s.embedCommits(ctx, repo.ID, progress)

	status := domain.RepoStatusComplete
	if total > 0 && embedded == 0 {
		status = domain.RepoStatusError
	}
	if err := s.repos.UpdateRepoStatus(ctx, repo.ID, status, total, embedded); err != nil {
		return fmt.Errorf("mark complete: %w", err)
	}

	slog.Info("ingestion finished", "repo", repo.FullName, "total", total, "embedded", embedded)
	return nil
}

// fetchCommits pages the GitHub commit list and upserts one record per
// commit, with file lists and stats from the detail endpoint when available.
func (s *IngestService) fetchCommits(ctx context.Context, repo *domain.Repository, progress IngestProgress) (int, error) {
	summaries, err := s.gh.ListCommits(ctx, repo.Owner, repo.Name, s.opts.MaxCommits)
	if err != nil {
		return 0, fmt.Errorf("list commits: %w", err)
	}

	total := len(summaries)
	progress(PhaseFetching, 0, total)

	for i, cs := range summaries {
		commit := domain.Commit{
			RepoID:      repo.ID,
			SHA:         cs.SHA,
			Message:     cs.Message,
			AuthorName:  cs.AuthorName,
			AuthorEmail: cs.AuthorEmail,
			CommitDate:  cs.Date,
			HTMLURL:     cs.HTMLURL,
		}

		// The detail endpoint adds files and stats; losing it only costs
		// context richness, so the commit is stored either way.
		if detail, err := s.gh.GetCommit(ctx, repo.Owner, repo.Name, cs.SHA); err != nil {
			slog.Warn("commit detail fetch failed", "sha", cs.SHA, "error", err)
		} else {
			commit.FilesChanged = detail.Files
			commit.Additions = detail.Additions
			commit.Deletions = detail.Deletions
		}

		if _, err := s.commits.UpsertCommit(ctx, &commit); err != nil {
			return 0, fmt.Errorf("store commit %s: %w", cs.SHA, err)
		}
		progress(PhaseFetching, i+1, total)
	}

	return total, nil
}

const summarySystemPrompt = `You are a senior software engineer analyzing a git commit.
Generate a concise technical summary of roughly 50 words explaining WHAT changed and WHY.
Focus on the code change, name key files when relevant, use technical language.
No markdown formatting. Return ONLY the summary.`

// summarizeCommits generates an AI summary for every pending commit, with
// bounded concurrency. Failures leave the commit pending; embedding then
// falls back to the raw message.
func (s *IngestService) summarizeCommits(ctx context.Context, repoID string, progress IngestProgress) {
	pending, err := s.commits.ListByStatus(ctx, repoID, domain.CommitStatusPending, s.opts.MaxCommits)
	if err != nil {
		slog.Error("list pending commits failed", "repo_id", repoID, "error", err)
		return
	}

	total := len(pending)
	progress(PhaseSummarizing, 0, total)

	var (
		wg   sync.WaitGroup
		sem  = make(chan struct{}, s.opts.EmbedConcurrency)
		mu   sync.Mutex
		done int
	)

	for _, c := range pending {
		wg.Add(1)
		sem <- struct{}{}
		go func(c domain.Commit) {
			defer wg.Done()
			defer func() { <-sem }()

			callCtx, cancel := context.WithTimeout(ctx, s.opts.UpstreamTimeout)
			defer cancel()
			summary, err := s.ai.Complete(callCtx, "", summarySystemPrompt, summaryUserPrompt(&c))
			if err != nil {
				slog.Warn("commit summary failed", "sha", c.SHA, "error", err)
			} else if err := s.commits.SetSummary(ctx, c.ID, strings.TrimSpace(summary)); err != nil {
				slog.Warn("store summary failed", "sha", c.SHA, "error", err)
			}

			mu.Lock()
			done++
			progress(PhaseSummarizing, done, total)
			mu.Unlock()
		}(c)
	}
	wg.Wait()
}

func summaryUserPrompt(c *domain.Commit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Commit message: %s\n", c.Message)
	if len(c.FilesChanged) > 0 {
		files := c.FilesChanged
		if len(files) > maxFilesPerBlock {
			files = files[:maxFilesPerBlock]
		}
		fmt.Fprintf(&b, "Files changed (%d): %s\n", len(c.FilesChanged), strings.Join(files, ", "))
	}
	fmt.Fprintf(&b, "Lines: +%d -%d\n", c.Additions, c.Deletions)
	return b.String()
}

// embedCommits embeds every summarized or still-pending commit in batches.
// A failed batch is logged and skipped; commits keep their current status
// and remain invisible to retrieval until a later run embeds them.
func (s *IngestService) embedCommits(ctx context.Context, repoID string, progress IngestProgress) int {
	var candidates []domain.Commit
	for _, status := range []string{domain.CommitStatusSummarized, domain.CommitStatusPending} {
		batch, err := s.commits.ListByStatus(ctx, repoID, status, s.opts.MaxCommits)
		if err != nil {
			slog.Error("list commits for embedding failed", "repo_id", repoID, "status", status, "error", err)
			continue
		}
		candidates = append(candidates, batch...)
	}

	total := len(candidates)
	progress(PhaseEmbedding, 0, total)

	var (
		wg       sync.WaitGroup
		sem      = make(chan struct{}, s.opts.EmbedConcurrency)
		mu       sync.Mutex
		done     int
		embedded int
	)

	for start := 0; start < total; start += s.opts.EmbedBatchSize {
		end := start + s.opts.EmbedBatchSize
		if end > total {
			end = total
		}
		batch := candidates[start:end]

		wg.Add(1)
		sem <- struct{}{}
		go func(batch []domain.Commit) {
			defer wg.Done()
			defer func() { <-sem }()

			texts := make([]string, len(batch))
			for i := range batch {
				texts[i] = batch[i].EmbeddingText()
			}

			callCtx, cancel := context.WithTimeout(ctx, s.opts.UpstreamTimeout)
			defer cancel()
			vectors, err := s.ai.EmbedBatch(callCtx, texts)
			if err != nil {
				slog.Warn("embed batch failed", "repo_id", repoID, "size", len(batch), "error", err)
				mu.Lock()
				done += len(batch)
				progress(PhaseEmbedding, done, total)
				mu.Unlock()
				return
			}

			for i := range batch {
				if i >= len(vectors) || len(vectors[i]) == 0 {
					_ = s.commits.SetCommitStatus(ctx, batch[i].ID, domain.CommitStatusFailed)
					continue
				}
				if err := s.commits.SetEmbedding(ctx, batch[i].ID, vectors[i]); err != nil {
					slog.Warn("store embedding failed", "sha", batch[i].SHA, "error", err)
					continue
				}
				mu.Lock()
				embedded++
				mu.Unlock()
			}

			mu.Lock()
			done += len(batch)
			progress(PhaseEmbedding, done, total)
			mu.Unlock()
		}(batch)
	}
	wg.Wait()

	return embedded
}
