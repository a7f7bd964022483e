package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is a minimal GitHub REST v3 client covering what ingestion needs:
// paged commit listing and per-commit detail (file lists and line stats).
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a GitHub API client. An empty token works for public
// repositories at the anonymous rate limit.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// CommitSummary is one entry from the commit list endpoint.
type CommitSummary struct {
	SHA         string
	Message     string
	AuthorName  string
	AuthorEmail string
	Date        time.Time
	HTMLURL     string
}

// CommitDetail adds the changed files and line stats from the single-commit endpoint.
type CommitDetail struct {
	CommitSummary
	Files     []string
	Additions int
	Deletions int
}

type listCommitItem struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
	Commit  struct {
		Message string `json:"message"`
		Author  struct {
			Name  string    `json:"name"`
			Email string    `json:"email"`
			Date  time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

// ListCommits pages through /repos/{owner}/{repo}/commits, newest first,
// returning at most maxCommits entries.
func (c *Client) ListCommits(ctx context.Context, owner, repo string, maxCommits int) ([]CommitSummary, error) {
	var out []CommitSummary

	for page := 1; len(out) < maxCommits; page++ {
		perPage := 100
		if remaining := maxCommits - len(out); remaining < perPage {
			perPage = remaining
		}

		path := fmt.Sprintf("/repos/%s/%s/commits?per_page=%d&page=%d",
			url.PathEscape(owner), url.PathEscape(repo), perPage, page)

		var items []listCommitItem
		if err := c.get(ctx, path, &items); err != nil {
			return nil, fmt.Errorf("list commits page %d: %w", page, err)
		}
		if len(items) == 0 {
			break
		}

		for _, it := range items {
			out = append(out, CommitSummary{
				SHA:         it.SHA,
				Message:     it.Commit.Message,
				AuthorName:  it.Commit.Author.Name,
				AuthorEmail: it.Commit.Author.Email,
				Date:        it.Commit.Author.Date,
				HTMLURL:     it.HTMLURL,
			})
		}

		if len(items) < perPage {
			break
		}
	}

	return out, nil
}

// GetCommit fetches a single commit's detail, including changed files and stats.
func (c *Client) GetCommit(ctx context.Context, owner, repo, sha string) (*CommitDetail, error) {
	path := fmt.Sprintf("/repos/%s/%s/commits/%s",
		url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(sha))

	var item struct {
		listCommitItem
		Stats struct {
			Additions int `json:"additions"`
			Deletions int `json:"deletions"`
		} `json:"stats"`
		Files []struct {
			Filename string `json:"filename"`
		} `json:"files"`
	}
	if err := c.get(ctx, path, &item); err != nil {
		return nil, fmt.Errorf("get commit %s: %w", sha, err)
	}

	files := make([]string, 0, len(item.Files))
	for _, f := range item.Files {
		files = append(files, f.Filename)
	}

	return &CommitDetail{
		CommitSummary: CommitSummary{
			SHA:         item.SHA,
			Message:     item.Commit.Message,
			AuthorName:  item.Commit.Author.Name,
			AuthorEmail: item.Commit.Author.Email,
			Date:        item.Commit.Author.Date,
			HTMLURL:     item.HTMLURL,
		},
		Files:     files,
		Additions: item.Stats.Additions,
		Deletions: item.Stats.Deletions,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("github API error (%d): %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(v)
}
