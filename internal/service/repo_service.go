package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/codeancestry/codeancestry/internal/domain"
	"github.com/codeancestry/codeancestry/internal/port"
)

// RepoService manages the catalog of connected repositories.
type RepoService struct {
	repos port.RepoStore
}

// NewRepoService creates a new repository service.
func NewRepoService(repos port.RepoStore) *RepoService {
	return &RepoService{repos: repos}
}

// Register adds a repository (or resets an existing one for re-analysis).
// fullName is "owner/name".
func (s *RepoService) Register(ctx context.Context, userID, fullName, htmlURL, defaultBranch string) (*domain.Repository, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(fullName), "/")
	if !ok || owner == "" || name == "" {
		return nil, fmt.Errorf("invalid repository name %q: want owner/name", fullName)
	}
	if defaultBranch == "" {
		defaultBranch = "main"
	}
	if htmlURL == "" {
		htmlURL = "https://github.com/" + owner + "/" + name
	}

	repo, err := s.repos.CreateRepo(ctx, &domain.Repository{
		UserID:        userID,
		Owner:         owner,
		Name:          name,
		FullName:      owner + "/" + name,
		HTMLURL:       htmlURL,
		DefaultBranch: defaultBranch,
	})
	if err != nil {
		return nil, fmt.Errorf("register repo: %w", err)
	}
	return repo, nil
}

// Get returns a repository by ID.
func (s *RepoService) Get(ctx context.Context, id string) (*domain.Repository, error) {
	return s.repos.GetRepo(ctx, id)
}

// List returns all repositories, most recently updated first.
func (s *RepoService) List(ctx context.Context) ([]domain.Repository, error) {
	return s.repos.ListRepos(ctx)
}
