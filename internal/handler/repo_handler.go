package handler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/codeancestry/codeancestry/internal/port"
	"github.com/codeancestry/codeancestry/internal/service"
)

// RepoHandler handles repository registration and ingestion endpoints.
type RepoHandler struct {
	repos   *service.RepoService
	ingest  *service.IngestService
	tracker *JobTracker
}

// NewRepoHandler creates a new repository handler.
func NewRepoHandler(repos *service.RepoService, ingest *service.IngestService, tracker *JobTracker) *RepoHandler {
	return &RepoHandler{repos: repos, ingest: ingest, tracker: tracker}
}

// Register sets up repository routes.
func (h *RepoHandler) Register(router fiber.Router) {
	repos := router.Group("/repositories")
	repos.Post("/", h.Create)
	repos.Get("/", h.List)
	repos.Get("/:id", h.Get)
}

type createRepoRequest struct {
	FullName      string `json:"full_name"`
	HTMLURL       string `json:"html_url"`
	DefaultBranch string `json:"default_branch"`
	UserID        string `json:"user_id"`
}

// Create registers a repository and starts an async ingestion job.
func (h *RepoHandler) Create(c fiber.Ctx) error {
	var req createRepoRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.FullName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "full_name is required"})
	}
	userID := req.UserID
	if userID == "" {
		userID = "anonymous"
	}

	repo, err := h.repos.Register(c.Context(), userID, req.FullName, req.HTMLURL, req.DefaultBranch)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	jobID := uuid.New().String()
	h.tracker.CreateJob(jobID, repo.ID)

	go func() {
		ctx := context.Background()
		err := h.ingest.Ingest(ctx, repo, func(phase string, done, total int) {
			h.tracker.UpdateJob(jobID, phase, done, total)
		})
		if err != nil {
			slog.Error("ingestion failed", "repo", repo.FullName, "job_id", jobID, "error", err)
			h.tracker.CompleteJob(jobID, err.Error())
			return
		}
		h.tracker.CompleteJob(jobID, "")
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"repository": repo,
		"job_id":     jobID,
	})
}

// List returns all registered repositories.
func (h *RepoHandler) List(c fiber.Ctx) error {
	repos, err := h.repos.List(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list repositories"})
	}
	return c.JSON(fiber.Map{"repositories": repos, "count": len(repos)})
}

// Get returns a single repository by ID.
func (h *RepoHandler) Get(c fiber.Ctx) error {
	id := c.Params("id")
	repo, err := h.repos.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, port.ErrRepoNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "repository not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load repository"})
	}
	return c.JSON(repo)
}
