package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/codeancestry/codeancestry/internal/port"
	"github.com/codeancestry/codeancestry/internal/service"
)

// RAGHandler handles question-answering endpoints.
type RAGHandler struct {
	rag   *service.RAGService
	repos *service.RepoService
}

// NewRAGHandler creates a new RAG handler.
func NewRAGHandler(rag *service.RAGService, repos *service.RepoService) *RAGHandler {
	return &RAGHandler{rag: rag, repos: repos}
}

// Register sets up query routes.
func (h *RAGHandler) Register(router fiber.Router) {
	repos := router.Group("/repositories")
	repos.Post("/:id/query", h.Query)
	repos.Get("/:id/embedding-status", h.EmbeddingStatus)
}

type queryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
	Model    string `json:"model"`
}

// Query answers a natural-language question about a repository's history.
func (h *RAGHandler) Query(c fiber.Ctx) error {
	repoID := c.Params("id")

	var req queryRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	repo, err := h.repos.Get(c.Context(), repoID)
	if err != nil {
		if errors.Is(err, port.ErrRepoNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "repository not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load repository"})
	}

	answer, err := h.rag.AskQuestion(c.Context(), repo.ID, req.Question, req.TopK, req.Model)
	if err != nil {
		if errors.Is(err, port.ErrEmptyQuestion) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "question is required"})
		}
		if errors.Is(err, port.ErrUpstreamUnavailable) {
			slog.Error("upstream AI unavailable", "repo", repo.FullName, "error", err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "ai service unavailable"})
		}
		slog.Error("query failed", "repo", repo.FullName, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "query failed"})
	}

	return c.JSON(answer)
}

// EmbeddingStatus reports how much of a repository's history is searchable.
func (h *RAGHandler) EmbeddingStatus(c fiber.Ctx) error {
	repoID := c.Params("id")

	repo, err := h.repos.Get(c.Context(), repoID)
	if err != nil {
		if errors.Is(err, port.ErrRepoNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "repository not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load repository"})
	}

	status, err := h.rag.EmbeddingStatus(c.Context(), repo)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to compute embedding status"})
	}
	return c.JSON(status)
}
