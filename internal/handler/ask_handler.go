package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/codequery-ai/codequery/internal/middleware"
	"github.com/codequery-ai/codequery/internal/port"
	"github.com/codequery-ai/codequery/internal/service"
)

// AskHandler answers questions about ingested repositories.
type AskHandler struct {
	repos port.RepoStore
	qa    *service.QAService
}

func NewAskHandler(repos port.RepoStore, qa *service.QAService) *AskHandler {
	return &AskHandler{repos: repos, qa: qa}
}

// Register sets up the ask route on a protected group.
func (h *AskHandler) Register(api fiber.Router) {
	api.Post("/repos/:id/ask", h.Ask)
}

// Ask runs retrieval-augmented generation against one repository.
func (h *AskHandler) Ask(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var body struct {
		Question string `json:"question"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	body.Question = strings.TrimSpace(body.Question)
	if body.Question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "question is required"})
	}

	repoID := c.Params("id")
	repo, err := h.repos.GetRepo(c.Context(), repoID)
	if errors.Is(err, port.ErrRepoNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "repository not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if repo.OwnerID != uc.UserID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "repository not found"})
	}

	answer, err := h.qa.Answer(c.Context(), repoID, body.Question)
	if err != nil {
		var notReady *port.NotReadyError
		if errors.As(err, &notReady) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":  "repository is not ready for questions",
				"status": notReady.Status,
			})
		}
		var retrieval *port.RetrievalError
		var generation *port.GenerationError
		if errors.As(err, &retrieval) || errors.As(err, &generation) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(answer)
}
