package handler

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v3"

	"github.com/codequery-ai/codequery/internal/domain"
	"github.com/codequery-ai/codequery/internal/middleware"
	"github.com/codequery-ai/codequery/internal/port"
	"github.com/codequery-ai/codequery/internal/service"
)

// RepoEvent represents a repo status change sent via SSE.
type RepoEvent struct {
	RepoID string `json:"repo_id"`
	Status string `json:"status"`
}

// RepoEventBus broadcasts repo status changes to SSE subscribers.
type RepoEventBus struct {
	mu   sync.RWMutex
	subs []chan RepoEvent
}

func NewRepoEventBus() *RepoEventBus {
	return &RepoEventBus{}
}

func (b *RepoEventBus) Publish(evt RepoEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (b *RepoEventBus) Subscribe() chan RepoEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan RepoEvent, 10)
	b.subs = append(b.subs, ch)
	return ch
}

func (b *RepoEventBus) Unsubscribe(ch chan RepoEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	close(ch)
}

// RepoHandler handles repository registration, status and ingestion triggers.
type RepoHandler struct {
	repos  port.RepoStore
	ingest *service.IngestService
	events *RepoEventBus
}

func NewRepoHandler(repos port.RepoStore, ingest *service.IngestService, events *RepoEventBus) *RepoHandler {
	return &RepoHandler{repos: repos, ingest: ingest, events: events}
}

// Register sets up repo routes on a protected group.
func (h *RepoHandler) Register(api fiber.Router) {
	repos := api.Group("/repos")
	repos.Get("/", h.List)
	repos.Post("/", h.Create)
	repos.Get("/events", h.StreamEvents)
	repos.Get("/:id", h.Get)
	repos.Post("/:id/ingest", h.Ingest)
}

// Create registers a repository and starts its first ingestion.
func (h *RepoHandler) Create(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var body struct {
		URL  string `json:"url"`
		Name string `json:"name"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	body.URL = strings.TrimSpace(body.URL)
	if body.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "url is required"})
	}
	if body.Name == "" {
		body.Name = nameFromURL(body.URL)
	}

	created, err := h.repos.CreateRepo(c.Context(), &domain.Repository{
		OwnerID: uc.UserID,
		Name:    body.Name,
		URL:     body.URL,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	if err := h.ingest.Submit(created.ID); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "ingestion started",
		"repo":    created,
	})
}

// List returns the current user's repositories.
func (h *RepoHandler) List(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	repos, err := h.repos.ListReposByOwner(c.Context(), uc.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"repos": repos, "count": len(repos)})
}

// Get returns a single repository with its ingestion state.
func (h *RepoHandler) Get(c fiber.Ctx) error {
	repo, errResp := h.ownedRepo(c)
	if repo == nil {
		return errResp
	}
	return c.JSON(repo)
}

// Ingest triggers an explicit re-ingestion of a repository.
func (h *RepoHandler) Ingest(c fiber.Ctx) error {
	repo, errResp := h.ownedRepo(c)
	if repo == nil {
		return errResp
	}

	if err := h.ingest.Submit(repo.ID); err != nil {
		if errors.Is(err, port.ErrIngestInProgress) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "ingestion already in progress"})
		}
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "ingestion started",
		"repo_id": repo.ID,
	})
}

// ownedRepo loads the :id repository and enforces ownership. Unknown and
// unowned repositories are indistinguishable to the caller.
func (h *RepoHandler) ownedRepo(c fiber.Ctx) (*domain.Repository, error) {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return nil, c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	repo, err := h.repos.GetRepo(c.Context(), c.Params("id"))
	if errors.Is(err, port.ErrRepoNotFound) {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "repository not found"})
	}
	if err != nil {
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if repo.OwnerID != uc.UserID {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "repository not found"})
	}
	return repo, nil
}

// StreamEvents streams repo status changes via SSE.
func (h *RepoHandler) StreamEvents(c fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	ch := h.events.Subscribe()

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer h.events.Unsubscribe(ch)

		// Send heartbeat comment to confirm connection
		fmt.Fprintf(w, ": connected\n\n")
		w.Flush()

		for {
			evt, ok := <-ch
			if !ok {
				return
			}
			data, _ := json.Marshal(evt)
			fmt.Fprintf(w, "event: repo_status\ndata: %s\n\n", string(data))
			w.Flush()
			slog.Info("SSE repo event", "repo_id", evt.RepoID, "status", evt.Status)
		}
	})
}

// nameFromURL derives a display name from a clone URL, e.g.
// "https://host/org/project.git" -> "project".
func nameFromURL(url string) string {
	trimmed := strings.TrimSuffix(strings.TrimRight(url, "/"), ".git")
	if i := strings.LastIndexAny(trimmed, "/:"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	if trimmed == "" {
		return "repository"
	}
	return trimmed
}
