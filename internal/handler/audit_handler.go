package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/codequery-ai/codequery/internal/middleware"
	"github.com/codequery-ai/codequery/internal/port"
)

// AuditHandler exposes the current user's audit trail.
type AuditHandler struct {
	store port.AuditStore
}

func NewAuditHandler(store port.AuditStore) *AuditHandler {
	return &AuditHandler{store: store}
}

// Register sets up audit routes on a protected group.
func (h *AuditHandler) Register(api fiber.Router) {
	api.Get("/audit", h.List)
}

// List returns the most recent audit entries for the current user.
func (h *AuditHandler) List(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	logs, err := h.store.ListAuditLogs(c.Context(), uc.UserID, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"logs": logs, "count": len(logs)})
}
