package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/codequery-ai/codequery/internal/middleware"
	"github.com/codequery-ai/codequery/internal/port"
	"github.com/codequery-ai/codequery/internal/service"
)

// AuthHandler handles registration and login.
type AuthHandler struct {
	auth   *service.AuthService
	jwtCfg middleware.JWTConfig
}

func NewAuthHandler(auth *service.AuthService, jwtCfg middleware.JWTConfig) *AuthHandler {
	return &AuthHandler{auth: auth, jwtCfg: jwtCfg}
}

// Register sets up the public auth routes.
func (h *AuthHandler) Register(app *fiber.App) {
	auth := app.Group("/auth")
	auth.Post("/register", h.SignUp)
	auth.Post("/login", h.Login)
}

type credentialsBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp creates a user and returns a signed token.
func (h *AuthHandler) SignUp(c fiber.Ctx) error {
	var body credentialsBody
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	user, err := h.auth.Register(c.Context(), body.Email, body.Password)
	if errors.Is(err, port.ErrEmailTaken) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "email already registered"})
	}
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	token, err := middleware.GenerateJWT(user, h.jwtCfg)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "sign token"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"token": token, "user": user})
}

// Login verifies credentials and returns a signed token.
func (h *AuthHandler) Login(c fiber.Ctx) error {
	var body credentialsBody
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	user, err := h.auth.Login(c.Context(), body.Email, body.Password)
	if errors.Is(err, port.ErrInvalidCredential) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid email or password"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	token, err := middleware.GenerateJWT(user, h.jwtCfg)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "sign token"})
	}

	return c.JSON(fiber.Map{"token": token, "user": user})
}
