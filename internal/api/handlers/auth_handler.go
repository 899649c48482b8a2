package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	cfg "github.com/scrapbook/monthbook/configs"
	"github.com/scrapbook/monthbook/internal/service"
	"github.com/scrapbook/monthbook/internal/transfer"
)

type AuthHandler struct {
	cfg cfg.Config
	s   service.AuthService
}

func NewAuthHandler(cfg cfg.Config, service service.AuthService) *AuthHandler {
	return &AuthHandler{cfg: cfg, s: service}
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req transfer.AuthRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Password is required",
		})
	}

	token, err := h.s.Login(req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidPassword) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid password",
			})
		}
		slog.Error("login failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Server error",
		})
	}

	c.Cookie(&fiber.Cookie{
		Name:     h.cfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(service.SessionDuration.Seconds()),
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Authenticated"})
}
