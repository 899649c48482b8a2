package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"
	cfg "github.com/scrapbook/monthbook/configs"
	"github.com/scrapbook/monthbook/pkg/utils"
)

type AuthMiddleware struct {
	cfg cfg.Config
}

func NewAuthMiddleware(cfg cfg.Config) *AuthMiddleware {
	return &AuthMiddleware{cfg: cfg}
}

// RequireAuth gates admin and mutating routes behind the session cookie.
func (m *AuthMiddleware) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := c.Cookies(m.cfg.CookieName)
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		if _, err := utils.ValidateToken(m.cfg.SecretKey, tokenString); err != nil {
			c.Cookie(&fiber.Cookie{
				Name:   m.cfg.CookieName,
				Value:  "",
				Path:   "/",
				MaxAge: -1, // Delete cookie
			})

			log.Printf("Token validation failed: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		return c.Next()
	}
}
