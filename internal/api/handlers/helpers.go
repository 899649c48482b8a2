package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/scrapbook/monthbook/internal/cache"
	"github.com/scrapbook/monthbook/internal/models"
)

// setPublicCacheHeaders marks the response cacheable under the public TTL
// unless it carries a user-editable capture date, which must always be
// served fresh.
func setPublicCacheHeaders(c *fiber.Ctx, hasDateTaken bool) {
	if hasDateTaken {
		c.Set(fiber.HeaderCacheControl, "no-cache, no-store, must-revalidate")
		return
	}
	c.Set(fiber.HeaderCacheControl, fmt.Sprintf(
		"public, s-maxage=%d, stale-while-revalidate=%d",
		int(cache.PublicTTL.Seconds()),
		int(cache.StaleWhileRevalidate.Seconds()),
	))
}

func anyHasDateTaken(posts []*models.Post) bool {
	for _, p := range posts {
		if p.HasDateTaken() {
			return true
		}
	}
	return false
}

func respondServiceError(c *fiber.Ctx, err error) error {
	if models.IsValidation(err) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Server error"})
}
