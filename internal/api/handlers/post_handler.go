package handlers

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/scrapbook/monthbook/internal/models"
	"github.com/scrapbook/monthbook/internal/service"
	"github.com/scrapbook/monthbook/internal/transfer"
)

type PostHandler struct {
	s service.PostService
}

func NewPostHandler(service service.PostService) *PostHandler {
	return &PostHandler{s: service}
}

// ListPublished serves the public month feed.
func (h *PostHandler) ListPublished(c *fiber.Ctx) error {
	monthParam := c.Query("month")
	if monthParam == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query param 'month' is required",
		})
	}
	month, err := strconv.Atoi(monthParam)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query param 'month' must be a number",
		})
	}

	posts, err := h.s.GetPublishedByMonth(c.Context(), month)
	if err != nil {
		slog.Error("failed to list published posts", "month", month, "error", err)
		return respondServiceError(c, err)
	}
	if posts == nil {
		posts = []*models.Post{}
	}

	setPublicCacheHeaders(c, anyHasDateTaken(posts))
	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	var pc transfer.PostCreation
	if err := c.BodyParser(&pc); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	saved, err := h.s.Create(c.Context(), &pc)
	if err != nil {
		slog.Error("failed to create post", "error", err)
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(saved)
}

func (h *PostHandler) GetPost(c *fiber.Ctx) error {
	id := c.Params("id")

	post, err := h.s.GetById(c.Context(), id)
	if err != nil {
		slog.Error("failed to get post", "id", id, "error", err)
		return respondServiceError(c, err)
	}
	if post == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Post not found",
		})
	}

	setPublicCacheHeaders(c, post.HasDateTaken())
	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) UpdatePost(c *fiber.Ctx) error {
	id := c.Params("id")

	var patch models.PostPatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	updated, err := h.s.Update(c.Context(), id, patch)
	if err != nil {
		slog.Error("failed to update post", "id", id, "error", err)
		return respondServiceError(c, err)
	}
	if updated == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Post not found",
		})
	}

	return c.Status(fiber.StatusOK).JSON(updated)
}

func (h *PostHandler) DeletePost(c *fiber.Ctx) error {
	id := c.Params("id")

	deleted, err := h.s.Delete(c.Context(), id)
	if err != nil {
		slog.Error("failed to delete post", "id", id, "error", err)
		return respondServiceError(c, err)
	}
	if !deleted {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Post not found",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true})
}

// AdminList serves drafts too: one month, or everything with month=all.
func (h *PostHandler) AdminList(c *fiber.Ctx) error {
	monthParam := c.Query("month")

	if monthParam == "" || monthParam == "all" {
		posts, err := h.s.AdminListAll(c.Context())
		if err != nil {
			slog.Error("failed to list posts", "error", err)
			return respondServiceError(c, err)
		}
		if posts == nil {
			posts = []*models.Post{}
		}
		return c.Status(fiber.StatusOK).JSON(posts)
	}

	month, err := strconv.Atoi(monthParam)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query param 'month' must be a number or 'all'",
		})
	}

	posts, err := h.s.AdminListByMonth(c.Context(), month)
	if err != nil {
		slog.Error("failed to list posts", "month", month, "error", err)
		return respondServiceError(c, err)
	}
	if posts == nil {
		posts = []*models.Post{}
	}
	return c.Status(fiber.StatusOK).JSON(posts)
}
