package handlers

import (
	"io"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/scrapbook/monthbook/internal/service"
	"github.com/scrapbook/monthbook/internal/transfer"
)

type UploadHandler struct {
	s service.MediaService
}

func NewUploadHandler(service service.MediaService) *UploadHandler {
	return &UploadHandler{s: service}
}

// CreateUploadURL hands the client a presigned PUT URL so media bytes
// never pass through this server.
func (h *UploadHandler) CreateUploadURL(c *fiber.Ctx) error {
	var req transfer.UploadURLRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	resp, err := h.s.CreateUploadURL(c.Context(), &req)
	if err != nil {
		slog.Error("failed to create upload URL", "error", err)
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *UploadHandler) ExtractMetadata(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file provided",
		})
	}
	declaredType := c.FormValue("type")

	file, err := fileHeader.Open()
	if err != nil {
		slog.Error("failed to open uploaded file", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Server error",
		})
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		slog.Error("failed to read uploaded file", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Server error",
		})
	}

	metadata, err := h.s.ExtractMetadata(c.Context(), declaredType, content)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"metadata": metadata})
}
