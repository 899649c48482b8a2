package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/h2non/filetype"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/scrapbook/monthbook/internal/models"
	"github.com/scrapbook/monthbook/internal/objectstore"
	"github.com/scrapbook/monthbook/internal/transfer"
)

const MaxUploadSize = 11 * 1024 * 1024

const uploadURLExpiry = 5 * time.Minute

var allowedMimeTypes = map[string][]string{
	models.PostTypePhoto: {
		"image/jpeg", "image/png", "image/gif", "image/webp",
		"image/svg+xml", "image/heic", "image/heif",
	},
	models.PostTypeAudio: {
		"audio/mpeg", "audio/mp3", "audio/wav", "audio/ogg",
		"audio/webm", "audio/mp4", "audio/m4a", "audio/x-m4a",
	},
	models.PostTypeVideo: {
		"video/mp4", "video/webm", "video/ogg",
		"video/quicktime", "video/x-msvideo",
	},
}

type MediaService interface {
	// CreateUploadURL issues a short-lived presigned PUT URL so clients
	// upload media directly to the bucket.
	CreateUploadURL(ctx context.Context, req *transfer.UploadURLRequest) (*transfer.UploadURLResponse, error)
	// ExtractMetadata produces a best-effort FileMetadata record; it is
	// never required to be complete.
	ExtractMetadata(ctx context.Context, declaredType string, file []byte) (*models.FileMetadata, error)
}

type mediaService struct {
	objects objectstore.Client
}

func NewMediaService(objects objectstore.Client) MediaService {
	return &mediaService{objects: objects}
}

func (s *mediaService) CreateUploadURL(ctx context.Context, req *transfer.UploadURLRequest) (*transfer.UploadURLResponse, error) {
	if req == nil || req.FileName == "" || req.FileType == "" {
		return nil, models.NewValidationError("fileName and fileType are required")
	}
	if req.FileSize > MaxUploadSize {
		return nil, models.NewValidationError("file size exceeds maximum allowed size of %dMB", MaxUploadSize/(1024*1024))
	}

	allowed, ok := allowedMimeTypes[req.FileType]
	if !ok {
		return nil, models.NewValidationError("invalid file type, must be 'photo', 'audio' or 'video'")
	}
	contentType := req.ContentType
	if contentType != "" && !contains(allowed, contentType) {
		return nil, models.NewValidationError("invalid content type for %s file", req.FileType)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to generate upload id: %w", err)
	}

	ext := strings.TrimPrefix(filepath.Ext(req.FileName), ".")
	fileName := id
	if ext != "" {
		fileName = id + "." + ext
	}
	key := "uploads/" + fileName

	url, err := s.objects.PresignPut(ctx, key, contentType, uploadURLExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to generate upload URL: %w", err)
	}

	return &transfer.UploadURLResponse{URL: url, Key: key, FileName: fileName}, nil
}

func (s *mediaService) ExtractMetadata(ctx context.Context, declaredType string, file []byte) (*models.FileMetadata, error) {
	if len(file) == 0 {
		return nil, models.NewValidationError("no file provided")
	}
	if len(file) > MaxUploadSize {
		return nil, models.NewValidationError("file size exceeds maximum allowed size of %dMB", MaxUploadSize/(1024*1024))
	}
	if _, ok := allowedMimeTypes[declaredType]; !ok {
		return nil, models.NewValidationError("invalid file type, must be 'photo', 'audio' or 'video'")
	}

	metadata := &models.FileMetadata{}

	kind, err := filetype.Match(file)
	if err != nil {
		slog.Info(err.Error())
		return metadata, nil
	}

	if declaredType == models.PostTypePhoto && filetype.IsImage(file) {
		if config, _, err := image.DecodeConfig(bytes.NewReader(file)); err == nil {
			metadata.Dimensions = &models.Dimensions{Width: config.Width, Height: config.Height}
		}
	}

	if kind.MIME.Value != "" {
		slog.Info("extracted media metadata", "mime", kind.MIME.Value, "declared", declaredType)
	}
	return metadata, nil
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
