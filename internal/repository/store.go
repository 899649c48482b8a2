package repository

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	cfg "github.com/scrapbook/monthbook/configs"
	"github.com/scrapbook/monthbook/internal/models"
	"github.com/scrapbook/monthbook/internal/objectstore"
)

// PostStore is the single storage entry point. Both backends implement
// identical semantics; callers never see which one is behind it.
//
// Reads exclude soft-deleted posts except the explicit including-deleted
// listing. Not-found is (nil, nil), never an error.
type PostStore interface {
	GetAllPosts(ctx context.Context) ([]*models.Post, error)
	GetAllPostsIncludingDeleted(ctx context.Context) ([]*models.Post, error)
	GetPublishedPostsOrdered(ctx context.Context) ([]*models.Post, error)
	GetPublishedPostsByMonthOrdered(ctx context.Context, month int) ([]*models.Post, error)
	GetPostById(ctx context.Context, id string) (*models.Post, error)
	GetPostsByMonth(ctx context.Context, month int) ([]*models.Post, error)
	SavePost(ctx context.Context, post *models.Post) (*models.Post, error)
	UpdatePost(ctx context.Context, id string, patch models.PostPatch) (*models.Post, error)
	DeletePost(ctx context.Context, id string) (bool, error)
}

// IndexRebuildEnqueuer schedules a full index rebuild. The object-store
// backend uses it when an index write fails after a successful object
// write, so the index heals instead of staying stale.
type IndexRebuildEnqueuer interface {
	EnqueueIndexRebuild(reason string) error
}

// New selects the backend once, at startup, from configuration.
func New(c *cfg.Config, objects objectstore.Client, rebuilds IndexRebuildEnqueuer) PostStore {
	if c.UseS3Posts {
		slog.Info("using object-store-backed post storage", "bucket", c.S3.BucketName)
		index := NewIndex(objects, c.IndexCacheTTL, time.Now)
		return NewS3Store(objects, index, c.ScanTimeout, rebuilds)
	}
	slog.Info("using file-backed post storage", "dir", c.DataDir)
	return NewFileStore(filepath.Join(c.DataDir, "posts.json"))
}
