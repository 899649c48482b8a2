package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/scrapbook/monthbook/internal/cache"
	"github.com/scrapbook/monthbook/internal/models"
	"github.com/scrapbook/monthbook/internal/repository"
	"github.com/scrapbook/monthbook/internal/transfer"
)

type PostService interface {
	Create(ctx context.Context, pc *transfer.PostCreation) (*models.Post, error)
	Update(ctx context.Context, id string, patch models.PostPatch) (*models.Post, error)
	Delete(ctx context.Context, id string) (bool, error)
	GetById(ctx context.Context, id string) (*models.Post, error)
	GetPublishedByMonth(ctx context.Context, month int) ([]*models.Post, error)
	AdminListByMonth(ctx context.Context, month int) ([]*models.Post, error)
	AdminListAll(ctx context.Context) ([]*models.Post, error)
}

type postService struct {
	store repository.PostStore
	tags  *cache.TagCache
}

func NewPostService(store repository.PostStore, tags *cache.TagCache) PostService {
	return &postService{store: store, tags: tags}
}

func (s *postService) Create(ctx context.Context, pc *transfer.PostCreation) (*models.Post, error) {
	if pc == nil {
		return nil, models.NewValidationError("missing request body")
	}
	if !models.ValidPostType(pc.Type) {
		return nil, models.NewValidationError("missing or invalid 'type' field")
	}
	if !models.ValidTitle(pc.Title) {
		return nil, models.NewValidationError("missing or empty 'title' field")
	}
	if pc.Month == nil {
		return nil, models.NewValidationError("missing or invalid 'month' field")
	}
	if !models.ValidMonth(*pc.Month) {
		return nil, models.NewValidationError("month must be a number between %d and %d", models.MinMonth, models.MaxMonth)
	}
	if strings.TrimSpace(pc.Content) == "" {
		return nil, models.NewValidationError("missing or empty 'content' field")
	}

	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to generate post id: %w", err)
	}

	now := time.Now().UTC()
	post := &models.Post{
		ID:        id,
		Type:      pc.Type,
		Title:     strings.TrimSpace(pc.Title),
		Month:     *pc.Month,
		Content:   pc.Content,
		Caption:   strings.TrimSpace(pc.Caption),
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: pc.CreatedBy,
		Published: pc.Published != nil && *pc.Published,
		Order:     0,
		Metadata:  pc.Metadata,
		Tags:      pc.Tags,
	}
	if pc.Order != nil {
		post.Order = *pc.Order
	}

	saved, err := s.store.SavePost(ctx, post)
	if err != nil {
		return nil, fmt.Errorf("error creating post: %w", err)
	}

	s.invalidateMonths(ctx, saved.ID, saved.Month)
	return saved, nil
}

func (s *postService) Update(ctx context.Context, id string, patch models.PostPatch) (*models.Post, error) {
	if patch.Type != nil && !models.ValidPostType(*patch.Type) {
		return nil, models.NewValidationError("invalid type")
	}
	if patch.Title != nil && !models.ValidTitle(*patch.Title) {
		return nil, models.NewValidationError("title cannot be empty")
	}
	if patch.Month != nil && !models.ValidMonth(*patch.Month) {
		return nil, models.NewValidationError("month must be a number between %d and %d", models.MinMonth, models.MaxMonth)
	}

	// Remember the current month so a month move busts both buckets.
	previousMonth := -1
	if existing, err := s.store.GetPostById(ctx, id); err == nil && existing != nil {
		previousMonth = existing.Month
	}

	updated, err := s.store.UpdatePost(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("error updating post: %w", err)
	}
	if updated == nil {
		return nil, nil
	}

	s.invalidateMonths(ctx, updated.ID, updated.Month)
	if previousMonth >= 0 && previousMonth != updated.Month {
		s.tags.InvalidateTags(ctx, cache.TagMonth(previousMonth), cache.TagAdminMonth(previousMonth))
	}
	return updated, nil
}

func (s *postService) Delete(ctx context.Context, id string) (bool, error) {
	// The month is only needed for targeted invalidation. An already
	// soft-deleted post has no visible month, but deleting it again still
	// reports success: the record exists.
	month := -1
	if post, err := s.store.GetPostById(ctx, id); err == nil && post != nil {
		month = post.Month
	}

	deleted, err := s.store.DeletePost(ctx, id)
	if err != nil {
		return false, fmt.Errorf("error deleting post: %w", err)
	}
	if deleted {
		if month >= 0 {
			s.invalidateMonths(ctx, id, month)
		} else {
			s.tags.InvalidateTags(ctx, cache.TagPosts, cache.TagPost(id), cache.TagPostsAdmin)
		}
	}
	return deleted, nil
}

func (s *postService) GetById(ctx context.Context, id string) (*models.Post, error) {
	key := cache.KeyPost(id)
	var cached models.Post
	if hit, err := s.tags.GetJSON(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	post, err := s.store.GetPostById(ctx, id)
	if err != nil {
		return nil, err
	}
	if post != nil && !post.HasDateTaken() {
		s.tags.SetJSON(ctx, key, post, cache.PublicTTL, cache.TagPosts, cache.TagPost(id))
	}
	return post, nil
}

func (s *postService) GetPublishedByMonth(ctx context.Context, month int) ([]*models.Post, error) {
	key := cache.KeyPublishedMonth(month)
	var cached []*models.Post
	if hit, err := s.tags.GetJSON(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	posts, err := s.store.GetPublishedPostsByMonthOrdered(ctx, month)
	if err != nil {
		return nil, err
	}
	if !anyHasDateTaken(posts) {
		s.tags.SetJSON(ctx, key, posts, cache.PublicTTL, cache.TagPosts, cache.TagMonth(month))
	}
	return posts, nil
}

func (s *postService) AdminListByMonth(ctx context.Context, month int) ([]*models.Post, error) {
	key := cache.KeyAdminMonth(month)
	var cached []*models.Post
	if hit, err := s.tags.GetJSON(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	posts, err := s.store.GetPostsByMonth(ctx, month)
	if err != nil {
		return nil, err
	}
	models.SortPostsForMonth(posts)
	if !anyHasDateTaken(posts) {
		s.tags.SetJSON(ctx, key, posts, cache.AdminTTL, cache.TagPostsAdmin, cache.TagAdminMonth(month))
	}
	return posts, nil
}

func (s *postService) AdminListAll(ctx context.Context) ([]*models.Post, error) {
	key := cache.KeyAdminAll
	var cached []*models.Post
	if hit, err := s.tags.GetJSON(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	posts, err := s.store.GetAllPosts(ctx)
	if err != nil {
		return nil, err
	}
	models.SortPostsForAdmin(posts)
	if !anyHasDateTaken(posts) {
		s.tags.SetJSON(ctx, key, posts, cache.AdminTTL, cache.TagPostsAdmin)
	}
	return posts, nil
}

// invalidateMonths busts every partition that can hold the post: the
// global tag, the per-id tag, the month bucket, and the admin twins.
// Issued synchronously so a client never reads stale data right after its
// own write was acknowledged.
func (s *postService) invalidateMonths(ctx context.Context, id string, month int) {
	s.tags.InvalidateTags(ctx,
		cache.TagPosts,
		cache.TagPost(id),
		cache.TagMonth(month),
		cache.TagPostsAdmin,
		cache.TagAdminMonth(month),
	)
}

func anyHasDateTaken(posts []*models.Post) bool {
	for _, p := range posts {
		if p.HasDateTaken() {
			return true
		}
	}
	return false
}
