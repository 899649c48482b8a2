package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapbook/monthbook/internal/cache"
	"github.com/scrapbook/monthbook/internal/models"
	"github.com/scrapbook/monthbook/internal/transfer"
)

// stubPostStore records calls and serves canned posts keyed by id.
type stubPostStore struct {
	posts map[string]*models.Post

	saved       []*models.Post
	updateCalls int
	byMonth     map[int][]*models.Post
	listCalls   int
}

func newStubPostStore() *stubPostStore {
	return &stubPostStore{posts: map[string]*models.Post{}, byMonth: map[int][]*models.Post{}}
}

func (s *stubPostStore) GetAllPosts(ctx context.Context) ([]*models.Post, error) {
	s.listCalls++
	var out []*models.Post
	for _, p := range s.posts {
		if !p.Deleted {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubPostStore) GetAllPostsIncludingDeleted(ctx context.Context) ([]*models.Post, error) {
	var out []*models.Post
	for _, p := range s.posts {
		out = append(out, p)
	}
	return out, nil
}

func (s *stubPostStore) GetPublishedPostsOrdered(ctx context.Context) ([]*models.Post, error) {
	return nil, nil
}

func (s *stubPostStore) GetPublishedPostsByMonthOrdered(ctx context.Context, month int) ([]*models.Post, error) {
	s.listCalls++
	return s.byMonth[month], nil
}

func (s *stubPostStore) GetPostById(ctx context.Context, id string) (*models.Post, error) {
	p, ok := s.posts[id]
	if !ok || p.Deleted {
		return nil, nil
	}
	return p, nil
}

func (s *stubPostStore) GetPostsByMonth(ctx context.Context, month int) ([]*models.Post, error) {
	s.listCalls++
	return s.byMonth[month], nil
}

func (s *stubPostStore) SavePost(ctx context.Context, post *models.Post) (*models.Post, error) {
	s.saved = append(s.saved, post)
	s.posts[post.ID] = post
	return post, nil
}

func (s *stubPostStore) UpdatePost(ctx context.Context, id string, patch models.PostPatch) (*models.Post, error) {
	s.updateCalls++
	p, ok := s.posts[id]
	if !ok {
		return nil, nil
	}
	updated := *p
	patch.Apply(&updated, time.Now().UTC())
	s.posts[id] = &updated
	return &updated, nil
}

func (s *stubPostStore) DeletePost(ctx context.Context, id string) (bool, error) {
	deleted := true
	updated, err := s.UpdatePost(ctx, id, models.PostPatch{Deleted: &deleted})
	if err != nil {
		return false, err
	}
	return updated != nil, nil
}

func newTestPostService(t *testing.T) (PostService, *stubPostStore) {
	t.Helper()
	store := newStubPostStore()
	return NewPostService(store, cache.New(nil)), store
}

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

func strPtr(v string) *string { return &v }

func validCreation() *transfer.PostCreation {
	return &transfer.PostCreation{
		Type:    models.PostTypeText,
		Title:   "First smile",
		Month:   intPtr(3),
		Content: "She smiled today.",
	}
}

func TestCreateValidation(t *testing.T) {
	svc, store := newTestPostService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*transfer.PostCreation)
	}{
		{"missing type", func(pc *transfer.PostCreation) { pc.Type = "" }},
		{"unknown type", func(pc *transfer.PostCreation) { pc.Type = "gif" }},
		{"empty title", func(pc *transfer.PostCreation) { pc.Title = "   " }},
		{"missing month", func(pc *transfer.PostCreation) { pc.Month = nil }},
		{"month too high", func(pc *transfer.PostCreation) { pc.Month = intPtr(13) }},
		{"month negative", func(pc *transfer.PostCreation) { pc.Month = intPtr(-1) }},
		{"empty content", func(pc *transfer.PostCreation) { pc.Content = " " }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pc := validCreation()
			tc.mutate(pc)
			_, err := svc.Create(ctx, pc)
			require.Error(t, err)
			assert.True(t, models.IsValidation(err))
		})
	}
	assert.Empty(t, store.saved)
}

func TestCreateFillsDefaults(t *testing.T) {
	svc, store := newTestPostService(t)

	created, err := svc.Create(context.Background(), validCreation())
	require.NoError(t, err)
	require.NotNil(t, created)

	assert.NotEmpty(t, created.ID)
	assert.False(t, created.Published)
	assert.Equal(t, 0, created.Order)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)
	require.Len(t, store.saved, 1)
}

func TestCreateTrimsTitleAndCaption(t *testing.T) {
	svc, _ := newTestPostService(t)

	pc := validCreation()
	pc.Title = "  First smile  "
	pc.Caption = "  so cute  "
	pc.Published = boolPtr(true)
	pc.Order = intPtr(4)

	created, err := svc.Create(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, "First smile", created.Title)
	assert.Equal(t, "so cute", created.Caption)
	assert.True(t, created.Published)
	assert.Equal(t, 4, created.Order)
}

func TestUpdateValidation(t *testing.T) {
	svc, store := newTestPostService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, "a1", models.PostPatch{Type: strPtr("gif")})
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))

	_, err = svc.Update(ctx, "a1", models.PostPatch{Title: strPtr("  ")})
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))

	_, err = svc.Update(ctx, "a1", models.PostPatch{Month: intPtr(42)})
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))

	assert.Zero(t, store.updateCalls)
}

func TestUpdateMissingPost(t *testing.T) {
	svc, _ := newTestPostService(t)

	updated, err := svc.Update(context.Background(), "ghost", models.PostPatch{Title: strPtr("x")})
	require.NoError(t, err)
	assert.Nil(t, updated)
}

func TestDeleteAlreadyDeletedStillSucceeds(t *testing.T) {
	svc, store := newTestPostService(t)
	ctx := context.Background()

	store.posts["a1"] = &models.Post{ID: "a1", Type: models.PostTypeText, Title: "t", Month: 3}

	ok, err := svc.Delete(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, ok)

	// The record still exists, so deleting again reports success, the
	// same answer the store gives.
	ok, err = svc.Delete(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeleteMissingPost(t *testing.T) {
	svc, _ := newTestPostService(t)

	ok, err := svc.Delete(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func newCachedPostService(t *testing.T) (PostService, *stubPostStore, *cache.TagCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	tags := cache.New(client)
	store := newStubPostStore()
	return NewPostService(store, tags), store, tags
}

func TestGetPublishedByMonthCachesResult(t *testing.T) {
	svc, store, _ := newCachedPostService(t)
	ctx := context.Background()

	post := &models.Post{ID: "a1", Type: models.PostTypeText, Title: "t", Month: 3, Published: true}
	store.byMonth[3] = []*models.Post{post}

	first, err := svc.GetPublishedByMonth(ctx, 3)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := svc.GetPublishedByMonth(ctx, 3)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, 1, store.listCalls, "second read must come from cache")
}

func TestDateTakenPostsAreNeverCached(t *testing.T) {
	svc, store, _ := newCachedPostService(t)
	ctx := context.Background()

	post := &models.Post{
		ID: "a1", Type: models.PostTypePhoto, Title: "t", Month: 3, Published: true,
		Metadata: &models.FileMetadata{DateTaken: "2025-03-10T12:00:00Z"},
	}
	store.byMonth[3] = []*models.Post{post}

	_, err := svc.GetPublishedByMonth(ctx, 3)
	require.NoError(t, err)
	_, err = svc.GetPublishedByMonth(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, store.listCalls, "every read must hit the store")
}

func TestCreateInvalidatesMonthPartition(t *testing.T) {
	svc, store, _ := newCachedPostService(t)
	ctx := context.Background()

	store.byMonth[3] = []*models.Post{}
	_, err := svc.GetPublishedByMonth(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, store.listCalls)

	created, err := svc.Create(ctx, validCreation())
	require.NoError(t, err)
	store.byMonth[3] = []*models.Post{created}

	posts, err := svc.GetPublishedByMonth(ctx, 3)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, 2, store.listCalls, "create must bust the month bucket")
}

func TestMonthMoveInvalidatesBothBuckets(t *testing.T) {
	svc, store, _ := newCachedPostService(t)
	ctx := context.Background()

	post := &models.Post{ID: "a1", Type: models.PostTypeText, Title: "t", Month: 3, Published: true}
	store.posts["a1"] = post
	store.byMonth[3] = []*models.Post{post}
	store.byMonth[7] = []*models.Post{}

	// Warm both month buckets.
	_, err := svc.GetPublishedByMonth(ctx, 3)
	require.NoError(t, err)
	_, err = svc.GetPublishedByMonth(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, store.listCalls)

	updated, err := svc.Update(ctx, "a1", models.PostPatch{Month: intPtr(7)})
	require.NoError(t, err)
	require.NotNil(t, updated)
	store.byMonth[3] = []*models.Post{}
	store.byMonth[7] = []*models.Post{updated}

	// Both the old and new bucket were invalidated.
	old, err := svc.GetPublishedByMonth(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, old)
	moved, err := svc.GetPublishedByMonth(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, moved, 1)
	assert.Equal(t, 4, store.listCalls)
}

func TestDeleteBustsCachedPost(t *testing.T) {
	svc, store, _ := newCachedPostService(t)
	ctx := context.Background()

	post := &models.Post{ID: "a1", Type: models.PostTypeText, Title: "t", Month: 3, Published: true}
	store.posts["a1"] = post

	got, err := svc.GetById(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, got)

	ok, err := svc.Delete(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = svc.GetById(ctx, "a1")
	require.NoError(t, err)
	assert.Nil(t, got, "cached copy must not survive the delete")
}
