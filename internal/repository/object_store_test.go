package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapbook/monthbook/internal/models"
	"github.com/scrapbook/monthbook/internal/objectstore"
)

type stubEnqueuer struct {
	reasons []string
	err     error
}

func (e *stubEnqueuer) EnqueueIndexRebuild(reason string) error {
	e.reasons = append(e.reasons, reason)
	return e.err
}

// failingPutClient rejects writes to one key, everything else passes
// through. Used to force the object-write-succeeds/index-write-fails
// window.
type failingPutClient struct {
	*objectstore.MemoryClient
	failKey string
}

func (c *failingPutClient) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if key == c.failKey {
		return errors.New("put rejected")
	}
	return c.MemoryClient.Put(ctx, key, body, contentType)
}

func newTestS3Store() (*S3Store, *objectstore.MemoryClient, *stubEnqueuer) {
	objects := objectstore.NewMemoryClient()
	enqueuer := &stubEnqueuer{}
	// ttl 0 keeps the index snapshot always stale, so every read hits the
	// memory client and tests can manipulate stored state directly.
	index := NewIndex(objects, 0, time.Now)
	return NewS3Store(objects, index, 30*time.Second, enqueuer), objects, enqueuer
}

func TestPostKey(t *testing.T) {
	post := testPost("abc123", 3, true)
	post.CreatedAt = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "posts/2025/03/post-abc123.json", PostKey(post))
}

func TestS3StoreSaveWritesObjectAndIndex(t *testing.T) {
	store, objects, _ := newTestS3Store()
	ctx := context.Background()

	post := testPost("a1", 3, true)
	_, err := store.SavePost(ctx, post)
	require.NoError(t, err)

	body, err := objects.Get(ctx, PostKey(post))
	require.NoError(t, err)
	assert.NotNil(t, body)

	manifest, err := objects.Get(ctx, IndexKey)
	require.NoError(t, err)
	assert.NotNil(t, manifest)

	got, err := store.GetPostById(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "content a1", got.Content)
}

func TestS3StoreGetMissingReturnsNil(t *testing.T) {
	store, _, _ := newTestS3Store()

	got, err := store.GetPostById(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestS3StoreListsWithoutIndex(t *testing.T) {
	store, objects, _ := newTestS3Store()
	ctx := context.Background()

	for _, p := range []struct {
		id        string
		month     int
		published bool
	}{
		{"p1", 3, true},
		{"p2", 3, false},
		{"p3", 7, true},
	} {
		_, err := store.SavePost(ctx, testPost(p.id, p.month, p.published))
		require.NoError(t, err)
	}

	// Drop the manifest entirely: every read must fall back to listing
	// the prefix.
	objects.Delete(IndexKey)
	store.index.Invalidate()

	posts, err := store.GetPublishedPostsByMonthOrdered(ctx, 3)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "p1", posts[0].ID)

	all, err := store.GetAllPosts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	got, err := store.GetPostById(ctx, "p2")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestS3StoreStaleIndexEntryFallsBackToScan(t *testing.T) {
	store, objects, _ := newTestS3Store()
	ctx := context.Background()

	post := testPost("a1", 3, true)
	_, err := store.SavePost(ctx, post)
	require.NoError(t, err)

	// The object is gone but the manifest still points at it. The lookup
	// must degrade to a scan and come back empty instead of erroring.
	objects.Delete(PostKey(post))

	got, err := store.GetPostById(ctx, "a1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestS3StoreIndexFilterReappliedOnRecords(t *testing.T) {
	store, objects, _ := newTestS3Store()
	ctx := context.Background()

	post := testPost("a1", 3, true)
	_, err := store.SavePost(ctx, post)
	require.NoError(t, err)

	// Unpublish the stored object behind the index's back: the manifest
	// still claims it is published, but the fetched record wins.
	unpublished := *post
	unpublished.Published = false
	raw, err := json.Marshal(&unpublished)
	require.NoError(t, err)
	require.NoError(t, objects.Put(ctx, PostKey(post), raw, "application/json"))

	posts, err := store.GetPublishedPostsByMonthOrdered(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestS3StoreUpdatePreservesIdentityAndKey(t *testing.T) {
	store, objects, _ := newTestS3Store()
	ctx := context.Background()

	original := testPost("a1", 3, false)
	_, err := store.SavePost(ctx, original)
	require.NoError(t, err)

	title := "Renamed"
	month := 7
	updated, err := store.UpdatePost(ctx, "a1", models.PostPatch{Title: &title, Month: &month})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "a1", updated.ID)
	assert.Equal(t, original.CreatedAt, updated.CreatedAt)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, 7, updated.Month)

	// The key derives from createdAt, so a month change never moves the
	// object.
	body, err := objects.Get(ctx, PostKey(original))
	require.NoError(t, err)
	require.NotNil(t, body)
	var stored models.Post
	require.NoError(t, json.Unmarshal(body, &stored))
	assert.Equal(t, 7, stored.Month)
}

func TestS3StoreUpdateMissingReturnsNil(t *testing.T) {
	store, _, _ := newTestS3Store()

	title := "x"
	updated, err := store.UpdatePost(context.Background(), "ghost", models.PostPatch{Title: &title})
	require.NoError(t, err)
	assert.Nil(t, updated)
}

func TestS3StoreSoftDelete(t *testing.T) {
	store, _, _ := newTestS3Store()
	ctx := context.Background()

	_, err := store.SavePost(ctx, testPost("a1", 3, true))
	require.NoError(t, err)

	ok, err := store.DeletePost(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.GetPostById(ctx, "a1")
	require.NoError(t, err)
	assert.Nil(t, got)

	posts, err := store.GetAllPosts(ctx)
	require.NoError(t, err)
	assert.Empty(t, posts)

	all, err := store.GetAllPostsIncludingDeleted(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Deleted)

	ok, err = store.DeletePost(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestS3StoreIndexFailureDoesNotFailSave(t *testing.T) {
	objects := objectstore.NewMemoryClient()
	failing := &failingPutClient{MemoryClient: objects, failKey: IndexKey}
	enqueuer := &stubEnqueuer{}
	store := NewS3Store(failing, NewIndex(failing, 0, time.Now), 30*time.Second, enqueuer)
	ctx := context.Background()

	post := testPost("a1", 3, true)
	saved, err := store.SavePost(ctx, post)
	require.NoError(t, err)
	require.NotNil(t, saved)

	// The object landed even though the manifest write was rejected.
	body, err := objects.Get(ctx, PostKey(post))
	require.NoError(t, err)
	assert.NotNil(t, body)

	// A rebuild was enqueued to close the gap.
	require.Len(t, enqueuer.reasons, 1)
	assert.Contains(t, enqueuer.reasons[0], "a1")

	// Reads stay correct through the fallback scan.
	got, err := store.GetPostById(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestS3StoreSkipsUnparseableObjects(t *testing.T) {
	store, objects, _ := newTestS3Store()
	ctx := context.Background()

	_, err := store.SavePost(ctx, testPost("a1", 3, true))
	require.NoError(t, err)
	require.NoError(t, objects.Put(ctx, "posts/2025/03/post-junk.json", []byte("{broken"), "application/json"))
	objects.Delete(IndexKey)

	posts, err := store.GetAllPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "a1", posts[0].ID)
}

func TestS3StoreScanTimeoutPropagates(t *testing.T) {
	objects := objectstore.NewMemoryClient()
	index := NewIndex(objects, 0, time.Now)
	// An expired scan budget must surface as an error, not an empty feed.
	store := NewS3Store(objects, index, -time.Second, nil)
	ctx := context.Background()

	_, err := store.SavePost(ctx, testPost("a1", 3, true))
	require.NoError(t, err)
	objects.Delete(IndexKey)

	_, err = store.GetAllPosts(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestS3StoreRebuildIndex(t *testing.T) {
	store, objects, _ := newTestS3Store()
	ctx := context.Background()

	_, err := store.SavePost(ctx, testPost("a1", 3, true))
	require.NoError(t, err)
	_, err = store.SavePost(ctx, testPost("b2", 5, false))
	require.NoError(t, err)
	_, err = store.DeletePost(ctx, "b2")
	require.NoError(t, err)

	objects.Delete(IndexKey)
	store.index.Invalidate()

	require.NoError(t, store.RebuildIndex(ctx))

	body, err := objects.Get(ctx, IndexKey)
	require.NoError(t, err)
	require.NotNil(t, body)

	var manifest PostIndex
	require.NoError(t, json.Unmarshal(body, &manifest))
	assert.Equal(t, 2, manifest.TotalPosts)

	// Deleted posts stay indexed so admin reads and un-deletes work.
	deleted := 0
	for _, entry := range manifest.Posts {
		if entry.Deleted {
			deleted++
		}
	}
	assert.Equal(t, 1, deleted)
}
