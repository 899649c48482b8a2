package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/scrapbook/monthbook/internal/models"
	"github.com/scrapbook/monthbook/internal/objectstore"
)

const postsPrefix = "posts/"

const fetchConcurrency = 10

// PostKey derives the deterministic object key for a post from its
// creation date: posts/YYYY/MM/post-{id}.json. createdAt is immutable, so
// the key never moves.
func PostKey(p *models.Post) string {
	return fmt.Sprintf("%s%04d/%02d/post-%s.json", postsPrefix, p.CreatedAt.Year(), int(p.CreatedAt.Month()), p.ID)
}

// S3Store keeps one JSON object per post and maintains the manifest index
// as a read-through optimization. Every read path has an index-less
// fallback: list the whole prefix and filter in memory. The fallback is
// slow but correct, and it is what heals a stale index.
type S3Store struct {
	objects     objectstore.Client
	index       *Index
	scanTimeout time.Duration
	rebuilds    IndexRebuildEnqueuer
}

func NewS3Store(objects objectstore.Client, index *Index, scanTimeout time.Duration, rebuilds IndexRebuildEnqueuer) *S3Store {
	return &S3Store{
		objects:     objects,
		index:       index,
		scanTimeout: scanTimeout,
		rebuilds:    rebuilds,
	}
}

func isPostKey(key string) bool {
	return key != IndexKey && strings.HasSuffix(key, ".json")
}

func (s *S3Store) fetchPost(ctx context.Context, key string) (*models.Post, error) {
	body, err := s.objects.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}
	var post models.Post
	if err := json.Unmarshal(body, &post); err != nil {
		// A single unreadable object must not take the whole feed down.
		slog.Warn("skipping unparseable post object", "key", key, "error", err)
		return nil, nil
	}
	return &post, nil
}

// getPostAnyState finds a post regardless of its deleted flag. It tries
// the index first and degrades to a bounded linear scan of the prefix.
func (s *S3Store) getPostAnyState(ctx context.Context, id string) (*models.Post, error) {
	index, err := s.index.Read(ctx)
	if err != nil {
		slog.Warn("posts index unavailable, falling back to full scan", "error", err)
		index = nil
	}

	if index != nil {
		for _, entry := range index.Posts {
			if entry.ID != id {
				continue
			}
			post, err := s.fetchPost(ctx, entry.S3Key)
			if err != nil {
				return nil, err
			}
			if post != nil && post.ID == id {
				return post, nil
			}
			// Indexed but gone or mismatched: the index is stale. Scan.
			break
		}
	}

	return s.scanForPost(ctx, id)
}

func (s *S3Store) scanForPost(ctx context.Context, id string) (*models.Post, error) {
	ctx, cancel := context.WithTimeout(ctx, s.scanTimeout)
	defer cancel()

	keys, err := s.objects.List(ctx, postsPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to scan posts: %w", err)
	}
	for _, key := range keys {
		if !isPostKey(key) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("post scan timed out: %w", err)
		}
		post, err := s.fetchPost(ctx, key)
		if err != nil {
			return nil, err
		}
		if post != nil && post.ID == id {
			return post, nil
		}
	}
	return nil, nil
}

type listFilter struct {
	month          *int
	published      *bool
	includeDeleted bool
}

func (f listFilter) matches(month int, published, deleted bool) bool {
	if !f.includeDeleted && deleted {
		return false
	}
	if f.month != nil && month != *f.month {
		return false
	}
	if f.published != nil && published != *f.published {
		return false
	}
	return true
}

func (s *S3Store) listPosts(ctx context.Context, filter listFilter) ([]*models.Post, error) {
	index, err := s.index.Read(ctx)
	if err != nil {
		slog.Warn("posts index unavailable, falling back to full listing", "error", err)
		index = nil
	}

	var keys []string
	if index != nil {
		for _, entry := range index.Posts {
			if filter.matches(entry.Month, entry.Published, entry.Deleted) {
				keys = append(keys, entry.S3Key)
			}
		}
		posts, err := s.fetchAll(ctx, keys)
		if err != nil {
			return nil, err
		}
		// The index can lag: re-apply the filter on the fetched records.
		return filterPosts(posts, func(p *models.Post) bool {
			return filter.matches(p.Month, p.Published, p.Deleted)
		}), nil
	}

	listCtx, cancel := context.WithTimeout(ctx, s.scanTimeout)
	defer cancel()

	all, err := s.objects.List(listCtx, postsPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	for _, key := range all {
		if isPostKey(key) {
			keys = append(keys, key)
		}
	}
	posts, err := s.fetchAll(listCtx, keys)
	if err != nil {
		return nil, err
	}
	return filterPosts(posts, func(p *models.Post) bool {
		return filter.matches(p.Month, p.Published, p.Deleted)
	}), nil
}

// fetchAll gets every key in parallel, bounded by a semaphore.
func (s *S3Store) fetchAll(ctx context.Context, keys []string) ([]*models.Post, error) {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		posts     []*models.Post
		firstErr  error
		semaphore = make(chan struct{}, fetchConcurrency)
	)

	for _, key := range keys {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(key string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			post, err := s.fetchPost(ctx, key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			if post != nil {
				posts = append(posts, post)
			}
		}(key)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return posts, nil
}

func (s *S3Store) GetAllPosts(ctx context.Context) ([]*models.Post, error) {
	return s.listPosts(ctx, listFilter{})
}

func (s *S3Store) GetAllPostsIncludingDeleted(ctx context.Context) ([]*models.Post, error) {
	posts, err := s.listPosts(ctx, listFilter{includeDeleted: true})
	if err != nil {
		return nil, err
	}
	models.SortPostsForAdmin(posts)
	return posts, nil
}

func (s *S3Store) GetPublishedPostsOrdered(ctx context.Context) ([]*models.Post, error) {
	published := true
	posts, err := s.listPosts(ctx, listFilter{published: &published})
	if err != nil {
		return nil, err
	}
	models.SortPostsForMonth(posts)
	return posts, nil
}

func (s *S3Store) GetPublishedPostsByMonthOrdered(ctx context.Context, month int) ([]*models.Post, error) {
	published := true
	posts, err := s.listPosts(ctx, listFilter{month: &month, published: &published})
	if err != nil {
		return nil, err
	}
	models.SortPostsForMonth(posts)
	return posts, nil
}

func (s *S3Store) GetPostById(ctx context.Context, id string) (*models.Post, error) {
	post, err := s.getPostAnyState(ctx, id)
	if err != nil {
		return nil, err
	}
	if post == nil || post.Deleted {
		return nil, nil
	}
	return post, nil
}

func (s *S3Store) GetPostsByMonth(ctx context.Context, month int) ([]*models.Post, error) {
	return s.listPosts(ctx, listFilter{month: &month})
}

func (s *S3Store) SavePost(ctx context.Context, post *models.Post) (*models.Post, error) {
	if err := s.putPost(ctx, post); err != nil {
		return nil, err
	}
	s.syncIndex(ctx, post)
	return post, nil
}

func (s *S3Store) UpdatePost(ctx context.Context, id string, patch models.PostPatch) (*models.Post, error) {
	existing, err := s.getPostAnyState(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	updated := *existing
	patch.Apply(&updated, time.Now().UTC())

	if err := s.putPost(ctx, &updated); err != nil {
		return nil, err
	}
	s.syncIndex(ctx, &updated)
	return &updated, nil
}

func (s *S3Store) DeletePost(ctx context.Context, id string) (bool, error) {
	deleted := true
	updated, err := s.UpdatePost(ctx, id, models.PostPatch{Deleted: &deleted})
	if err != nil {
		return false, err
	}
	return updated != nil, nil
}

func (s *S3Store) putPost(ctx context.Context, post *models.Post) error {
	body, err := json.MarshalIndent(post, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize post %s: %w", post.ID, err)
	}
	if err := s.objects.Put(ctx, PostKey(post), body, "application/json"); err != nil {
		return fmt.Errorf("failed to save post %s: %w", post.ID, err)
	}
	return nil
}

// RebuildIndex regenerates the manifest from a full prefix listing. It
// is the self-heal path for the crash window between an object write and
// its index write.
func (s *S3Store) RebuildIndex(ctx context.Context) error {
	all, err := s.objects.List(ctx, postsPrefix)
	if err != nil {
		return fmt.Errorf("failed to list posts for index rebuild: %w", err)
	}

	var keys []string
	for _, key := range all {
		if isPostKey(key) {
			keys = append(keys, key)
		}
	}

	posts, err := s.fetchAll(ctx, keys)
	if err != nil {
		return fmt.Errorf("failed to fetch posts for index rebuild: %w", err)
	}

	index := &PostIndex{Posts: make([]IndexEntry, 0, len(posts))}
	for _, post := range posts {
		index.Posts = append(index.Posts, EntryFromPost(post))
	}
	if err := s.index.Write(ctx, index); err != nil {
		return err
	}
	slog.Info("rebuilt posts index", "totalPosts", index.TotalPosts)
	return nil
}

// syncIndex upserts the post's index entry. The object write already
// succeeded, so an index failure does not fail the mutation: the fallback
// scan keeps reads correct, and a rebuild is enqueued to close the gap.
func (s *S3Store) syncIndex(ctx context.Context, post *models.Post) {
	if err := s.index.UpsertEntry(ctx, post); err != nil {
		slog.Error("failed to update posts index", "id", post.ID, "error", err)
		if s.rebuilds != nil {
			if err := s.rebuilds.EnqueueIndexRebuild("index write failed for post " + post.ID); err != nil {
				slog.Error("failed to enqueue index rebuild", "error", err)
			}
		}
	}
}
