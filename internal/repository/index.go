package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/scrapbook/monthbook/internal/models"
	"github.com/scrapbook/monthbook/internal/objectstore"
)

// IndexKey is the fixed manifest location inside the posts prefix.
const IndexKey = "posts/index.json"

const indexVersion = "1.0"

// IndexEntry carries every Post field except content, plus the storage
// key of the full object.
type IndexEntry struct {
	ID        string               `json:"id"`
	Type      string               `json:"type"`
	Title     string               `json:"title"`
	Month     int                  `json:"month"`
	Caption   string               `json:"caption,omitempty"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
	CreatedBy string               `json:"createdBy,omitempty"`
	Published bool                 `json:"published"`
	Order     int                  `json:"order"`
	Metadata  *models.FileMetadata `json:"metadata,omitempty"`
	Tags      []string             `json:"tags,omitempty"`
	Deleted   bool                 `json:"deleted,omitempty"`
	S3Key     string               `json:"s3Key"`
}

type PostIndex struct {
	Version     string       `json:"version"`
	LastUpdated time.Time    `json:"lastUpdated"`
	TotalPosts  int          `json:"totalPosts"`
	Posts       []IndexEntry `json:"posts"`
}

func EntryFromPost(p *models.Post) IndexEntry {
	return IndexEntry{
		ID:        p.ID,
		Type:      p.Type,
		Title:     p.Title,
		Month:     p.Month,
		Caption:   p.Caption,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		CreatedBy: p.CreatedBy,
		Published: p.Published,
		Order:     p.Order,
		Metadata:  p.Metadata,
		Tags:      p.Tags,
		Deleted:   p.Deleted,
		S3Key:     PostKey(p),
	}
}

// Index is the derived manifest of post metadata. It is a cache, never a
// source of truth: readers that need absolute freshness must bypass it.
// The parsed manifest is held in memory for a TTL window; the snapshot is
// replaced wholesale, never mutated in place.
type Index struct {
	objects objectstore.Client
	ttl     time.Duration
	now     func() time.Time

	mu        sync.RWMutex
	cached    *PostIndex
	fetchedAt time.Time
}

func NewIndex(objects objectstore.Client, ttl time.Duration, now func() time.Time) *Index {
	return &Index{objects: objects, ttl: ttl, now: now}
}

// Read returns the manifest, serving from the in-memory snapshot while it
// is fresh. A missing manifest is (nil, nil): "no index yet, use the
// fallback listing."
func (ix *Index) Read(ctx context.Context) (*PostIndex, error) {
	ix.mu.RLock()
	if ix.cached != nil && ix.now().Sub(ix.fetchedAt) < ix.ttl {
		cached := ix.cached
		ix.mu.RUnlock()
		return cached, nil
	}
	ix.mu.RUnlock()

	body, err := ix.objects.Get(ctx, IndexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch posts index: %w", err)
	}
	if body == nil {
		return nil, nil
	}

	var index PostIndex
	if err := json.Unmarshal(body, &index); err != nil {
		return nil, fmt.Errorf("failed to parse posts index: %w", err)
	}

	ix.mu.Lock()
	ix.cached = &index
	ix.fetchedAt = ix.now()
	ix.mu.Unlock()
	return &index, nil
}

// Write persists the manifest and refreshes the snapshot optimistically,
// so readers in this process see the new index without refetching.
func (ix *Index) Write(ctx context.Context, index *PostIndex) error {
	index.Version = indexVersion
	index.LastUpdated = ix.now().UTC()
	index.TotalPosts = len(index.Posts)

	body, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize posts index: %w", err)
	}
	if err := ix.objects.Put(ctx, IndexKey, body, "application/json"); err != nil {
		return fmt.Errorf("failed to write posts index: %w", err)
	}

	ix.mu.Lock()
	ix.cached = index
	ix.fetchedAt = ix.now()
	ix.mu.Unlock()
	return nil
}

// UpsertEntry replaces the entry with the post's id, or appends it.
func (ix *Index) UpsertEntry(ctx context.Context, post *models.Post) error {
	index, err := ix.Read(ctx)
	if err != nil {
		return err
	}
	if index == nil {
		index = &PostIndex{}
	}

	entry := EntryFromPost(post)
	updated := &PostIndex{Posts: make([]IndexEntry, 0, len(index.Posts)+1)}
	replaced := false
	for _, e := range index.Posts {
		if e.ID == entry.ID {
			updated.Posts = append(updated.Posts, entry)
			replaced = true
			continue
		}
		updated.Posts = append(updated.Posts, e)
	}
	if !replaced {
		updated.Posts = append(updated.Posts, entry)
	}
	return ix.Write(ctx, updated)
}

// Invalidate drops the in-memory snapshot. The reconcile job calls it
// after rebuilding the manifest out of band.
func (ix *Index) Invalidate() {
	ix.mu.Lock()
	ix.cached = nil
	ix.fetchedAt = time.Time{}
	ix.mu.Unlock()
}
