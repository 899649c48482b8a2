package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/scrapbook/monthbook/internal/models"
)

// FileStore keeps every post in one JSON array file. Each write rewrites
// the whole file through a temp-file + validate + rename sequence, so an
// individual write is atomic and crash-safe. The mutex serializes every
// file access within the process: read-modify-write cycles, and reads
// too, because a read that hits corruption rewrites the repaired file.
// Concurrent writers from other processes remain last-writer-wins.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// readAll loads the whole store. Callers must hold s.mu: a parse failure
// repairs and rewrites the file in place, and that rewrite must not race
// a concurrent save.
func (s *FileStore) readAll() ([]*models.Post, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []*models.Post{}, nil
		}
		return nil, fmt.Errorf("failed to read posts file: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	var posts []*models.Post
	parseErr := json.Unmarshal(trimmed, &posts)
	if parseErr == nil {
		return posts, nil
	}

	// One corruption pattern has been seen in practice: a duplicated set
	// of trailing closing brackets. Repair exactly that and nothing else.
	repaired, ok := trimTrailingBrackets(trimmed)
	if !ok {
		return nil, fmt.Errorf("posts file is corrupt: %w", parseErr)
	}
	if err := json.Unmarshal(repaired, &posts); err != nil {
		return nil, fmt.Errorf("posts file is corrupt: %w", parseErr)
	}

	slog.Warn("repaired corrupted posts file, rewriting", "path", s.path)
	if err := s.writeAll(posts); err != nil {
		return nil, fmt.Errorf("failed to persist repaired posts file: %w", err)
	}
	return posts, nil
}

// trimTrailingBrackets finds the position where the top-level array
// closes and accepts the input only if everything after it is stray
// closing brackets and whitespace.
func trimTrailingBrackets(data []byte) ([]byte, bool) {
	if len(data) == 0 || data[0] != '[' {
		return nil, false
	}

	depth := 0
	last := -1
	for i, b := range data {
		switch b {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				last = i
			}
		}
	}
	if last < 0 || last >= len(data)-1 {
		return nil, false
	}

	after := bytes.TrimSpace(data[last+1:])
	if len(after) == 0 {
		return nil, false
	}
	for _, b := range after {
		if b != ']' {
			return nil, false
		}
	}
	return data[:last+1], true
}

func (s *FileStore) writeAll(posts []*models.Post) error {
	if posts == nil {
		posts = []*models.Post{}
	}

	data, err := json.MarshalIndent(posts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize posts: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp posts file: %w", err)
	}

	// Read the temp file back and make sure it parses as an array before
	// it is allowed to replace the store.
	verify, err := os.ReadFile(tmp)
	if err == nil {
		var check []json.RawMessage
		err = json.Unmarshal(verify, &check)
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("temp posts file failed validation: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace posts file: %w", err)
	}
	return nil
}

func (s *FileStore) GetAllPosts(ctx context.Context) ([]*models.Post, error) {
	s.mu.Lock()
	posts, err := s.readAll()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return filterPosts(posts, func(p *models.Post) bool { return !p.Deleted }), nil
}

func (s *FileStore) GetAllPostsIncludingDeleted(ctx context.Context) ([]*models.Post, error) {
	s.mu.Lock()
	posts, err := s.readAll()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	models.SortPostsForAdmin(posts)
	return posts, nil
}

func (s *FileStore) GetPublishedPostsOrdered(ctx context.Context) ([]*models.Post, error) {
	posts, err := s.GetAllPosts(ctx)
	if err != nil {
		return nil, err
	}
	published := filterPosts(posts, func(p *models.Post) bool { return p.Published })
	models.SortPostsForMonth(published)
	return published, nil
}

func (s *FileStore) GetPublishedPostsByMonthOrdered(ctx context.Context, month int) ([]*models.Post, error) {
	posts, err := s.GetAllPosts(ctx)
	if err != nil {
		return nil, err
	}
	matched := filterPosts(posts, func(p *models.Post) bool { return p.Published && p.Month == month })
	models.SortPostsForMonth(matched)
	return matched, nil
}

func (s *FileStore) GetPostById(ctx context.Context, id string) (*models.Post, error) {
	posts, err := s.GetAllPosts(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range posts {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (s *FileStore) GetPostsByMonth(ctx context.Context, month int) ([]*models.Post, error) {
	posts, err := s.GetAllPosts(ctx)
	if err != nil {
		return nil, err
	}
	return filterPosts(posts, func(p *models.Post) bool { return p.Month == month }), nil
}

func (s *FileStore) SavePost(ctx context.Context, post *models.Post) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	posts, err := s.readAll()
	if err != nil {
		return nil, err
	}
	posts = append(posts, post)
	if err := s.writeAll(posts); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *FileStore) UpdatePost(ctx context.Context, id string, patch models.PostPatch) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Work over the full list, deleted included, so a deleted post can be
	// un-deleted through the same path.
	posts, err := s.readAll()
	if err != nil {
		return nil, err
	}

	for i, p := range posts {
		if p.ID != id {
			continue
		}
		updated := *p
		patch.Apply(&updated, time.Now().UTC())
		posts[i] = &updated
		if err := s.writeAll(posts); err != nil {
			return nil, err
		}
		return &updated, nil
	}
	return nil, nil
}

func (s *FileStore) DeletePost(ctx context.Context, id string) (bool, error) {
	deleted := true
	updated, err := s.UpdatePost(ctx, id, models.PostPatch{Deleted: &deleted})
	if err != nil {
		return false, err
	}
	return updated != nil, nil
}

func filterPosts(posts []*models.Post, keep func(*models.Post) bool) []*models.Post {
	matched := make([]*models.Post, 0, len(posts))
	for _, p := range posts {
		if keep(p) {
			matched = append(matched, p)
		}
	}
	return matched
}
