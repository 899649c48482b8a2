package objectstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryClient is an in-process Client used by tests and endpoint-less
// local development, the way miniredis stands in for redis.
type MemoryClient struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{objects: make(map[string][]byte)}
}

func (c *MemoryClient) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	body, ok := c.objects[key]
	if !ok {
		return nil, nil
	}
	cp := make([]byte, len(body))
	copy(cp, body)
	return cp, nil
}

func (c *MemoryClient) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := make([]byte, len(body))
	copy(cp, body)
	c.mu.Lock()
	c.objects[key] = cp
	c.mu.Unlock()
	return nil
}

func (c *MemoryClient) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var keys []string
	for key := range c.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (c *MemoryClient) PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	return fmt.Sprintf("memory://uploads/%s?expires=%d", key, int(expires.Seconds())), nil
}

// Delete removes a key. Tests use it to simulate objects disappearing
// between an index read and the object fetch.
func (c *MemoryClient) Delete(key string) {
	c.mu.Lock()
	delete(c.objects, key)
	c.mu.Unlock()
}
