// Package objectstore abstracts the bucket operations the post stores
// need: get/put by key, list by prefix, and presigned PUT URLs for
// direct client uploads.
package objectstore

import (
	"context"
	"time"
)

type Client interface {
	// Get returns the object body, or (nil, nil) when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte, contentType string) error
	// List returns all keys under the prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, error)
}
