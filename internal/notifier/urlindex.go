package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// URLIndex records the local cache path already resolved for a URL, keyed
// by its cache key, so a second subscription pushing the same illust
// skips a redundant disk stat and (on a cold cache) a redundant download.
type URLIndex struct {
	rdb *redis.Client
	ttl time.Duration
}

const urlIndexKeyPrefix = "pixivbot:urlindex:"

// NewURLIndex wraps an existing redis client. ttl bounds how long a
// resolved path is trusted before a caller re-validates it on disk.
func NewURLIndex(rdb *redis.Client, ttl time.Duration) *URLIndex {
	return &URLIndex{rdb: rdb, ttl: ttl}
}

// Lookup returns the cached local path for url, if indexed.
func (u *URLIndex) Lookup(ctx context.Context, url string) (string, bool, error) {
	path, err := u.rdb.Get(ctx, urlIndexKeyPrefix+cacheKey(url)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("notifier: url index lookup: %w", err)
	}
	return path, true, nil
}

// Record stores the resolved local path for url.
func (u *URLIndex) Record(ctx context.Context, url, path string) error {
	if err := u.rdb.Set(ctx, urlIndexKeyPrefix+cacheKey(url), path, u.ttl).Err(); err != nil {
		return fmt.Errorf("notifier: url index record: %w", err)
	}
	return nil
}
