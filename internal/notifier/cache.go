package notifier

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// FileCache stores downloaded illust images on local disk in a two-level
// bucketed layout so a single directory never accumulates millions of
// entries: {root}/{hash[:2]}/{hash}_{slug}.{ext}.
type FileCache struct {
	rootDir string
	log     zerolog.Logger
}

// NewFileCache builds a FileCache rooted at rootDir and starts its
// background cleanup sweep. ctx cancellation stops the sweep.
func NewFileCache(ctx context.Context, rootDir string, retentionDays int, log zerolog.Logger) *FileCache {
	c := &FileCache{rootDir: rootDir, log: log.With().Str("component", "filecache").Logger()}
	go c.runCleanup(ctx, retentionDays)
	return c
}

// Get returns the absolute local path for url if it is already cached.
func (c *FileCache) Get(url string) (string, bool) {
	path := c.resolvePath(url)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// Save writes data under the path resolved for url, creating parent
// directories as needed, and returns that path.
func (c *FileCache) Save(url string, data []byte) (string, error) {
	path := c.resolvePath(url)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("notifier: create cache directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("notifier: write cache file: %w", err)
	}
	return path, nil
}

func (c *FileCache) runCleanup(ctx context.Context, retentionDays int) {
	const startupDelay = 60 * time.Second
	const cleanupPeriod = 24 * time.Hour

	select {
	case <-ctx.Done():
		return
	case <-time.After(startupDelay):
	}

	ticker := time.NewTicker(cleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.cleanup(retentionDays)
			if err != nil {
				c.log.Error().Err(err).Msg("cache cleanup failed")
			} else if n > 0 {
				c.log.Info().Int("deleted", n).Msg("cache cleanup complete")
			}
		}
	}
}

func (c *FileCache) cleanup(retentionDays int) (int, error) {
	threshold := time.Duration(retentionDays) * 24 * time.Hour
	entries, err := os.ReadDir(c.rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	deleted := 0
	for _, bucket := range entries {
		if !bucket.IsDir() {
			continue
		}
		bucketPath := filepath.Join(c.rootDir, bucket.Name())
		files, err := os.ReadDir(bucketPath)
		if err != nil {
			continue
		}
		for _, f := range files {
			info, err := f.Info()
			if err != nil {
				continue
			}
			if time.Since(info.ModTime()) > threshold {
				if os.Remove(filepath.Join(bucketPath, f.Name())) == nil {
					deleted++
				}
			}
		}
	}
	return deleted, nil
}

// resolvePath computes the deterministic cache path for a URL.
func (c *FileCache) resolvePath(url string) string {
	key := cacheKey(url)
	prefix := key[:2]
	filename := fmt.Sprintf("%s_%s.%s", key, urlSlug(url), urlExtension(url))
	return filepath.Join(c.rootDir, prefix, filename)
}

func cacheKey(url string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(url))
	return fmt.Sprintf("%016x", h.Sum64())
}

// urlSlug takes the last path segment, keeps alphanumerics/underscore/dash,
// and caps it at 20 characters.
func urlSlug(url string) string {
	segs := strings.Split(url, "/")
	last := segs[len(segs)-1]

	var b strings.Builder
	for _, r := range last {
		if b.Len() >= 20 {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// urlExtension sniffs a short file extension from the URL, defaulting to
// jpg when absent or implausibly long (e.g. a query-string heavy URL with
// no real extension).
func urlExtension(url string) string {
	url = strings.SplitN(url, "?", 2)[0]
	idx := strings.LastIndex(url, ".")
	if idx < 0 {
		return "jpg"
	}
	ext := url[idx+1:]
	if ext == "" || len(ext) > 4 {
		return "jpg"
	}
	return ext
}
