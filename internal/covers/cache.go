package covers

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const maxCoverBytes = 5 << 20

var (
	ErrNoCover     = errors.New("book has no cover")
	ErrNotImage    = errors.New("cover is not an image")
	ErrCoverTooBig = errors.New("cover exceeds size limit")
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Cache keeps local copies of cover images keyed by book and source URL, so
// a changed URL never serves the old picture.
type Cache struct {
	cacheDir   string
	httpClient *http.Client

	mu      sync.Mutex
	pending map[string]*sync.Mutex
}

func NewCache(cacheDir string) (*Cache, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	return &Cache{
		cacheDir: cacheDir,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		pending: make(map[string]*sync.Mutex),
	}, nil
}

// GetCover returns the path of the cached cover, downloading it on first use.
func (c *Cache) GetCover(ctx context.Context, bookID uint, coverURL string) (string, error) {
	if coverURL == "" {
		return "", ErrNoCover
	}
	u, err := url.Parse(coverURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: unsupported url", ErrNoCover)
	}

	prefix := c.coverPrefix(bookID, coverURL)
	if path, ok := c.lookup(prefix); ok {
		return path, nil
	}

	// one download per cover at a time
	lock := c.keyLock(prefix)
	lock.Lock()
	defer lock.Unlock()

	if path, ok := c.lookup(prefix); ok {
		return path, nil
	}
	return c.fetchAndCache(ctx, coverURL, prefix)
}

// InvalidateCover removes every cached cover of a book.
func (c *Cache) InvalidateCover(bookID uint) error {
	matches, err := filepath.Glob(filepath.Join(c.cacheDir, fmt.Sprintf("libro_%d_*", bookID)))
	if err != nil {
		return err
	}
	for _, match := range matches {
		if err := os.Remove(match); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (c *Cache) CacheDir() string {
	return c.cacheDir
}

func (c *Cache) coverPrefix(bookID uint, coverURL string) string {
	hash := sha256.Sum256([]byte(coverURL))
	return fmt.Sprintf("libro_%d_%x", bookID, hash[:8])
}

func (c *Cache) lookup(prefix string) (string, bool) {
	matches, _ := filepath.Glob(filepath.Join(c.cacheDir, prefix+".*"))
	if len(matches) == 0 {
		return "", false
	}
	return matches[0], true
}

func (c *Cache) keyLock(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.pending[key]
	if !ok {
		l = &sync.Mutex{}
		c.pending[key] = l
	}
	return l
}

func (c *Cache) fetchAndCache(ctx context.Context, coverURL, prefix string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Biblioteca/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch cover: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch cover: status %d", resp.StatusCode)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	ext, ok := extensions[strings.ToLower(mediaType)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotImage, mediaType)
	}

	tmpFile, err := os.CreateTemp(c.cacheDir, "tmp_")
	if err != nil {
		return "", err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		os.Remove(tmpPath)
	}()

	n, err := io.Copy(tmpFile, io.LimitReader(resp.Body, maxCoverBytes+1))
	if err != nil {
		return "", err
	}
	if n > maxCoverBytes {
		return "", ErrCoverTooBig
	}
	if err := tmpFile.Close(); err != nil {
		return "", err
	}

	path := filepath.Join(c.cacheDir, prefix+ext)
	if err := os.Rename(tmpPath, path); err != nil {
		return "", err
	}
	return path, nil
}
