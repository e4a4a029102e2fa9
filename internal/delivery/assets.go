package delivery

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"tmdbsync/internal/clock"
	"tmdbsync/internal/fetch"
	"tmdbsync/internal/logging"
	"tmdbsync/internal/services"
	"tmdbsync/internal/textutil"
)

const maxAssetBytes = 20 << 20

// AssetOptions configures an AssetCache.
type AssetOptions struct {
	Doer    fetch.Doer
	Clock   clock.Clock
	Logger  *slog.Logger
	Timeout time.Duration
	Policy  RetryPolicy
}

// DefaultAssetPolicy retries a download five times with 0.5-2s jitter.
var DefaultAssetPolicy = RetryPolicy{Attempts: 5, MinDelay: 500 * time.Millisecond, MaxDelay: 2 * time.Second}

// AssetCache maps remote image URLs to downloaded files. Concurrent requests
// for the same URL share one download.
type AssetCache struct {
	dir     string
	doer    fetch.Doer
	clock   clock.Clock
	logger  *slog.Logger
	timeout time.Duration
	policy  RetryPolicy

	group singleflight.Group
	mu    sync.Mutex
	paths map[string]string
}

// NewAssetCache stores downloads under dir.
func NewAssetCache(dir string, opts AssetOptions) *AssetCache {
	c := &AssetCache{
		dir:     dir,
		doer:    opts.Doer,
		clock:   opts.Clock,
		logger:  logging.NewComponentLogger(opts.Logger, "assets"),
		timeout: opts.Timeout,
		policy:  opts.Policy,
		paths:   make(map[string]string),
	}
	if c.doer == nil {
		c.doer = &http.Client{}
	}
	if c.clock == nil {
		c.clock = clock.System()
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	if c.policy.Attempts <= 0 {
		c.policy = DefaultAssetPolicy
	}
	return c
}

// Fetch returns the local path of rawURL, downloading it on first use.
func (c *AssetCache) Fetch(ctx context.Context, rawURL string) (string, error) {
	if rawURL == "" {
		return "", services.Wrap(services.ErrDelivery, "delivery", "asset", "empty image url", nil)
	}
	c.mu.Lock()
	if p, ok := c.paths[rawURL]; ok {
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	ch := c.group.DoChan(rawURL, func() (any, error) {
		return c.fill(ctx, rawURL)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// fill runs the shared download for rawURL. It is detached from the caller
// that started it, so one canceled delivery does not fail the others waiting
// on the same image; budget bounds it instead.
func (c *AssetCache) fill(ctx context.Context, rawURL string) (string, error) {
	c.mu.Lock()
	if p, ok := c.paths[rawURL]; ok {
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.budget())
	defer cancel()

	target := filepath.Join(c.dir, assetFileName(rawURL))
	err := Retry(ctx, c.clock, c.policy, func(ctx context.Context) error {
		return c.download(ctx, rawURL, target)
	})
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, c.logger), "image download failed", "asset_download_failed",
			logging.String("url", rawURL),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the image host is reachable"),
			logging.String(logging.FieldImpact, "the post is not published to this destination"))
		return "", services.Wrap(services.ErrDelivery, "delivery", "asset", rawURL, err)
	}
	c.mu.Lock()
	c.paths[rawURL] = target
	c.mu.Unlock()
	c.logger.Debug("image downloaded", logging.String("url", rawURL), logging.String("path", target))
	return target, nil
}

// budget is the longest a shared download may run: every attempt at its
// timeout plus the longest pause between attempts.
func (c *AssetCache) budget() time.Duration {
	return time.Duration(c.policy.Attempts) * (c.timeout + c.policy.MaxDelay)
}

// Len returns the number of cached files.
func (c *AssetCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.paths)
}

// Cleanup removes every downloaded file and forgets them.
func (c *AssetCache) Cleanup() error {
	c.mu.Lock()
	paths := c.paths
	c.paths = make(map[string]string)
	c.mu.Unlock()

	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *AssetCache) download(ctx context.Context, rawURL, target string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.doer.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", rawURL, resp.Status)
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create asset directory: %w", err)
	}
	tmp := target + ".part"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create asset file: %w", err)
	}
	if _, err := io.Copy(file, io.LimitReader(resp.Body, maxAssetBytes)); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write asset: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close asset: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename asset: %w", err)
	}
	return nil
}

// assetFileName keeps the remote base name readable and prefixes a hash of
// the URL so different sizes of one image do not collide.
func assetFileName(rawURL string) string {
	sum := sha1.Sum([]byte(rawURL))
	prefix := hex.EncodeToString(sum[:6])
	base := "image.jpg"
	if u, err := url.Parse(rawURL); err == nil {
		if b := textutil.SanitizeFileName(path.Base(u.Path)); b != "" && b != "." && b != "-" {
			base = b
		}
	}
	return prefix + "-" + base
}
