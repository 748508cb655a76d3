// Package fetch downloads release artifacts and checks them against the
// checksum and install targets their descriptor declares.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
)

// Config controls downloads.
type Config struct {
	Timeout   time.Duration
	Retries   int
	Workers   int
	CacheSize int
	Backoff   time.Duration
	// Progress receives a progress bar per download when set.
	Progress io.Writer
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Timeout:   5 * time.Minute,
		Retries:   3,
		Workers:   4,
		CacheSize: 128,
		Backoff:   3 * time.Second,
	}
}

// StatusError is an HTTP response that will not succeed on retry.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// errRetry marks a failure worth another attempt.
var errRetry = errors.New("retryable")

// Artifact is a downloaded file and its digest.
type Artifact struct {
	URL    string
	Path   string
	SHA256 string
	Size   int64
}

// Remove deletes the downloaded file and its temp directory.
func (a *Artifact) Remove() error {
	return os.RemoveAll(filepath.Dir(a.Path))
}

// Client downloads artifacts.
type Client struct {
	http   *http.Client
	config Config
	cache  *lru.Cache[string, string]
	sleep  func(time.Duration)
	logger zerolog.Logger
}

// New creates a Client. Zero config fields fall back to DefaultConfig.
func New(config Config, logger zerolog.Logger) (*Client, error) {
	def := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.Retries < 0 {
		config.Retries = 0
	}
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.CacheSize <= 0 {
		config.CacheSize = def.CacheSize
	}
	if config.Backoff <= 0 {
		config.Backoff = def.Backoff
	}

	cache, err := lru.New[string, string](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create digest cache: %w", err)
	}

	return &Client{
		http:   &http.Client{Timeout: config.Timeout},
		config: config,
		cache:  cache,
		sleep:  time.Sleep,
		logger: logger,
	}, nil
}

// Fetch downloads rawURL into a temp file, hashing it as it streams.
// Network errors and 5xx responses are retried; other non-2xx responses
// fail immediately with a *StatusError. The caller removes the artifact.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Artifact, error) {
	var err error
	for attempt := 0; attempt <= c.config.Retries; attempt++ {
		var a *Artifact
		a, err = c.fetchOnce(ctx, rawURL)
		if err == nil {
			c.cache.Add(rawURL, a.SHA256)
			return a, nil
		}
		if !errors.Is(err, errRetry) || ctx.Err() != nil {
			return nil, err
		}
		if attempt < c.config.Retries {
			c.logger.Warn().
				Str("url", rawURL).
				Int("attempt", attempt+1).
				Err(err).
				Msg("download failed, retry imminent")
			c.sleep(c.config.Backoff)
		}
	}
	return nil, fmt.Errorf("giving up on %s after %d attempts: %w", rawURL, c.config.Retries+1, err)
}

// Digest returns the sha256 of the artifact at rawURL, downloading it only
// when this client has not already hashed that URL.
func (c *Client) Digest(ctx context.Context, rawURL string) (string, error) {
	if sum, ok := c.cache.Get(rawURL); ok {
		c.logger.Debug().Str("url", rawURL).Msg("digest cache hit")
		return sum, nil
	}
	a, err := c.Fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer a.Remove()
	return a.SHA256, nil
}

func (c *Client) fetchOnce(ctx context.Context, rawURL string) (*Artifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid url %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", "tapkeeper")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errRetry, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %w", errRetry, &StatusError{URL: rawURL, Code: resp.StatusCode})
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}

	dir, err := os.MkdirTemp("", "tapkeeper-fetch-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	dest := filepath.Join(dir, artifactName(rawURL))
	f, err := os.Create(dest)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer f.Close()

	var w io.Writer = f
	if c.config.Progress != nil && resp.ContentLength > 0 {
		bar := progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetWriter(c.config.Progress),
			progressbar.OptionSetDescription(artifactName(rawURL)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(c.config.Progress)
			}),
		)
		defer bar.Finish()
		w = io.MultiWriter(f, bar)
	}

	hr := newHashReader(resp.Body, sha256.New())
	size, err := io.Copy(w, hr)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("%w: reading %s: %w", errRetry, rawURL, err)
	}

	a := &Artifact{
		URL:    rawURL,
		Path:   dest,
		SHA256: hex.EncodeToString(hr.Sum(nil)),
		Size:   size,
	}
	c.logger.Debug().
		Str("url", rawURL).
		Int64("bytes", size).
		Str("sha256", a.SHA256).
		Msg("downloaded artifact")
	return a, nil
}

// artifactName keeps the URL's file name so the archive format can be
// recognised by extension.
func artifactName(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" {
			return base
		}
	}
	return "artifact"
}
