// Package fetch implements the Fetcher contract (C2): given a URL, return its
// status code, final URL, and document body, surfacing network/DNS/TLS
// failures as a single IO error kind. It is the only package in this module
// that touches the network.
//
// The transport tuning mirrors the teacher's colly-backed fetcher
// (newHTTPTransport), but the fetch itself is a single net/http GET per call
// rather than a colly collector: link extraction, the internality test, and
// deduplication are owned entirely by internal/crawl (C7), not by the fetch
// layer.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// ErrIO wraps any network, DNS, or TLS failure.
var ErrIO = errors.New("fetch io error")

// defaultSkippableExtensions is the configurable default binary/media
// extension filter from spec.md §4.2.
var defaultSkippableExtensions = []string{
	".pdf", ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tiff", ".svg", ".webp",
	".mp4", ".avi", ".mkv", ".mov", ".wmv", ".flv",
	".mp3", ".wav", ".aac", ".flac", ".ogg",
	".zip", ".rar", ".7z", ".tar", ".gz",
	".exe", ".dmg", ".iso", ".apk",
	".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".txt", ".rtf",
}

// Result is the outcome of a successful fetch.
type Result struct {
	StatusCode  int
	FinalURL    string
	Document    []byte
	ContentType string
}

// RobotsPolicy decides whether a URL may be fetched under robots.txt rules.
// Implemented by internal/fetch's RobotsEnforcer (or an allow-all stub).
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Config controls the Fetcher's HTTP client.
type Config struct {
	UserAgent      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxBodyBytes   int64
	SkipExtensions []string
	Robots         RobotsPolicy
}

// Fetcher implements the C2 contract over net/http.
type Fetcher struct {
	client         *http.Client
	userAgent      string
	maxBodyBytes   int64
	skipExtensions []string
	robots         RobotsPolicy
}

// New builds a Fetcher with sane defaults for any zero-valued Config fields.
func New(cfg Config) *Fetcher {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "anvil-indexer/1.0"
	}
	exts := cfg.SkipExtensions
	if len(exts) == 0 {
		exts = defaultSkippableExtensions
	}
	robots := cfg.Robots
	if robots == nil {
		robots = allowAllPolicy{}
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}

	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.ReadTimeout,
		},
		userAgent:      cfg.UserAgent,
		maxBodyBytes:   cfg.MaxBodyBytes,
		skipExtensions: exts,
		robots:         robots,
	}
}

// IsSkippableExtension reports whether rawURL's path ends with a known
// binary/media extension that should never be fetched.
func (f *Fetcher) IsSkippableExtension(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	if idx := strings.IndexAny(lower, "?#"); idx >= 0 {
		lower = lower[:idx]
	}
	for _, ext := range f.skipExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Fetch performs a single HTTP GET, honoring robots.txt and the caller's
// context deadline. It returns ErrIO for network/DNS/TLS failures.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Result, error) {
	if !f.robots.Allowed(ctx, rawURL) {
		return Result{}, fmt.Errorf("%w: disallowed by robots.txt: %s", ErrIO, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("%w: build request: %v", ErrIO, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrIO, err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on read path

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes))
	if err != nil {
		return Result{}, fmt.Errorf("%w: read body: %v", ErrIO, err)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return Result{
		StatusCode:  resp.StatusCode,
		FinalURL:    finalURL,
		Document:    body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

type allowAllPolicy struct{}

func (allowAllPolicy) Allowed(context.Context, string) bool { return true }
