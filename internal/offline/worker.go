// Package offline is a cache-first asset worker: it pre-caches the app
// shell under a versioned cache name and answers requests from that cache,
// falling back to the network and then to the cached home page.
package offline

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/dukerupert/milkdiary/internal/model"
	"github.com/dukerupert/milkdiary/internal/store"
)

// ShellAssets are pre-cached on install.
var ShellAssets = []string{
	"/",
	"/manifest.webmanifest",
	"/static/css/app.css",
	"/static/js/pwa.js",
	"/static/icons/icon-192.png",
	"/static/icons/icon-512.png",
}

// ErrNotCached is returned by Fetch when the network failed and nothing in
// the cache can stand in.
var ErrNotCached = errors.New("offline and not cached")

// Doer performs HTTP requests; *http.Client implements it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Worker struct {
	cacheName string
	upstream  *url.URL
	assets    []string
	store     *store.AssetStore
	client    Doer
	logger    *slog.Logger
}

// NewWorker serves cacheName from assets, fetching misses from upstream.
func NewWorker(cacheName, upstream string, assets *store.AssetStore, client Doer, logger *slog.Logger) (*Worker, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("parse upstream: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream %q must be an absolute URL", upstream)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Worker{
		cacheName: cacheName,
		upstream:  u,
		assets:    ShellAssets,
		store:     assets,
		client:    client,
		logger:    logger.With("component", "offline"),
	}, nil
}

func (w *Worker) CacheName() string {
	return w.cacheName
}

// Install downloads every shell asset and stores them together. Any failed
// download aborts the install and nothing is cached.
func (w *Worker) Install(ctx context.Context) error {
	entries := make([]model.Asset, 0, len(w.assets))
	for _, p := range w.assets {
		resp, err := w.get(ctx, p)
		if err != nil {
			return fmt.Errorf("install %s: %w", p, err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("install %s: read body: %w", p, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("install %s: status %d", p, resp.StatusCode)
		}
		entries = append(entries, model.Asset{
			CacheName:   w.cacheName,
			Path:        p,
			Status:      resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			ETag:        ETag(body),
			Body:        body,
		})
	}

	if err := w.store.PutAll(entries); err != nil {
		return fmt.Errorf("install: %w", err)
	}
	w.logger.Info("shell cached", "cache", w.cacheName, "assets", len(entries))
	return nil
}

// Activate deletes every cache version other than the current one.
func (w *Worker) Activate() error {
	names, err := w.store.CacheNames()
	if err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	for _, n := range names {
		if n == w.cacheName {
			continue
		}
		if err := w.store.DeleteCache(n); err != nil {
			return fmt.Errorf("activate: %w", err)
		}
		w.logger.Info("old cache deleted", "cache", n)
	}
	return nil
}

// Response is what Fetch answers with.
type Response struct {
	Status      int
	ContentType string
	ETag        string
	Body        []byte
	// FromCache is false for responses passed through from the network.
	FromCache bool
}

// Fetch answers r from the cache, then the network. If the network fails
// and r is a page navigation, the cached home page is returned.
func (w *Worker) Fetch(ctx context.Context, r *http.Request) (*Response, error) {
	if r.Method == http.MethodGet {
		if a, err := w.store.Match(w.cacheName, cacheKey(r.URL)); err != nil {
			w.logger.Warn("cache lookup failed", "path", r.URL.Path, "error", err)
		} else if a != nil {
			return fromAsset(a), nil
		}
	}

	resp, netErr := w.forward(ctx, r)
	if netErr == nil {
		return resp, nil
	}

	if IsNavigation(r) {
		home, err := w.store.Match(w.cacheName, "/")
		if err == nil && home != nil {
			w.logger.Debug("serving cached home page", "path", r.URL.Path, "error", netErr)
			return fromAsset(home), nil
		}
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrNotCached, r.URL.Path, netErr)
}

// ServeHTTP exposes Fetch as a cache-first proxy.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	resp, err := w.Fetch(r.Context(), r)
	if err != nil {
		w.logger.Warn("fetch failed", "path", r.URL.Path, "error", err)
		http.Error(rw, "offline", http.StatusGatewayTimeout)
		return
	}

	if resp.ContentType != "" {
		rw.Header().Set("Content-Type", resp.ContentType)
	}
	if resp.ETag != "" {
		rw.Header().Set("ETag", resp.ETag)
		if resp.FromCache && r.Header.Get("If-None-Match") == resp.ETag {
			rw.WriteHeader(http.StatusNotModified)
			return
		}
	}
	if resp.FromCache {
		rw.Header().Set("X-Cache", "HIT")
	} else {
		rw.Header().Set("X-Cache", "MISS")
	}
	rw.WriteHeader(resp.Status)
	rw.Write(resp.Body)
}

func (w *Worker) get(ctx context.Context, p string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", w.resolve(&url.URL{Path: p}), nil)
	if err != nil {
		return nil, err
	}
	return w.client.Do(req)
}

func (w *Worker) forward(ctx context.Context, r *http.Request) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, r.Method, w.resolve(r.URL), r.Body)
	if err != nil {
		return nil, err
	}
	for _, h := range []string{"Accept", "Content-Type", "If-None-Match"} {
		if v := r.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		ETag:        resp.Header.Get("ETag"),
		Body:        body,
	}, nil
}

func (w *Worker) resolve(u *url.URL) string {
	ref := &url.URL{Path: u.Path, RawQuery: u.RawQuery}
	return w.upstream.ResolveReference(ref).String()
}

func fromAsset(a *model.Asset) *Response {
	return &Response{
		Status:      a.Status,
		ContentType: a.ContentType,
		ETag:        a.ETag,
		Body:        a.Body,
		FromCache:   true,
	}
}

// cacheKey matches on path and query, like a browser cache.
func cacheKey(u *url.URL) string {
	if u.RawQuery == "" {
		return u.Path
	}
	return u.Path + "?" + u.RawQuery
}

// IsNavigation reports whether r is a top-level page load.
func IsNavigation(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// ETag is a strong validator derived from a BLAKE2b digest of body.
func ETag(body []byte) string {
	sum := blake2b.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}
