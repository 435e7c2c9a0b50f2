package offline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/milkdiary/internal/database"
	"github.com/dukerupert/milkdiary/internal/model"
	"github.com/dukerupert/milkdiary/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func shellServer(t *testing.T, missing string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == missing {
			http.NotFound(w, r)
			return
		}
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			io.WriteString(w, "<html>home</html>")
		case "/api/tables":
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"live":true}`)
		default:
			io.WriteString(w, "asset "+r.URL.Path)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setupWorker(t *testing.T, upstream string) (*Worker, *store.AssetStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	assets := store.NewAssetStore(db)
	w, err := NewWorker("milk-diary-v1", upstream, assets, nil, testLogger())
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	return w, assets
}

func TestInstallCachesShell(t *testing.T) {
	srv := shellServer(t, "")
	w, assets := setupWorker(t, srv.URL)

	if err := w.Install(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}
	paths, _ := assets.Paths("milk-diary-v1")
	if len(paths) != len(ShellAssets) {
		t.Errorf("cached %d paths, want %d", len(paths), len(ShellAssets))
	}
	home, _ := assets.Match("milk-diary-v1", "/")
	if home == nil || home.ETag != ETag([]byte("<html>home</html>")) {
		t.Errorf("home = %+v", home)
	}
}

func TestInstallFailureCachesNothing(t *testing.T) {
	srv := shellServer(t, "/static/icons/icon-512.png")
	w, assets := setupWorker(t, srv.URL)

	if err := w.Install(context.Background()); err == nil {
		t.Fatal("expected install error")
	}
	names, _ := assets.CacheNames()
	if len(names) != 0 {
		t.Errorf("caches = %v, want none after failed install", names)
	}
}

func TestActivateDeletesOldVersions(t *testing.T) {
	srv := shellServer(t, "")
	w, assets := setupWorker(t, srv.URL)
	assets.Put(model.Asset{CacheName: "milk-diary-v0", Path: "/", Status: 200, Body: []byte("old")})
	w.Install(context.Background())

	if err := w.Activate(); err != nil {
		t.Fatalf("activate: %v", err)
	}
	names, _ := assets.CacheNames()
	if len(names) != 1 || names[0] != "milk-diary-v1" {
		t.Errorf("caches = %v, want only current", names)
	}
}

func TestFetchOrder(t *testing.T) {
	srv := shellServer(t, "")
	w, _ := setupWorker(t, srv.URL)
	if err := w.Install(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	// Cached asset.
	resp, err := w.Fetch(ctx, httptest.NewRequest("GET", "/static/css/app.css", nil))
	if err != nil || !resp.FromCache {
		t.Fatalf("css: resp = %+v, err = %v, want cache hit", resp, err)
	}

	// Not cached: network.
	resp, err = w.Fetch(ctx, httptest.NewRequest("GET", "/api/tables", nil))
	if err != nil || resp.FromCache || string(resp.Body) != `{"live":true}` {
		t.Fatalf("api: resp = %+v, err = %v, want network", resp, err)
	}

	// Network down.
	srv.Close()

	nav := httptest.NewRequest("GET", "/schedule", nil)
	nav.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err = w.Fetch(ctx, nav)
	if err != nil {
		t.Fatalf("navigation: %v", err)
	}
	if string(resp.Body) != "<html>home</html>" {
		t.Errorf("navigation body = %q, want cached home", resp.Body)
	}

	api := httptest.NewRequest("GET", "/api/tables", nil)
	api.Header.Set("Accept", "application/json")
	if _, err := w.Fetch(ctx, api); !errors.Is(err, ErrNotCached) {
		t.Errorf("err = %v, want ErrNotCached", err)
	}
}

func TestServeHTTP(t *testing.T) {
	srv := shellServer(t, "")
	w, _ := setupWorker(t, srv.URL)
	w.Install(context.Background())

	rec := httptest.NewRecorder()
	w.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("status = %d, x-cache = %q", rec.Code, rec.Header().Get("X-Cache"))
	}
	etag := rec.Header().Get("ETag")

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	w.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotModified {
		t.Errorf("status = %d, want 304", rec.Code)
	}

	srv.Close()
	rec = httptest.NewRecorder()
	w.ServeHTTP(rec, httptest.NewRequest("GET", "/static/js/app.js", nil))
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504 when offline and uncached", rec.Code)
	}
}

func TestIsNavigation(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Sec-Fetch-Mode", "navigate")
	if !IsNavigation(r) {
		t.Error("navigate mode should count")
	}
	r.Header.Set("Sec-Fetch-Mode", "cors")
	r.Header.Set("Accept", "text/html")
	if IsNavigation(r) {
		t.Error("fetch mode wins over Accept")
	}
	if IsNavigation(httptest.NewRequest("POST", "/", nil)) {
		t.Error("POST is never a navigation")
	}
}
