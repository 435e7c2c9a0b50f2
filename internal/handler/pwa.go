package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"net/http"
	"sync"
	"text/template"

	"github.com/dukerupert/milkdiary/internal/offline"
	"github.com/dukerupert/milkdiary/web"
)

var iconSizes = map[string]int{
	"icon-192.png": 192,
	"icon-512.png": 512,
}

type manifestIcon struct {
	Src   string `json:"src"`
	Sizes string `json:"sizes"`
	Type  string `json:"type"`
}

type manifest struct {
	Name            string         `json:"name"`
	ShortName       string         `json:"short_name"`
	StartURL        string         `json:"start_url"`
	Display         string         `json:"display"`
	BackgroundColor string         `json:"background_color"`
	ThemeColor      string         `json:"theme_color"`
	Icons           []manifestIcon `json:"icons"`
}

// PWAHandler serves the manifest, the service worker script, and the app
// icons.
type PWAHandler struct {
	sw     []byte
	mu     sync.Mutex
	icons  map[string][]byte
	logger *slog.Logger
}

// NewPWAHandler renders the service worker once for cacheName.
func NewPWAHandler(cacheName string, logger *slog.Logger) (*PWAHandler, error) {
	tmpl, err := template.ParseFS(web.Static(), "sw.js")
	if err != nil {
		return nil, fmt.Errorf("parse service worker: %w", err)
	}
	assets, err := json.Marshal(offline.ShellAssets)
	if err != nil {
		return nil, fmt.Errorf("encode shell assets: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, map[string]string{
		"CacheName": cacheName,
		"Assets":    string(assets),
	})
	if err != nil {
		return nil, fmt.Errorf("render service worker: %w", err)
	}

	return &PWAHandler{
		sw:     buf.Bytes(),
		icons:  make(map[string][]byte),
		logger: logger.With("component", "pwa"),
	}, nil
}

// Manifest handles GET /manifest.webmanifest.
func (h *PWAHandler) Manifest(w http.ResponseWriter, r *http.Request) {
	m := manifest{
		Name:            appTitle,
		ShortName:       appTitle,
		StartURL:        "/",
		Display:         "standalone",
		BackgroundColor: "#0f172a",
		ThemeColor:      "#0f172a",
	}
	for _, name := range []string{"icon-192.png", "icon-512.png"} {
		n := iconSizes[name]
		m.Icons = append(m.Icons, manifestIcon{
			Src:   "/static/icons/" + name,
			Sizes: fmt.Sprintf("%dx%d", n, n),
			Type:  "image/png",
		})
	}
	w.Header().Set("Content-Type", "application/manifest+json")
	json.NewEncoder(w).Encode(m)
}

// ServiceWorker handles GET /sw.js. Browsers must always revalidate it so
// a new cache name takes effect.
func (h *PWAHandler) ServiceWorker(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(h.sw)
}

// Icon handles GET /static/icons/{file}.
func (h *PWAHandler) Icon(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("file")
	size, ok := iconSizes[name]
	if !ok {
		http.NotFound(w, r)
		return
	}

	h.mu.Lock()
	data, ok := h.icons[name]
	if !ok {
		var err error
		data, err = drawIcon(size)
		if err != nil {
			h.mu.Unlock()
			h.logger.Error("draw icon", "size", size, "error", err)
			http.Error(w, "failed to draw icon", http.StatusInternalServerError)
			return
		}
		h.icons[name] = data
	}
	h.mu.Unlock()

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(data)
}

// drawIcon paints a slate square with an accent ring and a white center.
func drawIcon(size int) ([]byte, error) {
	bg := color.RGBA{0x0f, 0x17, 0x2a, 0xff}
	accent := color.RGBA{0x10, 0xb9, 0x81, 0xff}
	fg := color.RGBA{0xf8, 0xfa, 0xfc, 0xff}

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	c := float64(size) / 2
	outer := c * 0.78
	inner := c * 0.62
	core := c * 0.34
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)+0.5-c, float64(y)+0.5-c
			d2 := dx*dx + dy*dy
			switch {
			case d2 <= core*core:
				img.SetRGBA(x, y, fg)
			case d2 <= inner*inner:
				img.SetRGBA(x, y, bg)
			case d2 <= outer*outer:
				img.SetRGBA(x, y, accent)
			default:
				img.SetRGBA(x, y, bg)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
