package sheet

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dukerupert/milkdiary/internal/store"
)

const defaultDebounce = 500 * time.Millisecond

// Refresher copies snapshots from a Source into the sheet cache.
type Refresher struct {
	source   Source
	sheets   *store.SheetStore
	loc      *time.Location
	logger   *slog.Logger
	interval time.Duration
	debounce time.Duration
	notify   func(time.Time)
	now      func() time.Time

	mu      sync.Mutex // serializes refreshes
	running bool
	stopCh  chan struct{}
	stopped chan struct{}
}

type Option func(*Refresher)

// WithInterval enables periodic refresh.
func WithInterval(d time.Duration) Option {
	return func(r *Refresher) { r.interval = d }
}

// WithLocation sets the zone daily dates are normalized to.
func WithLocation(loc *time.Location) Option {
	return func(r *Refresher) { r.loc = loc }
}

// WithNotify registers a callback run after every successful refresh.
func WithNotify(fn func(stamp time.Time)) Option {
	return func(r *Refresher) { r.notify = fn }
}

// WithDebounce sets the quiet period before a changed file is re-imported.
func WithDebounce(d time.Duration) Option {
	return func(r *Refresher) { r.debounce = d }
}

func NewRefresher(source Source, sheets *store.SheetStore, logger *slog.Logger, opts ...Option) *Refresher {
	r := &Refresher{
		source:   source,
		sheets:   sheets,
		loc:      time.UTC,
		logger:   logger.With("component", "sheet"),
		debounce: defaultDebounce,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Refresh fetches, normalizes and stores one snapshot, replacing the cache
// atomically. On error the previous cache is kept.
func (r *Refresher) Refresh(ctx context.Context) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.source.Fetch(ctx)
	if err != nil {
		return time.Time{}, err
	}
	daily := NormalizeDates(p.Daily, r.loc)

	stamp := r.now().In(r.loc)
	if err := r.sheets.ReplaceRows(p.Monthly, daily, stamp); err != nil {
		return time.Time{}, fmt.Errorf("store sheet: %w", err)
	}
	r.logger.Info("sheet refreshed", "monthly_rows", len(p.Monthly), "daily_rows", len(daily))

	if r.notify != nil {
		r.notify(stamp)
	}
	return stamp, nil
}

// Start refreshes once, then keeps refreshing on the configured interval
// and, for file sources, whenever the file changes.
func (r *Refresher) Start(ctx context.Context) {
	if _, err := r.Refresh(ctx); err != nil {
		r.logger.Warn("initial sheet refresh failed", "error", err)
	}

	var watcher *fileWatcher
	if fs, ok := r.source.(*FileSource); ok {
		w, err := newFileWatcher(fs.Path(), r.debounce)
		if err != nil {
			r.logger.Warn("file watch unavailable", "path", fs.Path(), "error", err)
		} else {
			watcher = w
		}
	}

	r.running = true
	go func() {
		defer close(r.stopped)

		var tick <-chan time.Time
		if r.interval > 0 {
			ticker := time.NewTicker(r.interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		var changed <-chan struct{}
		if watcher != nil {
			defer watcher.Close()
			changed = watcher.Changed
		}

		for {
			select {
			case <-tick:
				r.refreshLogged(ctx, "interval")
			case <-changed:
				r.refreshLogged(ctx, "file changed")
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (r *Refresher) refreshLogged(ctx context.Context, reason string) {
	if _, err := r.Refresh(ctx); err != nil {
		r.logger.Error("sheet refresh failed", "reason", reason, "error", err)
	}
}

// Stop halts the background goroutine. It is a no-op if Start was never
// called.
func (r *Refresher) Stop() {
	if !r.running {
		return
	}
	close(r.stopCh)
	<-r.stopped
}

// fileWatcher signals on Changed once writes to one file have been quiet
// for the debounce period.
type fileWatcher struct {
	Changed chan struct{}

	watcher  *fsnotify.Watcher
	name     string
	debounce time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	done     chan struct{}
}

func newFileWatcher(path string, debounce time.Duration) (*fileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: editors often replace the file instead of
	// writing it in place.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	w := &fileWatcher{
		Changed:  make(chan struct{}, 1),
		watcher:  watcher,
		name:     filepath.Base(path),
		debounce: debounce,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *fileWatcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != w.name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.trigger()
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *fileWatcher) trigger() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.Changed <- struct{}{}:
		default:
		}
	})
}

func (w *fileWatcher) Close() error {
	close(w.done)
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}
