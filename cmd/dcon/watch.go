package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"dcon/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// RenderWatcher re-renders markup files when they change on disk.
// Parent directories are watched rather than the files themselves so that
// editors which save by rename are still picked up.
type RenderWatcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	files       map[string]bool
	dirs        []string
	onChange    func(path string) error
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats WatchStats
}

// WatchStats tracks watcher activity.
type WatchStats struct {
	Events        int
	Renders       int
	Errors        int
	LastEventPath string
	LastEventTime time.Time
}

// NewRenderWatcher creates a watcher for paths. onChange is called with the
// file's absolute path once its changes have settled.
func NewRenderWatcher(paths []string, onChange func(path string) error) (*RenderWatcher, error) {
	files := make(map[string]bool, len(paths))
	dirSet := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		files[abs] = true
		dirSet[filepath.Dir(abs)] = true
	}
	dirs := make([]string, 0, len(dirSet))
	for d := range dirSet {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &RenderWatcher{
		watcher:     watcher,
		files:       files,
		dirs:        dirs,
		onChange:    onChange,
		debounceMap: make(map[string]time.Time),
		debounceDur: 200 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// SetDebounce changes how long a file must be quiet before it is re-rendered.
func (rw *RenderWatcher) SetDebounce(d time.Duration) {
	rw.mu.Lock()
	rw.debounceDur = d
	rw.mu.Unlock()
}

// Start begins watching. It does not block.
func (rw *RenderWatcher) Start(ctx context.Context) error {
	rw.mu.Lock()
	if rw.running {
		rw.mu.Unlock()
		return nil
	}
	rw.running = true
	rw.mu.Unlock()

	for _, dir := range rw.dirs {
		if err := rw.watcher.Add(dir); err != nil {
			rw.watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		logging.Get(logging.CategoryCLI).Debug("RenderWatcher: watching %s", dir)
	}

	go rw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (rw *RenderWatcher) Stop() {
	rw.mu.Lock()
	if !rw.running {
		rw.mu.Unlock()
		return
	}
	rw.running = false
	rw.mu.Unlock()

	close(rw.stopCh)
	<-rw.doneCh

	if err := rw.watcher.Close(); err != nil {
		logging.Get(logging.CategoryCLI).Error("RenderWatcher: error closing watcher: %v", err)
	}
}

// Stats returns a copy of the watcher's counters.
func (rw *RenderWatcher) Stats() WatchStats {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.stats
}

func (rw *RenderWatcher) run(ctx context.Context) {
	defer close(rw.doneCh)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-rw.stopCh:
			return
		case event, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			rw.handleEvent(event)
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryCLI).Error("RenderWatcher error: %v", err)
			rw.mu.Lock()
			rw.stats.Errors++
			rw.mu.Unlock()
		case <-ticker.C:
			rw.processDebounced()
		}
	}
}

func (rw *RenderWatcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	name := filepath.Clean(event.Name)
	if !rw.files[name] {
		return
	}

	rw.mu.Lock()
	defer rw.mu.Unlock()
	now := time.Now()
	rw.stats.Events++
	rw.stats.LastEventPath = name
	rw.stats.LastEventTime = now
	rw.debounceMap[name] = now
}

func (rw *RenderWatcher) processDebounced() {
	rw.mu.Lock()
	now := time.Now()
	var ready []string
	for path, at := range rw.debounceMap {
		if now.Sub(at) >= rw.debounceDur {
			ready = append(ready, path)
			delete(rw.debounceMap, path)
		}
	}
	rw.mu.Unlock()

	sort.Strings(ready)
	for _, path := range ready {
		err := rw.onChange(path)
		rw.mu.Lock()
		if err != nil {
			rw.stats.Errors++
		} else {
			rw.stats.Renders++
		}
		rw.mu.Unlock()
		if err != nil {
			logging.Get(logging.CategoryCLI).Error("RenderWatcher: %s: %v", path, err)
		}
	}
}
