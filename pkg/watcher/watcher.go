// Package watcher scores CSV files dropped into an inbox directory.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/mimir-aip/waterquality/pkg/dataset"
)

// Subdirectories of the inbox that receive handled files
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// Handler processes one inbox file
type Handler func(ctx context.Context, path string) error

// Watcher dispatches new CSV files in a directory to a handler. A file is
// handled once it has not been written to for the settle delay; afterwards
// it is moved to processed/ or failed/.
type Watcher struct {
	dir    string
	handle Handler
	settle time.Duration
	logger *zap.Logger
}

// New creates a watcher for dir
func New(dir string, handle Handler) *Watcher {
	return &Watcher{
		dir:    dir,
		handle: handle,
		settle: 500 * time.Millisecond,
		logger: zap.L().Named("watcher").With(zap.String("dir", dir)),
	}
}

// WithSettle overrides the quiet period before a file is handled
func (w *Watcher) WithSettle(d time.Duration) *Watcher {
	w.settle = d
	return w
}

// Run watches the inbox until ctx is cancelled. Files already present when
// Run starts are handled first.
func (w *Watcher) Run(ctx context.Context) error {
	for _, sub := range []string{ProcessedDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(w.dir, sub), 0755); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", sub, err)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Info("Watching inbox")

	pending := make(map[string]time.Time)
	existing, err := w.existing()
	if err != nil {
		return err
	}
	for _, path := range existing {
		pending[path] = time.Time{}
	}

	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Inbox watcher stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if path, ok := w.candidate(event); ok {
				pending[path] = time.Now()
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", zap.Error(err))

		case now := <-ticker.C:
			var ready []string
			for path, last := range pending {
				if now.Sub(last) >= w.settle {
					ready = append(ready, path)
				}
			}
			sort.Strings(ready)
			for _, path := range ready {
				delete(pending, path)
				w.process(ctx, path)
			}
		}
	}
}

// candidate reports whether an event concerns an inbox CSV file to handle
func (w *Watcher) candidate(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return "", false
	}
	if !eligible(event.Name) {
		return "", false
	}
	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return "", false
	}
	return event.Name, true
}

func eligible(path string) bool {
	base := filepath.Base(path)
	return !strings.HasPrefix(base, ".") && dataset.AllowedFile(base)
}

func (w *Watcher) existing() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", w.dir, err)
	}
	var out []string
	for _, entry := range entries {
		if !entry.IsDir() && eligible(entry.Name()) {
			out = append(out, filepath.Join(w.dir, entry.Name()))
		}
	}
	return out, nil
}

func (w *Watcher) process(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	logger := w.logger.With(zap.String("file", filepath.Base(path)))

	dest := ProcessedDir
	if err := w.handle(ctx, path); err != nil {
		dest = FailedDir
		logger.Warn("Inbox file failed", zap.Error(err))
	} else {
		logger.Info("Inbox file processed")
	}

	target := filepath.Join(w.dir, dest, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		logger.Error("Failed to move inbox file", zap.String("target", target), zap.Error(err))
	}
}
