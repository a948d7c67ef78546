// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Stellven/KBSkills/pkg/types"
)

// Watcher re-ingests files under a directory as they change. Changes are
// collected and flushed once per debounce interval so an editor's burst of
// writes produces one insert.
type Watcher struct {
	dir      string
	delay    time.Duration
	pipeline *Pipeline
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op

	// hashes holds the content hash last indexed per path.
	hashes map[string][32]byte

	// OnFlush, when set, receives the summary of every non-empty flush.
	OnFlush func(Summary)
}

// NewWatcher creates a watcher for dir that indexes through p. A zero delay
// means the default debounce.
func NewWatcher(dir string, delay time.Duration, p *Pipeline, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if delay <= 0 {
		delay = types.DefaultDebounceDelay
	}
	return &Watcher{
		dir:      dir,
		delay:    delay,
		pipeline: p,
		watcher:  fsw,
		logger:   logger,
		pending:  make(map[string]fsnotify.Op),
		hashes:   make(map[string][32]byte),
	}, nil
}

// Run watches until ctx is done, then closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	if err := w.addWatchesRecursive(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching for changes", "dir", w.dir, "debounce", w.delay)

	ticker := time.NewTicker(w.delay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && (skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.addWatchesRecursive(path); err != nil {
				w.logger.Warn("failed to watch new directory", "path", path, "error", err)
			}
			return
		}
	}

	rel, err := filepath.Rel(w.dir, path)
	if err != nil || !w.pipeline.Loader().Matches(rel) {
		return
	}

	w.pendingMu.Lock()
	w.pending[path] |= event.Op
	w.pendingMu.Unlock()
	w.logger.Debug("change detected", "path", rel, "op", event.Op.String())
}

// flush indexes pending changes in path order.
func (w *Watcher) flush(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	toProcess := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	paths := make([]string, 0, len(toProcess))
	for p := range toProcess {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var docs []types.Document
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			delete(w.hashes, path)
			if err := w.pipeline.Remove(ctx, path); err != nil {
				w.logger.Warn("failed to remove deleted file", "path", path, "error", err)
			}
			continue
		}

		doc, err := w.pipeline.Loader().LoadFile(path)
		if err != nil {
			w.logger.Warn("failed to read changed file", "path", path, "error", err)
			continue
		}
		sum := sha256.Sum256([]byte(doc.Content))
		if old, ok := w.hashes[path]; ok && old == sum {
			continue
		}
		w.hashes[path] = sum
		docs = append(docs, doc)
	}

	if len(docs) == 0 {
		return
	}
	summary := w.pipeline.Run(ctx, docs)
	if summary.HasFailures() {
		// Forget this batch so the next event for a failed file re-indexes it.
		for _, doc := range docs {
			delete(w.hashes, doc.Source)
		}
	}
	w.logger.Info("re-indexed changed files", "indexed", summary.Indexed, "failed", summary.Failed)
	if w.OnFlush != nil {
		w.OnFlush(summary)
	}
}
