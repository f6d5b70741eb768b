package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// settleDelay batches rapid successive writes to the same file into one
// pipeline run.
const settleDelay = 100 * time.Millisecond

// Watcher re-runs the pipeline whenever a watched program file changes.
type Watcher struct {
	p        *Pipeline
	fs       *fsnotify.Watcher
	onResult func(*Result)
	watching atomic.Bool
}

// NewWatcher builds a watcher; onResult receives the fresh result after
// every re-run.
func (p *Pipeline) NewWatcher(onResult func(*Result)) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	return &Watcher{p: p, fs: fs, onResult: onResult}, nil
}

// Start registers the paths (directories recursively) and begins the
// watch loop. It returns immediately; Stop or ctx cancellation ends the
// loop.
func (w *Watcher) Start(ctx context.Context, paths []string) error {
	if !w.watching.CompareAndSwap(false, true) {
		return fmt.Errorf("already watching")
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("accessing %s: %w", path, err)
		}
		if !info.IsDir() {
			if err := w.fs.Add(filepath.Dir(path)); err != nil {
				return fmt.Errorf("watching %s: %w", path, err)
			}
			continue
		}
		err = filepath.Walk(path, func(fp string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if fi.IsDir() {
				return w.fs.Add(fp)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
	}

	go w.loop(ctx)
	return nil
}

// Stop ends the watch loop.
func (w *Watcher) Stop() error {
	w.watching.Store(false)
	return w.fs.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	for w.watching.Load() {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.p.log.Error("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&fsnotify.Write != fsnotify.Write {
		return
	}
	if !strings.HasSuffix(event.Name, SourceExtension) {
		return
	}
	// wait for a while after the change to consider multiple writes as one
	time.Sleep(settleDelay)

	res, err := w.p.RunFile(ctx, event.Name)
	if err != nil {
		w.p.log.Error("re-run failed", zap.String("file", event.Name), zap.Error(err))
		return
	}
	if w.onResult != nil {
		w.onResult(res)
	}
}
