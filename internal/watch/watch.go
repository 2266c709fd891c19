// Package watch submits new videos dropped into a directory as
// pipeline jobs.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Handler processes one detected video file.
type Handler func(ctx context.Context, path string) error

// settleDelay gives the writer time to finish before we read the file.
const settleDelay = 500 * time.Millisecond

var videoExtensions = []string{".mp4", ".mov", ".avi", ".mkv", ".webm", ".m4v", ".flv"}

type Watcher struct {
	dir       string
	handler   Handler
	logf      func(format string, args ...any)
	watcher   *fsnotify.Watcher
	semaphore chan struct{}
	wg        sync.WaitGroup
}

// New watches dir for new video files and hands each to handler, at
// most maxConcurrent at a time.
func New(dir string, handler Handler, logf func(string, ...any), maxConcurrent int) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Watcher{
		dir:       dir,
		handler:   handler,
		logf:      logf,
		watcher:   w,
		semaphore: make(chan struct{}, maxConcurrent),
	}, nil
}

// Start blocks until ctx is done, submitting each new video as it
// appears. In-flight jobs are awaited before returning.
func (w *Watcher) Start(ctx context.Context) error {
	w.logf("watching %s (max concurrent: %d)", w.dir, cap(w.semaphore))

	for {
		select {
		case <-ctx.Done():
			w.logf("waiting for in-flight jobs")
			w.wg.Wait()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Op&fsnotify.Create != fsnotify.Create || !isVideoFile(event.Name) {
				continue
			}
			w.logf("new video detected: %s", event.Name)
			time.Sleep(settleDelay)

			select {
			case w.semaphore <- struct{}{}:
				w.wg.Add(1)
				go func(path string) {
					defer w.wg.Done()
					defer func() { <-w.semaphore }()
					if err := w.handler(ctx, path); err != nil {
						w.logf("process %s: %v", path, err)
					}
				}(event.Name)
			case <-ctx.Done():
				w.wg.Wait()
				return ctx.Err()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logf("watcher error: %v", err)
		}
	}
}

func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func isVideoFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, v := range videoExtensions {
		if ext == v {
			return true
		}
	}
	return false
}
