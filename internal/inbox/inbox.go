// Package inbox watches a drop folder and queues audio files as they land
// in it.
package inbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/satindergrewal/elitedsp/internal/media"
	"github.com/satindergrewal/elitedsp/internal/queue"
)

// DefaultSettle is how long a new file must sit before it is queued, so
// copies in progress are not picked up half written.
const DefaultSettle = 500 * time.Millisecond

// Queuer appends a local file to the play queue.
type Queuer interface {
	QueueFile(ctx context.Context, path string) (queue.Track, error)
}

// Watcher queues audio files created under a directory tree.
type Watcher struct {
	dir    string
	q      Queuer
	log    *logrus.Entry
	settle time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

// New creates a watcher for dir.
func New(dir string, q Queuer, log *logrus.Entry) *Watcher {
	return &Watcher{
		dir:     dir,
		q:       q,
		log:     log,
		settle:  DefaultSettle,
		pending: make(map[string]*time.Timer),
	}
}

// Run watches until ctx is cancelled. Files already in the directory are
// left alone.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox: %w", err)
	}
	defer fw.Close()

	if err := addTree(fw, w.dir); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", w.dir, err)
	}
	w.log.WithField("dir", w.dir).Info("Watching inbox")

	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, fw, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Error("Inbox watcher error")
		}
	}
}

func addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) handle(ctx context.Context, fw *fsnotify.Watcher, ev fsnotify.Event) {
	if ignored(ev.Name) {
		return
	}
	switch {
	case ev.Has(fsnotify.Create) && media.IsAudioFile(ev.Name):
		w.schedule(ctx, ev.Name)
	case ev.Has(fsnotify.Write) && media.IsAudioFile(ev.Name):
		w.mu.Lock()
		w.postpone(ev.Name)
		w.mu.Unlock()
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancel(ev.Name)
	case ev.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := addTree(fw, ev.Name); err != nil {
				w.log.WithError(err).WithField("dir", ev.Name).Warn("Failed to watch directory")
				return
			}
			w.log.WithField("dir", ev.Name).Debug("Watching new directory")
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.postpone(path) {
		return
	}
	w.wg.Add(1)
	w.pending[path] = time.AfterFunc(w.settle, func() {
		defer w.wg.Done()
		w.mu.Lock()
		_, live := w.pending[path]
		delete(w.pending, path)
		w.mu.Unlock()
		if live {
			w.queue(ctx, path)
		}
	})
}

// postpone pushes out the deadline of a file that is still being written.
// A timer that already fired is left to run. Must hold w.mu.
func (w *Watcher) postpone(path string) bool {
	t := w.pending[path]
	if t == nil {
		return false
	}
	if t.Stop() {
		t.Reset(w.settle)
	}
	return true
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t := w.pending[path]; t != nil && t.Stop() {
		w.wg.Done()
	}
	delete(w.pending, path)
}

// stop drops files that have not settled and waits for queueing in flight.
func (w *Watcher) stop() {
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) queue(ctx context.Context, path string) {
	log := w.log.WithField("path", path)
	t, err := w.q.QueueFile(ctx, path)
	if err != nil {
		log.WithError(err).Warn("Failed to queue inbox file")
		return
	}
	log.WithFields(logrus.Fields{
		"id":    t.ID,
		"title": t.Title,
	}).Info("Queued inbox file")
}

// ignored skips hidden files and partial downloads.
func ignored(path string) bool {
	name := filepath.Base(path)
	return strings.HasPrefix(name, ".") ||
		strings.HasSuffix(name, ".tmp") ||
		strings.HasSuffix(name, ".part") ||
		strings.HasSuffix(name, ".crdownload")
}
