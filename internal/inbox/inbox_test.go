package inbox

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/satindergrewal/elitedsp/internal/queue"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fakeQueuer struct {
	mu    sync.Mutex
	paths []string
	got   chan string
}

func newQueuer() *fakeQueuer {
	return &fakeQueuer{got: make(chan string, 10)}
}

func (q *fakeQueuer) QueueFile(_ context.Context, path string) (queue.Track, error) {
	q.mu.Lock()
	q.paths = append(q.paths, path)
	q.mu.Unlock()
	q.got <- path
	return queue.Track{ID: "t", Title: filepath.Base(path)}, nil
}

func (q *fakeQueuer) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.paths)
}

// start runs a watcher on a fresh directory and stops it when the test ends.
func start(t *testing.T, q Queuer) string {
	t.Helper()
	dir := t.TempDir()
	w := New(dir, q, testLogger())
	w.settle = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	})
	// let the watch register before the test writes
	time.Sleep(50 * time.Millisecond)
	return dir
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("not really audio"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func wait(t *testing.T, q *fakeQueuer) string {
	t.Helper()
	select {
	case p := <-q.got:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no file queued")
		return ""
	}
}

// --- Watching ---

func TestQueuesNewAudioFile(t *testing.T) {
	q := newQueuer()
	dir := start(t, q)

	path := filepath.Join(dir, "song.mp3")
	writeFile(t, path)

	if got := wait(t, q); got != path {
		t.Errorf("queued %q, want %q", got, path)
	}
	time.Sleep(100 * time.Millisecond)
	if n := q.count(); n != 1 {
		t.Errorf("queued %d times, want 1", n)
	}
}

func TestIgnoresOtherFiles(t *testing.T) {
	q := newQueuer()
	dir := start(t, q)

	writeFile(t, filepath.Join(dir, "notes.txt"))
	writeFile(t, filepath.Join(dir, ".hidden.mp3"))
	writeFile(t, filepath.Join(dir, "song.mp3.part"))
	writeFile(t, filepath.Join(dir, "real.flac"))

	if got := wait(t, q); filepath.Base(got) != "real.flac" {
		t.Errorf("queued %q, want real.flac", got)
	}
	time.Sleep(100 * time.Millisecond)
	if n := q.count(); n != 1 {
		t.Errorf("queued %d files, want 1", n)
	}
}

func TestWatchesNewSubdirectory(t *testing.T) {
	q := newQueuer()
	dir := start(t, q)

	sub := filepath.Join(dir, "album")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)

	path := filepath.Join(sub, "track.wav")
	writeFile(t, path)
	if got := wait(t, q); got != path {
		t.Errorf("queued %q, want %q", got, path)
	}
}

func TestRemovedBeforeSettleIsSkipped(t *testing.T) {
	q := newQueuer()
	dir := t.TempDir()
	w := New(dir, q, testLogger())
	w.settle = time.Hour

	ctx := context.Background()
	path := filepath.Join(dir, "gone.mp3")
	w.schedule(ctx, path)
	w.cancel(path)
	w.stop()

	if n := q.count(); n != 0 {
		t.Errorf("queued %d files, want 0", n)
	}
}

func TestIgnored(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"/in/song.mp3", false},
		{"/in/.song.mp3", true},
		{"/in/song.tmp", true},
		{"/in/song.mp3.part", true},
		{"/in/song.mp3.crdownload", true},
	}
	for _, tt := range tests {
		if got := ignored(tt.name); got != tt.want {
			t.Errorf("ignored(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
