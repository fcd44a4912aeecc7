package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dhowden/tag"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const localPrefix = "local:"

// Handle identifies a playable resource: either a remote URI or a local
// file registered with a Registry. Local handles are only valid for the
// lifetime of the registry that issued them.
type Handle struct {
	ID    string `json:"id"`
	URI   string `json:"uri,omitempty"`
	Local bool   `json:"local,omitempty"`
}

// Remote returns a handle for a network or file URI.
func Remote(uri string) Handle {
	return Handle{ID: uri, URI: uri}
}

// IsZero reports whether h refers to nothing.
func (h Handle) IsZero() bool { return h.ID == "" }

// Info describes an ingested local file.
type Info struct {
	Title     string
	Artist    string
	TagTitle  string
	TagArtist string
	Album     string
	Duration  time.Duration
}

// LocalArtist labels tracks added from the local filesystem.
const LocalArtist = "Local File"

var audioExts = map[string]bool{
	".mp3": true, ".wav": true, ".flac": true,
	".ogg": true, ".m4a": true, ".aac": true, ".opus": true,
}

// IsAudioFile reports whether path has an extension the opener can play,
// natively or through ffmpeg.
func IsAudioFile(path string) bool {
	return audioExts[strings.ToLower(filepath.Ext(path))]
}

// Registry issues local handles and maps them back to paths.
type Registry struct {
	mu    sync.Mutex
	files map[string]string
	log   *logrus.Entry
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logrus.Entry) *Registry {
	return &Registry{files: make(map[string]string), log: log}
}

// Register issues a new local handle for path.
func (r *Registry) Register(path string) Handle {
	id := localPrefix + uuid.NewString()
	r.mu.Lock()
	r.files[id] = path
	r.mu.Unlock()
	return Handle{ID: id, Local: true}
}

// Resolve returns the path or URI a handle refers to.
func (r *Registry) Resolve(h Handle) (string, error) {
	if !h.Local {
		if h.URI == "" {
			return "", fmt.Errorf("media: empty handle %q", h.ID)
		}
		return h.URI, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	path, ok := r.files[h.ID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrReleased, h.ID)
	}
	return path, nil
}

// Release invalidates a local handle. Remote handles are ignored.
func (r *Registry) Release(h Handle) {
	if !h.Local {
		return
	}
	r.mu.Lock()
	delete(r.files, h.ID)
	r.mu.Unlock()
}

// Len returns the number of live local handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.files)
}

// Ingest registers a local file and gathers what can be known about it
// without decoding: a title from the file name, embedded tags and the
// duration where the container exposes it.
func (r *Registry) Ingest(path string) (Handle, Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Handle{}, Info{}, err
	}
	if st.IsDir() {
		return Handle{}, Info{}, fmt.Errorf("media: %s is a directory", path)
	}

	base := filepath.Base(path)
	info := Info{
		Title:  strings.TrimSuffix(base, filepath.Ext(base)),
		Artist: LocalArtist,
	}

	if f, err := os.Open(path); err == nil {
		if m, err := tag.ReadFrom(f); err == nil {
			info.TagTitle = m.Title()
			info.TagArtist = m.Artist()
			info.Album = m.Album()
		} else {
			r.log.WithError(err).WithField("path", path).Debug("No embedded tags")
		}
		f.Close()
	}

	if d, err := probeDuration(path); err == nil {
		info.Duration = d
	} else {
		r.log.WithError(err).WithField("path", path).Debug("Duration probe failed")
	}

	h := r.Register(path)
	r.log.WithFields(logrus.Fields{
		"path":     path,
		"handle":   h.ID,
		"title":    info.Title,
		"duration": info.Duration,
	}).Debug("Ingested local file")
	return h, info, nil
}
