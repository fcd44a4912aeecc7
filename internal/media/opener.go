package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
	"github.com/sirupsen/logrus"

	"github.com/satindergrewal/elitedsp/internal/audio"
)

// maxDownload bounds how much of a remote stream is buffered in memory.
const maxDownload = 256 << 20

// Opener turns handles into decoded elements. Native decoders cover mp3,
// wav and flac; anything else goes through FFmpeg.
type Opener struct {
	registry *Registry
	client   *http.Client
	log      *logrus.Entry
	// ffmpeg fallback, replaceable in tests
	fallback func(ctx context.Context, src string) (beep.StreamSeekCloser, beep.Format, error)
}

// NewOpener creates an opener resolving local handles through registry.
func NewOpener(registry *Registry, log *logrus.Entry) *Opener {
	return &Opener{
		registry: registry,
		client:   &http.Client{Timeout: 2 * time.Minute},
		log:      log,
		fallback: audio.DecodeFile,
	}
}

// Open decodes the resource behind h. The returned element is paused at
// position zero.
func (o *Opener) Open(ctx context.Context, h Handle) (*Element, error) {
	src, err := o.registry.Resolve(h)
	if err != nil {
		return nil, err
	}

	remote := isRemote(src)
	ext := extOf(src)

	var rc io.ReadCloser
	if remote {
		data, err := o.download(ctx, src)
		if err != nil {
			return nil, err
		}
		rc = memFile{bytes.NewReader(data)}
	} else {
		f, err := os.Open(src)
		if err != nil {
			return nil, err
		}
		rc = f
	}

	stream, format, err := decode(rc, ext)
	if err != nil {
		rc.Close()
		o.log.WithError(err).WithField("source", src).Debug("Native decode failed, trying ffmpeg")
		stream, format, err = o.fallback(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, src, err)
		}
	}

	o.log.WithFields(logrus.Fields{
		"handle":      h.ID,
		"sample_rate": format.SampleRate,
		"duration":    format.SampleRate.D(stream.Len()),
	}).Debug("Opened media element")
	return NewElement(h, stream, format), nil
}

func (o *Opener) download(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", uri, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", uri, err)
	}
	return data, nil
}

func decode(rc io.ReadCloser, ext string) (beep.StreamSeekCloser, beep.Format, error) {
	switch ext {
	case ".mp3":
		return mp3.Decode(rc)
	case ".wav":
		return wav.Decode(rc)
	case ".flac":
		return flac.Decode(rc)
	default:
		return nil, beep.Format{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func isRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

func extOf(src string) string {
	if !isRemote(src) {
		return strings.ToLower(filepath.Ext(src))
	}
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(u.Path))
}

// memFile is an in-memory seekable body; decoders need Seek for random access.
type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error { return nil }
