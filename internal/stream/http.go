package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os/exec"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/satindergrewal/elitedsp/internal/audio"
)

// MP3Bitrate is the ffmpeg encoder bitrate for HTTP listeners.
const MP3Bitrate = "192k"

// HTTPHandler serves the mix as a chunked MP3 stream. Every connection gets
// its own ffmpeg process encoding PCM to MP3 in real time.
type HTTPHandler struct {
	broadcaster *Broadcaster
	log         *logrus.Entry
	ffmpeg      string
}

// NewHTTPHandler creates an MP3 output fed by b.
func NewHTTPHandler(b *Broadcaster, log *logrus.Entry) *HTTPHandler {
	return &HTTPHandler{broadcaster: b, log: log, ffmpeg: "ffmpeg"}
}

// encoder builds the ffmpeg command reading s16le PCM on stdin and writing
// MP3 to stdout.
func (h *HTTPHandler) encoder(ctx context.Context) *exec.Cmd {
	return exec.CommandContext(ctx, h.ffmpeg,
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", MP3Bitrate,
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	)
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := h.encoder(ctx)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		h.log.WithError(err).Error("ffmpeg stdin pipe failed")
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		h.log.WithError(err).Error("ffmpeg stdout pipe failed")
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	if err := cmd.Start(); err != nil {
		h.log.WithError(err).Error("ffmpeg start failed")
		http.Error(w, "encoder unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("ICY-Name", "EliteDSP")

	l := h.broadcaster.Subscribe("mp3")
	defer h.broadcaster.Unsubscribe(l)

	log := h.log.WithField("remote", r.RemoteAddr)
	log.WithField("listeners", h.broadcaster.ListenerCount()).Info("MP3 listener connected")
	defer func() {
		log.WithField("dropped", l.Dropped()).Info("MP3 listener disconnected")
	}()

	go func() {
		defer stdin.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-l.Done():
				return
			case frame := <-l.C:
				if _, err := stdin.Write(audio.SamplesToBytes(frame)); err != nil {
					return
				}
			}
		}
	}()

	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				break
			}
			flusher.Flush()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.WithError(err).Warn("ffmpeg read failed")
			}
			break
		}
	}

	cancel()
	_ = cmd.Wait()
}
