package audio

import (
	"context"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/sirupsen/logrus"
)

// Renderer is the engine clock: it pulls one 20ms frame from the source every
// FrameDuration and publishes it as interleaved int16 PCM.
type Renderer struct {
	source  beep.Streamer
	frameCh chan []int16
	log     *logrus.Entry

	mu       sync.RWMutex
	rendered int64 // frames
	buf      [][2]float64
}

// NewRenderer creates a renderer pulling from source.
func NewRenderer(source beep.Streamer, log *logrus.Entry) *Renderer {
	return &Renderer{
		source:  source,
		frameCh: make(chan []int16, 100),
		log:     log,
		buf:     make([][2]float64, FrameSize),
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each).
func (r *Renderer) Frames() <-chan []int16 {
	return r.frameCh
}

// Rendered returns how much audio has been rendered since start.
func (r *Renderer) Rendered() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return time.Duration(r.rendered) * FrameDuration
}

// RenderFrame pulls a single frame from the source. A source that reports
// fewer samples than requested is padded with silence.
func (r *Renderer) RenderFrame() []int16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.buf)
	n, _ := r.source.Stream(r.buf)
	if n < len(r.buf) {
		clear(r.buf[n:])
	}
	r.rendered++
	return ToInt16(r.buf)
}

// Run starts the render loop. Blocks until ctx is cancelled.
func (r *Renderer) Run(ctx context.Context) {
	defer close(r.frameCh)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	r.log.WithField("frame", FrameDuration).Info("Render clock started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info("Render clock stopped")
			return
		case <-ticker.C:
		}

		frame := r.RenderFrame()
		select {
		case r.frameCh <- frame:
		case <-ctx.Done():
			return
		}
	}
}
