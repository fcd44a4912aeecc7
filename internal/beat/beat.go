// Package beat derives a 0..1 bass intensity from the live spectrum for
// visual feedback.
package beat

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// BassBins is how many of the lowest analyser bins are averaged.
const BassBins = 10

// FrameInterval paces the estimator at display refresh rate.
const FrameInterval = time.Second / 60

// Spectrum is the analyser tap the estimator reads.
type Spectrum interface {
	ByteFrequencyData(dst []byte)
}

// Estimator samples a Spectrum once per frame while running and publishes
// the normalized average of the lowest bins. It applies no smoothing.
type Estimator struct {
	tap      Spectrum
	interval time.Duration
	onTick   func(float64)

	bins      []byte
	intensity atomic.Uint64 // float64 bits

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// New creates a stopped estimator. onTick, if non-nil, receives every
// published value on the estimator goroutine.
func New(tap Spectrum, onTick func(float64)) *Estimator {
	return &Estimator{
		tap:      tap,
		interval: FrameInterval,
		onTick:   onTick,
		bins:     make([]byte, BassBins),
	}
}

// Intensity returns the last published value. It holds while stopped.
func (e *Estimator) Intensity() float64 {
	return math.Float64frombits(e.intensity.Load())
}

// Running reports whether the frame loop is active.
func (e *Estimator) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stop != nil
}

// Start launches the frame loop. It is a no-op when already running.
func (e *Estimator) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stop != nil {
		return
	}
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.loop(e.stop, e.done)
}

// Stop tears the frame loop down and waits for it to exit.
func (e *Estimator) Stop() {
	e.mu.Lock()
	stop, done := e.stop, e.done
	e.stop, e.done = nil, nil
	e.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (e *Estimator) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			v := e.Tick()
			if e.onTick != nil {
				e.onTick(v)
			}
		}
	}
}

// Tick reads the spectrum once and publishes the bass average. It must not
// be called concurrently with a running loop.
func (e *Estimator) Tick() float64 {
	clear(e.bins)
	e.tap.ByteFrequencyData(e.bins)
	var sum int
	for _, b := range e.bins {
		sum += int(b)
	}
	v := float64(sum) / float64(len(e.bins)) / 255
	e.intensity.Store(math.Float64bits(v))
	return v
}
