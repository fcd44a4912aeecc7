// Package graph implements the playback signal graph: per-source gain
// bindings mixed into a 15-band equalizer, an enhancement shelf, a dynamics
// compressor, a master gain and a spectrum analyser. The graph is a
// beep.Streamer driven by the render clock; all parameter automation is
// measured in rendered samples.
package graph

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/sirupsen/logrus"
)

var (
	// ErrUnsupported is returned when the graph cannot be created for the
	// requested output format.
	ErrUnsupported = errors.New("graph: audio processing unavailable")
	// ErrAlreadyTapped is reported when a source is already connected to a
	// different binding. Callers of Bind never see it; it is logged.
	ErrAlreadyTapped = errors.New("graph: source already tapped")
	// ErrNotInitialized is returned by operations that need Initialize first.
	ErrNotInitialized = errors.New("graph: not initialized")
)

// Equalizer layout.
const (
	BandCount = 15
	FilterQ   = 1.41
	MinGainDB = -12.0
	MaxGainDB = 12.0
)

// Bands are the equalizer center frequencies in Hz. The first band is a low
// shelf, the last a high shelf, the rest peaking filters.
var Bands = [BandCount]float64{20, 40, 63, 100, 160, 250, 400, 630, 1000, 1600, 2500, 4000, 6300, 10000, 20000}

// Automation time constants.
const (
	// SmoothingTau is the time constant for equalizer and volume changes.
	SmoothingTau = 100 * time.Millisecond
	// Quantum is the block size at which k-rate parameters update.
	Quantum = 128
	// UpsampleShelfHz is the corner of the enhancement shelf.
	UpsampleShelfHz = 16000.0
)

// Source is a media element a binding can tap. Stream must render silence
// while paused.
type Source interface {
	beep.Streamer
	Play() error
	Pause()
	Seek(d time.Duration) error
	Position() time.Duration
	Duration() time.Duration
	Close() error
}

// DSP holds the enhancement toggles the graph derives its knobs from.
type DSP struct {
	Upsampling      bool
	UpsamplingLevel int // 2, 4 or 8
	PhaseCorrection bool
}

// ShelfGain returns the enhancement shelf gain in dB.
func (d DSP) ShelfGain() float64 {
	if !d.Upsampling {
		return 0
	}
	return float64(d.UpsamplingLevel) * 1.5
}

// Ratio returns the compressor ratio.
func (d DSP) Ratio() float64 {
	if d.PhaseCorrection {
		return 4
	}
	return 2
}

// Graph is the single signal graph for a player. It is safe for concurrent
// use; rendering and control calls serialize on an internal lock.
type Graph struct {
	mu  sync.Mutex
	log *logrus.Entry

	sr          float64
	initialized bool
	running     bool

	filters  [BandCount]*Biquad
	upsample *Biquad
	comp     *Compressor
	master   *Gain
	analyser *Analyser

	bindings map[string]*Binding
	order    []*Binding
	tapped   map[Source]*Binding
}

// New creates an uninitialized graph rendering at sampleRate.
func New(sampleRate int, log *logrus.Entry) *Graph {
	return &Graph{
		sr:       float64(sampleRate),
		log:      log,
		bindings: make(map[string]*Binding),
		tapped:   make(map[Source]*Binding),
	}
}

// Initialize builds the fixed processing chain. It is idempotent: a second
// call leaves the existing chain untouched. The graph starts suspended.
func (g *Graph) Initialize() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.initialized {
		return nil
	}
	if g.sr < 8000 || g.sr > 384000 {
		return fmt.Errorf("%w: sample rate %.0f", ErrUnsupported, g.sr)
	}

	for i, freq := range Bands {
		typ := Peaking
		switch i {
		case 0:
			typ = LowShelf
		case BandCount - 1:
			typ = HighShelf
		}
		g.filters[i] = NewBiquad(typ, freq, FilterQ, g.sr)
	}
	g.upsample = NewBiquad(HighShelf, UpsampleShelfHz, FilterQ, g.sr)
	g.comp = NewCompressor(g.sr)
	g.master = NewGain(1, g.sr)
	g.analyser = NewAnalyser()
	g.initialized = true

	g.log.WithField("sample_rate", g.sr).Info("Signal graph initialized")
	return nil
}

// Initialized reports whether Initialize has succeeded.
func (g *Graph) Initialized() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.initialized
}

// Resume starts processing. Calling it while running is a no-op.
func (g *Graph) Resume() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.initialized {
		return ErrNotInitialized
	}
	if !g.running {
		g.running = true
		g.log.Debug("Signal graph resumed")
	}
	return nil
}

// Running reports whether the graph is processing audio.
func (g *Graph) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// SetEqualizerGains ramps every band toward its new gain (dB, clamped to
// ±12) with SmoothingTau. Calling before Initialize is a no-op.
func (g *Graph) SetEqualizerGains(gains [BandCount]float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.initialized {
		return
	}
	for i, f := range g.filters {
		f.Gain.SetTargetAtTime(clampGain(gains[i]), SmoothingTau)
	}
}

// EqualizerGains returns the gains currently applied by each band. While a
// ramp is in progress these lag the last requested values.
func (g *Graph) EqualizerGains() [BandCount]float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out [BandCount]float64
	if !g.initialized {
		return out
	}
	for i, f := range g.filters {
		out[i] = f.Gain.Value()
	}
	return out
}

// SetMasterVolume ramps the master gain toward v (clamped to 0..1).
func (g *Graph) SetMasterVolume(v float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.initialized {
		return
	}
	g.master.Gain.SetTargetAtTime(min(max(v, 0), 1), SmoothingTau)
}

// MasterVolume returns the currently applied master gain.
func (g *Graph) MasterVolume() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.initialized {
		return 0
	}
	return g.master.Gain.Value()
}

// SetDSP applies the enhancement settings: shelf gain and compressor ratio.
func (g *Graph) SetDSP(d DSP) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.initialized {
		return
	}
	g.upsample.Gain.SetTargetAtTime(d.ShelfGain(), SmoothingTau)
	g.comp.Ratio.SetTargetAtTime(d.Ratio(), SmoothingTau)
}

// CompressorRatio returns the compressor's current ratio.
func (g *Graph) CompressorRatio() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.initialized {
		return 0
	}
	return g.comp.Ratio.Value()
}

// Analyser returns the spectrum tap, or nil before Initialize.
func (g *Graph) Analyser() *Analyser {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.analyser
}

// Bind returns the binding for id, creating one around src if none exists.
// At most one binding exists per id; a repeated call returns the original
// binding and ignores src. If src is already tapped by another binding the
// conflict is logged and that binding is returned.
func (g *Graph) Bind(id string, src Source) (*Binding, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.initialized {
		return nil, ErrNotInitialized
	}
	if b, ok := g.bindings[id]; ok {
		return b, nil
	}
	if owner, ok := g.tapped[src]; ok {
		g.log.WithError(ErrAlreadyTapped).WithFields(logrus.Fields{
			"binding": id,
			"owner":   owner.id,
		}).Warn("Source already connected; reusing existing binding")
		return owner, nil
	}

	b := &Binding{
		id:   id,
		g:    g,
		src:  src,
		gain: NewGain(1, g.sr),
		buf:  make([][2]float64, Quantum),
	}
	g.bindings[id] = b
	g.order = append(g.order, b)
	g.tapped[src] = b
	g.log.WithField("binding", id).Debug("Source bound")
	return b, nil
}

// Binding returns the existing binding for id.
func (g *Graph) Binding(id string) (*Binding, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.bindings[id]
	return b, ok
}

// BindingIDs returns the ids of all live bindings in mix order.
func (g *Graph) BindingIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.order))
	for _, b := range g.order {
		ids = append(ids, b.id)
	}
	return ids
}

// Unbind disconnects and closes the source bound under id. Unknown ids are
// ignored.
func (g *Graph) Unbind(id string) error {
	g.mu.Lock()
	b, ok := g.bindings[id]
	if ok {
		g.removeLocked(b)
	}
	g.mu.Unlock()

	if !ok {
		return nil
	}
	return b.src.Close()
}

func (g *Graph) removeLocked(b *Binding) {
	delete(g.bindings, b.id)
	delete(g.tapped, b.src)
	g.order = slices.DeleteFunc(g.order, func(x *Binding) bool { return x == b })
}

// Dispose releases every binding and suspends the graph. The chain stays
// initialized so the graph may be reused.
func (g *Graph) Dispose() {
	g.mu.Lock()
	bs := g.order
	for _, b := range bs {
		delete(g.bindings, b.id)
		delete(g.tapped, b.src)
	}
	g.order = nil
	g.running = false
	g.mu.Unlock()

	for _, b := range bs {
		if err := b.src.Close(); err != nil {
			g.log.WithError(err).WithField("binding", b.id).Warn("Failed to close source")
		}
	}
}

// Stream renders the mixed, processed output. A suspended or uninitialized
// graph renders silence without advancing sources or automation.
func (g *Graph) Stream(samples [][2]float64) (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.initialized || !g.running {
		clear(samples)
		return len(samples), true
	}
	for off := 0; off < len(samples); off += Quantum {
		end := min(off+Quantum, len(samples))
		g.renderQuantum(samples[off:end])
	}
	return len(samples), true
}

// Err implements beep.Streamer.
func (g *Graph) Err() error { return nil }

func (g *Graph) renderQuantum(out [][2]float64) {
	clear(out)
	for _, b := range g.order {
		buf := b.buf[:len(out)]
		n, _ := b.src.Stream(buf)
		if n < len(buf) {
			clear(buf[max(n, 0):])
		}
		b.gain.Accumulate(out, buf)
	}

	for _, f := range g.filters {
		f.Process(out)
	}
	g.upsample.Process(out)
	g.comp.Process(out)
	g.master.Process(out)
	g.analyser.Capture(out)
}

func clampGain(db float64) float64 {
	return min(max(db, MinGainDB), MaxGainDB)
}
