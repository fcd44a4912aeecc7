// Package player is the playback session: it owns the queue, binds the
// current (and, while crossfading, the next) track into the signal graph,
// turns user intents into transport actions and publishes snapshots.
//
// Every entry point takes the session lock. Timer callbacks, natural-end
// events and async metadata results re-enter through the same lock, so the
// session behaves like a single event loop.
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/satindergrewal/elitedsp/internal/beat"
	"github.com/satindergrewal/elitedsp/internal/crossfade"
	"github.com/satindergrewal/elitedsp/internal/graph"
	"github.com/satindergrewal/elitedsp/internal/media"
	"github.com/satindergrewal/elitedsp/internal/metadata"
	"github.com/satindergrewal/elitedsp/internal/queue"
	"github.com/satindergrewal/elitedsp/internal/store"
)

var (
	ErrClosed        = errors.New("player: closed")
	ErrEmptyQueue    = errors.New("player: nothing to play")
	ErrUnknownTrack  = errors.New("player: unknown track")
	ErrUnknownPreset = errors.New("player: unknown preset")
	ErrNoMatch       = errors.New("player: no match for query")
	ErrNoFiles       = errors.New("player: local files not supported")
	ErrInvalid       = errors.New("player: invalid settings")
)

const (
	// PollInterval is how often Run checks the playback position.
	PollInterval = 100 * time.Millisecond
	// PrevRestart is how far into a track Prev restarts it instead of
	// going back.
	PrevRestart = 3 * time.Second
	// PrefetchLead is how long before a crossfade is due the next track
	// starts opening in the background.
	PrefetchLead = 10 * time.Second
)

// Source is a media element the session can bind into the graph.
type Source interface {
	graph.Source
	SetOnEnded(f func())
}

// OpenFunc opens the media behind a handle.
type OpenFunc func(ctx context.Context, h media.Handle) (Source, error)

// MediaOpener adapts a media.Opener.
func MediaOpener(o *media.Opener) OpenFunc {
	return func(ctx context.Context, h media.Handle) (Source, error) {
		el, err := o.Open(ctx, h)
		if err != nil {
			return nil, err
		}
		return el, nil
	}
}

// Files ingests local files and releases their handles.
type Files interface {
	Ingest(path string) (media.Handle, media.Info, error)
	Release(h media.Handle)
}

// Fetcher resolves display metadata for a query.
type Fetcher interface {
	Fetch(ctx context.Context, query string) (metadata.Metadata, bool)
}

// Deps are the session's collaborators. Files, Metadata and Store are
// optional.
type Deps struct {
	Graph     *graph.Graph
	Open      OpenFunc
	Files     Files
	Metadata  Fetcher
	Store     store.KV
	AfterFunc crossfade.AfterFunc
	Log       *logrus.Entry
}

// Options are the session defaults, used until saved state overrides them.
type Options struct {
	Volume           float64
	AccentColor      string
	DSP              DSPSettings
	Equalizer        [graph.BandCount]float64
	Presets          map[string][graph.BandCount]float64
	CatalogStreamURL string
}

// DSPSettings are the user-facing enhancement toggles.
type DSPSettings struct {
	AIUpsampling     bool    `json:"aiUpsampling"`
	UpsamplingLevel  int     `json:"upsamplingLevel"`
	SmartCrossfade   bool    `json:"smartCrossfade"`
	CrossfadeSeconds float64 `json:"crossfadeSeconds"`
	PhaseCorrection  bool    `json:"phaseCorrection"`
}

// DefaultDSP returns the out-of-the-box enhancement settings.
func DefaultDSP() DSPSettings {
	return DSPSettings{
		AIUpsampling:     true,
		UpsamplingLevel:  2,
		SmartCrossfade:   true,
		CrossfadeSeconds: crossfade.DefaultWindow.Seconds(),
		PhaseCorrection:  true,
	}
}

// Validate rejects settings the engine cannot apply.
func (d DSPSettings) Validate() error {
	switch d.UpsamplingLevel {
	case 2, 4, 8:
	default:
		return fmt.Errorf("%w: upsampling level %d not one of 2, 4, 8", ErrInvalid, d.UpsamplingLevel)
	}
	lo, hi := crossfade.MinWindow.Seconds(), crossfade.MaxWindow.Seconds()
	if d.CrossfadeSeconds < lo || d.CrossfadeSeconds > hi {
		return fmt.Errorf("%w: crossfade %.2fs outside [%.1f, %.1f]", ErrInvalid, d.CrossfadeSeconds, lo, hi)
	}
	return nil
}

func (d DSPSettings) window() time.Duration {
	return time.Duration(d.CrossfadeSeconds * float64(time.Second))
}

func (d DSPSettings) graphDSP() graph.DSP {
	return graph.DSP{
		Upsampling:      d.AIUpsampling,
		UpsamplingLevel: d.UpsamplingLevel,
		PhaseCorrection: d.PhaseCorrection,
	}
}

// entry is an open source and, when processing is available, its binding.
type entry struct {
	src Source
	b   *graph.Binding
}

func (e *entry) deck() deck { return deck{e.src, e.b} }

// Player is one playback session.
type Player struct {
	mu sync.Mutex

	g     *graph.Graph
	open  OpenFunc
	files Files
	meta  Fetcher
	kv    store.KV
	log   *logrus.Entry
	after crossfade.AfterFunc

	queue   *queue.Controller
	xfade   *crossfade.Coordinator
	beat    *beat.Estimator
	presets map[string][graph.BandCount]float64
	catalog string

	audio    bool
	sources  map[string]*entry // by track ID
	retiring map[string]crossfade.Timer
	loading  map[string]bool
	current  string
	incoming string
	upcoming string
	playing  bool
	token    uint64

	// switches counts hard cuts; a source opened under an older count is
	// discarded.
	switches    uint64
	opening     string // track switchTo is opening
	unavailable string // upcoming track whose prefetch failed

	volume float64
	accent string
	dsp    DSPSettings
	eq     [graph.BandCount]float64

	listeners []chan Snapshot

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// New creates a session. Call Initialize before use.
func New(deps Deps, opts Options) *Player {
	log := deps.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.DSP.Validate() != nil {
		opts.DSP = DefaultDSP()
	}
	if !metadata.ValidColor(opts.AccentColor) {
		opts.AccentColor = metadata.DefaultAccent
	}
	if opts.Presets == nil {
		opts.Presets = map[string][graph.BandCount]float64{"flat": {}}
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		g:        deps.Graph,
		open:     deps.Open,
		files:    deps.Files,
		meta:     deps.Metadata,
		kv:       deps.Store,
		log:      log,
		presets:  opts.Presets,
		catalog:  opts.CatalogStreamURL,
		sources:  make(map[string]*entry),
		retiring: make(map[string]crossfade.Timer),
		loading:  make(map[string]bool),
		volume:   min(max(opts.Volume, 0), 1),
		accent:   opts.AccentColor,
		dsp:      opts.DSP,
		eq:       clampBands(opts.Equalizer),
		ctx:      ctx,
		cancel:   cancel,
	}

	var release func(media.Handle)
	if deps.Files != nil {
		release = deps.Files.Release
	}
	p.queue = queue.New(release)

	af := deps.AfterFunc
	if af == nil {
		af = func(d time.Duration, f func()) crossfade.Timer { return time.AfterFunc(d, f) }
	}
	p.after = func(d time.Duration, f func()) crossfade.Timer {
		return af(d, func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if p.closed {
				return
			}
			f()
		})
	}
	p.xfade = crossfade.New(host{p}, p.after, log.WithField("component", "crossfade"))
	return p
}

// Initialize builds the signal graph and restores saved state. A graph that
// cannot be built is not an error: the session runs without processing.
func (p *Player) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	if p.g != nil {
		if err := p.g.Initialize(); err != nil {
			p.log.WithError(err).Warn("Audio processing unavailable, continuing without it")
		} else {
			p.audio = true
			p.beat = beat.New(p.g.Analyser(), nil)
		}
	}

	p.restore(ctx)
	p.applySettings()

	p.log.WithFields(logrus.Fields{
		"audio":  p.audio,
		"tracks": p.queue.Len(),
		"volume": p.volume,
	}).Info("Player initialized")
	return nil
}

func (p *Player) applySettings() {
	p.xfade.SetEnabled(p.dsp.SmartCrossfade)
	p.xfade.SetWindow(p.dsp.window())
	if !p.audio {
		return
	}
	p.g.SetMasterVolume(p.volume)
	p.g.SetEqualizerGains(p.eq)
	p.g.SetDSP(p.dsp.graphDSP())
}

// Run polls the playback position until ctx is cancelled.
func (p *Player) Run(ctx context.Context) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll()
		}
	}
}

// Close saves state, stops playback and releases every source and handle.
func (p *Player) Close() error {
	// Unblocks any source still being opened.
	p.cancel()
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.xfade.Cancel()
	p.save()
	p.closed = true
	p.stop()
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	for id, e := range p.sources {
		if e.b == nil {
			p.teardown(id)
		}
	}
	if p.audio {
		p.g.Dispose()
	}
	clear(p.sources)
	clear(p.retiring)
	p.queue.Clear()
	for _, ch := range p.listeners {
		close(ch)
	}
	p.listeners = nil

	var err error
	if p.kv != nil {
		err = p.kv.Close()
	}
	p.log.Info("Player closed")
	return err
}

func clampBands(gains [graph.BandCount]float64) [graph.BandCount]float64 {
	for i, g := range gains {
		gains[i] = min(max(g, graph.MinGainDB), graph.MaxGainDB)
	}
	return gains
}
