package player

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/satindergrewal/elitedsp/internal/config"
	"github.com/satindergrewal/elitedsp/internal/graph"
	"github.com/satindergrewal/elitedsp/internal/queue"
)

// Play starts or resumes the current track. It resumes the graph, which
// stays suspended until the first play.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	defer p.notify()
	if p.current == "" {
		if p.queue.Current() == nil {
			return ErrEmptyQueue
		}
		return p.switchTo(true, false)
	}
	return p.startPlayback()
}

// Pause halts every active source. The graph keeps running.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	for _, e := range p.sources {
		e.src.Pause()
	}
	p.stop()
	p.notify()
}

// TogglePlay flips between playing and paused.
func (p *Player) TogglePlay() error {
	p.mu.Lock()
	playing := p.playing
	p.mu.Unlock()
	if playing {
		p.Pause()
		return nil
	}
	return p.Play()
}

// Seek moves the current track to pos. A running crossfade is abandoned.
func (p *Player) Seek(pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	e := p.sources[p.current]
	if e == nil {
		return ErrEmptyQueue
	}
	p.cancelFade()
	if err := e.src.Seek(max(pos, 0)); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	p.upcoming = ""
	p.prune()
	p.notify()
	return nil
}

// Next skips forward following the shuffle and repeat policy. At the end
// of the queue without repeat it does nothing.
func (p *Player) Next() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.queue.Len() == 0 {
		return nil
	}
	defer p.notify()
	return p.advance(false)
}

// Prev restarts the current track when it is more than PrevRestart in,
// otherwise goes back one track.
func (p *Player) Prev() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.queue.Len() == 0 {
		return nil
	}
	defer p.notify()

	if e := p.sources[p.current]; e != nil && e.src.Position() > PrevRestart {
		return p.restart(p.playing)
	}
	before := p.queue.CurrentIndex()
	p.queue.Retreat()
	if p.queue.CurrentIndex() == before && p.current != "" {
		return p.restart(p.playing)
	}
	return p.switchTo(p.playing, true)
}

// Select jumps to index i and plays it. Selecting the current track while
// a crossfade runs cancels the fade and keeps the position.
func (p *Player) Select(i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if err := p.queue.Select(i); err != nil {
		return err
	}
	defer p.notify()
	t := p.queue.Current()
	if t.ID == p.current && !p.xfade.Active() {
		return p.startPlayback()
	}
	return p.switchTo(true, t.ID != p.current)
}

// SetShuffle turns shuffle on or off.
func (p *Player) SetShuffle(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.queue.SetShuffle(on)
	p.policyChanged()
}

// SetRepeat sets the repeat mode.
func (p *Player) SetRepeat(m queue.RepeatMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.queue.SetRepeat(m)
	p.policyChanged()
}

// CycleRepeat steps the repeat mode and returns the new one.
func (p *Player) CycleRepeat() queue.RepeatMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return p.queue.Repeat()
	}
	m := p.queue.CycleRepeat()
	p.policyChanged()
	return m
}

func (p *Player) policyChanged() {
	if !p.xfade.Active() {
		p.upcoming = ""
		p.prune()
	}
	p.save()
	p.notify()
}

// SetVolume sets the master volume, clamped to 0..1.
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.volume = min(max(v, 0), 1)
	if p.audio {
		p.g.SetMasterVolume(p.volume)
	}
	p.save()
	p.notify()
}

// SetEqualizer ramps all bands to gains, each clamped to ±12 dB.
func (p *Player) SetEqualizer(gains [graph.BandCount]float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.eq = clampBands(gains)
	if p.audio {
		p.g.SetEqualizerGains(p.eq)
	}
	p.save()
	p.notify()
}

// ApplyPreset sets the equalizer to a named preset.
func (p *Player) ApplyPreset(name string) error {
	gains, ok := p.presets[config.NormalizePresetName(name)]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	p.SetEqualizer(gains)
	return nil
}

// Presets returns the names of the available presets, sorted.
func (p *Player) Presets() []string {
	var names []string
	for name := range p.presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// SetDSP applies enhancement settings. A crossfade already running keeps
// its original window.
func (p *Player) SetDSP(d DSPSettings) error {
	if err := d.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.dsp = d
	p.applySettings()
	p.log.WithFields(logrus.Fields{
		"upsampling": d.AIUpsampling,
		"level":      d.UpsamplingLevel,
		"crossfade":  d.SmartCrossfade,
		"window":     d.window(),
		"phase":      d.PhaseCorrection,
	}).Debug("DSP settings applied")
	p.save()
	p.notify()
	return nil
}

// Poll checks the current track's remaining time, prefetching the next
// track and starting a crossfade when due.
func (p *Player) Poll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || !p.playing {
		return
	}
	e := p.sources[p.current]
	if e == nil {
		return
	}
	remaining := time.Duration(-1)
	if d := e.src.Duration(); d > 0 {
		remaining = d - e.src.Position()
	}
	if remaining < 0 || !p.xfade.Enabled() || p.xfade.Active() {
		return
	}
	if remaining <= p.xfade.Window()+PrefetchLead && !p.prefetch() {
		return
	}
	if p.xfade.Check(remaining) {
		p.notify()
	}
}

// endedFunc returns the natural-end handler for one playthrough. It runs
// on the render goroutine, so the real work is handed off.
func (p *Player) endedFunc(id string, token uint64) func() {
	return func() { go p.onEnded(id, token) }
}

// onEnded advances the queue once per playthrough. Events from a source
// that is no longer current, from an earlier playthrough, or for a track a
// crossfade has already taken over are ignored.
func (p *Player) onEnded(id string, token uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || id != p.current || token != p.token {
		return
	}
	if p.xfade.Active() {
		p.log.WithField("track", id).Debug("Track ended during crossfade, ignoring")
		return
	}
	p.token++
	if err := p.advance(true); err != nil {
		p.log.WithError(err).Warn("Could not start next track")
	}
	p.notify()
}

// advance moves to the next track. natural is true for end-of-track
// advances, which stop playback at the end of the queue.
func (p *Player) advance(natural bool) error {
	before := p.queue.CurrentIndex()
	if p.queue.Advance() {
		return p.restart(true)
	}
	if p.queue.CurrentIndex() == before {
		if p.queue.Shuffle() {
			return p.restart(natural || p.playing)
		}
		if natural {
			p.log.Info("Reached end of queue")
			p.stop()
		}
		return nil
	}
	return p.switchTo(natural || p.playing, true)
}

// switchTo hard-cuts to the queue's current track, dropping any fade in
// progress. restart plays it from the top.
func (p *Player) switchTo(play, restart bool) error {
	p.switches++
	p.cancelFade()
	for id := range p.retiring {
		p.teardown(id)
	}

	t := p.queue.Current()
	old := p.current
	if old != "" && (t == nil || old != t.ID) {
		p.teardown(old)
	}
	p.current = ""
	p.upcoming = ""
	if t == nil {
		p.stop()
		return nil
	}

	e, err := p.load(t)
	if errors.Is(err, errSuperseded) {
		return nil
	}
	if err != nil {
		if !errors.Is(err, ErrClosed) {
			p.stop()
		}
		return err
	}
	p.current = t.ID
	e.deck().SetGain(1)
	if restart || old != t.ID {
		if err := e.src.Seek(0); err != nil {
			p.log.WithError(err).Debug("Rewind failed")
		}
	}
	p.token++
	e.src.SetOnEnded(p.endedFunc(t.ID, p.token))
	p.prune()

	p.log.WithFields(logrus.Fields{
		"index": p.queue.CurrentIndex(),
		"title": t.Title,
	}).Info("Now playing")

	if play {
		return p.startPlayback()
	}
	e.src.Pause()
	p.stop()
	return nil
}

// restart replays the current track from the top as a new playthrough.
func (p *Player) restart(play bool) error {
	e := p.sources[p.current]
	if e == nil {
		return p.switchTo(play, true)
	}
	p.cancelFade()
	if err := e.src.Seek(0); err != nil {
		return fmt.Errorf("rewind: %w", err)
	}
	e.deck().SetGain(1)
	p.token++
	e.src.SetOnEnded(p.endedFunc(p.current, p.token))
	p.upcoming = ""
	p.prune()
	if play {
		return p.startPlayback()
	}
	return nil
}

// startPlayback resumes the graph and every source that should be audible.
// A rejected play leaves the session paused.
func (p *Player) startPlayback() error {
	e := p.sources[p.current]
	if e == nil {
		return ErrEmptyQueue
	}
	if p.audio {
		if err := p.g.Resume(); err != nil {
			p.log.WithError(err).Warn("Could not resume audio processing")
		}
	}
	if err := e.src.Play(); err != nil {
		e.src.Pause()
		p.stop()
		p.log.WithError(err).WithField("track", p.current).Warn("Playback rejected")
		return fmt.Errorf("play: %w", err)
	}
	if in := p.sources[p.incoming]; in != nil && unfinished(in.src) {
		_ = in.src.Play()
	}
	for id := range p.retiring {
		if out := p.sources[id]; out != nil && unfinished(out.src) {
			_ = out.src.Play()
		}
	}
	p.playing = true
	if p.beat != nil {
		p.beat.Start()
	}
	return nil
}

// unfinished reports whether src has audio left; Play would rewind a
// finished source.
func unfinished(src Source) bool {
	d := src.Duration()
	return d <= 0 || src.Position() < d
}

// stop marks the session paused and stops the beat loop.
func (p *Player) stop() {
	p.playing = false
	if p.beat != nil {
		p.beat.Stop()
	}
}
