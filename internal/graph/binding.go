package graph

import "time"

// Binding connects one media source into the graph through its own gain
// stage. All deck-level operations a crossfade needs go through it.
type Binding struct {
	id   string
	g    *Graph
	src  Source
	gain *Gain
	buf  [][2]float64
}

// ID returns the key the binding was created under.
func (b *Binding) ID() string { return b.id }

// Source returns the bound media source.
func (b *Binding) Source() Source { return b.src }

// SetGain jumps the binding gain to v.
func (b *Binding) SetGain(v float64) {
	b.g.mu.Lock()
	b.gain.Gain.SetValue(v)
	b.g.mu.Unlock()
}

// FadeTo ramps the binding gain toward target over roughly d, using an
// exponential approach with time constant d/4.
func (b *Binding) FadeTo(target float64, d time.Duration) {
	b.g.mu.Lock()
	b.gain.Gain.SetTargetAtTime(target, d/4)
	b.g.mu.Unlock()
}

// Gain returns the currently applied binding gain.
func (b *Binding) Gain() float64 {
	b.g.mu.Lock()
	defer b.g.mu.Unlock()
	return b.gain.Gain.Value()
}

// Play starts the source.
func (b *Binding) Play() error { return b.src.Play() }

// Pause pauses the source.
func (b *Binding) Pause() { b.src.Pause() }

// Seek moves the source's playback position.
func (b *Binding) Seek(d time.Duration) error { return b.src.Seek(d) }

// Position returns the source's playback position.
func (b *Binding) Position() time.Duration { return b.src.Position() }

// Duration returns the source's total length.
func (b *Binding) Duration() time.Duration { return b.src.Duration() }
