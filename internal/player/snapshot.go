package player

import (
	"slices"

	"github.com/satindergrewal/elitedsp/internal/graph"
	"github.com/satindergrewal/elitedsp/internal/queue"
)

// Snapshot is a read-only view of the session for UIs.
type Snapshot struct {
	Playing        bool                     `json:"playing"`
	PositionMs     int64                    `json:"positionMs"`
	DurationMs     int64                    `json:"durationMs"`
	BeatIntensity  float64                  `json:"beatIntensity"`
	Crossfading    bool                     `json:"crossfading"`
	Equalizer      [graph.BandCount]float64 `json:"equalizer"`
	DSP            DSPSettings              `json:"dsp"`
	Volume         float64                  `json:"volume"`
	Shuffle        bool                     `json:"shuffle"`
	Repeat         queue.RepeatMode         `json:"repeat"`
	Queue          []queue.Track            `json:"queue"`
	CurrentIndex   int                      `json:"currentIndex"`
	AccentColor    string                   `json:"accentColor"`
	ActiveLyric    int                      `json:"activeLyric"`
	AudioAvailable bool                     `json:"audioAvailable"`
}

// Snapshot returns the current session state.
func (p *Player) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot()
}

func (p *Player) snapshot() Snapshot {
	s := Snapshot{
		Playing:        p.playing,
		Crossfading:    p.xfade.Active(),
		Equalizer:      p.eq,
		DSP:            p.dsp,
		Volume:         p.volume,
		Shuffle:        p.queue.Shuffle(),
		Repeat:         p.queue.Repeat(),
		CurrentIndex:   p.queue.CurrentIndex(),
		AccentColor:    p.accent,
		ActiveLyric:    queue.None,
		AudioAvailable: p.audio,
	}
	if p.beat != nil {
		s.BeatIntensity = p.beat.Intensity()
	}

	tracks := p.queue.Tracks()
	s.Queue = make([]queue.Track, len(tracks))
	for i, t := range tracks {
		s.Queue[i] = *t
		s.Queue[i].Lyrics = slices.Clone(t.Lyrics)
	}

	if cur := p.queue.Current(); cur != nil {
		s.DurationMs = cur.Duration.Milliseconds()
		if e := p.sources[cur.ID]; e != nil {
			s.PositionMs = e.src.Position().Milliseconds()
			if d := e.src.Duration(); d > 0 {
				s.DurationMs = d.Milliseconds()
			}
		}
		s.ActiveLyric = queue.ActiveLyric(cur.Lyrics, s.PositionMs)
	}
	return s
}

// Subscribe returns a channel that receives a snapshot after every state
// change. Slow subscribers miss updates rather than block the session.
func (p *Player) Subscribe() <-chan Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan Snapshot, 10)
	if p.closed {
		close(ch)
		return ch
	}
	p.listeners = append(p.listeners, ch)
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (p *Player) Unsubscribe(ch <-chan Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, l := range p.listeners {
		if l == ch {
			close(l)
			p.listeners = slices.Delete(p.listeners, i, i+1)
			return
		}
	}
}

// notify must be called with the lock held.
func (p *Player) notify() {
	if len(p.listeners) == 0 {
		return
	}
	s := p.snapshot()
	for _, l := range p.listeners {
		select {
		case l <- s:
		default:
		}
	}
}
