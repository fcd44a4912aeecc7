package player

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/satindergrewal/elitedsp/internal/graph"
	"github.com/satindergrewal/elitedsp/internal/media"
	"github.com/satindergrewal/elitedsp/internal/metadata"
	"github.com/satindergrewal/elitedsp/internal/queue"
	"github.com/satindergrewal/elitedsp/internal/store"
)

const saveTimeout = 5 * time.Second

// restore applies saved state. Anything unusable is dropped as a whole and
// the defaults stay in place.
func (p *Player) restore(ctx context.Context) {
	if p.kv == nil {
		return
	}
	st, err := store.LoadState(ctx, p.kv)
	switch {
	case errors.Is(err, store.ErrNotFound):
		p.log.Debug("No saved state, using defaults")
		return
	case err != nil:
		p.log.WithError(err).Warn("Discarding saved state")
		return
	}

	repeat, err := queue.ParseRepeat(st.Repeat)
	if err != nil {
		p.log.WithError(err).Warn("Discarding saved state")
		return
	}

	p.volume = st.Volume
	p.accent = st.AccentColor
	p.dsp = DSPSettings{
		AIUpsampling:     st.DSP.AIUpsampling,
		UpsamplingLevel:  st.DSP.UpsamplingLevel,
		SmartCrossfade:   st.DSP.SmartCrossfade,
		CrossfadeSeconds: st.DSP.CrossfadeSeconds,
		PhaseCorrection:  st.DSP.PhaseCorrection,
	}
	if len(st.Equalizer) == graph.BandCount {
		copy(p.eq[:], st.Equalizer)
	}
	p.queue.SetShuffle(st.Shuffle)
	p.queue.SetRepeat(repeat)

	tracks := make([]*queue.Track, len(st.Queue))
	for i, t := range st.Queue {
		lyrics := make([]queue.LyricLine, len(t.Lyrics))
		for j, l := range t.Lyrics {
			lyrics[j] = queue.LyricLine{TimeMs: l.TimeMs, Text: l.Text}
		}
		tracks[i] = &queue.Track{
			ID:            t.ID,
			Title:         t.Title,
			Artist:        t.Artist,
			Source:        media.Remote(t.URI),
			CoverURL:      t.CoverURL,
			DominantColor: t.DominantColor,
			Lyrics:        lyrics,
		}
	}
	p.queue.Restore(tracks, st.CurrentIndex)

	p.log.WithField("tracks", len(tracks)).Info("Restored saved state")
}

// save writes the session. Tracks whose sources only live for this session
// are left out and the current index is mapped onto what remains.
func (p *Player) save() {
	if p.kv == nil {
		return
	}

	st := &store.PersistedState{
		Volume:       p.volume,
		Shuffle:      p.queue.Shuffle(),
		Repeat:       p.queue.Repeat().String(),
		CurrentIndex: queue.None,
		AccentColor:  p.accent,
		DSP: store.DSP{
			AIUpsampling:     p.dsp.AIUpsampling,
			UpsamplingLevel:  p.dsp.UpsamplingLevel,
			SmartCrossfade:   p.dsp.SmartCrossfade,
			CrossfadeSeconds: p.dsp.CrossfadeSeconds,
			PhaseCorrection:  p.dsp.PhaseCorrection,
		},
		Equalizer: p.eq[:],
	}

	cur := p.queue.CurrentIndex()
	for i, t := range p.queue.Tracks() {
		if !persistable(t.Source) {
			continue
		}
		if i <= cur {
			st.CurrentIndex = len(st.Queue)
		}
		lyrics := make([]store.Lyric, len(t.Lyrics))
		for j, l := range t.Lyrics {
			lyrics[j] = store.Lyric{TimeMs: l.TimeMs, Text: l.Text}
		}
		color := t.DominantColor
		if !metadata.ValidColor(color) {
			color = ""
		}
		st.Queue = append(st.Queue, store.Track{
			ID:            t.ID,
			Title:         t.Title,
			Artist:        t.Artist,
			URI:           t.Source.URI,
			CoverURL:      t.CoverURL,
			DominantColor: color,
			Lyrics:        lyrics,
		})
	}
	if len(st.Queue) > 0 && st.CurrentIndex == queue.None {
		st.CurrentIndex = 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := store.SaveState(ctx, p.kv, st); err != nil {
		p.log.WithError(err).Warn("Failed to save state")
	}
}

// persistable reports whether a source survives a restart: only remote
// http(s) URIs do.
func persistable(h media.Handle) bool {
	if h.Local || h.URI == "" {
		return false
	}
	u, err := url.Parse(h.URI)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
