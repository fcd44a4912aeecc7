package player

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/satindergrewal/elitedsp/internal/media"
	"github.com/satindergrewal/elitedsp/internal/metadata"
	"github.com/satindergrewal/elitedsp/internal/queue"
)

// Append adds a track to the end of the queue and returns its index. The
// first track of an empty queue becomes current but does not start.
func (p *Player) Append(t queue.Track) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return queue.None, ErrClosed
	}
	if t.Source.IsZero() {
		return queue.None, fmt.Errorf("track %q has no source", t.Title)
	}
	t.ID = ""
	t.MetadataPending = false
	i := p.queue.Append(&t)
	p.save()
	p.notify()
	return i, nil
}

// AddFile ingests a local file, makes it current and starts playing it.
// Display metadata is looked up in the background and applied to this
// track whenever it arrives. The track is queued even when playback fails.
func (p *Player) AddFile(ctx context.Context, path string) (queue.Track, error) {
	return p.addFile(ctx, path, true)
}

// QueueFile ingests a local file and appends it without interrupting what
// is playing.
func (p *Player) QueueFile(ctx context.Context, path string) (queue.Track, error) {
	return p.addFile(ctx, path, false)
}

func (p *Player) addFile(ctx context.Context, path string, play bool) (queue.Track, error) {
	if p.files == nil {
		return queue.Track{}, ErrNoFiles
	}
	if err := ctx.Err(); err != nil {
		return queue.Track{}, err
	}
	h, info, err := p.files.Ingest(path)
	if err != nil {
		return queue.Track{}, fmt.Errorf("ingest %s: %w", path, err)
	}

	t := &queue.Track{
		Title:    info.Title,
		Artist:   info.Artist,
		Source:   h,
		Duration: info.Duration,
	}
	if info.TagTitle != "" {
		t.Title = info.TagTitle
	}
	if info.TagArtist != "" {
		t.Artist = info.TagArtist
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.files.Release(h)
		return queue.Track{}, ErrClosed
	}

	t.MetadataPending = p.meta != nil
	i := p.queue.Append(t)
	if p.meta != nil {
		p.lookup(t.ID, t.Title)
	}
	p.log.WithFields(logrus.Fields{
		"index": i,
		"title": t.Title,
		"play":  play,
	}).Info("Added local file")

	if play {
		_ = p.queue.Select(i)
		err = p.switchTo(true, true)
		p.save()
		p.notify()
		return *t, err
	}
	// the new track may change what follows the current one
	p.policyChanged()
	return *t, nil
}

// Search identifies a track from free text and queues it, using the
// catalog stream as its audio. The track becomes current only when the
// queue had nothing selected.
func (p *Player) Search(ctx context.Context, query string) (queue.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" || p.meta == nil || p.catalog == "" {
		return queue.Track{}, ErrNoMatch
	}
	m, ok := p.meta.Fetch(ctx, query)
	if !ok {
		return queue.Track{}, fmt.Errorf("%w: %q", ErrNoMatch, query)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return queue.Track{}, ErrClosed
	}
	t := &queue.Track{
		Title:         m.Title,
		Artist:        m.Artist,
		Source:        media.Remote(p.catalog),
		CoverURL:      m.CoverURL,
		DominantColor: m.DominantColor,
		Lyrics:        lyricLines(m.Lyrics),
	}
	i := p.queue.Append(t)
	if metadata.ValidColor(m.DominantColor) {
		p.accent = m.DominantColor
	}
	p.log.WithFields(logrus.Fields{
		"index": i,
		"title": t.Title,
	}).Info("Queued search result")
	p.save()
	p.notify()
	return *t, nil
}

// Remove evicts a track and releases its source. Removing the current
// track moves playback to whatever now sits at the current index.
func (p *Player) Remove(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if _, i := p.queue.Find(id); i == queue.None {
		return fmt.Errorf("%w: %s", ErrUnknownTrack, id)
	}

	wasCurrent := id == p.current || id == p.opening
	if id == p.incoming || (wasCurrent && p.xfade.Active()) {
		p.cancelFade()
	}
	if id == p.upcoming {
		p.upcoming = ""
	}
	p.teardown(id)
	p.queue.Remove(id)

	var err error
	if wasCurrent {
		p.current = ""
		if p.queue.Current() != nil {
			err = p.switchTo(p.playing, true)
		} else {
			p.stop()
		}
	}
	p.save()
	p.notify()
	return err
}

// lookup fetches metadata for a track in the background. The result is
// applied to the track with that ID wherever it sits by then, and pending
// is cleared whatever the outcome.
func (p *Player) lookup(id, query string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		m, ok := p.meta.Fetch(p.ctx, query)

		p.mu.Lock()
		defer p.mu.Unlock()
		found := p.queue.Update(id, func(t *queue.Track) {
			t.MetadataPending = false
			if !ok {
				return
			}
			if m.Artist != "" && m.Artist != query {
				t.Artist = m.Artist
			}
			t.CoverURL = m.CoverURL
			t.DominantColor = m.DominantColor
			if len(m.Lyrics) > 0 {
				t.Lyrics = lyricLines(m.Lyrics)
			}
		})
		if !found {
			return
		}
		if ok && metadata.ValidColor(m.DominantColor) {
			p.accent = m.DominantColor
		}
		if !p.closed {
			p.save()
			p.notify()
		}
	}()
}

func lyricLines(in []metadata.Lyric) []queue.LyricLine {
	if len(in) == 0 {
		return nil
	}
	out := make([]queue.LyricLine, len(in))
	for i, l := range in {
		out[i] = queue.LyricLine{TimeMs: l.TimeMs, Text: l.Text}
	}
	return out
}
