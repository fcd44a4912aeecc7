package player

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/satindergrewal/elitedsp/internal/crossfade"
	"github.com/satindergrewal/elitedsp/internal/graph"
	"github.com/satindergrewal/elitedsp/internal/queue"
)

var (
	errNoDeck     = errors.New("player: no deck for track")
	errSuperseded = errors.New("player: superseded while opening")
)

// deck drives one source. Without a binding there is no gain stage, so
// gain changes are dropped and the source plays at full level.
type deck struct {
	src Source
	b   *graph.Binding
}

func (d deck) SetGain(v float64) {
	if d.b != nil {
		d.b.SetGain(v)
	}
}

func (d deck) FadeTo(target float64, dur time.Duration) {
	if d.b != nil {
		d.b.FadeTo(target, dur)
	}
}

func (d deck) Seek(pos time.Duration) error { return d.src.Seek(pos) }
func (d deck) Play() error                  { return d.src.Play() }

// host lets the crossfade coordinator drive the session. The coordinator
// only calls it with the session lock held.
type host struct{ p *Player }

func (h host) CurrentIndex() int { return h.p.queue.CurrentIndex() }

func (h host) NextIndex() int { return h.p.upcomingIndex() }

func (h host) CurrentDeck() (crossfade.Deck, error) {
	e := h.p.sources[h.p.current]
	if e == nil {
		return nil, errNoDeck
	}
	return e.deck(), nil
}

func (h host) Deck(index int) (crossfade.Deck, error) {
	t := h.p.queue.At(index)
	if t == nil {
		return nil, fmt.Errorf("%w: index %d", queue.ErrOutOfRange, index)
	}
	e := h.p.sources[t.ID]
	if e == nil {
		return nil, fmt.Errorf("%w: %q is not loaded", errNoDeck, t.Title)
	}
	h.p.attach(t, e)
	h.p.incoming = t.ID
	return e.deck(), nil
}

func (h host) Handoff(int) { h.p.handoff() }

func (h host) HardAdvance() {
	h.p.token++
	if err := h.p.advance(true); err != nil {
		h.p.log.WithError(err).Warn("Could not start next track")
	}
	h.p.notify()
}

// handoff makes the incoming track current at the fade midpoint. The
// outgoing source keeps fading and is released once its ramp is done.
func (p *Player) handoff() {
	in := p.incoming
	p.incoming = ""
	t, idx := p.queue.Find(in)
	e := p.sources[in]
	if t == nil || e == nil {
		p.log.WithField("track", in).Warn("Incoming track vanished during crossfade")
		p.token++
		if err := p.advance(true); err != nil {
			p.log.WithError(err).Warn("Could not start next track")
		}
		p.notify()
		return
	}

	out := p.current
	_ = p.queue.Select(idx)
	p.current = in
	p.upcoming = ""
	p.token++
	e.src.SetOnEnded(p.endedFunc(in, p.token))

	if out != "" && out != in {
		rest := p.xfade.Window() - p.xfade.Window()/2
		p.retire(out, rest)
	}

	p.log.WithFields(logrus.Fields{
		"index": idx,
		"title": t.Title,
	}).Info("Now playing")

	// A track shorter than half the window ended before it became current
	// and fired its end event with no handler attached.
	if !unfinished(e.src) {
		p.token++
		if err := p.advance(true); err != nil {
			p.log.WithError(err).Warn("Could not start next track")
		}
	}
	p.notify()
}

// load returns the open entry for t, which must be the queue's current
// track. Opening may download, so the session lock is released while it
// runs; errSuperseded means another switch or Close took over meanwhile.
func (p *Player) load(t *queue.Track) (*entry, error) {
	if e := p.sources[t.ID]; e != nil {
		p.attach(t, e)
		return e, nil
	}

	seq, id := p.switches, t.ID
	p.opening = id
	p.mu.Unlock()
	src, err := p.open(p.ctx, t.Source)
	p.mu.Lock()
	if p.opening == id {
		p.opening = ""
	}

	if p.closed || seq != p.switches {
		if err == nil {
			src.Close()
		}
		if p.closed {
			return nil, ErrClosed
		}
		return nil, errSuperseded
	}
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", t.Title, err)
	}
	if cur := p.queue.Current(); cur == nil || cur.ID != id {
		src.Close()
		return nil, errSuperseded
	}
	e := p.sources[id]
	if e == nil {
		e = &entry{src: src}
		p.sources[id] = e
	} else {
		src.Close()
	}
	p.attach(t, e)
	return e, nil
}

// attach binds an open source into the graph. A bind failure is logged and
// the source plays unprocessed.
func (p *Player) attach(t *queue.Track, e *entry) {
	if p.audio && e.b == nil {
		b, err := p.g.Bind(t.ID, e.src)
		if err != nil {
			p.log.WithError(err).WithField("track", t.ID).Warn("Could not bind source, playing without processing")
		} else {
			e.b = b
		}
	}
	if t.Duration <= 0 {
		t.Duration = e.src.Duration()
	}
}

// teardown disconnects and closes the source for a track.
func (p *Player) teardown(id string) {
	e, ok := p.sources[id]
	if !ok {
		return
	}
	delete(p.sources, id)
	if tm, ok := p.retiring[id]; ok {
		tm.Stop()
		delete(p.retiring, id)
	}
	e.src.SetOnEnded(nil)

	var err error
	if e.b != nil {
		err = p.g.Unbind(id)
	} else {
		err = e.src.Close()
	}
	if err != nil {
		p.log.WithError(err).WithField("track", id).Warn("Failed to close source")
	}
}

// retire tears the outgoing source down after its fade has run out.
func (p *Player) retire(id string, after time.Duration) {
	if tm, ok := p.retiring[id]; ok {
		tm.Stop()
	}
	p.retiring[id] = p.after(after, func() {
		delete(p.retiring, id)
		p.teardown(id)
	})
}

// prune closes every source that is neither current, fading in or out, nor
// prefetched for the upcoming track.
func (p *Player) prune() {
	for id := range p.sources {
		if id == p.current || id == p.incoming || id == p.upcoming {
			continue
		}
		if _, ok := p.retiring[id]; ok {
			continue
		}
		p.teardown(id)
	}
}

// cancelFade abandons a running crossfade: the incoming source is dropped
// and the current one snaps back to full gain.
func (p *Player) cancelFade() {
	p.xfade.Cancel()
	if p.incoming != "" && p.incoming != p.current {
		p.teardown(p.incoming)
	}
	p.incoming = ""
	if e := p.sources[p.current]; e != nil {
		e.deck().SetGain(1)
	}
}

// upcomingIndex picks the track that follows the current one. The pick is
// kept for the rest of the current playthrough so a shuffled choice does
// not change between prefetch and fade. Repeat-one never fades.
func (p *Player) upcomingIndex() int {
	if p.queue.Repeat() == queue.RepeatOne {
		return queue.None
	}
	if p.upcoming != "" {
		if _, i := p.queue.Find(p.upcoming); i != queue.None {
			return i
		}
		p.upcoming = ""
	}
	i := p.queue.ComputeNextIndex()
	if t := p.queue.At(i); t != nil && i != p.queue.CurrentIndex() {
		p.upcoming = t.ID
	}
	return i
}

// prefetch opens the upcoming track in the background. It reports whether
// a crossfade may start now: the incoming source is open, could not be
// opened, or there is nothing to fade to.
func (p *Player) prefetch() bool {
	i := p.upcomingIndex()
	if i == queue.None || i == p.queue.CurrentIndex() {
		return true
	}
	t := p.queue.At(i)
	if p.sources[t.ID] != nil || p.unavailable == t.ID {
		return true
	}
	if p.loading[t.ID] {
		return false
	}
	id, h := t.ID, t.Source
	p.loading[id] = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		src, err := p.open(p.ctx, h)

		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.loading, id)
		if err != nil {
			p.log.WithError(err).WithField("track", id).Debug("Prefetch failed")
			if id == p.upcoming {
				p.unavailable = id
			}
			return
		}
		if p.closed || id != p.upcoming || p.sources[id] != nil {
			src.Close()
			return
		}
		p.sources[id] = &entry{src: src}
		p.log.WithField("track", id).Debug("Prefetched next track")
	}()
	return false
}
