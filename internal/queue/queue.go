// Package queue manages the ordered track list, the current selection and
// the shuffle/repeat policy that decides what plays next.
package queue

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/satindergrewal/elitedsp/internal/media"
)

// ErrOutOfRange is returned when selecting an index outside the queue.
var ErrOutOfRange = errors.New("queue: index out of range")

// None is the index reported when there is no track to go to.
const None = -1

// RepeatMode controls what happens at the end of a track and of the queue.
type RepeatMode int

const (
	RepeatNone RepeatMode = iota
	RepeatOne
	RepeatAll
)

func (r RepeatMode) String() string {
	switch r {
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "none"
	}
}

// ParseRepeat parses "none", "one" or "all".
func ParseRepeat(s string) (RepeatMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "off", "":
		return RepeatNone, nil
	case "all":
		return RepeatAll, nil
	case "one":
		return RepeatOne, nil
	}
	return RepeatNone, fmt.Errorf("queue: unknown repeat mode %q", s)
}

func (r RepeatMode) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *RepeatMode) UnmarshalText(b []byte) error {
	m, err := ParseRepeat(string(b))
	if err != nil {
		return err
	}
	*r = m
	return nil
}

// LyricLine is one timed lyric.
type LyricLine struct {
	TimeMs int64  `json:"timeMs"`
	Text   string `json:"text"`
}

// Track is a queue entry. Tracks are shared by pointer; updates from async
// lookups target a Track by ID, never by position.
type Track struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	Artist          string        `json:"artist"`
	Source          media.Handle  `json:"source"`
	CoverURL        string        `json:"coverUrl,omitempty"`
	DominantColor   string        `json:"dominantColor,omitempty"`
	Lyrics          []LyricLine   `json:"lyrics,omitempty"`
	Duration        time.Duration `json:"duration,omitempty"`
	MetadataPending bool          `json:"metadataPending"`
}

// Controller holds the queue. It is not safe for concurrent use; the player
// serializes access.
type Controller struct {
	tracks  []*Track
	current int
	shuffle bool
	repeat  RepeatMode

	intn    func(n int) int
	release func(media.Handle)
}

// New creates an empty queue. release, if non-nil, is called with each
// track's source handle when the track leaves the queue.
func New(release func(media.Handle)) *Controller {
	return &Controller{current: None, intn: rand.Intn, release: release}
}

// Len returns the number of tracks.
func (c *Controller) Len() int { return len(c.tracks) }

// CurrentIndex returns the selected index, or None.
func (c *Controller) CurrentIndex() int { return c.current }

// Current returns the selected track, or nil.
func (c *Controller) Current() *Track {
	return c.At(c.current)
}

// At returns the track at i, or nil when out of range.
func (c *Controller) At(i int) *Track {
	if i < 0 || i >= len(c.tracks) {
		return nil
	}
	return c.tracks[i]
}

// Tracks returns the queue in order. The slice is a copy; the tracks are not.
func (c *Controller) Tracks() []*Track {
	return slices.Clone(c.tracks)
}

// Find returns the track with id and its index.
func (c *Controller) Find(id string) (*Track, int) {
	for i, t := range c.tracks {
		if t.ID == id {
			return t, i
		}
	}
	return nil, None
}

// Append adds t to the end of the queue, assigning an ID if it has none.
// The first track appended to an empty queue becomes current.
func (c *Controller) Append(t *Track) int {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	c.tracks = append(c.tracks, t)
	if c.current == None {
		c.current = 0
	}
	return len(c.tracks) - 1
}

// ComputeNextIndex returns the index that should play after the current
// one, or None for an empty queue. With shuffle on, any index may come back,
// including the current one. At the end of the queue without repeat-all the
// current index is returned unchanged.
func (c *Controller) ComputeNextIndex() int {
	n := len(c.tracks)
	if n == 0 {
		return None
	}
	if c.shuffle {
		return c.intn(n)
	}
	next := c.current + 1
	if next >= n {
		if c.repeat == RepeatAll {
			return 0
		}
		return c.current
	}
	return next
}

// Advance moves to the next track. With repeat-one the index is left alone
// and restart is true: the caller should replay the current track from the
// start.
func (c *Controller) Advance() (restart bool) {
	if c.repeat == RepeatOne {
		return c.current != None
	}
	c.current = c.ComputeNextIndex()
	return false
}

// Retreat moves to the previous track, wrapping with repeat-all and
// otherwise stopping at the first track.
func (c *Controller) Retreat() {
	if len(c.tracks) == 0 {
		return
	}
	prev := c.current - 1
	if prev < 0 {
		if c.repeat == RepeatAll {
			prev = len(c.tracks) - 1
		} else {
			prev = 0
		}
	}
	c.current = prev
}

// Select makes index i current.
func (c *Controller) Select(i int) error {
	if i < 0 || i >= len(c.tracks) {
		return fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, len(c.tracks))
	}
	c.current = i
	return nil
}

// Remove evicts the track with id, releasing its source. The current index
// keeps pointing at the same track when possible and is re-clamped
// otherwise.
func (c *Controller) Remove(id string) (*Track, bool) {
	t, i := c.Find(id)
	if t == nil {
		return nil, false
	}
	c.tracks = slices.Delete(c.tracks, i, i+1)
	switch {
	case len(c.tracks) == 0:
		c.current = None
	case i < c.current:
		c.current--
	case c.current >= len(c.tracks):
		c.current = len(c.tracks) - 1
	}
	c.releaseTrack(t)
	return t, true
}

// Clear evicts every track.
func (c *Controller) Clear() {
	for _, t := range c.tracks {
		c.releaseTrack(t)
	}
	c.tracks = nil
	c.current = None
}

// Restore replaces the queue with tracks and selects current, clamped to
// the new bounds. Replaced tracks are released.
func (c *Controller) Restore(tracks []*Track, current int) {
	c.Clear()
	for _, t := range tracks {
		c.Append(t)
	}
	if len(c.tracks) > 0 {
		c.current = min(max(current, 0), len(c.tracks)-1)
	}
}

func (c *Controller) releaseTrack(t *Track) {
	if c.release != nil && !t.Source.IsZero() {
		c.release(t.Source)
	}
}

// Update applies fn to the track with id, wherever it now sits.
func (c *Controller) Update(id string, fn func(*Track)) bool {
	t, _ := c.Find(id)
	if t == nil {
		return false
	}
	fn(t)
	return true
}

// Shuffle reports whether shuffle is on.
func (c *Controller) Shuffle() bool { return c.shuffle }

// SetShuffle turns shuffle on or off.
func (c *Controller) SetShuffle(on bool) { c.shuffle = on }

// Repeat returns the repeat mode.
func (c *Controller) Repeat() RepeatMode { return c.repeat }

// SetRepeat sets the repeat mode.
func (c *Controller) SetRepeat(m RepeatMode) { c.repeat = m }

// CycleRepeat steps through none, one, all.
func (c *Controller) CycleRepeat() RepeatMode {
	c.repeat = (c.repeat + 1) % 3
	return c.repeat
}

// ActiveLyric returns the index of the line being sung at posMs: the last
// line whose time is not after posMs. It returns None before the first line.
func ActiveLyric(lines []LyricLine, posMs int64) int {
	i, _ := slices.BinarySearchFunc(lines, posMs, func(l LyricLine, t int64) int {
		if l.TimeMs <= t {
			return -1
		}
		return 1
	})
	return i - 1
}
