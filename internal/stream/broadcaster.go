// Package stream delivers the rendered mix to its outputs: the local
// speaker, WebRTC peers and HTTP MP3 listeners. All of them read the same
// frames from one Broadcaster, so the render clock is the only clock.
package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// ListenerBuffer is how many 20ms frames a listener may fall behind before
// frames are dropped for it.
const ListenerBuffer = 150

// Broadcaster fans PCM frames from the renderer out to every output.
type Broadcaster struct {
	log *logrus.Entry

	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	frames    atomic.Int64
}

// Listener is one output's view of the broadcast.
type Listener struct {
	Name string
	C    chan []int16
	done chan struct{}

	dropped atomic.Int64
}

// Done is closed when the listener is unsubscribed.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Dropped returns how many frames this listener missed by being slow.
func (l *Listener) Dropped() int64 { return l.dropped.Load() }

// NewBroadcaster creates a broadcaster with no listeners.
func NewBroadcaster(log *logrus.Entry) *Broadcaster {
	return &Broadcaster{
		log:       log,
		listeners: make(map[*Listener]struct{}),
	}
}

// Subscribe registers a listener.
func (b *Broadcaster) Subscribe(name string) *Listener {
	l := &Listener{
		Name: name,
		C:    make(chan []int16, ListenerBuffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	n := len(b.listeners)
	b.mu.Unlock()

	b.log.WithFields(logrus.Fields{"listener": name, "total": n}).Debug("Listener subscribed")
	return l
}

// Unsubscribe removes a listener and closes its Done channel. Calling it
// twice is a no-op.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	_, ok := b.listeners[l]
	delete(b.listeners, l)
	b.mu.Unlock()
	if !ok {
		return
	}
	close(l.done)

	b.log.WithFields(logrus.Fields{
		"listener": l.Name,
		"dropped":  l.Dropped(),
	}).Debug("Listener unsubscribed")
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Frames returns how many frames have been broadcast.
func (b *Broadcaster) Frames() int64 { return b.frames.Load() }

// Run forwards frames from source until ctx is cancelled or source closes.
// A listener whose buffer is full misses the frame; the broadcast never
// waits.
func (b *Broadcaster) Run(ctx context.Context, source <-chan []int16) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source:
			if !ok {
				return
			}
			b.frames.Add(1)
			b.mu.RLock()
			for l := range b.listeners {
				select {
				case l.C <- frame:
				default:
					l.dropped.Add(1)
				}
			}
			b.mu.RUnlock()
		}
	}
}
