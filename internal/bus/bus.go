package bus

import (
	"sync"

	"github.com/jkaberg/verano-hass/internal/climate"
)

// Bus fans out *climate.State* snapshots to every subscriber. Each
// subscriber holds at most one pending snapshot: a newer publication
// replaces an unread one, so slow consumers always see the latest state.
// Past messages are not replayed. Safe for concurrent use.
type Bus struct {
	mu          sync.Mutex
	subscribers []chan *climate.State
	closed      bool
}

// New creates a ready-to-use Bus.
func New() *Bus { return &Bus{} }

// Subscribe returns a channel that receives future snapshots. The channel is
// closed by Unsubscribe or Close.
func (b *Bus) Subscribe() <-chan *climate.State {
	ch := make(chan *climate.State, 1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Publish delivers the snapshot to all subscribers without blocking.
func (b *Bus) Publish(s *climate.State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subscribers {
		// Publishers hold the lock, so after draining a stale snapshot the
		// buffer slot is guaranteed free.
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (b *Bus) Unsubscribe(sub <-chan *climate.State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subscribers {
		if ch == sub {
			// remove without preserving order
			b.subscribers[i] = b.subscribers[len(b.subscribers)-1]
			b.subscribers = b.subscribers[:len(b.subscribers)-1]
			close(ch)
			return
		}
	}
}

// Close closes every subscriber channel. Later publications are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}
