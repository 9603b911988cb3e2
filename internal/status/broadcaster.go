package status

import (
	"sync"
	"time"
)

// DefaultBacklog is the number of past events replayed to a new subscriber.
const DefaultBacklog = 200

// Event is one status message with its position in the stream.
type Event struct {
	Seq     int       `json:"seq"`
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Broadcaster fans status messages out to any number of subscribers.
// A slow subscriber misses messages instead of blocking the run.
type Broadcaster struct {
	mu      sync.Mutex
	backlog []Event
	limit   int
	seq     int
	subs    map[chan Event]struct{}
	closed  bool
}

// NewBroadcaster creates a Broadcaster keeping up to backlog past events.
func NewBroadcaster(backlog int) *Broadcaster {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	return &Broadcaster{limit: backlog, subs: make(map[chan Event]struct{})}
}

// Report records message and sends it to every subscriber.
func (b *Broadcaster) Report(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.seq++
	ev := Event{Seq: b.seq, Time: time.Now(), Message: message}
	b.backlog = append(b.backlog, ev)
	if len(b.backlog) > b.limit {
		b.backlog = b.backlog[len(b.backlog)-b.limit:]
	}

	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a channel that first replays the backlog and then receives new events.
// The channel is closed by Close or by the returned cancel function.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, len(b.backlog)+b.limit)
	for _, ev := range b.backlog {
		ch <- ev
	}
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Close ends the stream for every subscriber.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

// Events returns a copy of the backlog.
func (b *Broadcaster) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.backlog...)
}
