package status

import (
	"sync"
	"sync/atomic"
)

// Channel is a buffered, non-blocking sink. Messages that do not fit are dropped.
type Channel struct {
	ch      chan string
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewChannel creates a Channel with room for size pending messages.
func NewChannel(size int) *Channel {
	if size < 1 {
		size = 1
	}
	return &Channel{ch: make(chan string, size)}
}

// Report enqueues message, or drops it when the buffer is full or the channel is closed.
func (c *Channel) Report(message string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.dropped.Add(1)
		return
	}
	select {
	case c.ch <- message:
	default:
		c.dropped.Add(1)
	}
}

// C returns the receive side. It is closed by Close.
func (c *Channel) C() <-chan string {
	return c.ch
}

// Close stops accepting messages. Pending messages stay readable.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}

// Dropped returns how many messages were discarded.
func (c *Channel) Dropped() int64 {
	return c.dropped.Load()
}
