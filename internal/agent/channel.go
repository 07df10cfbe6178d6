package agent

import "sync"

// ConversationChannel is an unbounded, single-consumer queue of user turns
// feeding a run loop's engine conversation. Push never blocks, even when the
// consumer never reads another message; Close terminates the output sequence
// for any pending or future receive.
type ConversationChannel struct {
	mu     sync.Mutex
	buf    []string
	closed bool

	signal    chan struct{}
	out       chan string
	done      chan struct{}
	closeOnce sync.Once
}

func NewConversationChannel() *ConversationChannel {
	c := &ConversationChannel{
		signal: make(chan struct{}, 1),
		out:    make(chan string),
		done:   make(chan struct{}),
	}
	go c.pump()
	return c
}

// Push enqueues a user turn and reports whether it was accepted. Pushing to a
// closed channel is a rejected no-op, so callers can tell a live conversation
// from one that ended under them.
func (c *ConversationChannel) Push(text string) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.buf = append(c.buf, text)
	c.mu.Unlock()

	select {
	case c.signal <- struct{}{}:
	default:
	}
	return true
}

// Out returns the consumer side. The channel is closed after Close; buffered
// messages not yet handed to the consumer are discarded at that point.
func (c *ConversationChannel) Out() <-chan string {
	return c.out
}

// Close terminates the sequence. Idempotent.
func (c *ConversationChannel) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
}

// pump moves buffered turns to the consumer, suspending while the buffer is
// empty. It owns the out channel and closes it exactly once.
func (c *ConversationChannel) pump() {
	defer close(c.out)
	for {
		c.mu.Lock()
		var msg string
		ok := false
		if len(c.buf) > 0 {
			msg = c.buf[0]
			c.buf = c.buf[1:]
			ok = true
		}
		c.mu.Unlock()

		if ok {
			select {
			case c.out <- msg:
			case <-c.done:
				return
			}
			continue
		}

		select {
		case <-c.signal:
		case <-c.done:
			return
		}
	}
}
