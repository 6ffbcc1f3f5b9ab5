package utilities

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Correlator tracks pending requests and matches responses.
//
// This is a generic utility for request/response patterns over transports
// that only offer publish/subscribe (like the room RPC over MQTT). A request
// can expect a single response or a stream of responses ending with a final
// one.
//
// Example:
//
//	replies := c.Expect(req.ID)
//	publish(req)
//	for result := range replies {
//	    if result.Err != nil { ... }
//	}
type Correlator[Resp any] struct {
	pending map[string]*pendingRequest[Resp]
	mu      sync.Mutex
	timeout time.Duration
	stop    chan struct{}
	once    sync.Once
}

type pendingRequest[Resp any] struct {
	ch      chan Result[Resp]
	expires time.Time
}

// Result is delivered on the channel returned by Expect.
type Result[Resp any] struct {
	Response Resp
	Err      error // ErrTimeout if no response in time
}

// ErrTimeout is returned when a request times out.
var ErrTimeout = errors.New("request timed out")

// ErrClosed is delivered to pending requests when the correlator shuts down.
var ErrClosed = errors.New("correlator closed")

// ErrOverflow ends a stream whose reader stopped draining responses.
var ErrOverflow = errors.New("response buffer full")

// streamBuffer bounds how many responses can queue up for a slow reader.
const streamBuffer = 64

// NewCorrelator creates a correlator with the given timeout.
// The timeout is an idle timeout: every delivered response extends it.
func NewCorrelator[Resp any](timeout time.Duration) *Correlator[Resp] {
	c := &Correlator[Resp]{
		pending: make(map[string]*pendingRequest[Resp]),
		timeout: timeout,
		stop:    make(chan struct{}),
	}
	go c.reapLoop()
	return c
}

// Expect registers a request id and returns the channel its responses arrive
// on. The channel is closed after the final response, a timeout or Close.
func (c *Correlator[Resp]) Expect(requestID string) <-chan Result[Resp] {
	ch := make(chan Result[Resp], streamBuffer)

	c.mu.Lock()
	c.pending[requestID] = &pendingRequest[Resp]{
		ch:      ch,
		expires: time.Now().Add(c.timeout),
	}
	c.mu.Unlock()

	return ch
}

// Receive is called when a response arrives - matches it to a pending request.
// final marks the last response for the request.
//
// Returns false if there was no pending request (late response, timed out).
func (c *Correlator[Resp]) Receive(requestID string, resp Resp, final bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending, ok := c.pending[requestID]
	if !ok {
		logrus.Debugf("[correlator] response for %s not found (%d pending)", requestID, len(c.pending))
		return false
	}

	select {
	case pending.ch <- Result[Resp]{Response: resp}:
	default:
		// Reader fell too far behind; it sees the channel close early.
		logrus.Warnf("[correlator] dropping %s: response buffer full", requestID)
		c.finish(requestID, pending, ErrOverflow)
		return true
	}

	if final {
		close(pending.ch)
		delete(c.pending, requestID)
	} else {
		pending.expires = time.Now().Add(c.timeout)
	}
	return true
}

// Fail ends a pending request with an error.
func (c *Correlator[Resp]) Fail(requestID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pending, ok := c.pending[requestID]; ok {
		c.finish(requestID, pending, err)
	}
}

// Close fails every pending request and stops the reaper.
func (c *Correlator[Resp]) Close() {
	c.once.Do(func() {
		close(c.stop)
		c.mu.Lock()
		defer c.mu.Unlock()
		for id, req := range c.pending {
			c.finish(id, req, ErrClosed)
		}
	})
}

// Pending returns how many requests are waiting for responses.
func (c *Correlator[Resp]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// finish must be called with c.mu held.
func (c *Correlator[Resp]) finish(id string, req *pendingRequest[Resp], err error) {
	select {
	case req.ch <- Result[Resp]{Err: err}:
	default:
	}
	close(req.ch)
	delete(c.pending, id)
}

// reapLoop runs in the background and cleans up timed-out requests.
func (c *Correlator[Resp]) reapLoop() {
	interval := c.timeout / 4
	if interval <= 0 || interval > time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for id, req := range c.pending {
				if now.After(req.expires) {
					c.finish(id, req, ErrTimeout)
				}
			}
			c.mu.Unlock()
		}
	}
}
