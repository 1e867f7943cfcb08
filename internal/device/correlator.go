package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/unitedbyai/droidclaw/internal/wire"
)

var (
	// ErrTimeout reports that no response arrived within the deadline.
	ErrTimeout = errors.New("request timed out")
	// ErrConnectionLost reports that the transport closed before a response
	// arrived.
	ErrConnectionLost = errors.New("connection lost")
)

// Correlator matches outbound requests to inbound responses by correlation id.
// One correlator is bound to one device connection; it is kind-agnostic and
// supports concurrent pending requests, though the control loop issues at most
// one of each kind at a time.
type Correlator struct {
	newID func() string

	mu      sync.Mutex
	pending map[string]chan outcome
	closed  bool
	reason  error
}

type outcome struct {
	msg wire.Message
	err error
}

// NewCorrelator creates a correlator minting ids with newID.
func NewCorrelator(newID func() string) *Correlator {
	return &Correlator{
		newID:   newID,
		pending: make(map[string]chan outcome),
	}
}

// Send generates a fresh correlation id, records the pending request, writes
// the frame produced by build to the transport, and waits for the matching
// response. It fails with ErrTimeout after the deadline, ErrConnectionLost if
// the transport closes first, or ctx.Err() on cancellation. A cancelled or
// timed-out request is removed from the pending table before returning.
func (c *Correlator) Send(ctx context.Context, t Transport, build func(requestID string) ([]byte, error), timeout time.Duration) (wire.Message, error) {
	c.mu.Lock()
	if c.closed {
		reason := c.reason
		c.mu.Unlock()
		return nil, reason
	}
	requestID := c.newID()
	ch := make(chan outcome, 1)
	c.pending[requestID] = ch
	c.mu.Unlock()

	frame, err := build(requestID)
	if err != nil {
		c.remove(requestID)
		return nil, fmt.Errorf("build request: %w", err)
	}
	if err := t.WriteMessage(frame); err != nil {
		c.remove(requestID)
		return nil, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		return out.msg, out.err
	case <-timer.C:
		c.remove(requestID)
		return nil, ErrTimeout
	case <-ctx.Done():
		c.remove(requestID)
		return nil, ctx.Err()
	}
}

// Resolve delivers an inbound response to the waiting request. It reports
// whether a pending request with that id existed.
func (c *Correlator) Resolve(requestID string, msg wire.Message) bool {
	c.mu.Lock()
	ch, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	ch <- outcome{msg: msg}
	return true
}

// FailAll fails every pending request and all future sends with reason.
// Called when the transport closes.
func (c *Correlator) FailAll(reason error) {
	if reason == nil {
		reason = ErrConnectionLost
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.reason = reason
	pending := c.pending
	c.pending = make(map[string]chan outcome)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- outcome{err: reason}
	}
}

// PendingCount returns the number of outstanding requests.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) remove(requestID string) {
	c.mu.Lock()
	delete(c.pending, requestID)
	c.mu.Unlock()
}
