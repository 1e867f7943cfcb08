package device

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/unitedbyai/droidclaw/internal/wire"
)

// fakeTransport records written frames and close reasons.
type fakeTransport struct {
	id string

	mu       sync.Mutex
	frames   [][]byte
	closed   bool
	reason   string
	writeErr error
}

func newFakeTransport(id string) *fakeTransport {
	return &fakeTransport{id: id}
}

func (t *fakeTransport) ID() string { return t.id }

func (t *fakeTransport) WriteMessage(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	t.frames = append(t.frames, data)
	return nil
}

func (t *fakeTransport) Close(reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		t.reason = reason
	}
	return nil
}

func (t *fakeTransport) closedWith() (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed, t.reason
}

func (t *fakeTransport) frameCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.frames)
}

func sequentialIDs(prefix string) func() string {
	var n int
	var mu sync.Mutex
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func TestCorrelatorResolve(t *testing.T) {
	c := NewCorrelator(sequentialIDs("req"))
	transport := newFakeTransport("conn-1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		msg, err := c.Send(context.Background(), transport, func(requestID string) ([]byte, error) {
			return wire.EncodeGetScreen(requestID, false)
		}, time.Second)
		require.NoError(t, err)
		screen, ok := msg.(wire.ScreenMessage)
		require.True(t, ok)
		require.Equal(t, "h1", screen.ScreenHash)
	}()

	// Wait for the request to be registered, then resolve it.
	require.Eventually(t, func() bool { return c.PendingCount() == 1 }, time.Second, time.Millisecond)
	require.True(t, c.Resolve("req-1", wire.ScreenMessage{RequestID: "req-1", ScreenHash: "h1"}))
	<-done
	require.Equal(t, 0, c.PendingCount())
}

func TestCorrelatorTimeout(t *testing.T) {
	c := NewCorrelator(sequentialIDs("req"))
	transport := newFakeTransport("conn-1")

	_, err := c.Send(context.Background(), transport, func(requestID string) ([]byte, error) {
		return wire.EncodeGetScreen(requestID, false)
	}, 10*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, 0, c.PendingCount())
}

func TestCorrelatorConnectionLost(t *testing.T) {
	c := NewCorrelator(sequentialIDs("req"))
	transport := newFakeTransport("conn-1")

	errs := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), transport, func(requestID string) ([]byte, error) {
			return wire.EncodeGetScreen(requestID, false)
		}, time.Second)
		errs <- err
	}()

	require.Eventually(t, func() bool { return c.PendingCount() == 1 }, time.Second, time.Millisecond)
	c.FailAll(ErrConnectionLost)
	require.ErrorIs(t, <-errs, ErrConnectionLost)

	// Sends after close fail immediately.
	_, err := c.Send(context.Background(), transport, func(requestID string) ([]byte, error) {
		return wire.EncodeGetScreen(requestID, false)
	}, time.Second)
	require.ErrorIs(t, err, ErrConnectionLost)
}

func TestCorrelatorCancellationRemovesPending(t *testing.T) {
	c := NewCorrelator(sequentialIDs("req"))
	transport := newFakeTransport("conn-1")
	ctx, cancel := context.WithCancel(context.Background())

	errs := make(chan error, 1)
	go func() {
		_, err := c.Send(ctx, transport, func(requestID string) ([]byte, error) {
			return wire.EncodeGetScreen(requestID, false)
		}, time.Second)
		errs <- err
	}()

	require.Eventually(t, func() bool { return c.PendingCount() == 1 }, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errs, context.Canceled)
	// No orphaned pending request remains.
	require.Equal(t, 0, c.PendingCount())
	require.False(t, c.Resolve("req-1", wire.PongMessage{}))
}

func TestCorrelatorResolveUnknownID(t *testing.T) {
	c := NewCorrelator(sequentialIDs("req"))
	require.False(t, c.Resolve("nope", wire.PongMessage{}))
}

func TestCorrelatorWriteFailure(t *testing.T) {
	c := NewCorrelator(sequentialIDs("req"))
	transport := newFakeTransport("conn-1")
	transport.writeErr = fmt.Errorf("broken pipe")

	_, err := c.Send(context.Background(), transport, func(requestID string) ([]byte, error) {
		return wire.EncodeGetScreen(requestID, false)
	}, time.Second)
	require.ErrorIs(t, err, ErrConnectionLost)
	require.Equal(t, 0, c.PendingCount())
}
