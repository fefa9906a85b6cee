package correlator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSender records every Send call and lets the test drive responses
// manually via the returned Correlator.Resolve.
type fakeSender struct {
	mu      sync.Mutex
	sent    []int64
	sendErr error
}

func (f *fakeSender) Send(_ context.Context, id int64, _ string, _ interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, id)
	return f.sendErr
}

func TestCallResolvesOnResponse(t *testing.T) {
	sender := &fakeSender{}
	c := New(sender, time.Second)

	done := make(chan struct{})
	var result []byte
	var callErr error
	go func() {
		result, callErr = c.Call(context.Background(), "Debugger.enable", nil)
		close(done)
	}()

	require.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return len(sender.sent) == 1
	}, time.Second, time.Millisecond)

	c.Resolve(1, []byte(`{"ok":true}`), nil)

	<-done
	assert.NoError(t, callErr)
	assert.Equal(t, []byte(`{"ok":true}`), result)
}

func TestIDsAreMonotonicAndUsedOnce(t *testing.T) {
	sender := &fakeSender{}
	c := New(sender, time.Second)

	for i := 0; i < 5; i++ {
		go func() { _, _ = c.Call(context.Background(), "Debugger.pause", nil) }()
	}

	require.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return len(sender.sent) == 5
	}, time.Second, time.Millisecond)

	seen := map[int64]bool{}
	sender.mu.Lock()
	for _, id := range sender.sent {
		assert.False(t, seen[id], "id %d reused", id)
		seen[id] = true
	}
	sender.mu.Unlock()
	for id := int64(1); id <= 5; id++ {
		assert.True(t, seen[id], "id %d not allocated", id)
	}

	for id := range seen {
		c.Resolve(id, []byte("{}"), nil)
	}
}

func TestCallTimesOut(t *testing.T) {
	sender := &fakeSender{}
	c := New(sender, 20*time.Millisecond)

	_, err := c.Call(context.Background(), "Debugger.resume", nil)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}

func TestLateResponseAfterTimeoutIsDiscarded(t *testing.T) {
	sender := &fakeSender{}
	c := New(sender, 20*time.Millisecond)

	_, err := c.Call(context.Background(), "Debugger.resume", nil)
	require.Error(t, err)
	require.True(t, IsTimeout(err))

	// A response for the already-timed-out id must not panic or deadlock.
	c.Resolve(1, []byte("{}"), nil)
}

func TestFailAllResolvesOutstanding(t *testing.T) {
	sender := &fakeSender{}
	c := New(sender, time.Second)

	done := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := c.Call(context.Background(), "Debugger.stepOver", nil)
			done <- err
		}()
	}

	require.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return len(sender.sent) == 3
	}, time.Second, time.Millisecond)

	c.FailAll(errors.New("transport closed"))

	for i := 0; i < 3; i++ {
		err := <-done
		require.Error(t, err)
		assert.True(t, IsConnectionLost(err))
	}
}
