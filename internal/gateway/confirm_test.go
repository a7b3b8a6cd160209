// ABOUTME: Tests for the confirmation router and static confirmers.
// ABOUTME: Covers answer delivery, context expiry, and unknown-prompt errors.

package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureNotifier records prompts so tests can answer them.
type captureNotifier struct {
	mu   sync.Mutex
	reqs []ConfirmationRequest
	err  error
}

func (n *captureNotifier) SendConfirmation(req ConfirmationRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.reqs = append(n.reqs, req)
	return nil
}

func (n *captureNotifier) last() ConfirmationRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reqs[len(n.reqs)-1]
}

func (n *captureNotifier) wait(t *testing.T) ConfirmationRequest {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n.mu.Lock()
		count := len(n.reqs)
		n.mu.Unlock()
		if count > 0 {
			return n.last()
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no confirmation prompt arrived")
	return ConfirmationRequest{}
}

func TestStaticConfirmer(t *testing.T) {
	approve := StaticConfirmer(true)
	ok, err := approve.RequestConfirmation(context.Background(), "anything")
	require.NoError(t, err)
	assert.True(t, ok)

	deny := StaticConfirmer(false)
	ok, err = deny.RequestConfirmation(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRouterDeliver(t *testing.T) {
	t.Run("approval reaches the waiting caller", func(t *testing.T) {
		notifier := &captureNotifier{}
		router := NewRouter(notifier)

		type outcome struct {
			ok  bool
			err error
		}
		done := make(chan outcome, 1)
		go func() {
			ok, err := router.RequestConfirmation(context.Background(), "drop it?")
			done <- outcome{ok, err}
		}()

		req := notifier.wait(t)
		assert.Equal(t, "drop it?", req.Message)
		assert.NotEmpty(t, req.ID)

		require.NoError(t, router.Deliver(req.ID, true))

		got := <-done
		require.NoError(t, got.err)
		assert.True(t, got.ok)
		assert.Equal(t, 0, router.PendingCount())
	})

	t.Run("rejection reaches the waiting caller", func(t *testing.T) {
		notifier := &captureNotifier{}
		router := NewRouter(notifier)

		done := make(chan bool, 1)
		go func() {
			ok, _ := router.RequestConfirmation(context.Background(), "drop it?")
			done <- ok
		}()

		req := notifier.wait(t)
		require.NoError(t, router.Deliver(req.ID, false))
		assert.False(t, <-done)
	})

	t.Run("unknown prompt ID fails", func(t *testing.T) {
		router := NewRouter(&captureNotifier{})
		assert.Error(t, router.Deliver("no-such-id", true))
	})

	t.Run("double delivery fails", func(t *testing.T) {
		notifier := &captureNotifier{}
		router := NewRouter(notifier)

		done := make(chan struct{})
		go func() {
			router.RequestConfirmation(context.Background(), "once")
			close(done)
		}()

		req := notifier.wait(t)
		require.NoError(t, router.Deliver(req.ID, true))
		<-done
		assert.Error(t, router.Deliver(req.ID, true))
	})
}

func TestRouterContextExpiry(t *testing.T) {
	t.Run("expiry counts as rejection, not error", func(t *testing.T) {
		notifier := &captureNotifier{}
		router := NewRouter(notifier)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		ok, err := router.RequestConfirmation(ctx, "slow human")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 0, router.PendingCount(), "expired prompt must be cleaned up")
	})
}

func TestRouterNotifierFailure(t *testing.T) {
	notifier := &captureNotifier{err: errors.New("frontend gone")}
	router := NewRouter(notifier)

	ok, err := router.RequestConfirmation(context.Background(), "anyone there?")
	assert.False(t, ok)
	assert.Error(t, err)
	assert.Equal(t, 0, router.PendingCount())
}
