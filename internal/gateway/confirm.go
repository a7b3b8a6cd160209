// ABOUTME: Confirmation channel for the write gate: interface, static policies, and a pending router.
// ABOUTME: The router bridges asynchronous frontend answers back to blocked gateway invocations.

package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Confirmer is the interactive confirmation channel consumed by the
// gateway. RequestConfirmation blocks until the human answers or ctx
// expires; it is the only suspension point in the core. Implementations
// carry no timeout of their own - callers impose one through ctx, and the
// gateway treats expiry as rejection.
type Confirmer interface {
	RequestConfirmation(ctx context.Context, message string) (bool, error)
}

// StaticConfirmer answers every confirmation with a fixed value. Used for
// automation (always approve) and for deny-by-default environments.
type StaticConfirmer bool

// RequestConfirmation returns the fixed answer.
func (s StaticConfirmer) RequestConfirmation(context.Context, string) (bool, error) {
	return bool(s), nil
}

// ConfirmationRequest is one prompt awaiting a frontend answer.
type ConfirmationRequest struct {
	ID      string
	Message string
}

// Notifier delivers confirmation prompts to a connected frontend. It must
// not block; the answer comes back later via Router.Deliver.
type Notifier interface {
	SendConfirmation(req ConfirmationRequest) error
}

// Router is an in-memory Confirmer that tracks pending prompts and routes
// frontend answers to the invocations waiting on them.
type Router struct {
	mu       sync.Mutex
	pending  map[string]chan bool
	notifier Notifier
}

// NewRouter creates a Router that delivers prompts through notifier.
func NewRouter(notifier Notifier) *Router {
	return &Router{
		pending:  make(map[string]chan bool),
		notifier: notifier,
	}
}

// RequestConfirmation sends the prompt and waits for an answer. Context
// expiry yields a rejection (false, nil) rather than an error, so callers
// that impose a deadline see the same outcome as a declined prompt.
func (r *Router) RequestConfirmation(ctx context.Context, message string) (bool, error) {
	id := uuid.New().String()
	ch := make(chan bool, 1)

	r.mu.Lock()
	r.pending[id] = ch
	r.mu.Unlock()

	if err := r.notifier.SendConfirmation(ConfirmationRequest{ID: id, Message: message}); err != nil {
		r.remove(id)
		return false, fmt.Errorf("sending confirmation prompt: %w", err)
	}

	select {
	case answer := <-ch:
		return answer, nil
	case <-ctx.Done():
		r.remove(id)
		return false, nil
	}
}

// Deliver routes a frontend answer to the waiting invocation. Returns an
// error if the prompt is unknown or already answered.
func (r *Router) Deliver(id string, approved bool) error {
	r.mu.Lock()
	ch, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("no pending confirmation with ID %s", id)
	}

	ch <- approved
	return nil
}

// PendingCount returns the number of unanswered prompts (for monitoring).
func (r *Router) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Router) remove(id string) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}
