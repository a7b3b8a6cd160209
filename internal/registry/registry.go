// ABOUTME: Thread-safe registry mapping resource names to database connectors.
// ABOUTME: Supports an optional two-phase register/enable activation model for capability scoping.

package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/2389/dbgate/internal/connector"
)

// ErrNotFound indicates the requested resource name was never registered.
var ErrNotFound = errors.New("resource not found")

// ErrNotEnabled indicates the resource is registered but has not been
// enabled. Distinct from ErrNotFound so callers can tell "no such database"
// apart from "database exists but is disabled".
var ErrNotEnabled = errors.New("resource not enabled")

// Registry maintains the set of named connectors available to the gateway.
// Registration and activation happen during single-threaded setup; lookups
// run concurrently afterwards.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]connector.Connector
	active     map[string]struct{}
	activation bool
	logger     *slog.Logger
}

// New creates a flat registry: every registered resource is immediately
// usable.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		connectors: make(map[string]connector.Connector),
		active:     make(map[string]struct{}),
		logger:     logger,
	}
}

// NewWithActivation creates a registry where lookups require the resource
// to have been enabled after registration. The split lets a host declare
// all known resources up front while deferring which ones a session may
// actually use.
func NewWithActivation(logger *slog.Logger) *Registry {
	r := New(logger)
	r.activation = true
	return r
}

// Register inserts a connector under the given name. Names are
// case-sensitive. Overwriting an existing name is permitted (last write
// wins); callers are responsible for avoiding unintentional collisions.
func (r *Registry) Register(name string, c connector.Connector) {
	r.mu.Lock()
	_, replaced := r.connectors[name]
	r.connectors[name] = c
	r.mu.Unlock()

	r.logger.Info("resource registered",
		"name", name,
		"allow_writes", c.AllowWrites(),
		"replaced", replaced,
	)
}

// Enable marks each given name as active. Fails with ErrNotFound if any
// name was never registered; on failure no name in the batch is enabled.
func (r *Registry) Enable(names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range names {
		if _, ok := r.connectors[name]; !ok {
			return fmt.Errorf("%w: %q", ErrNotFound, name)
		}
	}
	for _, name := range names {
		r.active[name] = struct{}{}
	}

	r.logger.Info("resources enabled", "names", names, "total_active", len(r.active))
	return nil
}

// Lookup returns the connector registered under name. Returns ErrNotFound
// for unknown names, and ErrNotEnabled when the registry uses activation
// and the name has not been enabled.
func (r *Registry) Lookup(name string) (connector.Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.connectors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if r.activation {
		if _, enabled := r.active[name]; !enabled {
			return nil, fmt.Errorf("%w: %q", ErrNotEnabled, name)
		}
	}
	return c, nil
}

// List returns the usable resource names in sorted order: the active set
// when activation is in use, otherwise all registered names. For display
// purposes only.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	if r.activation {
		names = make([]string, 0, len(r.active))
		for name := range r.active {
			names = append(names, name)
		}
	} else {
		names = make([]string, 0, len(r.connectors))
		for name := range r.connectors {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ListRegistered returns every registered name in sorted order, enabled or
// not. Used by operators to inspect what the process knows about.
func (r *Registry) ListRegistered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
