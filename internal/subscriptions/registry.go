// Package subscriptions tracks the live-query cancellation handles owned by one
// session, keyed by name, so each live query exists at most once.
package subscriptions

import (
	"sort"
	"sync"

	"github.com/coderev/coderev/backend/go-services/pkg/logger"
	"github.com/coderev/coderev/backend/go-services/pkg/metrics"
)

// Handle cancels a live query.
type Handle func()

// Registry maps subscription names to handles. Names follow
// "<collection>.<scope>", e.g. "workspaces.<profileUid>".
type Registry struct {
	name string

	mu      sync.Mutex
	handles map[string]Handle
}

// New creates an empty registry. name identifies the owner in logs.
func New(name string) *Registry {
	return &Registry{name: name, handles: make(map[string]Handle)}
}

func (r *Registry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[name]
	return ok
}

// Register stores h under name. The first registration wins: if name is
// already present h is not stored and false is returned, leaving the caller
// responsible for h.
func (r *Registry) Register(name string, h Handle) bool {
	r.mu.Lock()
	if _, ok := r.handles[name]; ok {
		r.mu.Unlock()
		logger.Warnf("subscriptions[%s]: %q already registered", r.name, name)
		metrics.SubscriptionEvents.WithLabelValues("duplicate").Inc()
		return false
	}
	r.handles[name] = h
	r.mu.Unlock()
	metrics.SubscriptionsActive.Inc()
	metrics.SubscriptionEvents.WithLabelValues("registered").Inc()
	logger.Debugf("subscriptions[%s]: registered %q", r.name, name)
	return true
}

// Unsubscribe cancels and removes the handle for name. Unknown names are
// ignored.
func (r *Registry) Unsubscribe(name string) {
	r.mu.Lock()
	h, ok := r.handles[name]
	delete(r.handles, name)
	r.mu.Unlock()
	if !ok {
		return
	}
	cancel(h)
	logger.Debugf("subscriptions[%s]: unsubscribed %q", r.name, name)
}

// Dispose cancels every handle and empties the registry. Safe to call again.
func (r *Registry) Dispose() {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]Handle)
	r.mu.Unlock()
	for _, h := range handles {
		cancel(h)
	}
	if len(handles) > 0 {
		logger.Debugf("subscriptions[%s]: disposed %d", r.name, len(handles))
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.handles))
	for n := range r.handles {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// handles run outside the lock so they may call back into the registry
func cancel(h Handle) {
	if h != nil {
		h()
	}
	metrics.SubscriptionsActive.Dec()
	metrics.SubscriptionEvents.WithLabelValues("cancelled").Inc()
}
