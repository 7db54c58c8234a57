// Package identity describes who is making a request and when that becomes
// known. A Provider may start out not ready (a session still loading, a token
// still being verified); callers that need the identity wait for readiness
// with a bound instead of polling.
package identity

import (
	"context"
	"sync"
	"time"
)

// DefaultReadyTimeout bounds WaitReady when no timeout is given.
const DefaultReadyTimeout = 5 * time.Second

// Identity is an authenticated principal.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

// Provider exposes the current identity and a readiness signal.
type Provider interface {
	// Current returns the identity, or false when nobody is signed in.
	Current() (Identity, bool)
	// Ready is closed once Current is settled.
	Ready() <-chan struct{}
}

// WaitReady waits until p is ready, timeout elapses, or ctx ends, then
// returns the current identity. Timeouts and cancellation report no identity.
// A non-positive timeout uses DefaultReadyTimeout.
func WaitReady(ctx context.Context, p Provider, timeout time.Duration) (Identity, bool) {
	if p == nil {
		return Identity{}, false
	}
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	select {
	case <-p.Ready():
		return p.Current()
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.Ready():
		return p.Current()
	case <-timer.C:
		return Identity{}, false
	case <-ctx.Done():
		return Identity{}, false
	}
}

var closed = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// Static is an always-ready provider.
type Static struct {
	id Identity
	ok bool
}

// NewStatic returns a ready provider for id.
func NewStatic(id Identity) Static { return Static{id: id, ok: id.UID != ""} }

// Anonymous is a ready provider with nobody signed in.
func Anonymous() Static { return Static{} }

func (s Static) Current() (Identity, bool) { return s.id, s.ok }

func (s Static) Ready() <-chan struct{} { return closed }

// Watcher is a provider whose identity is settled later, exactly once.
type Watcher struct {
	once  sync.Once
	ready chan struct{}

	mu sync.RWMutex
	id Identity
	ok bool
}

// NewWatcher returns a provider that is not ready yet.
func NewWatcher() *Watcher {
	return &Watcher{ready: make(chan struct{})}
}

// Resolve settles the identity and wakes waiters. Later calls are ignored.
func (w *Watcher) Resolve(id Identity) {
	w.once.Do(func() {
		w.mu.Lock()
		w.id, w.ok = id, id.UID != ""
		w.mu.Unlock()
		close(w.ready)
	})
}

// ResolveAnonymous settles with nobody signed in.
func (w *Watcher) ResolveAnonymous() { w.Resolve(Identity{}) }

func (w *Watcher) Current() (Identity, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.id, w.ok
}

func (w *Watcher) Ready() <-chan struct{} { return w.ready }

type ctxKey struct{}

// NewContext returns a copy of ctx carrying p.
func NewContext(ctx context.Context, p Provider) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the provider carried by ctx, if any.
func FromContext(ctx context.Context) (Provider, bool) {
	p, ok := ctx.Value(ctxKey{}).(Provider)
	return p, ok && p != nil
}
