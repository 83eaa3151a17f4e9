package oplock

import (
	"sync"
)

// Guard is a keyed single-flight guard for non-reentrant workflows. A second
// acquisition of a held key fails immediately instead of queueing; callers
// translate that into an "operation already in progress" result.
type Guard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// New returns an empty guard.
func New() *Guard {
	return &Guard{held: make(map[string]struct{})}
}

// TryAcquire attempts to take the lock for key. It returns a release func and
// true on success, or nil and false when the key is already held.
func (g *Guard) TryAcquire(key string) (func(), bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.held[key]; busy {
		return nil, false
	}
	g.held[key] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}
	return release, true
}

// Held reports whether the key is currently locked.
func (g *Guard) Held(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.held[key]
	return busy
}
