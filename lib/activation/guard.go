package activation

import "sync"

// Guard tracks images with an activation in flight, making "run container"
// idempotent and non-reentrant per image. An image is a member for the whole
// duration of one attempt and is released exactly once on every exit path.
type Guard struct {
	inflight map[string]struct{}
	mu       sync.Mutex
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{inflight: make(map[string]struct{})}
}

// TryAcquire claims imageRef for one activation attempt.
// Returns false if an attempt is already in flight.
func (g *Guard) TryAcquire(imageRef string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, held := g.inflight[imageRef]; held {
		return false
	}
	g.inflight[imageRef] = struct{}{}
	return true
}

// Release drops the claim on imageRef.
func (g *Guard) Release(imageRef string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, imageRef)
}

// Held reports whether an activation is in flight for imageRef.
func (g *Guard) Held(imageRef string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, held := g.inflight[imageRef]
	return held
}
