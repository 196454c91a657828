package common

import "sync"

// ReentrancyGuard is a two-state flag (free/busy) wrapped around every
// state-mutating entry point of a module. A nested call that arrives while an
// operation is in flight is rejected with ErrReentrant rather than queued.
//
// The zero value is a free guard.
type ReentrancyGuard struct {
	mu   sync.Mutex
	busy bool
}

// Enter marks the guard busy and returns the release function the caller must
// defer. Release is idempotent, so it can be invoked on every exit path.
func (g *ReentrancyGuard) Enter() (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy {
		return nil, ErrReentrant
	}
	g.busy = true

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.busy = false
			g.mu.Unlock()
		})
	}, nil
}

// Busy reports whether an operation currently holds the guard.
func (g *ReentrancyGuard) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.busy
}
