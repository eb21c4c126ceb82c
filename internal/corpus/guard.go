package corpus

import "sync"

// Guard serializes transaction commits against corpus resets. Independent
// uploads may interleave freely (shared side), but a reset (exclusive
// side) can never cut between a transaction's journal append and its
// index additions, so a half-committed upload is never observable.
type Guard struct {
	mu sync.RWMutex
}

// NewGuard returns a guard ready for use.
func NewGuard() *Guard {
	return &Guard{}
}

// AcquireCommit blocks while a reset is running, then holds off resets
// until the returned release func is called.
func (g *Guard) AcquireCommit() (release func()) {
	g.mu.RLock()
	return g.mu.RUnlock
}

// acquireReset blocks until all in-flight commits finish and excludes new
// ones until released.
func (g *Guard) acquireReset() (release func()) {
	g.mu.Lock()
	return g.mu.Unlock
}
