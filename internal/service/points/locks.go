package points

import "sync"

// lockStripes bounds lock memory while keeping collisions between active
// users unlikely.
const lockStripes = 128

// userLocks serializes the award pipeline per user with striped mutexes.
// Two users may share a stripe; that only costs latency, never correctness.
type userLocks struct {
	stripes [lockStripes]sync.Mutex
}

// lock acquires the stripe for a user and returns its release func.
func (l *userLocks) lock(userID uint) func() {
	stripe := &l.stripes[userID%lockStripes]
	stripe.Lock()
	return stripe.Unlock
}
