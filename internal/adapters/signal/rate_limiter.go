package signal

import (
	"sync"
	"time"

	"github.com/avdeyev/gamecast/internal/domain"
)

// JoinRateLimiter bounds how often a single connection may attempt to
// join a session within a sliding window. Each connection keeps a ring of
// its last `limit` attempt times; an attempt is allowed iff the oldest
// slot is free or has aged out of the window.
type JoinRateLimiter struct {
	mu       sync.Mutex
	limit    int
	interval time.Duration
	rings    map[domain.ConnID]*attemptRing
}

type attemptRing struct {
	at   []time.Time
	next int
}

func NewJoinRateLimiter(limit int, interval time.Duration) *JoinRateLimiter {
	return &JoinRateLimiter{
		limit:    limit,
		interval: interval,
		rings:    make(map[domain.ConnID]*attemptRing),
	}
}

func (rl *JoinRateLimiter) Allow(id domain.ConnID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	ring := rl.rings[id]
	if ring == nil {
		ring = &attemptRing{at: make([]time.Time, rl.limit)}
		rl.rings[id] = ring
	}

	now := time.Now()
	oldest := ring.at[ring.next]
	if !oldest.IsZero() && now.Sub(oldest) < rl.interval {
		return false
	}
	ring.at[ring.next] = now
	ring.next = (ring.next + 1) % len(ring.at)
	return true
}

// Forget drops the history of a closed connection.
func (rl *JoinRateLimiter) Forget(id domain.ConnID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.rings, id)
}
