package rate

import (
	"context"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"
)

// MemoryLimiter es un token bucket por clave (x/time/rate). Max tokens por
// Window, con ráfaga igual a Max. Las claves inactivas se purgan.
type MemoryLimiter struct {
	limit xrate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu      sync.Mutex
	clients map[string]*clientLimiter
	sweepAt time.Time
}

type clientLimiter struct {
	limiter  *xrate.Limiter
	lastSeen time.Time
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	idle := 5 * window
	if idle < 5*time.Minute {
		idle = 5 * time.Minute
	}
	return &MemoryLimiter{
		limit:   xrate.Limit(float64(max) / window.Seconds()),
		burst:   max,
		idle:    idle,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := m.now()
	lim := m.get(key, now)

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return Result{Allowed: false, RetryAfter: time.Second}, nil
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return Result{Allowed: false, RetryAfter: d}, nil
	}
	rem := int64(lim.TokensAt(now))
	if rem < 0 {
		rem = 0
	}
	return Result{Allowed: true, Remaining: rem}, nil
}

func (m *MemoryLimiter) get(key string, now time.Time) *xrate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.clients[key]; ok {
		e.lastSeen = now
		return e.limiter
	}
	lim := xrate.NewLimiter(m.limit, m.burst)
	m.clients[key] = &clientLimiter{limiter: lim, lastSeen: now}
	if now.After(m.sweepAt) {
		m.cleanupLocked(now)
		m.sweepAt = now.Add(m.idle)
	}
	return lim
}

func (m *MemoryLimiter) cleanupLocked(now time.Time) {
	for k, e := range m.clients {
		if now.Sub(e.lastSeen) > m.idle {
			delete(m.clients, k)
		}
	}
}

// Len devuelve la cantidad de claves vigiladas.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}
