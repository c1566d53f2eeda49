package assistant

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiters hands out one token bucket per user. A bucket refills at
// perMinute tokens per minute and holds perMinute tokens.
type Limiters struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	now   func() time.Time
	users map[int64]*limiterEntry
}

func NewLimiters(perMinute int) *Limiters {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &Limiters{
		limit: rate.Every(time.Minute / time.Duration(perMinute)),
		burst: perMinute,
		now:   time.Now,
		users: make(map[int64]*limiterEntry),
	}
}

func (l *Limiters) Allow(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	e, ok := l.users[userID]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.users[userID] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

// Prune forgets buckets unused for longer than ttl. A forgotten bucket is
// full again when the user returns, so ttl should exceed the refill time.
func (l *Limiters) Prune(ttl time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-ttl)
	n := 0
	for id, e := range l.users {
		if e.seen.Before(cutoff) {
			delete(l.users, id)
			n++
		}
	}
	return n
}

func (l *Limiters) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}
