package api

import (
	"sync"
	"time"

	"bookfront/internal/config"

	"golang.org/x/time/rate"
)

const (
	defaultClientBurst = 5
	// клиент без запросов дольше этого срока теряет свой bucket
	clientIdleTTL = 10 * time.Minute
)

// clientLimiter throttles API callers with one token bucket per client key.
// Buckets idle for clientIdleTTL are evicted.
type clientLimiter struct {
	every rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientBucket
	lastEvict time.Time
}

type clientBucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(cfg config.APIRateLimitConfig) *clientLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultClientBurst
	}
	return &clientLimiter{
		every:   rate.Limit(cfg.RPS),
		burst:   burst,
		now:     time.Now,
		clients: make(map[string]*clientBucket),
	}
}

// allow spends a token from the caller's bucket. RPS <= 0 turns limiting off.
func (l *clientLimiter) allow(key string) bool {
	if l.every <= 0 {
		return true
	}

	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastEvict) >= clientIdleTTL {
		l.evictIdle(now)
	}

	client, ok := l.clients[key]
	if !ok {
		client = &clientBucket{tokens: rate.NewLimiter(l.every, l.burst)}
		l.clients[key] = client
	}
	client.lastSeen = now
	return client.tokens.AllowN(now, 1)
}

func (l *clientLimiter) evictIdle(now time.Time) {
	l.lastEvict = now
	for key, client := range l.clients {
		if now.Sub(client.lastSeen) >= clientIdleTTL {
			delete(l.clients, key)
		}
	}
}
