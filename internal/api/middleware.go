package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter grants each client a fixed request budget per minute. It is
// pure admission control at the edge: it throttles request arrival, never
// pipeline execution.
type RateLimiter struct {
	mu             sync.Mutex
	clients        map[string]*rate.Limiter
	requestsPerMin int
}

func NewRateLimiter(requestsPerMin int) *RateLimiter {
	if requestsPerMin <= 0 {
		requestsPerMin = 60
	}
	return &RateLimiter{
		clients:        make(map[string]*rate.Limiter),
		requestsPerMin: requestsPerMin,
	}
}

func (rl *RateLimiter) limiterFor(clientKey string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.clients[clientKey]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.requestsPerMin)), rl.requestsPerMin)
		rl.clients[clientKey] = limiter
	}
	return limiter
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !rl.limiterFor(host).Allow() {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
