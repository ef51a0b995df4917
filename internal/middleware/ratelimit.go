package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// VoteLimiter throttles vote requests per user.
type VoteLimiter struct {
	mu       sync.Mutex
	limiters map[uint]*limiterEntry
	rps      rate.Limit
	burst    int
}

func NewVoteLimiter(requestsPerSecond float64, burst int) *VoteLimiter {
	return &VoteLimiter{
		limiters: make(map[uint]*limiterEntry),
		rps:      rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

func (l *VoteLimiter) allow(userID uint) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.limiters[userID]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[userID] = e
	}
	e.lastSeen = time.Now()
	return e.limiter.Allow()
}

// Cleanup drops limiters idle for longer than maxIdle.
func (l *VoteLimiter) Cleanup(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	cutoff := time.Now().Add(-maxIdle)
	for id, e := range l.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(l.limiters, id)
			removed++
		}
	}
	return removed
}

// Middleware must run after LoadUser. Anonymous requests are left to AuthRequired.
func (l *VoteLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := ViewerID(c)
		if userID != 0 && l.rps > 0 && !l.allow(userID) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "Too many votes, slow down",
				"data":    nil,
			})
			return
		}
		c.Next()
	}
}
