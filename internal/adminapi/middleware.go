package adminapi

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/yungbote/vendorqueue/internal/config"
)

const (
	keyBearerCurrent     = "admin.bearer_token.current"
	keyBearerPrevious    = "admin.bearer_token.previous"
	keyBearerPrevExpires = "admin.bearer_token.previous_expires_at"
	keyJWTSecret         = "admin.jwt_secret"
	keyAuthMode          = "admin.auth_mode" // "bearer" (default) or "jwt"
	// keyAlwaysAllow is the incident-mode override named in the design
	// notes: bearer auth is the canonical contract, this is a documented
	// escape hatch for when the auth store itself is unreachable, never a
	// feature an operator should leave set.
	keyAlwaysAllow = "admin.auth.always_allow"
)

func readBool(ctx context.Context, store config.Store, key string, def bool) bool {
	v, found, _ := store.Get(ctx, key)
	if !found {
		return def
	}
	return v == "true"
}

// RequireAuth checks the bearer token (or, if admin.auth_mode=jwt, a
// signed JWT) against the admin credential configured in cfg, with the
// same rotation-overlap pattern the webhook receiver uses for its secret.
// Bearer auth is the canonical contract; the always_allow flag is a
// documented incident-mode override, logged loudly every time it fires,
// never a feature to leave set.
func (s *Server) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if readBool(ctx, s.cfg, keyAlwaysAllow, false) {
			s.log.Warn("admin auth bypassed via always_allow incident-mode override", "path", c.Request.URL.Path)
			c.Next()
			return
		}

		token := extractBearer(c)
		if token == "" {
			s.respondError(c, http.StatusUnauthorized, "unauthorized", "missing bearer token", nil)
			return
		}

		mode, _, _ := s.cfg.Get(ctx, keyAuthMode)
		var ok bool
		if mode == "jwt" {
			ok = s.verifyJWT(ctx, token)
		} else {
			ok = s.verifyBearer(ctx, token)
		}
		if !ok {
			s.respondError(c, http.StatusUnauthorized, "unauthorized", "invalid credentials", nil)
			return
		}
		c.Next()
	}
}

func extractBearer(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return header[7:]
	}
	return c.Query("token")
}

// verifyBearer compares token against the current admin bearer credential,
// falling back to the previous one while a rotation overlap window
// (admin.bearer_token.previous_expires_at) is still in the future.
func (s *Server) verifyBearer(ctx context.Context, token string) bool {
	current, found, _ := s.cfg.Get(ctx, keyBearerCurrent)
	if found && current != "" && token == current {
		return true
	}
	previous, found, _ := s.cfg.Get(ctx, keyBearerPrevious)
	if !found || previous == "" || token != previous {
		return false
	}
	expiresRaw, found, _ := s.cfg.Get(ctx, keyBearerPrevExpires)
	if !found || expiresRaw == "" {
		return true
	}
	expiresAt, err := time.Parse(time.RFC3339, expiresRaw)
	return err != nil || time.Now().Before(expiresAt)
}

// verifyJWT validates a signed bearer token against admin.jwt_secret,
// the optional signed-bearer admin auth scheme.
func (s *Server) verifyJWT(ctx context.Context, tokenString string) bool {
	secret, found, _ := s.cfg.Get(ctx, keyJWTSecret)
	if !found || secret == "" {
		return false
	}
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return []byte(secret), nil
	})
	return err == nil && parsed.Valid
}

// rateLimiterSet is a per-IP token-bucket rate limiter, grounded on the
// vendor HTTP client's circuit breaker's persisted-but-cached pattern, but
// implemented with golang.org/x/time/rate since admin traffic is
// request-shaped, not a byte stream.
type rateLimiterSet struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
	rps      rate.Limit
	burst    int
}

func newRateLimiterSet(rps float64, burst int) *rateLimiterSet {
	return &rateLimiterSet{
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (rl *rateLimiterSet) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[ip]
	if !ok {
		l = rate.NewLimiter(rl.rps, rl.burst)
		rl.limiters[ip] = l
	}
	rl.lastSeen[ip] = time.Now()
	rl.evictStaleLocked()
	return l.Allow()
}

// evictStaleLocked drops limiters idle for more than ten minutes so a
// long-running admin process doesn't accumulate one bucket per caller IP
// forever. Caller must hold rl.mu.
func (rl *rateLimiterSet) evictStaleLocked() {
	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, seen := range rl.lastSeen {
		if seen.Before(cutoff) {
			delete(rl.limiters, ip)
			delete(rl.lastSeen, ip)
		}
	}
}

// RateLimit rejects requests once the caller's IP exceeds its token bucket.
func (s *Server) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiters.allow(c.ClientIP()) {
			s.respondError(c, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
			return
		}
		c.Next()
	}
}
