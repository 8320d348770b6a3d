package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	headerDeviceID = "X-Device-ID"
	headerAdminKey = "X-API-Key"

	ctxVisitorID = "visitor_id"
)

// identityMiddleware resolves the optional bearer token into a visitor ID.
// Requests without a token proceed anonymously; requests with a malformed
// or badly signed token are rejected outright rather than downgraded.
func (h *handler) identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.Next()
			return
		}
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "malformed authorization header"})
			return
		}

		visitorID, err := h.verifyToken(strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ctxVisitorID, visitorID)
		c.Next()
	}
}

func (h *handler) verifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(h.cfg.JWTSecret), nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("token missing subject")
	}
	return sub, nil
}

// visitorID returns the authenticated visitor ID, empty for anonymous.
func visitorID(c *gin.Context) string {
	return c.GetString(ctxVisitorID)
}

// adminMiddleware guards authoring and review endpoints with the shared
// admin API key. An empty configured key disables the admin surface.
func (h *handler) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.cfg.AdminAPIKey == "" || c.GetHeader(headerAdminKey) != h.cfg.AdminAPIKey {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access denied"})
			return
		}
		c.Next()
	}
}

// sessionLimiter throttles interaction bursts per session so a scripted
// client cannot drain the catalog faster than a human could.
type sessionLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newSessionLimiter(perSecond float64, burst int) *sessionLimiter {
	return &sessionLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (l *sessionLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	return lim
}

func (l *sessionLimiter) forget(key string) {
	l.mu.Lock()
	delete(l.limiters, key)
	l.mu.Unlock()
}

func (l *sessionLimiter) middleware(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.get(c.Param(param)).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "slow down"})
			return
		}
		c.Next()
	}
}
