package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/shiftwise/shiftwise/internal/security"
)

// authMiddleware validates the bearer token using constant-time comparison.
// Auth attempts are rate-limited through the "auth" bucket and every
// outcome is audited.
func (g *Gateway) authMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g.limiter != nil {
				if err := g.limiter.Allow("auth"); err != nil {
					http.Error(w, "too many requests", http.StatusTooManyRequests)
					return
				}
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				g.emitAuthEvent(security.EventAuthFailure, r, "missing authorization header")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
				if constantTimeEqual(token, g.cfg.BearerToken) {
					g.emitAuthEvent(security.EventAuthSuccess, r, "bearer")
					next.ServeHTTP(w, r)
					return
				}
			}

			g.emitAuthEvent(security.EventAuthFailure, r, "invalid credentials")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		})
	}
}

func (g *Gateway) emitAuthEvent(eventType security.EventType, r *http.Request, detail string) {
	g.audit.Log(security.AuditEvent{
		Type:   eventType,
		Detail: detail,
		Metadata: map[string]string{
			"remote_addr": r.RemoteAddr,
			"method":      r.Method,
			"path":        r.URL.Path,
		},
	})
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
