package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/flemzord/coauthor/internal/security"
)

// authMiddleware guards the admin routes. Attempts are rate limited per
// client address before credentials are checked, and every outcome is
// written to the audit trail. audit and limiter may be nil.
func authMiddleware(cfg AuthConfig, audit *security.AuditLogger, limiter *security.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil {
				if err := limiter.Allow(security.KindAuth, clientAddr(r)); err != nil {
					auditAuth(audit, security.EventRateLimit, r, "admin auth")
					http.Error(w, "too many requests", http.StatusTooManyRequests)
					return
				}
			}

			method, ok := cfg.authenticate(r)
			if !ok {
				auditAuth(audit, security.EventAuthFailure, r, method)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			auditAuth(audit, security.EventAuthSuccess, r, method)
			next.ServeHTTP(w, r)
		})
	}
}

// authenticate checks the Authorization header against the configured
// credentials. A bearer token is tried before basic credentials. The
// returned string names the method that matched, or why none did.
func (a AuthConfig) authenticate(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "missing authorization header", false
	}

	if token, ok := strings.CutPrefix(header, "Bearer "); ok && a.BearerToken != "" {
		if secretEqual(token, a.BearerToken) {
			return "bearer", true
		}
	}

	if a.BasicUser != "" && a.BasicPass != "" {
		user, pass, ok := r.BasicAuth()
		// Both comparisons run so timing does not reveal which one failed.
		userOK := secretEqual(user, a.BasicUser)
		passOK := secretEqual(pass, a.BasicPass)
		if ok && userOK && passOK {
			return "basic", true
		}
	}

	return "invalid credentials", false
}

func auditAuth(audit *security.AuditLogger, typ security.EventType, r *http.Request, detail string) {
	audit.Log(security.AuditEvent{
		Type:   typ,
		Detail: detail,
		Metadata: map[string]string{
			"remote_addr": clientAddr(r),
			"method":      r.Method,
			"route":       r.URL.Path,
		},
	})
}

func secretEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
