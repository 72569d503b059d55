package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/wayfarernet/community_layer/internal/app/auth"
	"github.com/wayfarernet/community_layer/internal/httputil"
	"github.com/wayfarernet/community_layer/pkg/logger"
)

// wrapWithAuth requires a bearer credential on every route except /healthz.
// Static tokens are matched first; anything else is treated as a session
// token and verified through the manager when one is configured.
func wrapWithAuth(next http.Handler, tokens []string, manager *auth.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || r.URL.Path == "/auth/login" {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			httputil.Unauthorized(w, "")
			return
		}
		presented := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if presented == "" {
			httputil.Unauthorized(w, "")
			return
		}

		for _, token := range tokens {
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}

		if manager != nil {
			identity, err := manager.Verify(presented)
			if err == nil {
				ctx := logger.WithUserID(r.Context(), identity.UserID)
				ctx = logger.WithRole(ctx, identity.Role)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		httputil.Unauthorized(w, "invalid credentials")
	})
}

// wrapWithAudit records every request in the audit log after it completes.
func wrapWithAudit(next http.Handler, log *auditLog) http.Handler {
	if log == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &auditRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		log.add(auditEntry{
			Time:       time.Now().UTC(),
			User:       logger.GetUserID(r.Context()),
			Role:       logger.GetRole(r.Context()),
			Path:       r.URL.Path,
			Method:     r.Method,
			Status:     rec.status,
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
		})
	})
}

type auditRecorder struct {
	http.ResponseWriter
	status int
}

func (r *auditRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// wrapWithCORS handles preflight requests and sets permissive CORS headers.
func wrapWithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
