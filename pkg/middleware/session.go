package middleware

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
)

// SessionMiddleware attaches session claims to the request context
type SessionMiddleware struct {
	source   auth.SessionSource
	optional bool // If true, allow requests without a session
}

// NewSessionMiddleware creates a new session middleware
func NewSessionMiddleware(source auth.SessionSource, optional bool) *SessionMiddleware {
	if source == nil {
		source = auth.HeaderSessionSource{}
	}
	return &SessionMiddleware{
		source:   source,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with session extraction
func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.source.Claims(r)
		switch {
		case errors.Is(err, auth.ErrNoSession):
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing session")
			return
		case errors.Is(err, auth.ErrCorruptActor):
			// Inconsistent claims are an authorization failure, not a missing login
			httputil.WriteForbidden(w, "inconsistent actor claims")
			return
		case err != nil:
			httputil.WriteUnauthorized(w, "invalid session")
			return
		}

		ctx := auth.WithClaims(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClaims extracts session claims from request
func GetClaims(r *http.Request) (auth.Claims, bool) {
	return auth.ClaimsFromContext(r.Context())
}
