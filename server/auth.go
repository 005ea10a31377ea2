package server

import (
	"context"
	"net/http"
	"strings"

	"multitrack/core/auth"
)

type ctxKey struct{}

// authMiddleware requires a bearer token and puts its claims on the
// request context.
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}
		claims, err := s.deps.Issuer.Parse(parts[1])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims)))
	}
}

// claimsFrom returns the claims set by authMiddleware.
func claimsFrom(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(ctxKey{}).(*auth.Claims)
	return c
}

// address is the wallet used for graph lookups; local profiles use their id.
func address(c *auth.Claims) string {
	if c.Address != "" {
		return c.Address
	}
	return c.Owner
}
