package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	playerIDKey  contextKey = "player_id"
	sessionIDKey contextKey = "session_id"
)

// SessionChecker verifies session liveness. Implemented by the redis session
// store; returns the owning player id, or empty when the session is gone.
type SessionChecker interface {
	SessionPlayer(ctx context.Context, sessionID string) (string, error)
}

// Middleware returns an HTTP middleware that validates bearer JWTs and the
// liveness of the session they reference. The player and session ids are
// stored in the request context.
func Middleware(jwtMgr *JWTManager, sessions SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				http.Error(w, `{"error":"invalid authorization format"}`, http.StatusUnauthorized)
				return
			}

			claims, err := jwtMgr.ValidateToken(parts[1])
			if err != nil {
				http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
				return
			}

			owner, err := sessions.SessionPlayer(r.Context(), claims.SessionID)
			if err != nil {
				http.Error(w, `{"error":"session lookup failed"}`, http.StatusInternalServerError)
				return
			}
			if owner == "" || owner != claims.PlayerID {
				http.Error(w, `{"error":"session revoked or expired"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), playerIDKey, claims.PlayerID)
			ctx = context.WithValue(ctx, sessionIDKey, claims.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PlayerIDFromContext extracts the authenticated player ID from the request context.
func PlayerIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(playerIDKey).(string)
	return id
}

// SessionIDFromContext extracts the session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}
