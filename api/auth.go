package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kaza-tracker/obligation-engine/logger"
	"github.com/kaza-tracker/obligation-engine/syncer"
)

// =============================================================================
// SESSION AUTH - Optional bearer JWT that selects the sync session
// =============================================================================

type ctxKey string

const ctxSession ctxKey = "sync_session"

// SessionFrom returns the request's sync session, or nil in local-only mode.
func SessionFrom(ctx context.Context) *syncer.Session {
	s, _ := ctx.Value(ctxSession).(*syncer.Session)
	return s
}

// SessionMiddleware validates an optional HS256 bearer token. A valid token's
// "sub" claim becomes the sync session. No header means local-only. A header
// that does not verify is rejected with 401. With an empty secret every
// request is local-only.
func SessionMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if secret == "" || authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || tokenString == "" {
				writeError(w, http.StatusUnauthorized, "Invalid Authorization header", nil)
				return
			}

			token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				logger.Debug("rejected bearer token", "error", err)
				writeError(w, http.StatusUnauthorized, "Invalid or expired token", err)
				return
			}

			sub, err := token.Claims.GetSubject()
			if err != nil || sub == "" {
				writeError(w, http.StatusUnauthorized, "Token has no subject", err)
				return
			}

			ctx := context.WithValue(r.Context(), ctxSession, &syncer.Session{UserID: sub})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
