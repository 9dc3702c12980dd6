package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"expertpay/internal/domain"

	"github.com/rs/zerolog"
)

type ctxKey string

const UserIDKey ctxKey = "userID"

// TokenSource resolves a plain bearer token to its stored record.
type TokenSource interface {
	FindByPlainToken(ctx context.Context, plainToken string) (*domain.APIToken, error)
}

// TokenMiddleware authenticates requests by bearer token, accepted either in
// the Authorization header or as a token query parameter (websocket clients
// cannot set headers). The authenticated user id is put on the context.
func TokenMiddleware(tokens TokenSource, log zerolog.Logger) func(http.Handler) http.Handler {
	log = log.With().Str("component", "auth").Logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token *domain.APIToken

			authHeader := r.Header.Get("Authorization")
			if plain, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
				if t, err := tokens.FindByPlainToken(r.Context(), strings.TrimSpace(plain)); err == nil {
					token = t
				}
			}

			if token == nil {
				if plain := r.URL.Query().Get("token"); plain != "" {
					if t, err := tokens.FindByPlainToken(r.Context(), plain); err == nil {
						token = t
					}
				}
			}

			if token == nil {
				log.Debug().Str("path", r.URL.Path).Msg("request without valid token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if token.ExpiresAt != nil && token.ExpiresAt.Before(time.Now()) {
				http.Error(w, "Token expired", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, token.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID returns the authenticated user id from the request context.
func GetUserID(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(UserIDKey).(int64)
	if !ok {
		return 0, errors.New("userID not found in context")
	}
	return userID, nil
}
