package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"expertpay/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokens struct {
	byPlain map[string]*domain.APIToken
}

func (f *fakeTokens) FindByPlainToken(ctx context.Context, plainToken string) (*domain.APIToken, error) {
	if t, ok := f.byPlain[plainToken]; ok {
		return t, nil
	}
	return nil, domain.ErrNotFound
}

func protectedEcho(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := GetUserID(r.Context())
		require.NoError(t, err)
		assert.Equal(t, int64(42), userID)
		w.WriteHeader(http.StatusOK)
	})
}

func TestTokenMiddleware(t *testing.T) {
	tokens := &fakeTokens{byPlain: map[string]*domain.APIToken{
		"good-token": {ID: 1, UserID: 42},
	}}
	handler := TokenMiddleware(tokens, zerolog.Nop())(protectedEcho(t))

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/payments/pi_1", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("query parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ws?token=good-token", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/payments/pi_1", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/payments/pi_1", nil)
		req.Header.Set("Authorization", "Bearer bogus")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestTokenMiddlewareExpiredToken(t *testing.T) {
	expired := time.Now().Add(-time.Hour)
	tokens := &fakeTokens{byPlain: map[string]*domain.APIToken{
		"stale-token": {ID: 1, UserID: 42, ExpiresAt: &expired},
	}}
	handler := TokenMiddleware(tokens, zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("expired token must not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodGet, "/payments/pi_1", nil)
	req.Header.Set("Authorization", "Bearer stale-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetUserIDMissing(t *testing.T) {
	_, err := GetUserID(context.Background())
	assert.Error(t, err)
}
