package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lending-ledger/internal/config"
)

func newTestAuthHandler(secret string) *AuthHandler {
	cfg := config.Config{}
	cfg.Server.Auth.JWTSecret = secret
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	return NewAuthHandler(cfg, logger)
}

func TestAuthHandlerGenerateBearerToken(t *testing.T) {
	t.Run("issues a signed token for a username", func(t *testing.T) {
		handler := newTestAuthHandler("test-secret")

		req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{"username": "alice"}`))
		rec := httptest.NewRecorder()

		handler.GenerateBearerToken(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.True(t, strings.HasPrefix(resp["token"], "Bearer "))

		raw := strings.TrimPrefix(resp["token"], "Bearer ")
		parsed, err := jwt.Parse(raw, func(_ *jwt.Token) (interface{}, error) {
			return []byte("test-secret"), nil
		})
		require.NoError(t, err)
		claims, ok := parsed.Claims.(jwt.MapClaims)
		require.True(t, ok)
		assert.Equal(t, "alice", claims["username"])
	})

	t.Run("rejects a missing username", func(t *testing.T) {
		handler := newTestAuthHandler("test-secret")

		req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()

		handler.GenerateBearerToken(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects a malformed body", func(t *testing.T) {
		handler := newTestAuthHandler("test-secret")

		req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`not json`))
		rec := httptest.NewRecorder()

		handler.GenerateBearerToken(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
