package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophgrade/internal/server/handlers"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testJWTConfig = handlers.JWTConfig{
	Secret:   []byte("test-secret-key"),
	TokenTTL: 15 * time.Minute,
}

// testHandler checks that the corrector reached the context
func testHandler(t *testing.T, expectedCorrector, expectedUsername string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		corrector, ok := handlers.GetCorrectorKey(r.Context())
		require.True(t, ok, "corrector key should be in context")
		assert.Equal(t, expectedCorrector, corrector)

		username, ok := handlers.GetUsername(r.Context())
		require.True(t, ok, "username should be in context")
		assert.Equal(t, expectedUsername, username)

		w.WriteHeader(http.StatusOK)
	}
}

func TestAuthMiddleware_Success(t *testing.T) {
	token, _, err := handlers.GenerateToken(testJWTConfig, "u1", "alice")
	require.NoError(t, err)

	handler := AuthMiddleware(setupTestLogger(), testJWTConfig)(testHandler(t, "u1", "alice"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/data", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	valid, _, err := handlers.GenerateToken(testJWTConfig, "u1", "alice")
	require.NoError(t, err)

	expired, _, err := handlers.GenerateToken(handlers.JWTConfig{Secret: testJWTConfig.Secret, TokenTTL: -time.Minute}, "u1", "alice")
	require.NoError(t, err)

	otherSecret, _, err := handlers.GenerateToken(handlers.JWTConfig{Secret: []byte("other"), TokenTTL: time.Minute}, "u1", "alice")
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, handlers.CustomClaims{CorrectorKey: "u1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "basic scheme", header: "Basic " + valid},
		{name: "bearer without token", header: "Bearer "},
		{name: "token only", header: valid},
		{name: "garbage token", header: "Bearer not.a.token"},
		{name: "expired token", header: "Bearer " + expired},
		{name: "wrong secret", header: "Bearer " + otherSecret},
		{name: "unsigned token", header: "Bearer " + noneAlg},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := AuthMiddleware(setupTestLogger(), testJWTConfig)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/data", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.False(t, called)
		})
	}
}

func TestAuthMiddleware_SchemeIsCaseInsensitive(t *testing.T) {
	token, _, err := handlers.GenerateToken(testJWTConfig, "u2", "bob")
	require.NoError(t, err)

	handler := AuthMiddleware(setupTestLogger(), testJWTConfig)(testHandler(t, "u2", "bob"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/changes", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
