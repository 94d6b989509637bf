package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/gophgrade/internal/server/handlers"
)

// AuthMiddleware создает middleware для проверки JWT токена корректора
func AuthMiddleware(logger *slog.Logger, jwtConfig handlers.JWTConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("Missing Authorization header", "path", r.URL.Path)
				writeError(w, "missing token", http.StatusUnauthorized)
				return
			}

			// Ожидаем формат: "Bearer <token>"
			scheme, token, found := strings.Cut(authHeader, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
				logger.Warn("Invalid Authorization header format")
				writeError(w, "invalid token format", http.StatusUnauthorized)
				return
			}

			claims, err := handlers.ValidateToken(jwtConfig, token)
			if err != nil {
				logger.Warn("Invalid token", "error", err)
				writeError(w, "invalid token", http.StatusUnauthorized)
				return
			}

			logger.Debug("Corrector authenticated", "corrector_key", claims.CorrectorKey, "username", claims.Username)

			ctx := handlers.WithCorrector(r.Context(), claims.CorrectorKey, claims.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
