package handlers

import (
	"net/http"
	"strings"

	"github.com/darrnshn/stateline/internal/core/ports/primary"
)

const signingMethod = "HS256"

type MiddlewareProvider struct {
	jwt    primary.JWTService
	logger primary.Logger
}

func NewMiddlewareProvider(jwt primary.JWTService, logger primary.Logger) *MiddlewareProvider {
	return &MiddlewareProvider{
		jwt:    jwt,
		logger: logger,
	}
}

func (m *MiddlewareProvider) JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			ResponseError(w, "Authorization header missing", http.StatusUnauthorized)
			return
		}

		// Extract token from "Bearer <token>"
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		valid, err := m.jwt.VerifyTokenHMAC(r.Context(), tokenString, signingMethod)
		if err != nil || !valid {
			m.logger.Debug("Rejected admin request", "path", r.URL.Path, "error", err)
			ResponseError(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
