package middlewares

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/openmined/vcscompare/internal/server/auth"
	"github.com/openmined/vcscompare/internal/server/handlers/api"
)

const (
	bearerPrefix   = "Bearer "
	authHeader     = "Authorization"
	userContextKey = "user"
)

// TokenAuth validates bearer access tokens and stores the token subject in
// the context. It passes every request through when auth is disabled.
func TokenAuth(authService *auth.AuthService) gin.HandlerFunc {
	if !authService.IsEnabled() {
		slog.Info("auth middleware disabled")
		return func(ctx *gin.Context) {
			ctx.Next()
		}
	}

	slog.Info("auth middleware enabled")
	return func(ctx *gin.Context) {
		value := ctx.GetHeader(authHeader)
		if !strings.HasPrefix(value, bearerPrefix) {
			api.AbortWithError(ctx, http.StatusUnauthorized, api.CodeAuthInvalidCredentials,
				errors.New("authorization header format must be Bearer {token}"))
			return
		}

		claims, err := authService.ValidateToken(ctx, strings.TrimPrefix(value, bearerPrefix))
		if err != nil {
			api.AbortWithError(ctx, http.StatusUnauthorized, api.CodeAuthInvalidCredentials, err)
			return
		}

		ctx.Set(userContextKey, claims.Subject)
		ctx.Next()
	}
}
