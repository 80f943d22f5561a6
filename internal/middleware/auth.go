package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"salesreport-service/internal/scope"
	"salesreport-service/pkg/jwtutil"
	"salesreport-service/pkg/logger"
)

const actorContextKey = "actor"

// AuthMiddleware validates the bearer token and places the decoded actor
// identity in the request context. Every scoped or mutating route runs
// behind it; an absent or invalid token fails before any business rule.
func AuthMiddleware(jwtUtil *jwtutil.JWTUtil) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			// Get the Authorization header
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				log.Warn("Missing Authorization header")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
			}

			// Check if it's a Bearer token
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				log.Warn("Invalid Authorization header format")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
			}

			// Validate the token
			claims, err := jwtUtil.ValidateToken(parts[1])
			if err != nil {
				log.Warn("Invalid or expired token", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}

			// Store the actor identity for the handlers
			c.Set(actorContextKey, scope.Actor{ID: claims.UserID, Role: claims.Role})
			c.Set("email", claims.Email)
			log.Debug("Token validated",
				zap.Uint("user_id", claims.UserID),
				zap.String("role", claims.Role))

			return next(c)
		}
	}
}

// ActorFromContext retrieves the decoded actor placed by AuthMiddleware.
func ActorFromContext(c echo.Context) (scope.Actor, bool) {
	actor, ok := c.Get(actorContextKey).(scope.Actor)
	return actor, ok
}
