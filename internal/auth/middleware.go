package auth

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"classbridge/pkg/interfaces"
)

// RequireRole guards REST routes that trigger realtime events. Without a
// secret every caller is let through, matching the development handshake.
func (a *Authenticator) RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !a.VerifiesTokens() {
				return next(c)
			}

			identity, err := a.Authenticate(c.Request())
			if err != nil {
				if errors.Is(err, interfaces.ErrUnauthorized) {
					return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
				}
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			if identity.IsAnonymous() {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
			}
			if !allowed[identity.Role] {
				return echo.NewHTTPError(http.StatusForbidden, "role not permitted")
			}
			return next(c)
		}
	}
}
