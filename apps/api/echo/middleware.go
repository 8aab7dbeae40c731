package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/oiclass/oiclass/core/user"
)

// roleMiddleware lets the request through when the context user passes check.
func roleMiddleware(check func(usr *user.User) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr := ctxUser(ctx)
			if usr.ID == "" {
				return errUnauthorized
			}
			if check(&usr) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func adminMiddleware() echo.MiddlewareFunc {
	return roleMiddleware((*user.User).IsAdmin)
}

// staffMiddleware allows teachers and admins.
func staffMiddleware() echo.MiddlewareFunc {
	return roleMiddleware((*user.User).IsStaff)
}
