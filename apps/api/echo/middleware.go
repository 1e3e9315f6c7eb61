package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/eventsoft/eventsoft/core/access"
)

// platformAdminMiddleware restricts a route to the platform administrators.
func platformAdminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if err := access.Can(principalOf(ctx), access.PlatformAdmin, access.Target{}); err != nil {
			return err
		}
		return next(ctx)
	}
}
