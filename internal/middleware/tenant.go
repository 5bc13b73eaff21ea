package middleware

import (
	"net/http"

	"github.com/cenamoradol/crm-autolote-backend/internal/tenant"
	"github.com/cenamoradol/crm-autolote-backend/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// TenantContextMiddleware resolves the inbound host to a tenant context and
// stores it on the request. Resolution runs before access control on every
// request; an unknown host is not fatal here, the access gate decides.
func TenantContextMiddleware(resolver *tenant.Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromEcho(c)

			tc, err := resolver.Resolve(c.Request().Context(), tenant.HostFromRequest(c.Request()))
			if err != nil {
				log.Error("tenant resolution failed", zap.Error(err))
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "tenant resolution failed"})
			}

			c.Set("tenant", tc)
			return next(c)
		}
	}
}

// TenantFromEcho returns the resolved tenant context, or nil.
func TenantFromEcho(c echo.Context) *tenant.Context {
	tc, ok := c.Get("tenant").(*tenant.Context)
	if !ok {
		return nil
	}
	return tc
}
