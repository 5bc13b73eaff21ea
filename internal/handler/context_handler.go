package handler

import (
	"net/http"

	"github.com/cenamoradol/crm-autolote-backend/internal/middleware"
	"github.com/labstack/echo/v4"
)

// ResolveContext returns the tenant context resolved for the inbound host.
// Public: the frontend uses it to pick master vs store branding before any
// authentication happens.
func ResolveContext(c echo.Context) error {
	tc := middleware.TenantFromEcho(c)
	return c.JSON(http.StatusOK, tc)
}
