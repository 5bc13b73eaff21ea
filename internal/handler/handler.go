package handler

import (
	"github.com/cenamoradol/crm-autolote-backend/internal/apperr"
	"github.com/cenamoradol/crm-autolote-backend/internal/gate"
	"github.com/cenamoradol/crm-autolote-backend/internal/middleware"
	"github.com/cenamoradol/crm-autolote-backend/internal/permission"
	"github.com/cenamoradol/crm-autolote-backend/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// storeIDHeader selects the store scope on the master domain.
const storeIDHeader = "x-store-id"

// writeError renders a typed error with its machine-readable reason code.
func writeError(c echo.Context, err error) error {
	status := apperr.HTTPStatus(err)
	if status >= 500 {
		logger.FromEcho(c).Error("request failed", zap.Error(err))
		return c.JSON(status, echo.Map{"error": "internal error", "code": "INTERNAL"})
	}
	return c.JSON(status, echo.Map{"error": err.Error(), "code": apperr.CodeOf(err)})
}

// base carries the access gate shared by all protected handlers.
type base struct {
	gate *gate.Gate
}

// authorize runs the access gate for the current request. required uses OR
// semantics; mutating applies license gating.
func (b *base) authorize(c echo.Context, required []permission.Permission, mutating bool) (*gate.Grant, error) {
	var id gate.Identity
	if claims := middleware.ClaimsFromEcho(c); claims != nil {
		id = gate.Identity{
			UserID:     claims.UserID,
			Email:      claims.Email,
			SuperAdmin: claims.IsSuperAdmin,
		}
	}

	return b.gate.Authorize(
		c.Request().Context(),
		id,
		middleware.TenantFromEcho(c),
		c.Request().Header.Get(storeIDHeader),
		required,
		mutating,
	)
}

// actorID returns the authenticated user id, empty on public routes.
func actorID(c echo.Context) string {
	if claims := middleware.ClaimsFromEcho(c); claims != nil {
		return claims.UserID
	}
	return ""
}
