package handler

import (
	"net/http"

	"github.com/cenamoradol/crm-autolote-backend/internal/gate"
	"github.com/cenamoradol/crm-autolote-backend/internal/membership"
	"github.com/cenamoradol/crm-autolote-backend/internal/permission"
	"github.com/labstack/echo/v4"
)

// MembershipHandler manages user-to-store bindings.
type MembershipHandler struct {
	base
	memberships *membership.Resolver
}

// NewMembershipHandler creates the membership handler.
func NewMembershipHandler(g *gate.Gate, memberships *membership.Resolver) *MembershipHandler {
	return &MembershipHandler{base: base{gate: g}, memberships: memberships}
}

// Assign replaces a user's membership in the resolved store. A user holds at
// most one membership per store.
func (h *MembershipHandler) Assign(c echo.Context) error {
	grant, err := h.authorize(c, []permission.Permission{permission.MembersManage}, true)
	if err != nil {
		return writeError(c, err)
	}

	var req struct {
		UserID          string              `json:"user_id"`
		PermissionSetID *string             `json:"permission_set_id"`
		Permissions     map[string][]string `json:"permissions"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.UserID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id is required"})
	}

	m, err := h.memberships.Assign(c.Request().Context(), req.UserID, grant.StoreID,
		req.PermissionSetID, permission.FromMap(req.Permissions))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"membership": m})
}
