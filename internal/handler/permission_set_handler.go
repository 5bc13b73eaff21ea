package handler

import (
	"context"
	"net/http"

	"github.com/cenamoradol/crm-autolote-backend/internal/apperr"
	"github.com/cenamoradol/crm-autolote-backend/internal/gate"
	"github.com/cenamoradol/crm-autolote-backend/internal/model"
	"github.com/cenamoradol/crm-autolote-backend/internal/permission"
	"github.com/labstack/echo/v4"
)

// PermissionSetStore is the persistence port for permission-set templates.
type PermissionSetStore interface {
	FindPermissionSet(ctx context.Context, storeID, setID string) (*model.PermissionSet, error)
	ListPermissionSets(ctx context.Context, storeID string) ([]model.PermissionSet, error)
	SavePermissionSet(ctx context.Context, set *model.PermissionSet) error
	DeletePermissionSet(ctx context.Context, storeID, setID string) error
}

// PermissionSetHandler manages store-scoped permission templates.
type PermissionSetHandler struct {
	base
	sets PermissionSetStore
}

// NewPermissionSetHandler creates the permission-set handler.
func NewPermissionSetHandler(g *gate.Gate, sets PermissionSetStore) *PermissionSetHandler {
	return &PermissionSetHandler{base: base{gate: g}, sets: sets}
}

// List returns the store's permission sets.
func (h *PermissionSetHandler) List(c echo.Context) error {
	grant, err := h.authorize(c, []permission.Permission{permission.MembersManage}, false)
	if err != nil {
		return writeError(c, err)
	}

	sets, err := h.sets.ListPermissionSets(c.Request().Context(), grant.StoreID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"permission_sets": sets})
}

// Create adds a permission set.
func (h *PermissionSetHandler) Create(c echo.Context) error {
	grant, err := h.authorize(c, []permission.Permission{permission.MembersManage}, true)
	if err != nil {
		return writeError(c, err)
	}

	name, raw, err := bindPermissionSet(c)
	if err != nil {
		return writeError(c, err)
	}

	set := &model.PermissionSet{StoreID: grant.StoreID, Name: name, Permissions: raw}
	if err := h.sets.SavePermissionSet(c.Request().Context(), set); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"permission_set": set})
}

// Update replaces a permission set's name and permission map.
func (h *PermissionSetHandler) Update(c echo.Context) error {
	grant, err := h.authorize(c, []permission.Permission{permission.MembersManage}, true)
	if err != nil {
		return writeError(c, err)
	}

	set, err := h.sets.FindPermissionSet(c.Request().Context(), grant.StoreID, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	if set == nil {
		return writeError(c, apperr.NotFound("PERMISSION_SET_NOT_FOUND", "permission set does not exist in this store"))
	}

	name, raw, err := bindPermissionSet(c)
	if err != nil {
		return writeError(c, err)
	}

	set.Name = name
	set.Permissions = raw
	if err := h.sets.SavePermissionSet(c.Request().Context(), set); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"permission_set": set})
}

// Delete removes a permission set.
func (h *PermissionSetHandler) Delete(c echo.Context) error {
	grant, err := h.authorize(c, []permission.Permission{permission.MembersManage}, true)
	if err != nil {
		return writeError(c, err)
	}

	if err := h.sets.DeletePermissionSet(c.Request().Context(), grant.StoreID, c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

func bindPermissionSet(c echo.Context) (string, string, error) {
	var req struct {
		Name        string              `json:"name"`
		Permissions map[string][]string `json:"permissions"`
	}
	if err := c.Bind(&req); err != nil {
		return "", "", apperr.Invalid("INVALID_REQUEST", "invalid request body")
	}
	if req.Name == "" {
		return "", "", apperr.Invalid("NAME_REQUIRED", "name is required")
	}
	raw, err := permission.FromMap(req.Permissions).ToJSON()
	if err != nil {
		return "", "", apperr.Internal(err)
	}
	return req.Name, raw, nil
}
