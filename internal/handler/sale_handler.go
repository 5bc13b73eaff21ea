package handler

import (
	"net/http"

	"github.com/cenamoradol/crm-autolote-backend/internal/gate"
	"github.com/cenamoradol/crm-autolote-backend/internal/lifecycle"
	"github.com/cenamoradol/crm-autolote-backend/internal/permission"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// SaleHandler exposes sale-record mutations.
type SaleHandler struct {
	base
	engine *lifecycle.Engine
}

// NewSaleHandler creates the sale handler.
func NewSaleHandler(g *gate.Gate, engine *lifecycle.Engine) *SaleHandler {
	return &SaleHandler{base: base{gate: g}, engine: engine}
}

// Update mutates a sale. COMPLETED sales additionally require the
// sales:override_closed capability; the engine enforces that lock.
func (h *SaleHandler) Update(c echo.Context) error {
	grant, err := h.authorize(c, []permission.Permission{permission.SalesUpdate, permission.SalesOverrideClosed}, true)
	if err != nil {
		return writeError(c, err)
	}

	var req struct {
		CustomerID *string          `json:"customer_id"`
		LeadID     *string          `json:"lead_id"`
		SoldPrice  *decimal.Decimal `json:"sold_price"`
		Notes      *string          `json:"notes"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	actor := lifecycle.Actor{
		ID:         actorID(c),
		SuperAdmin: grant.SuperAdmin,
		Caps:       grant.Capabilities,
	}
	sale, err := h.engine.UpdateSale(c.Request().Context(), grant.StoreID, actor, c.Param("id"), lifecycle.SaleUpdate{
		CustomerID: req.CustomerID,
		LeadID:     req.LeadID,
		SoldPrice:  req.SoldPrice,
		Notes:      req.Notes,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"sale": sale})
}
