package handler

import (
	"net/http"
	"time"

	"github.com/cenamoradol/crm-autolote-backend/internal/gate"
	"github.com/cenamoradol/crm-autolote-backend/internal/lifecycle"
	"github.com/cenamoradol/crm-autolote-backend/internal/permission"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// VehicleHandler exposes the vehicle lifecycle operations.
type VehicleHandler struct {
	base
	engine *lifecycle.Engine
}

// NewVehicleHandler creates the vehicle handler.
func NewVehicleHandler(g *gate.Gate, engine *lifecycle.Engine) *VehicleHandler {
	return &VehicleHandler{base: base{gate: g}, engine: engine}
}

// Create registers a new vehicle in AVAILABLE.
func (h *VehicleHandler) Create(c echo.Context) error {
	grant, err := h.authorize(c, []permission.Permission{permission.InventoryCreate}, true)
	if err != nil {
		return writeError(c, err)
	}

	var req struct {
		Title     string           `json:"title"`
		Price     *decimal.Decimal `json:"price"`
		Published bool             `json:"published"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	v, err := h.engine.CreateVehicle(c.Request().Context(), grant.StoreID, actorID(c), lifecycle.VehicleInput{
		Title:     req.Title,
		Price:     req.Price,
		Published: req.Published,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"vehicle": v})
}

// Reserve places a hold on a vehicle.
func (h *VehicleHandler) Reserve(c echo.Context) error {
	grant, err := h.authorize(c, []permission.Permission{permission.InventoryUpdate}, true)
	if err != nil {
		return writeError(c, err)
	}

	var req struct {
		CustomerID *string    `json:"customer_id"`
		LeadID     *string    `json:"lead_id"`
		ExpiresAt  *time.Time `json:"expires_at"`
		Notes      string     `json:"notes"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	res, err := h.engine.Reserve(c.Request().Context(), grant.StoreID, actorID(c), c.Param("id"), lifecycle.ReserveInput{
		CustomerID: req.CustomerID,
		LeadID:     req.LeadID,
		ExpiresAt:  req.ExpiresAt,
		Notes:      req.Notes,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"reservation": res})
}

// GetReservation returns the vehicle's reservation, reconciling expiry.
func (h *VehicleHandler) GetReservation(c echo.Context) error {
	grant, err := h.authorize(c, []permission.Permission{permission.InventoryRead}, false)
	if err != nil {
		return writeError(c, err)
	}

	res, err := h.engine.GetReservation(c.Request().Context(), grant.StoreID, actorID(c), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservation": res})
}

// Release removes the vehicle's reservation.
func (h *VehicleHandler) Release(c echo.Context) error {
	grant, err := h.authorize(c, []permission.Permission{permission.InventoryUpdate}, true)
	if err != nil {
		return writeError(c, err)
	}

	if err := h.engine.Release(c.Request().Context(), grant.StoreID, actorID(c), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// Sell moves a vehicle to SOLD.
func (h *VehicleHandler) Sell(c echo.Context) error {
	grant, err := h.authorize(c, []permission.Permission{permission.SalesCreate}, true)
	if err != nil {
		return writeError(c, err)
	}

	var req struct {
		CustomerID *string          `json:"customer_id"`
		LeadID     *string          `json:"lead_id"`
		SoldPrice  *decimal.Decimal `json:"sold_price"`
		Notes      string           `json:"notes"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	sale, err := h.engine.Sell(c.Request().Context(), grant.StoreID, actorID(c), lifecycle.SellInput{
		VehicleID:  c.Param("id"),
		CustomerID: req.CustomerID,
		LeadID:     req.LeadID,
		SoldPrice:  req.SoldPrice,
		Notes:      req.Notes,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"sale": sale})
}

// Archive moves a vehicle to ARCHIVED.
func (h *VehicleHandler) Archive(c echo.Context) error {
	grant, err := h.authorize(c, []permission.Permission{permission.InventoryUpdate}, true)
	if err != nil {
		return writeError(c, err)
	}

	if err := h.engine.Archive(c.Request().Context(), grant.StoreID, actorID(c), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// Publish toggles the public listing flag.
func (h *VehicleHandler) Publish(c echo.Context) error {
	grant, err := h.authorize(c, []permission.Permission{permission.InventoryUpdate}, true)
	if err != nil {
		return writeError(c, err)
	}

	var req struct {
		Published bool `json:"published"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if err := h.engine.SetPublished(c.Request().Context(), grant.StoreID, actorID(c), c.Param("id"), req.Published); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// History returns the status transition ledger for a vehicle.
func (h *VehicleHandler) History(c echo.Context) error {
	grant, err := h.authorize(c, []permission.Permission{permission.InventoryRead}, false)
	if err != nil {
		return writeError(c, err)
	}

	rows, err := h.engine.History(c.Request().Context(), grant.StoreID, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"history": rows})
}
