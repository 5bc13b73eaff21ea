package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/cenamoradol/crm-autolote-backend/internal/apperr"
	"github.com/cenamoradol/crm-autolote-backend/internal/audit"
	"github.com/cenamoradol/crm-autolote-backend/internal/model"
	"github.com/cenamoradol/crm-autolote-backend/internal/permission"
	"github.com/cenamoradol/crm-autolote-backend/pkg/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Guard-condition failures. Conflicts are expected under concurrency and may
// be retried by the caller after re-reading state; the engine never retries.
var (
	ErrVehicleNotFound     = apperr.NotFound("VEHICLE_NOT_FOUND", "vehicle does not exist in this store")
	ErrCustomerNotInStore  = apperr.NotFound("CUSTOMER_NOT_IN_STORE", "customer does not exist in this store")
	ErrLeadNotInStore      = apperr.NotFound("LEAD_NOT_IN_STORE", "lead does not exist in this store")
	ErrReservationNotFound = apperr.NotFound("RESERVATION_NOT_FOUND", "vehicle has no reservation")
	ErrSaleNotFound        = apperr.NotFound("SALE_NOT_FOUND", "sale does not exist in this store")
	ErrAlreadyReserved     = apperr.Conflict("VEHICLE_ALREADY_RESERVED", "vehicle already has an active reservation")
	ErrAlreadySold         = apperr.Conflict("ALREADY_SOLD", "vehicle is already sold")
	ErrVehicleArchived     = apperr.Conflict("VEHICLE_ARCHIVED", "vehicle is archived")
	ErrSaleLocked          = apperr.Conflict("SALE_LOCKED", "completed sales require the override capability to modify")
)

// Actor is the authorized caller of an engine operation, carrying the
// capability set resolved by the access gate.
type Actor struct {
	ID         string
	SuperAdmin bool
	Caps       permission.Set
}

func (a Actor) can(p permission.Permission) bool {
	return a.SuperAdmin || a.Caps.Has(p)
}

// Engine owns the vehicle lifecycle state machine
// (AVAILABLE -> RESERVED -> SOLD, ARCHIVED from any state) and the attached
// reservation and sale records. All multi-row mutations run inside one
// transaction; readers never observe partial state.
type Engine struct {
	store   Store
	sink    audit.Sink
	metrics *metrics.LifecycleMetrics
	log     *zap.Logger
	now     func() time.Time
}

// NewEngine creates a lifecycle engine. sink and m may be a NopSink and nil.
func NewEngine(store Store, sink audit.Sink, m *metrics.LifecycleMetrics, log *zap.Logger) *Engine {
	if sink == nil {
		sink = audit.NopSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:   store,
		sink:    sink,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// ReserveInput is the payload for Reserve.
type ReserveInput struct {
	CustomerID *string
	LeadID     *string
	ExpiresAt  *time.Time
	Notes      string
}

// SellInput is the payload for Sell.
type SellInput struct {
	VehicleID  string
	CustomerID *string
	LeadID     *string
	SoldPrice  *decimal.Decimal
	Notes      string
}

// SaleUpdate is the payload for UpdateSale. Nil fields are left unchanged.
type SaleUpdate struct {
	CustomerID *string
	LeadID     *string
	SoldPrice  *decimal.Decimal
	Notes      *string
}

// VehicleInput is the payload for CreateVehicle.
type VehicleInput struct {
	Title     string
	Price     *decimal.Decimal
	Published bool
}

// CreateVehicle creates a vehicle in AVAILABLE with a generated public id.
func (e *Engine) CreateVehicle(ctx context.Context, storeID, actorID string, in VehicleInput) (*model.Vehicle, error) {
	v := &model.Vehicle{
		StoreID:     storeID,
		Title:       in.Title,
		Price:       in.Price,
		IsPublished: in.Published,
		Status:      model.VehicleAvailable,
		CreatedByID: actorID,
	}
	if err := e.store.CreateVehicle(ctx, v); err != nil {
		return nil, err
	}
	e.sink.Enqueue(audit.Event{
		StoreID: storeID, ActorID: actorID,
		Action: "vehicle.created", Entity: "vehicle", EntityID: v.ID,
		Detail: v.Title, At: e.now(),
	})
	return v, nil
}

// Reconcile clears an expired reservation for the vehicle and, if the
// vehicle is still RESERVED, reverts it to AVAILABLE with a history row. It
// is idempotent: a vehicle without an expired reservation is a no-op. It
// runs at the head of every reservation-touching operation, so a stale
// expired hold never blocks a new reservation or lingers on reads.
func (e *Engine) Reconcile(ctx context.Context, storeID, vehicleID, actorID string) (bool, error) {
	var cleaned bool
	err := e.store.InTx(ctx, func(tx Store) error {
		var err error
		cleaned, err = e.reconcileTx(ctx, tx, storeID, vehicleID, actorID)
		return err
	})
	if err != nil {
		return false, err
	}
	if cleaned {
		e.sink.Enqueue(audit.Event{
			StoreID: storeID, ActorID: actorID,
			Action: "reservation.reconciled", Entity: "vehicle", EntityID: vehicleID,
			At: e.now(),
		})
	}
	return cleaned, nil
}

// reconcileTx is the transactional body of Reconcile, shared with the
// operations that embed the reconcile step in their own transaction.
func (e *Engine) reconcileTx(ctx context.Context, tx Store, storeID, vehicleID, actorID string) (bool, error) {
	res, err := tx.GetReservation(ctx, storeID, vehicleID)
	if err != nil {
		return false, err
	}
	if res == nil || !res.Expired(e.now()) {
		return false, nil
	}

	if err := tx.DeleteReservation(ctx, storeID, res.ID); err != nil {
		return false, err
	}

	// The vehicle may already have moved to SOLD by a concurrent operation;
	// only a still-RESERVED vehicle is reverted.
	v, err := tx.GetVehicle(ctx, storeID, vehicleID)
	if err != nil {
		return false, err
	}
	if v != nil && v.Status == model.VehicleReserved {
		if err := e.transition(ctx, tx, v, model.VehicleAvailable, actorID); err != nil {
			return false, err
		}
	}

	e.metrics.ObserveReconciled()
	e.log.Info("expired reservation reconciled",
		zap.String("store_id", storeID),
		zap.String("vehicle_id", vehicleID),
		zap.String("reservation_id", res.ID))
	return true, nil
}

// Reserve places a hold on an AVAILABLE vehicle. The reconcile step runs
// before the uniqueness check, so a reservation whose only blocker is a
// stale expired hold succeeds instead of failing with a conflict. The
// no-active-reservation check is re-run inside the transaction; the unique
// index on vehicle_id backs it at the storage level.
func (e *Engine) Reserve(ctx context.Context, storeID, actorID, vehicleID string, in ReserveInput) (*model.VehicleReservation, error) {
	var out *model.VehicleReservation
	err := e.store.InTx(ctx, func(tx Store) error {
		v, err := e.vehicleInStore(ctx, tx, storeID, vehicleID)
		if err != nil {
			return err
		}
		if v.Status == model.VehicleSold {
			return ErrAlreadySold
		}
		if v.Status == model.VehicleArchived {
			return ErrVehicleArchived
		}

		if err := e.checkLinks(ctx, tx, storeID, in.CustomerID, in.LeadID); err != nil {
			return err
		}

		if _, err := e.reconcileTx(ctx, tx, storeID, vehicleID, actorID); err != nil {
			return err
		}

		existing, err := tx.GetReservation(ctx, storeID, vehicleID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyReserved
		}

		res := &model.VehicleReservation{
			StoreID:      storeID,
			VehicleID:    vehicleID,
			ReservedByID: actorID,
			CustomerID:   in.CustomerID,
			LeadID:       in.LeadID,
			ExpiresAt:    in.ExpiresAt,
			Notes:        in.Notes,
		}
		if err := tx.CreateReservation(ctx, res); err != nil {
			return err
		}

		// Reconcile may have reverted the status; re-read before
		// transitioning.
		v, err = e.vehicleInStore(ctx, tx, storeID, vehicleID)
		if err != nil {
			return err
		}
		if v.Status != model.VehicleReserved {
			if err := e.transition(ctx, tx, v, model.VehicleReserved, actorID); err != nil {
				return err
			}
		}

		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.sink.Enqueue(audit.Event{
		StoreID: storeID, ActorID: actorID,
		Action: "vehicle.reserved", Entity: "vehicle", EntityID: vehicleID,
		At: e.now(),
	})
	return out, nil
}

// GetReservation returns the vehicle's reservation after reconciling an
// expired one. A reconciled or absent reservation yields (nil, nil).
func (e *Engine) GetReservation(ctx context.Context, storeID, actorID, vehicleID string) (*model.VehicleReservation, error) {
	var out *model.VehicleReservation
	err := e.store.InTx(ctx, func(tx Store) error {
		if _, err := e.vehicleInStore(ctx, tx, storeID, vehicleID); err != nil {
			return err
		}
		if _, err := e.reconcileTx(ctx, tx, storeID, vehicleID, actorID); err != nil {
			return err
		}
		var err error
		out, err = tx.GetReservation(ctx, storeID, vehicleID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Release removes the vehicle's reservation explicitly. An expired
// reservation routes through the reconcile path. A SOLD vehicle keeps its
// status; only a RESERVED vehicle reverts to AVAILABLE.
func (e *Engine) Release(ctx context.Context, storeID, actorID, vehicleID string) error {
	err := e.store.InTx(ctx, func(tx Store) error {
		v, err := e.vehicleInStore(ctx, tx, storeID, vehicleID)
		if err != nil {
			return err
		}

		res, err := tx.GetReservation(ctx, storeID, vehicleID)
		if err != nil {
			return err
		}
		if res == nil {
			return ErrReservationNotFound
		}

		if res.Expired(e.now()) {
			_, err := e.reconcileTx(ctx, tx, storeID, vehicleID, actorID)
			return err
		}

		if err := tx.DeleteReservation(ctx, storeID, res.ID); err != nil {
			return err
		}
		if v.Status == model.VehicleReserved {
			return e.transition(ctx, tx, v, model.VehicleAvailable, actorID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.sink.Enqueue(audit.Event{
		StoreID: storeID, ActorID: actorID,
		Action: "vehicle.released", Entity: "vehicle", EntityID: vehicleID,
		At: e.now(),
	})
	return nil
}

// Sell moves a vehicle to SOLD from AVAILABLE or RESERVED, creating its sale
// record, removing any reservation, unpublishing the listing and marking a
// linked customer as purchased. The whole mutation is one transaction. The
// status guard is authoritative against a concurrent expiry or sale:
// whichever transaction commits first wins and the loser fails cleanly.
func (e *Engine) Sell(ctx context.Context, storeID, actorID string, in SellInput) (*model.VehicleSale, error) {
	var out *model.VehicleSale
	err := e.store.InTx(ctx, func(tx Store) error {
		v, err := e.vehicleInStore(ctx, tx, storeID, in.VehicleID)
		if err != nil {
			return err
		}
		if v.Status == model.VehicleSold {
			return ErrAlreadySold
		}
		if v.Status == model.VehicleArchived {
			return ErrVehicleArchived
		}

		if err := e.checkLinks(ctx, tx, storeID, in.CustomerID, in.LeadID); err != nil {
			return err
		}

		existing, err := tx.GetSaleByVehicle(ctx, storeID, in.VehicleID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadySold
		}

		now := e.now()
		sale := &model.VehicleSale{
			StoreID:    storeID,
			VehicleID:  in.VehicleID,
			SoldByID:   actorID,
			CustomerID: in.CustomerID,
			LeadID:     in.LeadID,
			SoldPrice:  in.SoldPrice,
			SoldAt:     now,
			Status:     model.SaleCompleted,
			Notes:      in.Notes,
		}
		if err := tx.CreateSale(ctx, sale); err != nil {
			return err
		}

		res, err := tx.GetReservation(ctx, storeID, in.VehicleID)
		if err != nil {
			return err
		}
		if res != nil {
			if err := tx.DeleteReservation(ctx, storeID, res.ID); err != nil {
				return err
			}
		}

		v.IsPublished = false
		v.SoldAt = &now
		v.SoldPrice = in.SoldPrice
		if err := e.transition(ctx, tx, v, model.VehicleSold, actorID); err != nil {
			return err
		}

		if in.CustomerID != nil {
			note := fmt.Sprintf("Vehicle purchased: %s", vehicleLabel(v))
			if err := tx.MarkCustomerPurchased(ctx, storeID, *in.CustomerID, note); err != nil {
				return err
			}
		}

		out = sale
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.sink.Enqueue(audit.Event{
		StoreID: storeID, ActorID: actorID,
		Action: "vehicle.sold", Entity: "vehicle", EntityID: in.VehicleID,
		At: e.now(),
	})
	return out, nil
}

// Archive moves a vehicle to the terminal ARCHIVED status, clearing the
// published flag and removing any reservation. It is never reached
// automatically.
func (e *Engine) Archive(ctx context.Context, storeID, actorID, vehicleID string) error {
	err := e.store.InTx(ctx, func(tx Store) error {
		v, err := e.vehicleInStore(ctx, tx, storeID, vehicleID)
		if err != nil {
			return err
		}
		if v.Status == model.VehicleArchived {
			return ErrVehicleArchived
		}

		res, err := tx.GetReservation(ctx, storeID, vehicleID)
		if err != nil {
			return err
		}
		if res != nil {
			if err := tx.DeleteReservation(ctx, storeID, res.ID); err != nil {
				return err
			}
		}

		v.IsPublished = false
		return e.transition(ctx, tx, v, model.VehicleArchived, actorID)
	})
	if err != nil {
		return err
	}

	e.sink.Enqueue(audit.Event{
		StoreID: storeID, ActorID: actorID,
		Action: "vehicle.archived", Entity: "vehicle", EntityID: vehicleID,
		At: e.now(),
	})
	return nil
}

// SetPublished toggles the public listing flag. Archived and sold vehicles
// cannot be re-published.
func (e *Engine) SetPublished(ctx context.Context, storeID, actorID, vehicleID string, published bool) error {
	return e.store.InTx(ctx, func(tx Store) error {
		v, err := e.vehicleInStore(ctx, tx, storeID, vehicleID)
		if err != nil {
			return err
		}
		if published && (v.Status == model.VehicleArchived || v.Status == model.VehicleSold) {
			return apperr.Conflict("VEHICLE_NOT_LISTABLE", "sold or archived vehicles cannot be published")
		}
		v.IsPublished = published
		return tx.UpdateVehicle(ctx, v)
	})
}

// UpdateSale mutates a sale record. A COMPLETED sale is write-protected:
// the caller needs sales:override_closed or super-admin, otherwise the
// update fails with SALE_LOCKED.
func (e *Engine) UpdateSale(ctx context.Context, storeID string, actor Actor, saleID string, in SaleUpdate) (*model.VehicleSale, error) {
	var out *model.VehicleSale
	err := e.store.InTx(ctx, func(tx Store) error {
		s, err := tx.GetSale(ctx, storeID, saleID)
		if err != nil {
			return err
		}
		if s == nil {
			return ErrSaleNotFound
		}

		if s.Status == model.SaleCompleted && !actor.can(permission.SalesOverrideClosed) {
			return ErrSaleLocked
		}

		if err := e.checkLinks(ctx, tx, storeID, in.CustomerID, in.LeadID); err != nil {
			return err
		}

		if in.CustomerID != nil {
			s.CustomerID = in.CustomerID
		}
		if in.LeadID != nil {
			s.LeadID = in.LeadID
		}
		if in.SoldPrice != nil {
			s.SoldPrice = in.SoldPrice
		}
		if in.Notes != nil {
			s.Notes = *in.Notes
		}
		if err := tx.UpdateSale(ctx, s); err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.sink.Enqueue(audit.Event{
		StoreID: storeID, ActorID: actor.ID,
		Action: "sale.updated", Entity: "sale", EntityID: saleID,
		At: e.now(),
	})
	return out, nil
}

// History returns the append-only status ledger for a vehicle.
func (e *Engine) History(ctx context.Context, storeID, vehicleID string) ([]model.VehicleStatusHistory, error) {
	if _, err := e.vehicleInStore(ctx, e.store, storeID, vehicleID); err != nil {
		return nil, err
	}
	return e.store.ListStatusHistory(ctx, vehicleID)
}

// transition writes the new status and appends the history row.
func (e *Engine) transition(ctx context.Context, tx Store, v *model.Vehicle, to model.VehicleStatus, actorID string) error {
	from := v.Status
	v.Status = to
	if err := tx.UpdateVehicle(ctx, v); err != nil {
		return err
	}
	if err := tx.AppendStatusHistory(ctx, &model.VehicleStatusHistory{
		VehicleID:   v.ID,
		FromStatus:  from,
		ToStatus:    to,
		ChangedByID: actorID,
		ChangedAt:   e.now(),
	}); err != nil {
		return err
	}
	e.metrics.ObserveTransition(string(from), string(to))
	return nil
}

func (e *Engine) vehicleInStore(ctx context.Context, tx Store, storeID, vehicleID string) (*model.Vehicle, error) {
	v, err := tx.GetVehicle(ctx, storeID, vehicleID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrVehicleNotFound
	}
	return v, nil
}

// checkLinks re-validates that linked customer/lead rows belong to the same
// store. Cross-entity scope is never trusted from caller input.
func (e *Engine) checkLinks(ctx context.Context, tx Store, storeID string, customerID, leadID *string) error {
	if customerID != nil {
		ok, err := tx.CustomerExists(ctx, storeID, *customerID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCustomerNotInStore
		}
	}
	if leadID != nil {
		ok, err := tx.LeadExists(ctx, storeID, *leadID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrLeadNotInStore
		}
	}
	return nil
}

func vehicleLabel(v *model.Vehicle) string {
	if v.Title != "" {
		return v.Title
	}
	return v.PublicID
}
