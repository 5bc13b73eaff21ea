package lifecycle

import (
	"context"

	"github.com/cenamoradol/crm-autolote-backend/internal/model"
)

// Store is the persistence port for the lifecycle engine. Lookups are always
// store-scoped: a row outside the given store is reported as absent, never
// as a distinguishable "exists elsewhere".
//
// Get methods return (nil, nil) when the row is absent.
type Store interface {
	// InTx runs fn against a transactional view of the store. A non-nil
	// error from fn rolls back every write made inside it.
	InTx(ctx context.Context, fn func(tx Store) error) error

	CreateVehicle(ctx context.Context, v *model.Vehicle) error
	GetVehicle(ctx context.Context, storeID, vehicleID string) (*model.Vehicle, error)
	UpdateVehicle(ctx context.Context, v *model.Vehicle) error

	GetReservation(ctx context.Context, storeID, vehicleID string) (*model.VehicleReservation, error)
	CreateReservation(ctx context.Context, r *model.VehicleReservation) error
	DeleteReservation(ctx context.Context, storeID, reservationID string) error

	GetSale(ctx context.Context, storeID, saleID string) (*model.VehicleSale, error)
	GetSaleByVehicle(ctx context.Context, storeID, vehicleID string) (*model.VehicleSale, error)
	CreateSale(ctx context.Context, s *model.VehicleSale) error
	UpdateSale(ctx context.Context, s *model.VehicleSale) error

	AppendStatusHistory(ctx context.Context, h *model.VehicleStatusHistory) error
	ListStatusHistory(ctx context.Context, vehicleID string) ([]model.VehicleStatusHistory, error)

	CustomerExists(ctx context.Context, storeID, customerID string) (bool, error)
	LeadExists(ctx context.Context, storeID, leadID string) (bool, error)
	MarkCustomerPurchased(ctx context.Context, storeID, customerID, note string) error
}
