package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// VehicleStatus is the commercial status of a vehicle. Transitions are owned
// by the lifecycle engine; rows are never written to a status outside it.
type VehicleStatus string

const (
	VehicleAvailable VehicleStatus = "AVAILABLE"
	VehicleReserved  VehicleStatus = "RESERVED"
	VehicleSold      VehicleStatus = "SOLD"
	VehicleArchived  VehicleStatus = "ARCHIVED"
)

// SaleStatus is the lock status of a sale record. COMPLETED sales are
// write-protected: mutating them requires the sales:override_closed
// capability or a super-admin.
type SaleStatus string

const (
	SaleOpen      SaleStatus = "OPEN"
	SaleCompleted SaleStatus = "COMPLETED"
)

// Vehicle is the sellable unit. Vehicles are never hard-deleted; end of life
// is the ARCHIVED status.
type Vehicle struct {
	ID          string           `json:"id" gorm:"type:uuid;primaryKey"`
	StoreID     string           `json:"store_id" gorm:"type:uuid;index;not null"`
	PublicID    string           `json:"public_id" gorm:"type:varchar(36);uniqueIndex;not null"`
	Title       string           `json:"title" gorm:"type:varchar(200)"`
	Status      VehicleStatus    `json:"status" gorm:"type:varchar(20);not null;default:'AVAILABLE';index"`
	IsPublished bool             `json:"is_published" gorm:"default:false"`
	Price       *decimal.Decimal `json:"price,omitempty" gorm:"type:numeric(12,2)"`
	SoldPrice   *decimal.Decimal `json:"sold_price,omitempty" gorm:"type:numeric(12,2)"`
	SoldAt      *time.Time       `json:"sold_at,omitempty"`
	CreatedByID string           `json:"created_by_id" gorm:"type:uuid"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func (v *Vehicle) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.PublicID == "" {
		v.PublicID = uuid.NewString()
	}
	return nil
}

// VehicleReservation is a time-boxed hold on a vehicle. The unique index on
// VehicleID is the storage-level backstop for the single-active-reservation
// invariant; the engine re-checks it inside the transaction as well.
type VehicleReservation struct {
	ID           string     `json:"id" gorm:"type:uuid;primaryKey"`
	StoreID      string     `json:"store_id" gorm:"type:uuid;index;not null"`
	VehicleID    string     `json:"vehicle_id" gorm:"type:uuid;uniqueIndex;not null"`
	ReservedByID string     `json:"reserved_by_id" gorm:"type:uuid;not null"`
	CustomerID   *string    `json:"customer_id,omitempty" gorm:"type:uuid"`
	LeadID       *string    `json:"lead_id,omitempty" gorm:"type:uuid"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Notes        string     `json:"notes" gorm:"type:text"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (r *VehicleReservation) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Expired reports whether the reservation's expiry, if set, is at or before
// the given time. A nil expiry never expires.
func (r *VehicleReservation) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// VehicleSale is the terminal record for a vehicle; at most one per vehicle.
type VehicleSale struct {
	ID         string           `json:"id" gorm:"type:uuid;primaryKey"`
	StoreID    string           `json:"store_id" gorm:"type:uuid;index;not null"`
	VehicleID  string           `json:"vehicle_id" gorm:"type:uuid;uniqueIndex;not null"`
	SoldByID   string           `json:"sold_by_id" gorm:"type:uuid;not null"`
	CustomerID *string          `json:"customer_id,omitempty" gorm:"type:uuid"`
	LeadID     *string          `json:"lead_id,omitempty" gorm:"type:uuid"`
	SoldPrice  *decimal.Decimal `json:"sold_price,omitempty" gorm:"type:numeric(12,2)"`
	SoldAt     time.Time        `json:"sold_at"`
	Status     SaleStatus       `json:"status" gorm:"type:varchar(20);not null;default:'COMPLETED'"`
	Notes      string           `json:"notes" gorm:"type:text"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

func (s *VehicleSale) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// VehicleStatusHistory is the append-only ledger of status transitions. Rows
// are never mutated or deleted.
type VehicleStatusHistory struct {
	ID          string        `json:"id" gorm:"type:uuid;primaryKey"`
	VehicleID   string        `json:"vehicle_id" gorm:"type:uuid;index;not null"`
	FromStatus  VehicleStatus `json:"from_status" gorm:"type:varchar(20);not null"`
	ToStatus    VehicleStatus `json:"to_status" gorm:"type:varchar(20);not null"`
	ChangedByID string        `json:"changed_by_id" gorm:"type:uuid;not null"`
	ChangedAt   time.Time     `json:"changed_at"`
}

func (h *VehicleStatusHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	return nil
}
