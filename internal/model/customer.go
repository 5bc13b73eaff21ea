package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CustomerStatus tracks the commercial relationship with a customer.
type CustomerStatus string

const (
	CustomerStatusProspect  CustomerStatus = "PROSPECT"
	CustomerStatusPurchased CustomerStatus = "PURCHASED"
	CustomerStatusInactive  CustomerStatus = "INACTIVE"
)

// Customer is a store-scoped customer record.
type Customer struct {
	ID        string         `json:"id" gorm:"type:uuid;primaryKey"`
	StoreID   string         `json:"store_id" gorm:"type:uuid;index;not null"`
	FullName  string         `json:"full_name" gorm:"type:varchar(150);not null"`
	Email     *string        `json:"email,omitempty" gorm:"type:varchar(100)"`
	Phone     *string        `json:"phone,omitempty" gorm:"type:varchar(30)"`
	Status    CustomerStatus `json:"status" gorm:"type:varchar(20);not null;default:'PROSPECT'"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// CustomerNote is a note attached to a customer. System notes are appended
// by lifecycle transitions, e.g. when a linked sale completes.
type CustomerNote struct {
	ID         string    `json:"id" gorm:"type:uuid;primaryKey"`
	StoreID    string    `json:"store_id" gorm:"type:uuid;index;not null"`
	CustomerID string    `json:"customer_id" gorm:"type:uuid;index;not null"`
	Body       string    `json:"body" gorm:"type:text;not null"`
	System     bool      `json:"system" gorm:"default:false"`
	CreatedAt  time.Time `json:"created_at"`
}

func (n *CustomerNote) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}

// Lead is a store-scoped sales lead.
type Lead struct {
	ID        string         `json:"id" gorm:"type:uuid;primaryKey"`
	StoreID   string         `json:"store_id" gorm:"type:uuid;index;not null"`
	FullName  string         `json:"full_name" gorm:"type:varchar(150);not null"`
	Email     *string        `json:"email,omitempty" gorm:"type:varchar(100)"`
	Phone     *string        `json:"phone,omitempty" gorm:"type:varchar(30)"`
	Source    string         `json:"source" gorm:"type:varchar(50)"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (l *Lead) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
