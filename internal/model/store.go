package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubscriptionStatus is the billing state of a store license window.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "ACTIVE"
	SubscriptionExpired  SubscriptionStatus = "EXPIRED"
	SubscriptionCanceled SubscriptionStatus = "CANCELED"
)

// Store represents a dealership tenant. Every business entity is scoped by a
// store id; it is the isolation boundary of the system.
type Store struct {
	ID        string         `json:"id" gorm:"type:uuid;primaryKey"`
	Name      string         `json:"name" gorm:"type:varchar(100);not null"`
	Slug      string         `json:"slug" gorm:"type:varchar(100);uniqueIndex"`
	LogoURL   *string        `json:"logo_url,omitempty" gorm:"type:text"`
	Active    bool           `json:"active" gorm:"default:true"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (s *Store) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// StoreDomain maps a normalized host name 1:1 to a store. A host maps to at
// most one binding.
type StoreDomain struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey"`
	Domain    string    `json:"domain" gorm:"type:varchar(255);uniqueIndex;not null"`
	StoreID   string    `json:"store_id" gorm:"type:uuid;index;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Store Store `json:"store,omitempty" gorm:"foreignKey:StoreID"`
}

func (d *StoreDomain) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// StoreSubscription is a licensing window for a store. A store is licensed
// while it holds an ACTIVE subscription whose EndsAt is null or in the
// future. Lapsed ACTIVE rows are flipped to EXPIRED lazily by the access
// gate, not by a background job.
type StoreSubscription struct {
	ID        string             `json:"id" gorm:"type:uuid;primaryKey"`
	StoreID   string             `json:"store_id" gorm:"type:uuid;index;not null"`
	Status    SubscriptionStatus `json:"status" gorm:"type:varchar(20);not null;default:'ACTIVE'"`
	StartsAt  time.Time          `json:"starts_at"`
	EndsAt    *time.Time         `json:"ends_at,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`

	Store Store `json:"store,omitempty" gorm:"foreignKey:StoreID"`
}

func (s *StoreSubscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Lapsed reports whether an ACTIVE subscription's window ended at or before
// the given time. Only ACTIVE rows lapse; EXPIRED and CANCELED are terminal.
func (s *StoreSubscription) Lapsed(now time.Time) bool {
	return s.Status == SubscriptionActive && s.EndsAt != nil && !s.EndsAt.After(now)
}

// Live reports whether the subscription licenses the store at the given
// time: ACTIVE with a nil or future EndsAt.
func (s *StoreSubscription) Live(now time.Time) bool {
	return s.Status == SubscriptionActive && (s.EndsAt == nil || s.EndsAt.After(now))
}
