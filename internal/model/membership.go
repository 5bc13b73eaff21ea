package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PermissionSet is a store-scoped, named permission template. Permissions is
// a JSON object mapping resource module to a list of actions, e.g.
// {"inventory": ["read", "update"]}.
type PermissionSet struct {
	ID          string    `json:"id" gorm:"type:uuid;primaryKey"`
	StoreID     string    `json:"store_id" gorm:"type:uuid;index;not null"`
	Name        string    `json:"name" gorm:"type:varchar(100);not null"`
	Permissions string    `json:"permissions" gorm:"type:jsonb"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (p *PermissionSet) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Membership binds a user to a store with an effective capability set: the
// union of the referenced permission set (if any) and the direct per-user
// overrides. A user holds at most one membership per store; assignment
// replaces the prior row.
type Membership struct {
	ID              string    `json:"id" gorm:"type:uuid;primaryKey"`
	UserID          string    `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_membership_user_store"`
	StoreID         string    `json:"store_id" gorm:"type:uuid;not null;uniqueIndex:idx_membership_user_store"`
	PermissionSetID *string   `json:"permission_set_id,omitempty" gorm:"type:uuid;index"`
	Permissions     string    `json:"permissions" gorm:"type:jsonb"` // direct overrides, additive only
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	User          User           `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Store         Store          `json:"store,omitempty" gorm:"foreignKey:StoreID"`
	PermissionSet *PermissionSet `json:"permission_set,omitempty" gorm:"foreignKey:PermissionSetID"`
}

func (m *Membership) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
