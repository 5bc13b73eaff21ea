package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditEvent is a generic append-only audit record. Writes are best-effort
// and asynchronous; failures never affect the originating request.
type AuditEvent struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey"`
	StoreID   string    `json:"store_id" gorm:"type:uuid;index"`
	ActorID   string    `json:"actor_id" gorm:"type:uuid"`
	Action    string    `json:"action" gorm:"type:varchar(50);not null"`
	Entity    string    `json:"entity" gorm:"type:varchar(50)"`
	EntityID  string    `json:"entity_id" gorm:"type:uuid"`
	Detail    string    `json:"detail" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
}

func (a *AuditEvent) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
