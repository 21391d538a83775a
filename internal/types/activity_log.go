package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ActivityLog is the append-only audit trail of everything the engine does.
type ActivityLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Action     string         `gorm:"column:action;not null;index" json:"action"`
	EntityType string         `gorm:"column:entity_type" json:"entity_type"`
	EntityID   string         `gorm:"column:entity_id;index" json:"entity_id"`
	Details    string         `gorm:"column:details;type:text" json:"details"`
	Severity   Severity       `gorm:"column:severity;not null;default:info" json:"severity"`
	Meta       datatypes.JSON `gorm:"column:meta" json:"meta,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;index" json:"created_at"`
}

func (ActivityLog) TableName() string { return "activity_log" }

func (a *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
