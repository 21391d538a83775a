package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Setting struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Key       string    `gorm:"column:key;not null;uniqueIndex" json:"key"`
	Value     string    `gorm:"column:value" json:"value"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Setting) TableName() string { return "setting" }

func (s *Setting) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Setting keys read by the optimization engine.
const (
	SettingDailySpendLimit    = "daily_spend_limit"
	SettingMonthlySpendLimit  = "monthly_spend_limit"
	SettingMinROASThreshold   = "min_roas_threshold"
	SettingEmergencyPauseLoss = "emergency_pause_loss"
)

// OptimizerSettings is the per-pass snapshot of the operator-tunable limits.
type OptimizerSettings struct {
	DailySpendLimit    float64 `json:"daily_spend_limit"`
	MonthlySpendLimit  float64 `json:"monthly_spend_limit"`
	MinROASThreshold   float64 `json:"min_roas_threshold"`
	EmergencyPauseLoss float64 `json:"emergency_pause_loss"`
}

func DefaultOptimizerSettings() OptimizerSettings {
	return OptimizerSettings{
		DailySpendLimit:    200.0,
		MonthlySpendLimit:  5000.0,
		MinROASThreshold:   1.5,
		EmergencyPauseLoss: 500.0,
	}
}

// AwarenessMode reports whether ROAS-based pausing is disabled. Spend-heavy
// awareness campaigns set min_roas_threshold to zero so the engine never
// pauses on return alone.
func (s OptimizerSettings) AwarenessMode() bool {
	return s.MinROASThreshold <= 0
}
