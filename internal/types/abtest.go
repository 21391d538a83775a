package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ABTestStatus string

const (
	ABTestStatusRunning        ABTestStatus = "running"
	ABTestStatusWinnerOriginal ABTestStatus = "winner_original"
	ABTestStatusWinnerVariant  ABTestStatus = "winner_variant"
	ABTestStatusError          ABTestStatus = "error"
)

// ABTestSyncStatus tracks how far a completed test's decision propagated to
// the ad platform, independently of the decision itself.
type ABTestSyncStatus string

const (
	ABTestSyncPending ABTestSyncStatus = "pending"
	ABTestSyncSynced  ABTestSyncStatus = "synced"
	ABTestSyncPartial ABTestSyncStatus = "partial"
	ABTestSyncFailed  ABTestSyncStatus = "failed"
)

type VariantType string

const (
	VariantTypeHeadline VariantType = "headline"
	VariantTypeImage    VariantType = "image"
	VariantTypeCTA      VariantType = "cta"
)

func ParseVariantType(raw string) (VariantType, bool) {
	switch VariantType(strings.ToLower(strings.TrimSpace(raw))) {
	case VariantTypeHeadline:
		return VariantTypeHeadline, true
	case VariantTypeImage:
		return VariantTypeImage, true
	case VariantTypeCTA:
		return VariantTypeCTA, true
	}
	return "", false
}

const (
	WinnerOriginal     = "original"
	WinnerVariant      = "variant"
	WinnerInconclusive = "inconclusive"
)

type ABTest struct {
	ID                  uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	Name                string           `gorm:"column:name;not null" json:"name"`
	CampaignID          *uuid.UUID       `gorm:"type:uuid;index" json:"campaign_id,omitempty"`
	Campaign            *Campaign        `gorm:"foreignKey:CampaignID;references:ID" json:"campaign,omitempty"`
	Platform            Platform         `gorm:"column:platform;not null;default:meta" json:"platform"`
	OriginalAdID        string           `gorm:"column:original_ad_id;not null" json:"original_ad_id"`
	OriginalAdSetID     string           `gorm:"column:original_ad_set_id;not null" json:"original_ad_set_id"`
	VariantAdID         string           `gorm:"column:variant_ad_id" json:"variant_ad_id"`
	VariantAdSetID      string           `gorm:"column:variant_ad_set_id" json:"variant_ad_set_id"`
	VariantType         VariantType      `gorm:"column:variant_type;not null" json:"variant_type"`
	VariantValue        string           `gorm:"column:variant_value" json:"variant_value"`
	Status              ABTestStatus     `gorm:"column:status;not null;default:running;index" json:"status"`
	SyncStatus          ABTestSyncStatus `gorm:"column:sync_status;not null;default:pending" json:"sync_status"`
	ConfidenceLevel     float64          `gorm:"column:confidence_level;not null;default:0" json:"confidence_level"`
	Winner              *string          `gorm:"column:winner" json:"winner,omitempty"`
	OriginalBudgetCents int64            `gorm:"column:original_budget_cents;not null;default:0" json:"original_budget_cents"`
	Metadata            datatypes.JSON   `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt           time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time        `gorm:"not null" json:"updated_at"`
	CompletedAt         *time.Time       `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (ABTest) TableName() string { return "ab_test" }

func (t *ABTest) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
