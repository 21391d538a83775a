package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PlatformToken holds stored API credentials per ad platform. AccountID is the
// platform's account handle: the ad account id on Meta, the customer id on
// Google, the advertiser id on TikTok.
type PlatformToken struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Platform    Platform   `gorm:"column:platform;not null;uniqueIndex" json:"platform"`
	AccessToken string     `gorm:"column:access_token;type:text" json:"-"`
	TokenType   string     `gorm:"column:token_type;default:long_lived" json:"token_type"`
	AccountID   string     `gorm:"column:account_id" json:"account_id"`
	ExpiresAt   *time.Time `gorm:"column:expires_at" json:"expires_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

func (PlatformToken) TableName() string { return "platform_token" }

func (t *PlatformToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
