package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CampaignStatus string

const (
	CampaignStatusDraft   CampaignStatus = "draft"
	CampaignStatusActive  CampaignStatus = "active"
	CampaignStatusPaused  CampaignStatus = "paused"
	CampaignStatusRemoved CampaignStatus = "removed"
)

func ParseCampaignStatus(raw string) (CampaignStatus, bool) {
	switch CampaignStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case CampaignStatusDraft:
		return CampaignStatusDraft, true
	case CampaignStatusActive:
		return CampaignStatusActive, true
	case CampaignStatusPaused:
		return CampaignStatusPaused, true
	case CampaignStatusRemoved:
		return CampaignStatusRemoved, true
	}
	return "", false
}

type Campaign struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Platform     Platform       `gorm:"column:platform;not null;index" json:"platform"`
	ExternalID   *string        `gorm:"column:external_id;index" json:"external_id,omitempty"`
	Name         string         `gorm:"column:name;not null" json:"name"`
	Status       CampaignStatus `gorm:"column:status;not null;default:draft;index" json:"status"`
	CampaignType string         `gorm:"column:campaign_type" json:"campaign_type"`
	DailyBudget  float64        `gorm:"column:daily_budget;not null;default:0" json:"daily_budget"`
	TargetCPA    *float64       `gorm:"column:target_cpa" json:"target_cpa,omitempty"`
	TargetROAS   *float64       `gorm:"column:target_roas" json:"target_roas,omitempty"`
	Impressions  int64          `gorm:"column:impressions;not null;default:0" json:"impressions"`
	Clicks       int64          `gorm:"column:clicks;not null;default:0" json:"clicks"`
	Conversions  int64          `gorm:"column:conversions;not null;default:0" json:"conversions"`
	Spend        float64        `gorm:"column:spend;not null;default:0" json:"spend"`
	Revenue      float64        `gorm:"column:revenue;not null;default:0" json:"revenue"`
	ROAS         float64        `gorm:"column:roas;not null;default:0" json:"roas"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Campaign) TableName() string { return "campaign" }

func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// CTR is clicks over impressions. Zero impressions yields 0.
func (c *Campaign) CTR() float64 {
	if c.Impressions <= 0 {
		return 0
	}
	return float64(c.Clicks) / float64(c.Impressions)
}

// ConversionRate is conversions over clicks. Zero clicks yields 0.
func (c *Campaign) ConversionRate() float64 {
	if c.Clicks <= 0 {
		return 0
	}
	return float64(c.Conversions) / float64(c.Clicks)
}

// CPC is spend over clicks. Zero clicks yields 0.
func (c *Campaign) CPC() float64 {
	if c.Clicks <= 0 {
		return 0
	}
	return c.Spend / float64(c.Clicks)
}

// CurrentROAS is revenue over spend computed from the live counters,
// as opposed to the stored ROAS column refreshed at sync time.
// Zero spend yields 0.
func (c *Campaign) CurrentROAS() float64 {
	if c.Spend <= 0 {
		return 0
	}
	return c.Revenue / c.Spend
}
