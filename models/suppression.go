package models

import (
	"gorm.io/gorm"
)

// BlacklistEntry suppresses an address from all future sends
type BlacklistEntry struct {
	gorm.Model

	Email  string `gorm:"not null;uniqueIndex" json:"email"`
	Source string `gorm:"default:'manual'" json:"source"` // manual, auto
	Reason string `json:"reason"`
}

// Unsubscribe records an opt-out, optionally tied to the campaign that
// triggered it
type Unsubscribe struct {
	gorm.Model

	Email      string `gorm:"not null;uniqueIndex" json:"email"`
	CampaignID *uint  `gorm:"index" json:"campaign_id"`
	Reason     string `json:"reason"`
}

// Blacklist sources
const (
	BlacklistSourceManual = "manual"
	BlacklistSourceAuto   = "auto"
)
