package models

import (
	"gorm.io/gorm"
)

// TrackingEvent records one open or click occurrence. Events are never
// deduplicated at write time; unique counts are computed at query time.
type TrackingEvent struct {
	gorm.Model
	CampaignID uint  `gorm:"not null;index" json:"campaign_id"`
	ContactID  *uint `gorm:"index" json:"contact_id"`

	EventType string `gorm:"not null;index" json:"event_type"` // open, click
	LinkURL   string `gorm:"type:text" json:"link_url,omitempty"`
	UserAgent string `json:"user_agent"`
	IPAddress string `json:"ip_address"`
}

// Tracking event types
const (
	EventTypeOpen  = "open"
	EventTypeClick = "click"
)
