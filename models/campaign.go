package models

import (
	"time"

	"gorm.io/gorm"
)

// Campaign represents an email campaign
type Campaign struct {
	gorm.Model

	// Campaign details
	Name    string `gorm:"not null" json:"name"`
	Subject string `gorm:"not null" json:"subject"`
	Body    string `gorm:"type:text" json:"body"`

	// A/B variant content; used when ABTestEnabled is true
	ABTestEnabled  bool   `gorm:"default:false" json:"ab_test_enabled"`
	SubjectB       string `json:"subject_b"`
	BodyB          string `gorm:"type:text" json:"body_b"`
	ABSplitPercent int    `gorm:"default:50" json:"ab_split_percent"`

	// Target selection
	ContactListID *uint  `gorm:"index" json:"contact_list_id"`
	TagFilter     string `json:"tag_filter"`

	// Throttle parameters
	BatchSize       int `gorm:"default:50" json:"batch_size"`
	BatchDelaySecs  int `gorm:"default:60" json:"batch_delay_secs"`
	SendDelayMillis int `gorm:"default:2000" json:"send_delay_millis"`

	// Scheduling
	Status      string     `gorm:"default:'draft';index" json:"status"` // draft, scheduled, running, paused, stopped, completed
	ScheduledAt *time.Time `json:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`

	// Tracking settings
	TrackOpens  bool `gorm:"default:true" json:"track_opens"`
	TrackClicks bool `gorm:"default:true" json:"track_clicks"`

	// Statistics (denormalized for performance)
	TotalEmails   int `gorm:"default:0" json:"total_emails"`
	SentEmails    int `gorm:"default:0" json:"sent_emails"`
	FailedEmails  int `gorm:"default:0" json:"failed_emails"`
	SkippedEmails int `gorm:"default:0" json:"skipped_emails"`
	OpenCount     int `gorm:"default:0" json:"open_count"`
	ClickCount    int `gorm:"default:0" json:"click_count"`
	BounceCount   int `gorm:"default:0" json:"bounce_count"`

	// Relations
	Logs []CampaignLog `gorm:"foreignKey:CampaignID" json:"logs,omitempty"`
}

// CampaignLog records one send attempt. Rows are append-only; only the
// tracking enrichment columns (opened/clicked timestamps) are ever updated.
type CampaignLog struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`
	ContactID  uint `gorm:"not null;index" json:"contact_id"`

	Email      string `gorm:"not null" json:"email"`
	TrackingID string `gorm:"not null;uniqueIndex" json:"tracking_id"`
	Variant    string `gorm:"default:'A'" json:"variant"` // A or B
	Status     string `gorm:"not null" json:"status"`     // sent, failed
	Error      string `gorm:"type:text" json:"error,omitempty"`
	AccountID  *uint  `json:"account_id,omitempty"`

	SentAt    time.Time  `gorm:"not null" json:"sent_at"`
	OpenedAt  *time.Time `json:"opened_at"`
	ClickedAt *time.Time `json:"clicked_at"`
}

// Campaign lifecycle statuses
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusScheduled = "scheduled"
	CampaignStatusRunning   = "running"
	CampaignStatusPaused    = "paused"
	CampaignStatusStopped   = "stopped"
	CampaignStatusCompleted = "completed"
	CampaignStatusFailed    = "failed"
)

// Send attempt outcomes
const (
	LogStatusSent   = "sent"
	LogStatusFailed = "failed"
)
