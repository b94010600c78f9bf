package models

import (
	"time"

	"gorm.io/gorm"
)

// ContactList represents a named list of contacts
type ContactList struct {
	gorm.Model

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`

	// Statistics
	ContactCount int `gorm:"default:0" json:"contact_count"`
	ActiveCount  int `gorm:"default:0" json:"active_count"`
	BouncedCount int `gorm:"default:0" json:"bounced_count"`

	// Relations
	Contacts []Contact `gorm:"foreignKey:ContactListID" json:"contacts,omitempty"`
}

// Contact represents a single recipient
type Contact struct {
	gorm.Model
	ContactListID *uint `gorm:"index" json:"contact_list_id"`

	Email     string `gorm:"not null;uniqueIndex" json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Position  string `json:"position"`
	Phone     string `json:"phone"`
	Website   string `json:"website"`

	// Lifecycle status: active, inactive, bounced
	Status string `gorm:"default:'active';index" json:"status"`

	// Verification state
	VerificationScore int  `gorm:"default:0" json:"verification_score"`
	IsVerified        bool `gorm:"default:false" json:"is_verified"`

	// Engagement counters (mutated only by the tracking path)
	OpenCount    int        `gorm:"default:0" json:"open_count"`
	ClickCount   int        `gorm:"default:0" json:"click_count"`
	LastOpenedAt *time.Time `json:"last_opened_at"`
	LastClickAt  *time.Time `json:"last_click_at"`

	// Relations
	Tags         []ContactTag         `gorm:"foreignKey:ContactID" json:"tags,omitempty"`
	CustomFields []ContactCustomField `gorm:"foreignKey:ContactID" json:"custom_fields,omitempty"`
}

// ContactTag represents tags for contacts (normalized)
type ContactTag struct {
	gorm.Model
	ContactID uint   `gorm:"not null;index" json:"contact_id"`
	Tag       string `gorm:"not null;index" json:"tag"`
}

// ContactCustomField represents custom fields for contacts
type ContactCustomField struct {
	gorm.Model
	ContactID uint   `gorm:"not null;index" json:"contact_id"`
	Name      string `gorm:"not null;index" json:"name"`
	Value     string `gorm:"type:text" json:"value"`
}

// Contact lifecycle statuses
const (
	ContactStatusActive   = "active"
	ContactStatusInactive = "inactive"
	ContactStatusBounced  = "bounced"
)
