package models

import (
	"time"

	"gorm.io/gorm"
)

// SMTPAccount represents outbound sending credentials
type SMTPAccount struct {
	gorm.Model

	// Basic identification
	Name      string `gorm:"not null" json:"name"`
	FromEmail string `gorm:"not null" json:"from_email"`
	FromName  string `gorm:"not null" json:"from_name"`

	// ========= SMTP Configuration =========
	SMTPHost     string `gorm:"not null" json:"smtp_host"`
	SMTPPort     int    `gorm:"not null" json:"smtp_port"`
	SMTPUsername string `gorm:"not null" json:"smtp_username"`
	SMTPPassword string `gorm:"not null" json:"-"`          // Encrypted in application layer
	Encryption   string `gorm:"not null" json:"encryption"` // SSL, TLS, STARTTLS

	// ========= Rotation =========
	IsActive   bool `gorm:"default:true" json:"is_active"`
	Priority   int  `gorm:"default:0" json:"priority"`
	DailyLimit int  `gorm:"default:500" json:"daily_limit"`
	SentToday  int  `gorm:"default:0" json:"sent_today"`
	TotalSent  int  `gorm:"default:0" json:"total_sent"`

	// LastResetAt drives the lazy daily-counter rollover; when its date
	// differs from today the counter is treated as zero.
	LastResetAt *time.Time `json:"last_reset_at"`

	// ========= Status =========
	Verified     bool       `gorm:"default:false" json:"verified"`
	LastTestedAt *time.Time `json:"last_tested_at"`
	LastError    *string    `json:"last_error"`
}

// Sanitize strips credentials before the account is returned to a client.
func (a *SMTPAccount) Sanitize() {
	a.SMTPPassword = ""
}
