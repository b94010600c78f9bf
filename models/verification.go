package models

import (
	"time"

	"gorm.io/gorm"
)

// VerificationJob represents a bulk email verification task
type VerificationJob struct {
	gorm.Model

	Name        string     `json:"name"`
	Status      string     `gorm:"default:'pending'" json:"status"` // pending, processing, completed, failed
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`

	// Results summary
	TotalCount   int `gorm:"default:0" json:"total_count"`
	ValidCount   int `gorm:"default:0" json:"valid_count"`
	InvalidCount int `gorm:"default:0" json:"invalid_count"`
	RiskyCount   int `gorm:"default:0" json:"risky_count"`
	UnknownCount int `gorm:"default:0" json:"unknown_count"`
	ErrorCount   int `gorm:"default:0" json:"error_count"`

	// Relations
	Records []VerificationRecord `gorm:"foreignKey:JobID" json:"records,omitempty"`
}

// VerificationRecord stores one verified address within a job
type VerificationRecord struct {
	gorm.Model
	JobID uint `gorm:"not null;index" json:"job_id"`

	Email   string `gorm:"not null" json:"email"`
	Status  string `gorm:"not null" json:"status"` // valid, invalid, risky, unknown, error
	Score   int    `gorm:"default:0" json:"score"`
	Details string `gorm:"type:text" json:"details"` // JSON with per-check results
}
