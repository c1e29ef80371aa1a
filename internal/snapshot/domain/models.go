package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ReportSnapshot is the stored, normalized result of one report
// acquisition. Rows are append-only: the most recent row for a
// (report_type, subject_key) pair is authoritative, older rows are kept
// for audit.
type ReportSnapshot struct {
	ID             snowflake.ID   `gorm:"primaryKey" json:"id"`
	ReportType     string         `gorm:"not null;index:idx_snapshots_key,priority:1" json:"report_type"`
	SubjectKey     string         `gorm:"not null;index:idx_snapshots_key,priority:2" json:"subject_key"`
	BusinessNumber *string        `gorm:"index" json:"business_number,omitempty"`
	ExternalID     string         `gorm:"not null" json:"external_id"`
	SearchLabel    string         `gorm:"not null" json:"search_label"`
	UnitReference  string         `gorm:"index" json:"unit_reference,omitempty"`
	Document       datatypes.JSON `gorm:"type:jsonb;not null" json:"document"`
	AlertFlag      bool           `gorm:"not null;default:false" json:"alert_flag"`
	AlertCount     int            `gorm:"not null;default:0" json:"alert_count"`
	CreatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_snapshots_key,priority:3" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (ReportSnapshot) TableName() string {
	return "report_snapshots"
}
