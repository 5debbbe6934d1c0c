package audit

import (
	"time"

	"gorm.io/datatypes"
)

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

type Log struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	UserID     *uint          `gorm:"index" json:"user_id"`
	Action     string         `gorm:"not null;index" json:"action"`
	Resource   string         `gorm:"not null" json:"resource"`
	ResourceID string         `json:"resource_id"`
	Details    datatypes.JSON `json:"details"`
	Severity   string         `gorm:"type:varchar(10);not null;default:'info'" json:"severity"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

func (Log) TableName() string { return "audit_logs" }
