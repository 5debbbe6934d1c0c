package notifications

import (
	"fmt"
	"time"
)

type Type string

const (
	TypeSecurity    Type = "security"
	TypeAppointment Type = "appointment"
	TypeLead        Type = "lead"
	TypeCampaign    Type = "campaign"
	TypeSystem      Type = "system"
)

func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeSecurity, TypeAppointment, TypeLead, TypeCampaign, TypeSystem:
		return t, nil
	}
	return "", fmt.Errorf("unknown notification type %q", s)
}

// Notification is owned by the server; clients only flip it to read.
type Notification struct {
	ID        string     `gorm:"primaryKey;size:26" json:"id"`
	UserID    uint       `gorm:"not null;index:idx_notifications_user_created" json:"user_id"`
	Type      Type       `gorm:"type:varchar(20);not null" json:"type"`
	Title     string     `gorm:"not null" json:"title"`
	Message   string     `gorm:"not null" json:"message"`
	Read      bool       `gorm:"not null;default:false;index" json:"read"`
	ReadAt    *time.Time `json:"read_at"`
	CreatedAt time.Time  `gorm:"index:idx_notifications_user_created" json:"created_at"`
}
