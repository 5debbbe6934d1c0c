package billing

import "time"

// WebhookEvent records every provider event so redeliveries are acknowledged without reprocessing.
type WebhookEvent struct {
	ID          uint   `gorm:"primaryKey"`
	Provider    string `gorm:"type:varchar(20);not null;default:'stripe'"`
	EventID     string `gorm:"not null;uniqueIndex"`
	EventType   string `gorm:"not null;index"`
	Payload     []byte `gorm:"not null"`
	Processed   bool   `gorm:"not null;default:false"`
	ProcessedAt *time.Time
	Error       *string
	Attempts    int `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
