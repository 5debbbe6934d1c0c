package entitlements

import "time"

const (
	GrantedBySubscription = "subscription"
	GrantedByBundle       = "bundle"
	GrantedByAdmin        = "admin"
	GrantedByTrial        = "trial"

	StatusActive  = "active"
	StatusExpired = "expired"
	StatusRevoked = "revoked"
)

// Grant is an explicit access right to one feature slug, independent of the user's tier.
type Grant struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"not null;uniqueIndex:idx_grants_user_feature" json:"user_id"`
	Feature   string     `gorm:"not null;size:64;uniqueIndex:idx_grants_user_feature" json:"feature"`
	GrantedBy string     `gorm:"type:varchar(20);not null" json:"granted_by"`
	Status    string     `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	ExpiresAt *time.Time `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ActiveAt reports whether the grant confers access at now.
func (g Grant) ActiveAt(now time.Time) bool {
	if g.Status != StatusActive {
		return false
	}
	return g.ExpiresAt == nil || now.Before(*g.ExpiresAt)
}

func ValidGrantedBy(s string) bool {
	switch s {
	case GrantedBySubscription, GrantedByBundle, GrantedByAdmin, GrantedByTrial:
		return true
	}
	return false
}
