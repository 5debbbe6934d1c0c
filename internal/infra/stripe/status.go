package stripe

import "strings"

const (
	StatusNone     = "none"
	StatusActive   = "active"
	StatusTrialing = "trialing"
	StatusPastDue  = "past_due"
	StatusUnpaid   = "unpaid"
	StatusCanceled = "canceled"
)

// NormalizeStripeStatus collapses Stripe subscription statuses to the set access decisions use.
func NormalizeStripeStatus(s *string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return StatusNone
	}
	switch v := strings.TrimSpace(*s); v {
	case "active":
		return StatusActive
	case "trialing":
		return StatusTrialing
	case "past_due":
		return StatusPastDue
	case "unpaid":
		return StatusUnpaid
	case "canceled", "incomplete_expired":
		return StatusCanceled
	default:
		return v
	}
}

// Revokes reports whether a status ends subscription-granted access immediately.
func Revokes(status string) bool {
	switch NormalizeStripeStatus(&status) {
	case StatusCanceled, StatusUnpaid:
		return true
	}
	return false
}
