package users

import (
	"kaiden-app/internal/domain/plans"
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	TrialDays = 14
)

type User struct {
	ID           uint `gorm:"primaryKey"`
	Name         string
	Company      string
	Phone        string
	Email        string  `gorm:"not null;uniqueIndex:idx_users_email"`
	Password     *string `json:"-"`
	AuthProvider string  `gorm:"type:varchar(20);not null;default:'local'"`
	GoogleSub    *string `gorm:"uniqueIndex:idx_users_google_sub" json:"-"`
	Role         string
	IsVerified   bool

	PlanID *uint
	Plan   *plans.Plan

	SubscriptionStart *time.Time
	SubscriptionEnd   *time.Time
	SubscriptionID    *string `gorm:"column:subscription_id;uniqueIndex:idx_users_subscription_id"`
	StripeCustomerID  *string `gorm:"column:stripe_customer_id;uniqueIndex:idx_users_stripe_customer_id"`

	PendingPlan          *plans.Plan `gorm:"foreignKey:PendingPlanID"`
	PendingPlanID        *uint       `gorm:"column:pending_plan_id"`
	PendingPlanStartDate *time.Time  `gorm:"column:pending_plan_start_date"`
	StripeScheduleID     *string     `gorm:"column:stripe_schedule_id"`
	CurrentPeriodEnd     *time.Time  `gorm:"column:current_period_end"`

	TrialStartAt        *time.Time `gorm:"column:trial_start_at"`
	TrialEndAt          *time.Time `gorm:"column:trial_end_at"`
	TrialReminderSentAt *time.Time `gorm:"column:trial_reminder_sent_at"`

	StripeSubscriptionStatus *string `gorm:"column:stripe_subscription_status"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StartTrial opens the free-trial window for a new account.
func (u *User) StartTrial(now time.Time) {
	end := now.AddDate(0, 0, TrialDays)
	u.TrialStartAt = &now
	u.TrialEndAt = &end
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }
