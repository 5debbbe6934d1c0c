package scheduler

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	notificationdomain "kaiden-app/internal/domain/notifications"
	"kaiden-app/internal/domain/users"
	"kaiden-app/internal/infra/email"
	"kaiden-app/internal/infra/metrics"
	"kaiden-app/internal/infra/stripe"
	"kaiden-app/internal/service/purchases"
)

const (
	JobExpirePurchases = "expire_purchases"
	JobExpireGrants    = "expire_grants"
	JobTrialReminders  = "trial_reminders"

	// TrialReminderWindow is how far ahead of trial end the reminder goes out.
	TrialReminderWindow = 3 * 24 * time.Hour

	jobTimeout = 2 * time.Minute
)

type PurchaseExpirer interface {
	ExpireDue(ctx context.Context) (int64, error)
}

type GrantExpirer interface {
	ExpireGrants(ctx context.Context) (int64, error)
}

type Jobs struct {
	db        *gorm.DB
	purchases PurchaseExpirer
	grants    GrantExpirer
	mailer    email.Sender
	notifier  purchases.Notifier
	metrics   *metrics.Metrics
	log       *zap.Logger
	appURL    string
	now       func() time.Time
}

type JobDeps struct {
	Purchases PurchaseExpirer
	Grants    GrantExpirer
	Mailer    email.Sender
	Notifier  purchases.Notifier
	Metrics   *metrics.Metrics
	Log       *zap.Logger
	AppURL    string
}

func NewJobs(db *gorm.DB, d JobDeps) *Jobs {
	j := &Jobs{
		db:        db,
		purchases: d.Purchases,
		grants:    d.Grants,
		mailer:    d.Mailer,
		notifier:  d.Notifier,
		metrics:   d.Metrics,
		log:       d.Log,
		appURL:    d.AppURL,
		now:       time.Now,
	}
	if j.log == nil {
		j.log = zap.NewNop()
	}
	return j
}

// Run executes one job by name.
func (j *Jobs) Run(ctx context.Context, name string) (int64, error) {
	start := time.Now()
	var (
		n   int64
		err error
	)
	switch name {
	case JobExpirePurchases:
		n, err = j.purchases.ExpireDue(ctx)
	case JobExpireGrants:
		n, err = j.grants.ExpireGrants(ctx)
	case JobTrialReminders:
		n, err = j.SendTrialReminders(ctx)
	default:
		return 0, fmt.Errorf("unknown job %q", name)
	}
	j.metrics.JobRun(name, time.Since(start), err)
	if err != nil {
		j.log.Error("job failed", zap.String("job", name), zap.Error(err))
	} else {
		j.log.Info("job finished", zap.String("job", name), zap.Int64("affected", n), zap.Duration("took", time.Since(start)))
	}
	return n, err
}

func (j *Jobs) runner(name string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		_, _ = j.Run(ctx, name)
	}
}

// SendTrialReminders warns users whose trial ends within TrialReminderWindow.
// Each trial is reminded at most once.
func (j *Jobs) SendTrialReminders(ctx context.Context) (int64, error) {
	now := j.now()
	var due []users.User
	err := j.db.WithContext(ctx).
		Where("trial_end_at > ? AND trial_end_at <= ?", now, now.Add(TrialReminderWindow)).
		Where("trial_reminder_sent_at IS NULL").
		Where("stripe_subscription_status IS NULL OR stripe_subscription_status NOT IN ?", []string{stripe.StatusActive, stripe.StatusTrialing}).
		Find(&due).Error
	if err != nil {
		return 0, err
	}

	var sent int64
	for _, u := range due {
		daysLeft := int(math.Ceil(u.TrialEndAt.Sub(now).Hours() / 24))
		if j.mailer != nil {
			if err := j.mailer.Send(ctx, email.TrialEndingMessage(u.Email, j.appURL, daysLeft)); err != nil {
				j.log.Warn("trial reminder email failed", zap.Uint("user_id", u.ID), zap.Error(err))
				continue
			}
		}
		if j.notifier != nil {
			msg := fmt.Sprintf("Your free trial ends in %d day(s). Choose a plan to keep your features.", daysLeft)
			if _, err := j.notifier.Create(ctx, u.ID, notificationdomain.TypeSystem, "Trial ending soon", msg); err != nil {
				j.log.Warn("trial reminder notification failed", zap.Uint("user_id", u.ID), zap.Error(err))
			}
		}
		if err := j.db.WithContext(ctx).Model(&users.User{}).
			Where("id = ?", u.ID).
			Update("trial_reminder_sent_at", now).Error; err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}
