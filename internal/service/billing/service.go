package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	stripeapi "github.com/stripe/stripe-go/v75"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingdomain "kaiden-app/internal/domain/billing"
	"kaiden-app/internal/domain/plans"
	"kaiden-app/internal/domain/users"
	"kaiden-app/internal/infra/events"
	"kaiden-app/internal/infra/stripe"
	auditsvc "kaiden-app/internal/service/audit"
	"kaiden-app/internal/service/purchases"
)

var (
	ErrUserNotFound          = errors.New("user not found")
	ErrUnknownPlan           = errors.New("unknown plan/price_id")
	ErrEmailNotVerified      = errors.New("please verify your email first")
	ErrNoCustomer            = errors.New("no stripe customer yet (subscribe first)")
	ErrNoSubscription        = errors.New("no active subscription to change")
	ErrMalformedSubscription = errors.New("subscription has no price item")
)

type Service struct {
	db       *gorm.DB
	gateway  stripe.Gateway
	notifier purchases.Notifier
	audit    *auditsvc.Writer
	events   events.Publisher
	log      *zap.Logger
	appURL   string
	appEnv   string
	now      func() time.Time
}

type Deps struct {
	Gateway  stripe.Gateway
	Notifier purchases.Notifier
	Audit    *auditsvc.Writer
	Events   events.Publisher
	Log      *zap.Logger
	AppURL   string
	AppEnv   string
}

func NewService(db *gorm.DB, d Deps) *Service {
	s := &Service{
		db:       db,
		gateway:  d.Gateway,
		notifier: d.Notifier,
		audit:    d.Audit,
		events:   d.Events,
		log:      d.Log,
		appURL:   d.AppURL,
		appEnv:   d.AppEnv,
		now:      time.Now,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.audit == nil {
		s.audit = auditsvc.NewWriter(db, s.log)
	}
	if s.events == nil {
		s.events = events.NopPublisher{}
	}
	return s
}

func (s *Service) user(ctx context.Context, userID uint) (users.User, error) {
	var u users.User
	err := s.db.WithContext(ctx).Preload("Plan").First(&u, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return u, ErrUserNotFound
	}
	return u, err
}

func (s *Service) planByPrice(ctx context.Context, priceID string) (plans.Plan, error) {
	var p plans.Plan
	err := s.db.WithContext(ctx).Where("stripe_price_id = ?", priceID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return p, ErrUnknownPlan
	}
	return p, err
}

// ensureCustomer creates the Stripe customer on first use.
func (s *Service) ensureCustomer(ctx context.Context, u *users.User) (string, error) {
	if u.StripeCustomerID != nil && *u.StripeCustomerID != "" {
		return *u.StripeCustomerID, nil
	}
	cus, err := s.gateway.CreateCustomer(&stripeapi.CustomerParams{
		Email: stripeapi.String(u.Email),
		Metadata: map[string]string{
			"user_id": strconv.FormatUint(uint64(u.ID), 10),
			"app_env": s.appEnv,
		},
	})
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&users.User{}).
		Where("id = ?", u.ID).
		Update("stripe_customer_id", cus.ID).Error; err != nil {
		return "", fmt.Errorf("store stripe customer: %w", err)
	}
	u.StripeCustomerID = &cus.ID
	return cus.ID, nil
}

// Checkout opens a subscription checkout for the plan behind priceID.
func (s *Service) Checkout(ctx context.Context, userID uint, priceID string) (string, error) {
	plan, err := s.planByPrice(ctx, priceID)
	if err != nil {
		return "", err
	}
	u, err := s.user(ctx, userID)
	if err != nil {
		return "", err
	}
	if !u.IsVerified {
		return "", ErrEmailNotVerified
	}
	customerID, err := s.ensureCustomer(ctx, &u)
	if err != nil {
		return "", err
	}

	uid := strconv.FormatUint(uint64(u.ID), 10)
	sess, err := s.gateway.CreateCheckoutSession(&stripeapi.CheckoutSessionParams{
		SuccessURL: stripeapi.String(s.appURL + "/account"),
		CancelURL:  stripeapi.String(s.appURL + "/account?canceled=1"),
		Mode:       stripeapi.String(string(stripeapi.CheckoutSessionModeSubscription)),
		Customer:   stripeapi.String(customerID),
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{
			{Price: stripeapi.String(plan.StripePriceID), Quantity: stripeapi.Int64(1)},
		},
		ClientReferenceID: stripeapi.String(uid),
		SubscriptionData: &stripeapi.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"user_id": uid,
				"plan_id": strconv.FormatUint(uint64(plan.ID), 10),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (s *Service) Portal(ctx context.Context, userID uint) (string, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return "", err
	}
	if u.StripeCustomerID == nil || *u.StripeCustomerID == "" {
		return "", ErrNoCustomer
	}
	portal, err := s.gateway.CreatePortalSession(&stripeapi.BillingPortalSessionParams{
		Customer:  u.StripeCustomerID,
		ReturnURL: stripeapi.String(s.appURL + "/account"),
	})
	if err != nil {
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return portal.URL, nil
}

type ChangeResult struct {
	Message          string     `json:"message"`
	IsUpgrade        bool       `json:"is_upgrade"`
	Unchanged        bool       `json:"-"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
	EffectiveAt      *time.Time `json:"effective_at,omitempty"`
	SubscriptionID   string     `json:"subscription_id,omitempty"`
	ScheduleID       string     `json:"schedule_id,omitempty"`
}

// ChangePlan upgrades immediately with prorations, or schedules a downgrade
// for the end of the current period.
func (s *Service) ChangePlan(ctx context.Context, userID uint, priceID string) (ChangeResult, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return ChangeResult{}, err
	}
	target, err := s.planByPrice(ctx, priceID)
	if err != nil {
		return ChangeResult{}, err
	}
	if u.SubscriptionID == nil || *u.SubscriptionID == "" {
		return ChangeResult{}, ErrNoSubscription
	}

	sub, err := s.gateway.GetSubscription(*u.SubscriptionID)
	if err != nil {
		return ChangeResult{}, fmt.Errorf("fetch stripe subscription: %w", err)
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return ChangeResult{}, ErrMalformedSubscription
	}
	item := sub.Items.Data[0]
	if item.Price.ID == target.StripePriceID {
		return ChangeResult{Message: "Already on this plan", Unchanged: true}, nil
	}

	isUpgrade := true
	if u.Plan != nil {
		isUpgrade = plans.PlanTier(&target).Rank() > plans.PlanTier(u.Plan).Rank() ||
			(plans.PlanTier(&target) == plans.PlanTier(u.Plan) && target.PriceCents > u.Plan.PriceCents)
	}

	if isUpgrade {
		updated, err := s.gateway.UpdateSubscription(sub.ID, &stripeapi.SubscriptionParams{
			Items: []*stripeapi.SubscriptionItemsParams{
				{ID: stripeapi.String(item.ID), Price: stripeapi.String(target.StripePriceID)},
			},
			ProrationBehavior: stripeapi.String("create_prorations"),
		})
		if err != nil {
			return ChangeResult{}, fmt.Errorf("upgrade subscription: %w", err)
		}
		periodEnd := time.Unix(updated.CurrentPeriodEnd, 0).UTC()
		if err := s.db.WithContext(ctx).Model(&users.User{}).
			Where("id = ?", u.ID).
			Updates(map[string]any{
				"plan_id":                 target.ID,
				"subscription_start":      s.now(),
				"subscription_end":        periodEnd,
				"current_period_end":      periodEnd,
				"pending_plan_id":         nil,
				"pending_plan_start_date": nil,
			}).Error; err != nil {
			return ChangeResult{}, fmt.Errorf("update user plan: %w", err)
		}
		s.recordChange(ctx, u.ID, "upgrade", target)
		return ChangeResult{
			Message:          "Upgraded now (prorated automatically by Stripe)",
			IsUpgrade:        true,
			CurrentPeriodEnd: &periodEnd,
			SubscriptionID:   updated.ID,
		}, nil
	}

	effectiveAt := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	scheduleID := ""
	if sub.Schedule != nil {
		scheduleID = sub.Schedule.ID
	}
	if scheduleID == "" {
		schedule, err := s.gateway.CreateSchedule(&stripeapi.SubscriptionScheduleParams{
			FromSubscription: stripeapi.String(sub.ID),
		})
		if err != nil {
			return ChangeResult{}, fmt.Errorf("create schedule: %w", err)
		}
		scheduleID = schedule.ID
	}

	_, err = s.gateway.UpdateSchedule(scheduleID, &stripeapi.SubscriptionScheduleParams{
		EndBehavior: stripeapi.String("release"),
		Phases: []*stripeapi.SubscriptionSchedulePhaseParams{
			{
				StartDate: stripeapi.Int64(sub.CurrentPeriodStart),
				EndDate:   stripeapi.Int64(sub.CurrentPeriodEnd),
				Items: []*stripeapi.SubscriptionSchedulePhaseItemParams{
					{Price: stripeapi.String(item.Price.ID), Quantity: stripeapi.Int64(1)},
				},
			},
			{
				StartDate: stripeapi.Int64(sub.CurrentPeriodEnd),
				Items: []*stripeapi.SubscriptionSchedulePhaseItemParams{
					{Price: stripeapi.String(target.StripePriceID), Quantity: stripeapi.Int64(1)},
				},
			},
		},
	})
	if err != nil {
		return ChangeResult{}, fmt.Errorf("update schedule phases: %w", err)
	}

	// the current plan stays until effectiveAt
	if err := s.db.WithContext(ctx).Model(&users.User{}).
		Where("id = ?", u.ID).
		Updates(map[string]any{
			"pending_plan_id":         target.ID,
			"pending_plan_start_date": effectiveAt,
			"stripe_schedule_id":      scheduleID,
			"current_period_end":      effectiveAt,
			"subscription_end":        effectiveAt,
		}).Error; err != nil {
		return ChangeResult{}, fmt.Errorf("store pending downgrade: %w", err)
	}
	s.recordChange(ctx, u.ID, "downgrade_scheduled", target)
	return ChangeResult{
		Message:     "Downgrade scheduled for next billing cycle",
		EffectiveAt: &effectiveAt,
		ScheduleID:  scheduleID,
	}, nil
}

// CancelDowngrade releases the pending schedule. ok is false when nothing was pending.
func (s *Service) CancelDowngrade(ctx context.Context, userID uint) (scheduleID string, ok bool, err error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return "", false, err
	}
	if u.StripeScheduleID == nil || *u.StripeScheduleID == "" || u.PendingPlanID == nil {
		return "", false, nil
	}
	scheduleID = *u.StripeScheduleID
	if _, err := s.gateway.ReleaseSchedule(scheduleID); err != nil {
		return "", false, fmt.Errorf("release stripe schedule: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&users.User{}).
		Where("id = ?", u.ID).
		Updates(map[string]any{
			"pending_plan_id":         nil,
			"pending_plan_start_date": nil,
			"stripe_schedule_id":      nil,
		}).Error; err != nil {
		return "", false, fmt.Errorf("clear pending downgrade: %w", err)
	}
	return scheduleID, true, nil
}

func (s *Service) Payments(ctx context.Context, userID uint) ([]billingdomain.Payment, error) {
	out := []billingdomain.Payment{}
	err := s.db.WithContext(ctx).
		Preload("Plan").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&out).Error
	return out, err
}

func (s *Service) recordChange(ctx context.Context, userID uint, change string, plan plans.Plan) {
	if err := s.audit.Record(ctx, auditsvc.Entry{
		UserID:     auditsvc.UserRef(userID),
		Action:     auditsvc.ActionSubscriptionUpdated,
		Resource:   "subscription",
		ResourceID: plan.StripePriceID,
		Details:    map[string]any{"change": change, "plan_id": plan.ID, "tier": string(plans.PlanTier(&plan))},
	}); err != nil {
		s.log.Warn("audit write failed", zap.Error(err))
	}
	s.publish(ctx, userID, change, plan.ID)
}

func (s *Service) publish(ctx context.Context, userID uint, change string, planID uint) {
	if err := s.events.Publish(ctx, events.SubscriptionChanged, map[string]any{
		"user_id": userID,
		"change":  change,
		"plan_id": planID,
	}); err != nil {
		s.log.Warn("publish failed", zap.String("routing_key", events.SubscriptionChanged), zap.Error(err))
	}
}
