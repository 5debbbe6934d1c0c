package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripeapi "github.com/stripe/stripe-go/v75"
	"gorm.io/gorm"

	"kaiden-app/internal/dbtest"
	auditdomain "kaiden-app/internal/domain/audit"
	billingdomain "kaiden-app/internal/domain/billing"
	notificationdomain "kaiden-app/internal/domain/notifications"
	"kaiden-app/internal/domain/plans"
	"kaiden-app/internal/domain/users"
	"kaiden-app/internal/infra/events"
	"kaiden-app/internal/infra/stripe/stripetest"
)

var (
	now         = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	periodStart = now.Add(-10 * 24 * time.Hour)
	periodEnd   = now.Add(20 * 24 * time.Hour)
)

func ptr[T any](v T) *T { return &v }

type notes struct{ titles []string }

func (n *notes) Create(_ context.Context, userID uint, kind notificationdomain.Type, title, message string) (notificationdomain.Notification, error) {
	n.titles = append(n.titles, title)
	return notificationdomain.Notification{UserID: userID, Type: kind, Title: title, Message: message}, nil
}

type fixture struct {
	svc    *Service
	db     *gorm.DB
	gw     *stripetest.Gateway
	notes  *notes
	events *events.Recorder

	personal plans.Plan
	startup  plans.Plan
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{db: dbtest.New(t), gw: stripetest.New(), notes: &notes{}, events: &events.Recorder{}}
	f.svc = NewService(f.db, Deps{
		Gateway:  f.gw,
		Notifier: f.notes,
		Events:   f.events,
		AppURL:   "https://app.kaiden.test",
		AppEnv:   "test",
	})
	f.svc.now = func() time.Time { return now }

	f.personal = plans.Plan{Name: "Personal", PriceCents: 2900, Currency: "usd", StripePriceID: "price_personal", Interval: "month", Tier: "personal"}
	f.startup = plans.Plan{Name: "Startup", PriceCents: 19900, Currency: "usd", StripePriceID: "price_startup", Interval: "month", Tier: "startup"}
	require.NoError(t, f.db.Create(&f.personal).Error)
	require.NoError(t, f.db.Create(&f.startup).Error)
	return f
}

func (f *fixture) subscriber(t *testing.T, plan plans.Plan) users.User {
	t.Helper()
	u := users.User{
		Email:            "sub@kaiden.test",
		IsVerified:       true,
		PlanID:           &plan.ID,
		SubscriptionID:   ptr("sub_1"),
		StripeCustomerID: ptr("cus_1"),
	}
	require.NoError(t, f.db.Create(&u).Error)
	f.gw.Subscriptions["sub_1"] = &stripeapi.Subscription{
		ID:                 "sub_1",
		Status:             stripeapi.SubscriptionStatusActive,
		CurrentPeriodStart: periodStart.Unix(),
		CurrentPeriodEnd:   periodEnd.Unix(),
		Items: &stripeapi.SubscriptionItemList{Data: []*stripeapi.SubscriptionItem{
			{ID: "si_1", Price: &stripeapi.Price{ID: plan.StripePriceID}},
		}},
		Metadata: map[string]string{"user_id": "1"},
	}
	return u
}

func TestCheckoutCreatesCustomerOnce(t *testing.T) {
	f := newFixture(t)
	u := users.User{Email: "new@kaiden.test", IsVerified: true}
	require.NoError(t, f.db.Create(&u).Error)

	url, err := f.svc.Checkout(context.Background(), u.ID, "price_startup")
	require.NoError(t, err)
	assert.NotEmpty(t, url)

	var stored users.User
	require.NoError(t, f.db.First(&stored, u.ID).Error)
	require.NotNil(t, stored.StripeCustomerID)
	customer := *stored.StripeCustomerID

	_, err = f.svc.Checkout(context.Background(), u.ID, "price_startup")
	require.NoError(t, err)
	require.NoError(t, f.db.First(&stored, u.ID).Error)
	assert.Equal(t, customer, *stored.StripeCustomerID)

	require.Len(t, f.gw.CheckoutParams, 2)
	p := f.gw.CheckoutParams[0]
	assert.Equal(t, "subscription", stripeapi.StringValue(p.Mode))
	assert.Equal(t, "price_startup", stripeapi.StringValue(p.LineItems[0].Price))
	assert.Equal(t, "1", p.SubscriptionData.Metadata["user_id"])
}

func TestCheckoutRejections(t *testing.T) {
	f := newFixture(t)
	u := users.User{Email: "new@kaiden.test"}
	require.NoError(t, f.db.Create(&u).Error)

	_, err := f.svc.Checkout(context.Background(), u.ID, "price_missing")
	assert.ErrorIs(t, err, ErrUnknownPlan)

	_, err = f.svc.Checkout(context.Background(), u.ID, "price_startup")
	assert.ErrorIs(t, err, ErrEmailNotVerified)

	_, err = f.svc.Portal(context.Background(), u.ID)
	assert.ErrorIs(t, err, ErrNoCustomer)
}

func TestChangePlanUpgradeAppliesNow(t *testing.T) {
	f := newFixture(t)
	u := f.subscriber(t, f.personal)

	res, err := f.svc.ChangePlan(context.Background(), u.ID, "price_startup")
	require.NoError(t, err)
	assert.True(t, res.IsUpgrade)
	require.NotNil(t, res.CurrentPeriodEnd)

	params := f.gw.Updated["sub_1"]
	require.NotNil(t, params)
	assert.Equal(t, "create_prorations", stripeapi.StringValue(params.ProrationBehavior))
	assert.Equal(t, "si_1", stripeapi.StringValue(params.Items[0].ID))

	var stored users.User
	require.NoError(t, f.db.First(&stored, u.ID).Error)
	assert.Equal(t, f.startup.ID, *stored.PlanID)
	assert.Equal(t, []string{events.SubscriptionChanged}, f.events.Keys())
}

func TestChangePlanDowngradeSchedulesAndCancel(t *testing.T) {
	f := newFixture(t)
	u := f.subscriber(t, f.startup)
	ctx := context.Background()

	res, err := f.svc.ChangePlan(ctx, u.ID, "price_personal")
	require.NoError(t, err)
	assert.False(t, res.IsUpgrade)
	require.NotEmpty(t, res.ScheduleID)
	assert.Equal(t, periodEnd.Unix(), res.EffectiveAt.Unix())

	sched := f.gw.Schedules[res.ScheduleID]
	require.NotNil(t, sched)
	assert.Equal(t, "release", stripeapi.StringValue(sched.EndBehavior))
	require.Len(t, sched.Phases, 2)
	assert.Equal(t, "price_startup", stripeapi.StringValue(sched.Phases[0].Items[0].Price))
	assert.Equal(t, "price_personal", stripeapi.StringValue(sched.Phases[1].Items[0].Price))
	assert.Equal(t, periodEnd.Unix(), stripeapi.Int64Value(sched.Phases[1].StartDate))

	var stored users.User
	require.NoError(t, f.db.First(&stored, u.ID).Error)
	assert.Equal(t, f.startup.ID, *stored.PlanID)
	require.NotNil(t, stored.PendingPlanID)
	assert.Equal(t, f.personal.ID, *stored.PendingPlanID)

	id, ok, err := f.svc.CancelDowngrade(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, res.ScheduleID, id)
	assert.Equal(t, []string{res.ScheduleID}, f.gw.Released)

	_, ok, err = f.svc.CancelDowngrade(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChangePlanSamePlanAndNoSubscription(t *testing.T) {
	f := newFixture(t)
	u := f.subscriber(t, f.personal)

	res, err := f.svc.ChangePlan(context.Background(), u.ID, "price_personal")
	require.NoError(t, err)
	assert.True(t, res.Unchanged)

	other := users.User{Email: "other@kaiden.test"}
	require.NoError(t, f.db.Create(&other).Error)
	_, err = f.svc.ChangePlan(context.Background(), other.ID, "price_startup")
	assert.ErrorIs(t, err, ErrNoSubscription)
}

func TestActivateSubscription(t *testing.T) {
	f := newFixture(t)
	u := users.User{Email: "trial@kaiden.test", IsVerified: true}
	u.StartTrial(now)
	require.NoError(t, f.db.Create(&u).Error)

	f.gw.Subscriptions["sub_new"] = &stripeapi.Subscription{
		ID:               "sub_new",
		Status:           stripeapi.SubscriptionStatusActive,
		CurrentPeriodEnd: periodEnd.Unix(),
		Items: &stripeapi.SubscriptionItemList{Data: []*stripeapi.SubscriptionItem{
			{ID: "si_new", Price: &stripeapi.Price{ID: "price_startup"}},
		}},
		Metadata: map[string]string{"user_id": "1"},
	}
	f.gw.Sessions["cs_sub"] = &stripeapi.CheckoutSession{
		ID:           "cs_sub",
		Mode:         stripeapi.CheckoutSessionModeSubscription,
		Subscription: &stripeapi.Subscription{ID: "sub_new"},
		Customer:     &stripeapi.Customer{ID: "cus_new"},
	}

	require.NoError(t, f.svc.ActivateSubscription(context.Background(), &stripeapi.CheckoutSession{ID: "cs_sub"}))

	var stored users.User
	require.NoError(t, f.db.First(&stored, u.ID).Error)
	assert.Equal(t, f.startup.ID, *stored.PlanID)
	assert.Equal(t, "sub_new", *stored.SubscriptionID)
	assert.Equal(t, "cus_new", *stored.StripeCustomerID)
	assert.Equal(t, "active", *stored.StripeSubscriptionStatus)
	assert.Nil(t, stored.TrialEndAt)
	assert.Equal(t, []string{"Subscription active"}, f.notes.titles)
}

func TestSubscriptionUpdatedClearsMatchingPendingPlan(t *testing.T) {
	f := newFixture(t)
	u := f.subscriber(t, f.startup)
	require.NoError(t, f.db.Model(&u).Updates(map[string]any{
		"pending_plan_id":    f.personal.ID,
		"stripe_schedule_id": "sub_sched_1",
	}).Error)

	sub := f.gw.Subscriptions["sub_1"]
	sub.Items.Data[0].Price = &stripeapi.Price{ID: "price_personal"}
	sub.Status = stripeapi.SubscriptionStatusPastDue

	require.NoError(t, f.svc.SubscriptionUpdated(context.Background(), sub))

	var stored users.User
	require.NoError(t, f.db.First(&stored, u.ID).Error)
	assert.Equal(t, f.personal.ID, *stored.PlanID)
	assert.Nil(t, stored.PendingPlanID)
	assert.Nil(t, stored.StripeScheduleID)
	assert.Equal(t, "past_due", *stored.StripeSubscriptionStatus)

	// unknown subscriptions are acknowledged
	require.NoError(t, f.svc.SubscriptionUpdated(context.Background(), &stripeapi.Subscription{
		ID:    "sub_ghost",
		Items: &stripeapi.SubscriptionItemList{Data: []*stripeapi.SubscriptionItem{{Price: &stripeapi.Price{ID: "price_personal"}}}},
	}))
}

func TestSubscriptionDeleted(t *testing.T) {
	f := newFixture(t)
	u := f.subscriber(t, f.startup)
	sub := f.gw.Subscriptions["sub_1"]
	sub.Status = stripeapi.SubscriptionStatusCanceled

	require.NoError(t, f.svc.SubscriptionDeleted(context.Background(), sub))

	var stored users.User
	require.NoError(t, f.db.First(&stored, u.ID).Error)
	assert.Equal(t, "canceled", *stored.StripeSubscriptionStatus)

	var logs []auditdomain.Log
	require.NoError(t, f.db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, auditdomain.SeverityWarning, logs[0].Severity)
}

func TestRecordInvoiceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	u := f.subscriber(t, f.startup)
	ctx := context.Background()

	inv := &stripeapi.Invoice{
		ID:           "in_1",
		AmountPaid:   19900,
		AmountDue:    19900,
		Currency:     "usd",
		Subscription: &stripeapi.Subscription{ID: "sub_1"},
	}
	require.NoError(t, f.svc.RecordInvoice(ctx, inv, false))
	require.NoError(t, f.svc.RecordInvoice(ctx, inv, true))
	require.NoError(t, f.svc.RecordInvoice(ctx, inv, true))

	payments, err := f.svc.Payments(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, billingdomain.PaymentPaid, payments[0].Status)
	assert.Equal(t, int64(19900), payments[0].AmountCents)
	assert.Equal(t, []string{"Payment failed"}, f.notes.titles)
}
