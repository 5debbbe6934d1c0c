package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	stripeapi "github.com/stripe/stripe-go/v75"
	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	auditdomain "kaiden-app/internal/domain/audit"
	billingdomain "kaiden-app/internal/domain/billing"
	notificationdomain "kaiden-app/internal/domain/notifications"
	"kaiden-app/internal/domain/plans"
	"kaiden-app/internal/domain/users"
	"kaiden-app/internal/infra/stripe"
	auditsvc "kaiden-app/internal/service/audit"
)

// ActivateSubscription applies a completed subscription checkout to the user.
func (s *Service) ActivateSubscription(ctx context.Context, session *stripeapi.CheckoutSession) error {
	full, err := s.gateway.GetCheckoutSession(session.ID, &stripeapi.CheckoutSessionParams{
		Params: stripeapi.Params{
			Expand: []*string{stripeapi.String("subscription"), stripeapi.String("customer")},
		},
	})
	if err != nil {
		return fmt.Errorf("fetch expanded checkout session: %w", err)
	}
	if full.Subscription == nil || full.Subscription.ID == "" {
		return errors.New("checkout session missing subscription")
	}
	subscriptionID := full.Subscription.ID

	sub, err := s.gateway.GetSubscription(subscriptionID)
	if err != nil {
		return fmt.Errorf("fetch subscription: %w", err)
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return ErrMalformedSubscription
	}

	userID := userIDFromMetadata(sub.Metadata)
	if userID == 0 {
		userID = parseUserID(full.ClientReferenceID)
	}
	if userID == 0 {
		return errors.New("missing user_id (metadata.user_id or client_reference_id)")
	}

	var u users.User
	if err := s.db.WithContext(ctx).First(&u, userID).Error; err != nil {
		return fmt.Errorf("user not found: %w", err)
	}

	priceID := sub.Items.Data[0].Price.ID
	plan, err := s.planByPrice(ctx, priceID)
	if err != nil {
		return fmt.Errorf("plan not found for stripe price_id=%s: %w", priceID, err)
	}

	periodEnd := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	updates := map[string]any{
		"plan_id":                    plan.ID,
		"subscription_id":            subscriptionID,
		"subscription_start":         s.now(),
		"subscription_end":           periodEnd,
		"current_period_end":         periodEnd,
		"stripe_subscription_status": string(sub.Status),
		"trial_start_at":             nil,
		"trial_end_at":               nil,
		"pending_plan_id":            nil,
		"pending_plan_start_date":    nil,
		"stripe_schedule_id":         nil,
	}
	if full.Customer != nil && full.Customer.ID != "" {
		updates["stripe_customer_id"] = full.Customer.ID
	}

	if u.SubscriptionID != nil && *u.SubscriptionID != "" && *u.SubscriptionID != subscriptionID {
		if _, err := s.gateway.CancelSubscription(*u.SubscriptionID); err != nil {
			s.log.Warn("cancel replaced subscription failed",
				zap.String("subscription_id", *u.SubscriptionID), zap.Error(err))
		}
	}

	if err := s.db.WithContext(ctx).Model(&users.User{}).
		Where("id = ?", u.ID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("update user after checkout: %w", err)
	}

	s.auditEntry(ctx, auditsvc.Entry{
		UserID:     auditsvc.UserRef(u.ID),
		Action:     auditsvc.ActionSubscriptionStarted,
		Resource:   "subscription",
		ResourceID: subscriptionID,
		Details:    map[string]any{"plan_id": plan.ID, "tier": string(plans.PlanTier(&plan)), "status": string(sub.Status)},
	})
	s.notify(ctx, u.ID, "Subscription active", "Your "+plan.Name+" plan is now active.")
	s.publish(ctx, u.ID, "started", plan.ID)
	return nil
}

// SubscriptionUpdated mirrors plan, period and status changes. Events for
// unknown users or plans are acknowledged without change.
func (s *Service) SubscriptionUpdated(ctx context.Context, sub *stripeapi.Subscription) error {
	if sub.ID == "" || sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return errors.New("subscription missing id/items/price")
	}

	u, ok := s.subscriber(ctx, sub)
	if !ok {
		return nil
	}
	plan, err := s.planByPrice(ctx, sub.Items.Data[0].Price.ID)
	if err != nil {
		s.log.Warn("subscription update for unknown price", zap.String("price_id", sub.Items.Data[0].Price.ID))
		return nil
	}

	periodEnd := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	status := string(sub.Status)
	updates := map[string]any{
		"plan_id":                    plan.ID,
		"subscription_end":           periodEnd,
		"current_period_end":         periodEnd,
		"stripe_subscription_status": status,
		"subscription_id":            sub.ID,
	}
	if u.PendingPlanID != nil && *u.PendingPlanID == plan.ID {
		updates["pending_plan_id"] = nil
		updates["pending_plan_start_date"] = nil
		updates["stripe_schedule_id"] = nil
	}
	if err := s.db.WithContext(ctx).Model(&users.User{}).
		Where("id = ?", u.ID).
		Updates(updates).Error; err != nil {
		return err
	}

	severity := auditdomain.SeverityInfo
	if stripe.Revokes(status) {
		severity = auditdomain.SeverityWarning
	}
	s.auditEntry(ctx, auditsvc.Entry{
		UserID:     auditsvc.UserRef(u.ID),
		Action:     auditsvc.ActionSubscriptionUpdated,
		Resource:   "subscription",
		ResourceID: sub.ID,
		Severity:   severity,
		Details:    map[string]any{"plan_id": plan.ID, "status": status},
	})
	s.publish(ctx, u.ID, "updated", plan.ID)
	return nil
}

func (s *Service) SubscriptionDeleted(ctx context.Context, sub *stripeapi.Subscription) error {
	if sub.ID == "" {
		return nil
	}
	u, ok := s.subscriber(ctx, sub)
	if !ok {
		return nil
	}

	periodEnd := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	if err := s.db.WithContext(ctx).Model(&users.User{}).
		Where("id = ?", u.ID).
		Updates(map[string]any{
			"stripe_subscription_status": string(sub.Status),
			"subscription_end":           periodEnd,
			"current_period_end":         periodEnd,
			"pending_plan_id":            nil,
			"pending_plan_start_date":    nil,
			"stripe_schedule_id":         nil,
		}).Error; err != nil {
		return err
	}

	s.auditEntry(ctx, auditsvc.Entry{
		UserID:     auditsvc.UserRef(u.ID),
		Action:     auditsvc.ActionSubscriptionDeleted,
		Resource:   "subscription",
		ResourceID: sub.ID,
		Severity:   auditdomain.SeverityWarning,
		Details:    map[string]any{"status": string(sub.Status), "period_end": periodEnd},
	})
	s.notify(ctx, u.ID, "Subscription ended", "Your subscription was canceled. Paid features stay available until "+periodEnd.Format("Jan 2, 2006")+".")
	var planID uint
	if u.PlanID != nil {
		planID = *u.PlanID
	}
	s.publish(ctx, u.ID, "deleted", planID)
	return nil
}

// RecordInvoice stores a subscription payment. Invoices are keyed by id so
// redelivery does not duplicate rows.
func (s *Service) RecordInvoice(ctx context.Context, inv *stripeapi.Invoice, paid bool) error {
	if inv == nil || inv.ID == "" {
		return errors.New("invoice missing id")
	}
	u, ok := s.invoiceOwner(ctx, inv)
	if !ok {
		s.log.Warn("invoice for unknown customer", zap.String("invoice_id", inv.ID))
		return nil
	}

	status := billingdomain.PaymentPaid
	amount := inv.AmountPaid
	if !paid {
		status = billingdomain.PaymentFailed
		amount = inv.AmountDue
	}

	payment := billingdomain.Payment{
		UserID:      u.ID,
		PlanID:      u.PlanID,
		ProductType: billingdomain.ProductSubscription,
		AmountCents: amount,
		Currency:    string(inv.Currency),
		Status:      status,
		InvoiceID:   &inv.ID,
	}
	if inv.Subscription != nil && inv.Subscription.ID != "" {
		payment.StripeSubscriptionID = &inv.Subscription.ID
	}
	if inv.PaymentIntent != nil && inv.PaymentIntent.ID != "" {
		payment.StripePaymentIntentID = &inv.PaymentIntent.ID
	}
	if inv.HostedInvoiceURL != "" {
		payment.ReceiptURL = &inv.HostedInvoiceURL
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "invoice_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "amount_cents"}),
		}).
		Create(&payment)
	if res.Error != nil {
		return fmt.Errorf("store invoice payment: %w", res.Error)
	}

	if !paid {
		s.auditEntry(ctx, auditsvc.Entry{
			UserID:     auditsvc.UserRef(u.ID),
			Action:     auditsvc.ActionPaymentFailed,
			Resource:   "invoice",
			ResourceID: inv.ID,
			Severity:   auditdomain.SeverityWarning,
			Details:    map[string]any{"amount_due": inv.AmountDue, "currency": string(inv.Currency)},
		})
		s.notify(ctx, u.ID, "Payment failed", "We could not charge your card. Update your payment method to keep your plan.")
	}
	return nil
}

func (s *Service) subscriber(ctx context.Context, sub *stripeapi.Subscription) (users.User, bool) {
	var u users.User
	if id := userIDFromMetadata(sub.Metadata); id != 0 {
		if err := s.db.WithContext(ctx).First(&u, id).Error; err == nil {
			return u, true
		}
	}
	if err := s.db.WithContext(ctx).Where("subscription_id = ?", sub.ID).First(&u).Error; err == nil {
		return u, true
	}
	return u, false
}

func (s *Service) invoiceOwner(ctx context.Context, inv *stripeapi.Invoice) (users.User, bool) {
	var u users.User
	if inv.Subscription != nil && inv.Subscription.ID != "" {
		if err := s.db.WithContext(ctx).Where("subscription_id = ?", inv.Subscription.ID).First(&u).Error; err == nil {
			return u, true
		}
	}
	if inv.Customer != nil && inv.Customer.ID != "" {
		if err := s.db.WithContext(ctx).Where("stripe_customer_id = ?", inv.Customer.ID).First(&u).Error; err == nil {
			return u, true
		}
	}
	return u, false
}

func (s *Service) auditEntry(ctx context.Context, e auditsvc.Entry) {
	if err := s.audit.Record(ctx, e); err != nil {
		s.log.Warn("audit write failed", zap.String("action", e.Action), zap.Error(err))
	}
}

func (s *Service) notify(ctx context.Context, userID uint, title, message string) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Create(ctx, userID, notificationdomain.TypeSystem, title, message); err != nil {
		s.log.Warn("billing notification failed", zap.Uint("user_id", userID), zap.Error(err))
	}
}

func userIDFromMetadata(md map[string]string) uint {
	return parseUserID(md["user_id"])
}

func parseUserID(s string) uint {
	if s == "" {
		return 0
	}
	uid, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return uint(uid)
}
