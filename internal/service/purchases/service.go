package purchases

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	stripeapi "github.com/stripe/stripe-go/v75"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kaiden-app/internal/domain/billing"
	notificationdomain "kaiden-app/internal/domain/notifications"
	"kaiden-app/internal/domain/pricing"
	purchasedomain "kaiden-app/internal/domain/purchases"
	"kaiden-app/internal/domain/users"
	"kaiden-app/internal/infra/events"
	"kaiden-app/internal/infra/metrics"
	"kaiden-app/internal/infra/stripe"
	auditsvc "kaiden-app/internal/service/audit"
)

var (
	ErrUnknownFeature    = errors.New("feature is not sold individually")
	ErrUserNotFound      = errors.New("user not found")
	ErrEmailNotVerified  = errors.New("email not verified")
	ErrAlreadyOwned      = errors.New("feature already purchased and active")
	ErrSessionNotFound   = errors.New("checkout session not found")
	ErrForeignSession    = errors.New("checkout session belongs to another user")
	ErrNotPaid           = errors.New("checkout session is not paid")
	ErrNotFeatureSession = errors.New("checkout session is not a feature purchase")
	ErrPurchaseNotFound  = errors.New("feature purchase not found")
)

// Notifier delivers in-app notifications.
type Notifier interface {
	Create(ctx context.Context, userID uint, kind notificationdomain.Type, title, message string) (notificationdomain.Notification, error)
}

type CheckoutResult struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

type Service struct {
	db       *gorm.DB
	gateway  stripe.Gateway
	catalog  *pricing.Catalog
	notifier Notifier
	audit    *auditsvc.Writer
	events   events.Publisher
	metrics  *metrics.Metrics
	log      *zap.Logger
	appURL   string
	now      func() time.Time
}

type Deps struct {
	Gateway  stripe.Gateway
	Catalog  *pricing.Catalog
	Notifier Notifier
	Audit    *auditsvc.Writer
	Events   events.Publisher
	Metrics  *metrics.Metrics
	Log      *zap.Logger
	AppURL   string
}

func NewService(db *gorm.DB, d Deps) *Service {
	s := &Service{
		db:       db,
		gateway:  d.Gateway,
		catalog:  d.Catalog,
		notifier: d.Notifier,
		audit:    d.Audit,
		events:   d.Events,
		metrics:  d.Metrics,
		log:      d.Log,
		appURL:   d.AppURL,
		now:      time.Now,
	}
	if s.catalog == nil {
		s.catalog = pricing.Default()
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

// CreateCheckout opens a one-time payment session for feature and records it as pending.
func (s *Service) CreateCheckout(ctx context.Context, userID uint, feature string) (CheckoutResult, error) {
	offer, ok := s.catalog.GetFeaturePricing(feature)
	if !ok {
		return CheckoutResult{}, ErrUnknownFeature
	}

	var user users.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return CheckoutResult{}, ErrUserNotFound
		}
		return CheckoutResult{}, err
	}
	if !user.IsVerified {
		return CheckoutResult{}, ErrEmailNotVerified
	}

	owned, err := s.activePurchase(ctx, userID, feature)
	if err != nil {
		return CheckoutResult{}, err
	}
	if owned != nil {
		return CheckoutResult{}, ErrAlreadyOwned
	}

	uid := strconv.FormatUint(uint64(user.ID), 10)
	params := &stripeapi.CheckoutSessionParams{
		Mode:              stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		SuccessURL:        stripeapi.String(s.appURL + "/purchase/success?session_id={CHECKOUT_SESSION_ID}&feature=" + feature),
		CancelURL:         stripeapi.String(s.appURL + "/pricing?feature=" + feature + "&canceled=1"),
		ClientReferenceID: stripeapi.String(uid),
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{
			{
				PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripeapi.String(offer.Currency),
					UnitAmount: stripeapi.Int64(offer.Price),
					ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripeapi.String(offer.DisplayName),
						Description: stripeapi.String(offer.Description),
					},
				},
				Quantity: stripeapi.Int64(1),
			},
		},
	}
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		params.Customer = user.StripeCustomerID
	} else {
		params.CustomerEmail = stripeapi.String(user.Email)
	}
	params.AddMetadata("user_id", uid)
	params.AddMetadata("feature", feature)

	sess, err := s.gateway.CreateCheckoutSession(params)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("create checkout session: %w", err)
	}

	p := purchasedomain.FeaturePurchase{
		UserID:                  user.ID,
		FeatureName:             feature,
		Amount:                  offer.Price,
		Currency:                offer.Currency,
		Status:                  purchasedomain.StatusPending,
		StripeCheckoutSessionID: sess.ID,
	}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return CheckoutResult{}, fmt.Errorf("store pending purchase: %w", err)
	}

	s.metrics.FeaturePurchase(feature, purchasedomain.StatusPending)
	s.log.Info("feature checkout created",
		zap.Uint("user_id", user.ID),
		zap.String("feature", feature),
		zap.String("session_id", sess.ID),
	)
	return CheckoutResult{URL: sess.URL, SessionID: sess.ID}, nil
}

// Verify is the return-from-checkout path: it completes the purchase when Stripe reports the session paid.
func (s *Service) Verify(ctx context.Context, userID uint, sessionID string) (purchasedomain.FeaturePurchase, error) {
	sess, err := s.gateway.GetCheckoutSession(sessionID, nil)
	if err != nil {
		return purchasedomain.FeaturePurchase{}, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}
	if owner, ok := sessionUserID(sess); !ok || owner != userID {
		return purchasedomain.FeaturePurchase{}, ErrForeignSession
	}
	if sess.PaymentStatus != stripeapi.CheckoutSessionPaymentStatusPaid {
		return purchasedomain.FeaturePurchase{}, ErrNotPaid
	}
	p, _, err := s.CompleteSession(ctx, sess)
	return p, err
}

// CompleteSession activates the purchase behind a paid session. It is safe to
// call repeatedly; changed is false when the purchase was already settled.
func (s *Service) CompleteSession(ctx context.Context, sess *stripeapi.CheckoutSession) (p purchasedomain.FeaturePurchase, changed bool, err error) {
	feature := sess.Metadata["feature"]
	userID, ok := sessionUserID(sess)
	if feature == "" || !ok {
		return p, false, ErrNotFeatureSession
	}
	offer, known := s.catalog.GetFeaturePricing(feature)

	now := s.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("stripe_checkout_session_id = ?", sess.ID).First(&p).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			// the pending row is missing; rebuild it from the session
			p = purchasedomain.FeaturePurchase{
				UserID:                  userID,
				FeatureName:             feature,
				Amount:                  sess.AmountTotal,
				Currency:                string(sess.Currency),
				Status:                  purchasedomain.StatusPending,
				StripeCheckoutSessionID: sess.ID,
			}
			if err := tx.Create(&p).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		}

		if p.UserID != userID || p.FeatureName != feature {
			return ErrForeignSession
		}
		if p.Status != purchasedomain.StatusPending {
			return nil
		}

		updates := map[string]any{
			"status":       purchasedomain.StatusCompleted,
			"is_active":    true,
			"purchased_at": now,
		}
		if known {
			updates["expires_at"] = pricing.ExpiresAt(offer, now)
		}
		if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
			updates["stripe_payment_intent_id"] = sess.PaymentIntent.ID
		}
		// the status guard keeps concurrent deliveries from completing twice
		res := tx.Model(&purchasedomain.FeaturePurchase{}).
			Where("id = ? AND status = ?", p.ID, purchasedomain.StatusPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := tx.First(&p, p.ID).Error; err != nil {
			return err
		}

		payment := billing.Payment{
			UserID:                p.UserID,
			ProductType:           billing.ProductFeature,
			Feature:               &p.FeatureName,
			StripeSessionID:       &p.StripeCheckoutSessionID,
			StripePaymentIntentID: p.StripePaymentIntentID,
			AmountCents:           p.Amount,
			Currency:              p.Currency,
			Status:                billing.PaymentPaid,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&payment).Error; err != nil {
			return err
		}

		changed = true
		return s.audit.RecordTx(tx, auditsvc.Entry{
			UserID:     auditsvc.UserRef(p.UserID),
			Action:     auditsvc.ActionPurchaseCompleted,
			Resource:   "feature_purchase",
			ResourceID: strconv.FormatUint(uint64(p.ID), 10),
			Details: map[string]any{
				"feature":    p.FeatureName,
				"amount":     p.Amount,
				"currency":   p.Currency,
				"session_id": p.StripeCheckoutSessionID,
			},
		})
	})
	if err != nil || !changed {
		return p, false, err
	}

	s.metrics.FeaturePurchase(p.FeatureName, purchasedomain.StatusCompleted)
	s.log.Info("feature purchase activated", zap.Uint("user_id", p.UserID), zap.String("feature", p.FeatureName))
	s.notify(ctx, p.UserID, "Feature unlocked: "+displayName(offer, known, p.FeatureName), completionMessage(p))
	s.publish(ctx, events.FeaturePurchased, p)
	return p, true, nil
}

// Refund deactivates the purchase paid by paymentIntentID.
func (s *Service) Refund(ctx context.Context, paymentIntentID string) (p purchasedomain.FeaturePurchase, changed bool, err error) {
	if paymentIntentID == "" {
		return p, false, ErrPurchaseNotFound
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("stripe_payment_intent_id = ?", paymentIntentID).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPurchaseNotFound
			}
			return err
		}
		if p.Status == purchasedomain.StatusRefunded {
			return nil
		}
		res := tx.Model(&purchasedomain.FeaturePurchase{}).
			Where("id = ? AND status <> ?", p.ID, purchasedomain.StatusRefunded).
			Updates(map[string]any{"status": purchasedomain.StatusRefunded, "is_active": false})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		p.Status = purchasedomain.StatusRefunded
		p.IsActive = false
		if err := tx.Model(&billing.Payment{}).
			Where("stripe_payment_intent_id = ?", paymentIntentID).
			Update("status", billing.PaymentRefunded).Error; err != nil {
			return err
		}
		changed = true
		return s.audit.RecordTx(tx, auditsvc.Entry{
			UserID:     auditsvc.UserRef(p.UserID),
			Action:     auditsvc.ActionPurchaseRefunded,
			Resource:   "feature_purchase",
			ResourceID: strconv.FormatUint(uint64(p.ID), 10),
			Details:    map[string]any{"feature": p.FeatureName, "payment_intent": paymentIntentID},
		})
	})
	if err != nil || !changed {
		return p, false, err
	}

	s.metrics.FeaturePurchase(p.FeatureName, purchasedomain.StatusRefunded)
	s.notify(ctx, p.UserID, "Purchase refunded", fmt.Sprintf("Your purchase of %s was refunded and access has ended.", p.FeatureName))
	s.publish(ctx, events.FeatureRefunded, p)
	return p, true, nil
}

// History lists a user's purchases, newest first.
func (s *Service) History(ctx context.Context, userID uint) ([]purchasedomain.FeaturePurchase, error) {
	out := []purchasedomain.FeaturePurchase{}
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&out).Error
	return out, err
}

// ExpireDue ends completed purchases whose access window has passed.
func (s *Service) ExpireDue(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&purchasedomain.FeaturePurchase{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", purchasedomain.StatusCompleted, s.now()).
		Updates(map[string]any{"status": purchasedomain.StatusExpired, "is_active": false})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		s.log.Info("feature purchases expired", zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}

func (s *Service) activePurchase(ctx context.Context, userID uint, feature string) (*purchasedomain.FeaturePurchase, error) {
	var rows []purchasedomain.FeaturePurchase
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND feature_name = ? AND status = ? AND is_active = ?", userID, feature, purchasedomain.StatusCompleted, true).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range rows {
		if rows[i].ActiveAt(now) {
			return &rows[i], nil
		}
	}
	return nil, nil
}

func (s *Service) notify(ctx context.Context, userID uint, title, message string) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Create(ctx, userID, notificationdomain.TypeSystem, title, message); err != nil {
		s.log.Warn("purchase notification failed", zap.Uint("user_id", userID), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, key string, p purchasedomain.FeaturePurchase) {
	if err := s.events.Publish(ctx, key, map[string]any{
		"purchase_id": p.ID,
		"user_id":     p.UserID,
		"feature":     p.FeatureName,
		"amount":      p.Amount,
		"currency":    p.Currency,
		"status":      p.Status,
		"expires_at":  p.ExpiresAt,
	}); err != nil {
		s.log.Warn("publish failed", zap.String("routing_key", key), zap.Error(err))
	}
}

// sessionUserID reads metadata.user_id, the legacy metadata.userId, then client_reference_id.
func sessionUserID(sess *stripeapi.CheckoutSession) (uint, bool) {
	for _, raw := range []string{sess.Metadata["user_id"], sess.Metadata["userId"], sess.ClientReferenceID} {
		if raw == "" {
			continue
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			return 0, false
		}
		return uint(id), true
	}
	return 0, false
}

func displayName(offer pricing.FeaturePricing, known bool, feature string) string {
	if known && offer.DisplayName != "" {
		return offer.DisplayName
	}
	return feature
}

func completionMessage(p purchasedomain.FeaturePurchase) string {
	msg := fmt.Sprintf("Payment of %s received.", pricing.FormatPrice(p.Amount, p.Currency))
	if p.ExpiresAt != nil {
		return msg + " Access runs until " + p.ExpiresAt.UTC().Format("Jan 2, 2006") + "."
	}
	return msg + " Access never expires."
}
