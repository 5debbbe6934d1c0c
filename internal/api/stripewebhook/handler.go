package stripewebhooks

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	stripeapi "github.com/stripe/stripe-go/v75"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	billingdomain "kaiden-app/internal/domain/billing"
	"kaiden-app/internal/infra/metrics"
	"kaiden-app/internal/infra/stripe"
	"kaiden-app/internal/service/billing"
	"kaiden-app/internal/service/purchases"
)

const maxBodyBytes = 65536

type Handler struct {
	db        *gorm.DB
	gateway   stripe.Gateway
	billing   *billing.Service
	purchases *purchases.Service
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time
}

func NewHandler(db *gorm.DB, gateway stripe.Gateway, b *billing.Service, p *purchases.Service, m *metrics.Metrics, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{db: db, gateway: gateway, billing: b, purchases: p, metrics: m, log: log, now: time.Now}
}

// errBadPayload marks events Stripe should not retry.
var errBadPayload = errors.New("malformed event payload")

func (h *Handler) StripeWebhook(c *gin.Context) {
	payload, err := readStripeBody(c, maxBodyBytes)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Error reading request body"})
		return
	}

	event, err := h.gateway.ConstructEvent(payload, c.GetHeader("Stripe-Signature"))
	if errors.Is(err, stripe.ErrMalformedEvent) {
		h.rejectMalformed(c, payload, err)
		return
	}
	if err != nil {
		h.log.Warn("stripe signature verification failed", zap.Error(err))
		h.metrics.WebhookEvent("unknown", "bad_signature")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Signature verification failed"})
		return
	}
	eventType := string(event.Type)
	log := h.log.With(zap.String("event_id", event.ID), zap.String("event_type", eventType))

	ctx := c.Request.Context()
	record := billingdomain.WebhookEvent{
		Provider:  "stripe",
		EventID:   event.ID,
		EventType: eventType,
		Payload:   payload,
	}
	if err := h.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
		log.Error("store webhook event failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store event"})
		return
	}
	if err := h.db.WithContext(ctx).Where("event_id = ?", event.ID).First(&record).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load event"})
		return
	}
	if record.Processed {
		h.metrics.WebhookEvent(eventType, "duplicate")
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	handled, err := h.dispatch(c, event)
	updates := map[string]any{"attempts": gorm.Expr("attempts + 1"), "error": nil}
	if err == nil || errors.Is(err, errBadPayload) {
		updates["processed"] = true
		updates["processed_at"] = h.now()
	}
	if err != nil {
		updates["error"] = err.Error()
	}
	if uerr := h.db.WithContext(ctx).Model(&billingdomain.WebhookEvent{}).
		Where("id = ?", record.ID).
		Updates(updates).Error; uerr != nil {
		log.Warn("update webhook event failed", zap.Error(uerr))
	}

	switch {
	case errors.Is(err, errBadPayload):
		log.Warn("webhook payload rejected", zap.Error(err))
		h.metrics.WebhookEvent(eventType, "rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		log.Error("webhook processing failed", zap.Error(err))
		h.metrics.WebhookEvent(eventType, "error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	case !handled:
		h.metrics.WebhookEvent(eventType, "ignored")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	default:
		log.Info("webhook processed")
		h.metrics.WebhookEvent(eventType, "processed")
		c.JSON(http.StatusOK, gin.H{"status": "received"})
	}
}

// rejectMalformed records a signed event whose body does not decode as
// processed, so the 400 stops Stripe retrying and the attempt stays auditable.
func (h *Handler) rejectMalformed(c *gin.Context, payload []byte, cause error) {
	var envelope struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	_ = json.Unmarshal(payload, &envelope)
	eventType := envelope.Type
	if eventType == "" {
		eventType = "unknown"
	}
	h.log.Warn("webhook payload rejected", zap.String("event_id", envelope.ID), zap.String("event_type", eventType), zap.Error(cause))
	h.metrics.WebhookEvent(eventType, "rejected")

	if envelope.ID != "" {
		msg := cause.Error()
		now := h.now()
		record := billingdomain.WebhookEvent{
			Provider:    "stripe",
			EventID:     envelope.ID,
			EventType:   eventType,
			Payload:     payload,
			Processed:   true,
			ProcessedAt: &now,
			Error:       &msg,
			Attempts:    1,
		}
		if err := h.db.WithContext(c.Request.Context()).Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
			h.log.Warn("store rejected webhook event failed", zap.Error(err))
		}
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": errBadPayload.Error(), "details": cause.Error()})
}

// dispatch reports whether the event type is one we act on.
func (h *Handler) dispatch(c *gin.Context, event stripeapi.Event) (bool, error) {
	ctx := c.Request.Context()
	switch event.Type {
	case "checkout.session.completed":
		var session stripeapi.CheckoutSession
		if err := decode(event, &session); err != nil {
			return true, err
		}
		return true, h.checkoutCompleted(c, &session)

	case "customer.subscription.updated":
		var sub stripeapi.Subscription
		if err := decode(event, &sub); err != nil {
			return true, err
		}
		return true, h.billing.SubscriptionUpdated(ctx, &sub)

	case "customer.subscription.deleted":
		var sub stripeapi.Subscription
		if err := decode(event, &sub); err != nil {
			return true, err
		}
		return true, h.billing.SubscriptionDeleted(ctx, &sub)

	case "invoice.payment_succeeded", "invoice.payment_failed":
		var inv stripeapi.Invoice
		if err := decode(event, &inv); err != nil {
			return true, err
		}
		return true, h.billing.RecordInvoice(ctx, &inv, event.Type == "invoice.payment_succeeded")

	case "charge.refunded":
		var charge stripeapi.Charge
		if err := decode(event, &charge); err != nil {
			return true, err
		}
		return true, h.chargeRefunded(c, &charge)

	default:
		// acknowledge unknown events to avoid retries
		return false, nil
	}
}

func (h *Handler) checkoutCompleted(c *gin.Context, session *stripeapi.CheckoutSession) error {
	if session.Mode == stripeapi.CheckoutSessionModePayment || session.Metadata["feature"] != "" {
		if session.PaymentStatus != "" && session.PaymentStatus != stripeapi.CheckoutSessionPaymentStatusPaid {
			h.log.Info("feature checkout completed unpaid", zap.String("session_id", session.ID))
			return nil
		}
		_, _, err := h.purchases.CompleteSession(c.Request.Context(), session)
		if errors.Is(err, purchases.ErrNotFeatureSession) || errors.Is(err, purchases.ErrForeignSession) {
			h.log.Warn("feature checkout ignored", zap.String("session_id", session.ID), zap.Error(err))
			return nil
		}
		return err
	}
	return h.billing.ActivateSubscription(c.Request.Context(), session)
}

func (h *Handler) chargeRefunded(c *gin.Context, charge *stripeapi.Charge) error {
	if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
		return nil
	}
	_, _, err := h.purchases.Refund(c.Request.Context(), charge.PaymentIntent.ID)
	if errors.Is(err, purchases.ErrPurchaseNotFound) {
		// subscription charges have no feature purchase
		return nil
	}
	return err
}

func decode(event stripeapi.Event, out any) error {
	if event.Data == nil {
		return errBadPayload
	}
	if err := json.Unmarshal(event.Data.Raw, out); err != nil {
		return errors.Join(errBadPayload, err)
	}
	return nil
}

func readStripeBody(c *gin.Context, maxBytes int64) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	return io.ReadAll(c.Request.Body)
}
