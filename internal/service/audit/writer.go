package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	auditdomain "kaiden-app/internal/domain/audit"
)

const (
	ActionPurchaseCompleted   = "feature_purchase.completed"
	ActionPurchaseRefunded    = "feature_purchase.refunded"
	ActionPurchaseExpired     = "feature_purchase.expired"
	ActionEntitlementGranted  = "entitlement.granted"
	ActionEntitlementRevoked  = "entitlement.revoked"
	ActionSubscriptionStarted = "subscription.started"
	ActionSubscriptionUpdated = "subscription.updated"
	ActionSubscriptionDeleted = "subscription.deleted"
	ActionPaymentFailed       = "payment.failed"
	ActionPasswordChanged     = "user.password_changed"
)

type Entry struct {
	UserID     *uint
	Action     string
	Resource   string
	ResourceID string
	Severity   string
	Details    map[string]any
}

// Writer appends audit rows. Failures are logged and returned; callers decide
// whether they are fatal.
type Writer struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewWriter(db *gorm.DB, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{db: db, log: log}
}

func (w *Writer) Record(ctx context.Context, e Entry) error {
	return w.RecordTx(w.db.WithContext(ctx), e)
}

// RecordTx writes e inside an existing transaction.
func (w *Writer) RecordTx(tx *gorm.DB, e Entry) error {
	row := auditdomain.Log{
		UserID:     e.UserID,
		Action:     e.Action,
		Resource:   e.Resource,
		ResourceID: e.ResourceID,
		Severity:   e.Severity,
	}
	if row.Severity == "" {
		row.Severity = auditdomain.SeverityInfo
	}
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("audit details: %w", err)
		}
		row.Details = datatypes.JSON(b)
	}
	if err := tx.Create(&row).Error; err != nil {
		w.log.Error("audit write failed", zap.String("action", e.Action), zap.Error(err))
		return fmt.Errorf("audit write: %w", err)
	}
	return nil
}

// List returns the newest rows first, optionally for one user.
func (w *Writer) List(ctx context.Context, userID *uint, limit int) ([]auditdomain.Log, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := w.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Limit(limit)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	out := []auditdomain.Log{}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func UserRef(id uint) *uint { return &id }
