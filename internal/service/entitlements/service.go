package entitlements

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kaiden-app/internal/domain/access"
	entitlementdomain "kaiden-app/internal/domain/entitlements"
	"kaiden-app/internal/domain/features"
	"kaiden-app/internal/domain/pricing"
	"kaiden-app/internal/domain/purchases"
	"kaiden-app/internal/domain/users"
	"kaiden-app/internal/infra/events"
	"kaiden-app/internal/infra/metrics"
	auditsvc "kaiden-app/internal/service/audit"
)

var (
	ErrUnknownFeature = errors.New("unknown feature")
	ErrUserNotFound   = errors.New("user not found")
	ErrGrantNotFound  = errors.New("entitlement grant not found")
	ErrInvalidGrant   = errors.New("invalid entitlement grant")
)

// Offer is the single-use purchase exit shown on the upgrade branch.
type Offer struct {
	pricing.FeaturePricing
	FormattedPrice string `json:"formatted_price"`
}

// Decision is the gate result for one feature.
type Decision struct {
	Feature     string                    `json:"feature"`
	Outcome     access.GateOutcome        `json:"outcome"`
	HasAccess   bool                      `json:"has_access"`
	Source      access.Source             `json:"source,omitempty"`
	MinimumTier features.SubscriptionTier `json:"minimum_tier,omitempty"`
	PlansURL    string                    `json:"plans_url,omitempty"`
	Offer       *Offer                    `json:"offer,omitempty"`
}

type Service struct {
	db      *gorm.DB
	catalog *pricing.Catalog
	audit   *auditsvc.Writer
	events  events.Publisher
	metrics *metrics.Metrics
	log     *zap.Logger
	appURL  string
	now     func() time.Time
}

type Deps struct {
	Catalog *pricing.Catalog
	Audit   *auditsvc.Writer
	Events  events.Publisher
	Metrics *metrics.Metrics
	Log     *zap.Logger
	AppURL  string
}

func NewService(db *gorm.DB, d Deps) *Service {
	s := &Service{
		db:      db,
		catalog: d.Catalog,
		audit:   d.Audit,
		events:  d.Events,
		metrics: d.Metrics,
		log:     d.Log,
		appURL:  d.AppURL,
		now:     time.Now,
	}
	if s.catalog == nil {
		s.catalog = pricing.Default()
	}
	if s.audit == nil {
		s.audit = auditsvc.NewWriter(db, d.Log)
	}
	if s.events == nil {
		s.events = events.NopPublisher{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// LoadSubject gathers the user, their grants and their completed purchases.
func (s *Service) LoadSubject(ctx context.Context, userID uint) (access.Subject, error) {
	var subj access.Subject
	db := s.db.WithContext(ctx)

	err := db.Preload("Plan").First(&subj.User, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return subj, ErrUserNotFound
	}
	if err != nil {
		return subj, err
	}
	if err := db.Where("user_id = ? AND status = ?", userID, entitlementdomain.StatusActive).
		Find(&subj.Grants).Error; err != nil {
		return subj, err
	}
	if err := db.Where("user_id = ? AND status = ? AND is_active = ?", userID, purchases.StatusCompleted, true).
		Find(&subj.Purchases).Error; err != nil {
		return subj, err
	}
	return subj, nil
}

// Check reports whether userID may use feature.
func (s *Service) Check(ctx context.Context, userID uint, feature string) (bool, access.Source, error) {
	if _, ok := features.Lookup(feature); !ok {
		return false, access.SourceNone, ErrUnknownFeature
	}
	subj, err := s.LoadSubject(ctx, userID)
	if err != nil {
		return false, access.SourceNone, err
	}
	ok, src := access.Resolve(s.now(), subj, feature)
	return ok, src, nil
}

// Gate decides the page branch for feature. userID 0 is an anonymous caller.
func (s *Service) Gate(ctx context.Context, userID uint, feature string) (Decision, error) {
	if _, ok := features.Lookup(feature); !ok {
		return Decision{}, ErrUnknownFeature
	}

	d := Decision{Feature: feature}
	authenticated := userID != 0
	if authenticated {
		ok, src, err := s.Check(ctx, userID, feature)
		switch {
		case errors.Is(err, ErrUserNotFound):
			// a token for a deleted account counts as signed out
			authenticated = false
		case err != nil:
			return Decision{}, err
		default:
			d.HasAccess, d.Source = ok, src
		}
	}

	d.Outcome = access.Decide(authenticated, d.HasAccess)
	if d.Outcome == access.GateUpgrade {
		d.MinimumTier = features.MinimumTierForFeature(feature)
		d.PlansURL = s.appURL + "/pricing?feature=" + feature
		if p, ok := s.catalog.GetFeaturePricing(feature); ok {
			d.Offer = &Offer{FeaturePricing: p, FormattedPrice: pricing.FormatPrice(p.Price, p.Currency)}
		}
	}
	s.metrics.EntitlementCheck(feature, string(d.Outcome))
	return d, nil
}

// Policy is the caller's access summary.
func (s *Service) Policy(ctx context.Context, userID uint) (access.Policy, error) {
	subj, err := s.LoadSubject(ctx, userID)
	if err != nil {
		return access.Policy{}, err
	}
	return access.ComputePolicy(s.now(), subj), nil
}

type GrantInput struct {
	UserID    uint       `json:"user_id"`
	Feature   string     `json:"feature"`
	GrantedBy string     `json:"granted_by"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// Grant creates or reactivates the (user, feature) grant.
func (s *Service) Grant(ctx context.Context, in GrantInput, actorID uint) (entitlementdomain.Grant, error) {
	if _, ok := features.Lookup(in.Feature); !ok {
		return entitlementdomain.Grant{}, ErrUnknownFeature
	}
	if in.GrantedBy == "" {
		in.GrantedBy = entitlementdomain.GrantedByAdmin
	}
	if !entitlementdomain.ValidGrantedBy(in.GrantedBy) {
		return entitlementdomain.Grant{}, fmt.Errorf("%w: granted_by %q", ErrInvalidGrant, in.GrantedBy)
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(s.now()) {
		return entitlementdomain.Grant{}, fmt.Errorf("%w: expires_at is in the past", ErrInvalidGrant)
	}

	var grant entitlementdomain.Grant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&users.User{}, in.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		grant = entitlementdomain.Grant{
			UserID:    in.UserID,
			Feature:   in.Feature,
			GrantedBy: in.GrantedBy,
			Status:    entitlementdomain.StatusActive,
			ExpiresAt: in.ExpiresAt,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "feature"}},
			DoUpdates: clause.AssignmentColumns([]string{"granted_by", "status", "expires_at", "updated_at"}),
		}).Create(&grant).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ? AND feature = ?", in.UserID, in.Feature).First(&grant).Error; err != nil {
			return err
		}

		return s.audit.RecordTx(tx, auditsvc.Entry{
			UserID:     auditsvc.UserRef(in.UserID),
			Action:     auditsvc.ActionEntitlementGranted,
			Resource:   "entitlement",
			ResourceID: strconv.FormatUint(uint64(grant.ID), 10),
			Details: map[string]any{
				"feature":    in.Feature,
				"granted_by": in.GrantedBy,
				"actor_id":   actorID,
			},
		})
	})
	if err != nil {
		return entitlementdomain.Grant{}, err
	}

	s.publish(ctx, events.EntitlementGranted, grant)
	return grant, nil
}

// Revoke marks a grant revoked. Revoking twice is a no-op.
func (s *Service) Revoke(ctx context.Context, grantID, actorID uint) (entitlementdomain.Grant, error) {
	var (
		grant   entitlementdomain.Grant
		changed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&grant, grantID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrGrantNotFound
			}
			return err
		}
		if grant.Status == entitlementdomain.StatusRevoked {
			return nil
		}
		// conditional so a concurrent revoke of the same grant counts once
		res := tx.Model(&entitlementdomain.Grant{}).
			Where("id = ? AND status <> ?", grant.ID, entitlementdomain.StatusRevoked).
			Update("status", entitlementdomain.StatusRevoked)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		changed = true
		grant.Status = entitlementdomain.StatusRevoked
		return s.audit.RecordTx(tx, auditsvc.Entry{
			UserID:     auditsvc.UserRef(grant.UserID),
			Action:     auditsvc.ActionEntitlementRevoked,
			Resource:   "entitlement",
			ResourceID: strconv.FormatUint(uint64(grant.ID), 10),
			Details:    map[string]any{"feature": grant.Feature, "actor_id": actorID},
		})
	})
	if err != nil {
		return entitlementdomain.Grant{}, err
	}
	if changed {
		s.publish(ctx, events.EntitlementRevoked, grant)
	}
	return grant, nil
}

// ExpireGrants flips active grants whose expiry passed to expired.
func (s *Service) ExpireGrants(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&entitlementdomain.Grant{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", entitlementdomain.StatusActive, s.now()).
		Update("status", entitlementdomain.StatusExpired)
	return res.RowsAffected, res.Error
}

// ListGrants returns a user's grants, newest first.
func (s *Service) ListGrants(ctx context.Context, userID uint) ([]entitlementdomain.Grant, error) {
	out := []entitlementdomain.Grant{}
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&out).Error
	return out, err
}

func (s *Service) publish(ctx context.Context, key string, g entitlementdomain.Grant) {
	if err := s.events.Publish(ctx, key, map[string]any{
		"grant_id": g.ID,
		"user_id":  g.UserID,
		"feature":  g.Feature,
		"status":   g.Status,
	}); err != nil {
		s.log.Warn("publish failed", zap.String("routing_key", key), zap.Error(err))
	}
}
