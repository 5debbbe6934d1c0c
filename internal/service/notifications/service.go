package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	notificationdomain "kaiden-app/internal/domain/notifications"
	"kaiden-app/internal/infra/cache"
	"kaiden-app/internal/infra/events"
	"kaiden-app/internal/infra/metrics"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100

	unreadTTL = 5 * time.Minute
)

var (
	ErrNotFound = errors.New("notification not found")
	ErrInvalid  = errors.New("invalid notification")
)

// Broadcaster pushes a payload to every open socket of a user.
type Broadcaster interface {
	Broadcast(userID uint, payload any) int
}

// PushMessage is the socket frame sent for a new notification.
type PushMessage struct {
	Event     string                  `json:"event"`
	ID        string                  `json:"id"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	Type      notificationdomain.Type `json:"type"`
	CreatedAt time.Time               `json:"created_at"`
}

type Service struct {
	db      *gorm.DB
	hub     Broadcaster
	counts  cache.Counter
	events  events.Publisher
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

type Deps struct {
	Hub     Broadcaster
	Counts  cache.Counter
	Events  events.Publisher
	Metrics *metrics.Metrics
	Log     *zap.Logger
}

func NewService(db *gorm.DB, d Deps) *Service {
	s := &Service{
		db:      db,
		hub:     d.Hub,
		counts:  d.Counts,
		events:  d.Events,
		metrics: d.Metrics,
		log:     d.Log,
		now:     time.Now,
	}
	if s.counts == nil {
		s.counts = cache.NewMemoryCounter()
	}
	if s.events == nil {
		s.events = events.NopPublisher{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Create stores a notification and pushes it to the user's open sockets.
// Push and publish failures never fail the call.
func (s *Service) Create(ctx context.Context, userID uint, kind notificationdomain.Type, title, message string) (notificationdomain.Notification, error) {
	if _, err := notificationdomain.ParseType(string(kind)); err != nil {
		return notificationdomain.Notification{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	title = strings.TrimSpace(title)
	if userID == 0 || title == "" {
		return notificationdomain.Notification{}, fmt.Errorf("%w: user and title are required", ErrInvalid)
	}

	n := notificationdomain.Notification{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Type:      kind,
		Title:     title,
		Message:   message,
		CreatedAt: s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		return notificationdomain.Notification{}, fmt.Errorf("create notification: %w", err)
	}

	s.invalidate(ctx, userID)
	s.metrics.NotificationCreated(string(kind))

	if s.hub != nil {
		delivered := s.hub.Broadcast(userID, PushMessage{
			Event:     "notification",
			ID:        n.ID,
			Title:     n.Title,
			Message:   n.Message,
			Type:      n.Type,
			CreatedAt: n.CreatedAt,
		})
		s.log.Debug("notification pushed", zap.Uint("user_id", userID), zap.Int("sockets", delivered))
	}
	if err := s.events.Publish(ctx, events.NotificationCreated, map[string]any{
		"id":      n.ID,
		"user_id": userID,
		"type":    n.Type,
	}); err != nil {
		s.log.Warn("publish notification.created failed", zap.Error(err))
	}
	return n, nil
}

// List returns the newest notifications first. limit is clamped to [1, MaxLimit]; 0 means DefaultLimit.
func (s *Service) List(ctx context.Context, userID uint, limit int) ([]notificationdomain.Notification, error) {
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	out := []notificationdomain.Notification{}
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UnreadCount reads through the counter cache. Cached values live under the
// user's current generation, and invalidation bumps the generation, so a fill
// that raced with a write lands on a key nobody reads again.
func (s *Service) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	key, cacheable := s.cacheKey(ctx, userID)
	if cacheable {
		if n, ok, err := s.counts.Get(ctx, key); err == nil && ok {
			return n, nil
		} else if err != nil {
			s.log.Warn("unread count cache read failed", zap.Error(err))
		}
	}

	var n int64
	err := s.db.WithContext(ctx).
		Model(&notificationdomain.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&n).Error
	if err != nil {
		return 0, err
	}
	if cacheable {
		if err := s.counts.Set(ctx, key, n, unreadTTL); err != nil {
			s.log.Warn("unread count cache write failed", zap.Error(err))
		}
	}
	return n, nil
}

func (s *Service) cacheKey(ctx context.Context, userID uint) (string, bool) {
	gen, _, err := s.counts.Get(ctx, generationKey(userID))
	if err != nil {
		s.log.Warn("unread count generation read failed", zap.Error(err))
		return "", false
	}
	return unreadKey(userID, gen), true
}

// MarkAsRead is idempotent: a second call returns the same state and keeps the first ReadAt.
func (s *Service) MarkAsRead(ctx context.Context, userID uint, id string) (notificationdomain.Notification, error) {
	var n notificationdomain.Notification
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notificationdomain.Notification{}, ErrNotFound
	}
	if err != nil {
		return notificationdomain.Notification{}, err
	}
	if n.Read {
		return n, nil
	}

	now := s.now().UTC()
	res := s.db.WithContext(ctx).
		Model(&notificationdomain.Notification{}).
		Where("id = ? AND user_id = ? AND read = ?", id, userID, false).
		Updates(map[string]any{"read": true, "read_at": now})
	if res.Error != nil {
		return notificationdomain.Notification{}, res.Error
	}
	s.invalidate(ctx, userID)

	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&n).Error; err != nil {
		return notificationdomain.Notification{}, err
	}
	return n, nil
}

// MarkAllAsRead returns how many notifications changed state.
func (s *Service) MarkAllAsRead(ctx context.Context, userID uint) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&notificationdomain.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Updates(map[string]any{"read": true, "read_at": s.now().UTC()})
	if res.Error != nil {
		return 0, res.Error
	}
	s.invalidate(ctx, userID)
	return res.RowsAffected, nil
}

func (s *Service) invalidate(ctx context.Context, userID uint) {
	gen, err := s.counts.Incr(ctx, generationKey(userID))
	if err != nil {
		s.log.Warn("unread count cache invalidate failed", zap.Error(err))
		return
	}
	if err := s.counts.Delete(ctx, unreadKey(userID, gen-1)); err != nil {
		s.log.Debug("drop stale unread count failed", zap.Error(err))
	}
}

func generationKey(userID uint) string { return fmt.Sprintf("notifications:unread-gen:%d", userID) }

func unreadKey(userID uint, gen int64) string {
	return fmt.Sprintf("notifications:unread:%d:%d", userID, gen)
}
