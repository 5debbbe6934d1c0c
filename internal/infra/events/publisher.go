package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Routing keys published by the API.
const (
	FeaturePurchased    = "feature.purchased"
	FeatureRefunded     = "feature.refunded"
	NotificationCreated = "notification.created"
	EntitlementGranted  = "entitlement.granted"
	EntitlementRevoked  = "entitlement.revoked"
	SubscriptionChanged = "subscription.changed"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, body any) error
	Close()
}

// NopPublisher logs instead of publishing. It is used when RabbitMQ is not configured or unreachable at startup.
type NopPublisher struct {
	Log *zap.Logger
}

func (p NopPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	if p.Log != nil {
		p.Log.Debug("event not published, no broker", zap.String("routing_key", routingKey))
	}
	return nil
}

func (NopPublisher) Close() {}

// RabbitPublisher publishes JSON messages to a durable topic exchange.
type RabbitPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      *zap.Logger
}

func NewRabbitPublisher(amqpURL, exchange string, log *zap.Logger) (*RabbitPublisher, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	if exchange == "" {
		return nil, errors.New("rabbitmq exchange is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	p := &RabbitPublisher{conn: conn, exchange: exchange, log: log}
	if err := p.reopen(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return p, nil
}

func (p *RabbitPublisher) reopen() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("declare exchange %q: %w", p.exchange, err)
	}
	p.channel = ch
	return nil
}

// Publish retries once on a fresh channel when the first attempt fails.
func (p *RabbitPublisher) Publish(ctx context.Context, routingKey string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        payload,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}
	p.log.Warn("publish failed, reopening channel", zap.String("routing_key", routingKey), zap.Error(err))
	if rerr := p.reopen(); rerr != nil {
		return errors.Join(err, rerr)
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

func (p *RabbitPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// sanitizeAMQPURL strips quotes and stray prefixes that creep in from .env files.
func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// Recorder collects published events in memory.
type Recorder struct {
	mu     sync.Mutex
	Events []Recorded
}

type Recorded struct {
	RoutingKey string
	Body       any
}

func (r *Recorder) Publish(_ context.Context, routingKey string, body any) error {
	r.mu.Lock()
	r.Events = append(r.Events, Recorded{RoutingKey: routingKey, Body: body})
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Close() {}

// Keys returns the routing keys published so far, in order.
func (r *Recorder) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.RoutingKey
	}
	return out
}

var (
	_ Publisher = NopPublisher{}
	_ Publisher = (*RabbitPublisher)(nil)
	_ Publisher = (*Recorder)(nil)
)
