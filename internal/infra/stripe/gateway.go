package stripe

import (
	"encoding/json"
	"errors"
	"fmt"

	stripeapi "github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/client"
	"github.com/stripe/stripe-go/v75/webhook"
)

var ErrNotConfigured = errors.New("stripe is not configured")

// ErrMalformedEvent is returned by ConstructEvent when the signature is valid
// but the payload does not decode. Retrying such an event never succeeds.
var ErrMalformedEvent = errors.New("stripe event payload is malformed")

// Gateway is the slice of the Stripe API the billing and purchase flows use.
type Gateway interface {
	CreateCustomer(params *stripeapi.CustomerParams) (*stripeapi.Customer, error)

	CreateCheckoutSession(params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error)
	GetCheckoutSession(id string, params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error)
	CreatePortalSession(params *stripeapi.BillingPortalSessionParams) (*stripeapi.BillingPortalSession, error)

	GetSubscription(id string) (*stripeapi.Subscription, error)
	UpdateSubscription(id string, params *stripeapi.SubscriptionParams) (*stripeapi.Subscription, error)
	CancelSubscription(id string) (*stripeapi.Subscription, error)

	CreateSchedule(params *stripeapi.SubscriptionScheduleParams) (*stripeapi.SubscriptionSchedule, error)
	UpdateSchedule(id string, params *stripeapi.SubscriptionScheduleParams) (*stripeapi.SubscriptionSchedule, error)
	ReleaseSchedule(id string) (*stripeapi.SubscriptionSchedule, error)

	ListRecurringPrices() ([]*stripeapi.Price, error)

	// ConstructEvent verifies the Stripe-Signature header and decodes the event.
	// A signed payload that fails to decode yields ErrMalformedEvent.
	ConstructEvent(payload []byte, signature string) (stripeapi.Event, error)
}

type apiGateway struct {
	sc            *client.API
	webhookSecret string
}

// NewGateway returns a Gateway backed by the Stripe API. Calls fail with
// ErrNotConfigured when secretKey is empty.
func NewGateway(secretKey, webhookSecret string) Gateway {
	if secretKey == "" {
		return disabledGateway{}
	}
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &apiGateway{sc: sc, webhookSecret: webhookSecret}
}

func (g *apiGateway) CreateCustomer(params *stripeapi.CustomerParams) (*stripeapi.Customer, error) {
	return g.sc.Customers.New(params)
}

func (g *apiGateway) CreateCheckoutSession(params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
	return g.sc.CheckoutSessions.New(params)
}

func (g *apiGateway) GetCheckoutSession(id string, params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
	return g.sc.CheckoutSessions.Get(id, params)
}

func (g *apiGateway) CreatePortalSession(params *stripeapi.BillingPortalSessionParams) (*stripeapi.BillingPortalSession, error) {
	return g.sc.BillingPortalSessions.New(params)
}

func (g *apiGateway) GetSubscription(id string) (*stripeapi.Subscription, error) {
	return g.sc.Subscriptions.Get(id, nil)
}

func (g *apiGateway) UpdateSubscription(id string, params *stripeapi.SubscriptionParams) (*stripeapi.Subscription, error) {
	return g.sc.Subscriptions.Update(id, params)
}

func (g *apiGateway) CancelSubscription(id string) (*stripeapi.Subscription, error) {
	return g.sc.Subscriptions.Cancel(id, nil)
}

func (g *apiGateway) CreateSchedule(params *stripeapi.SubscriptionScheduleParams) (*stripeapi.SubscriptionSchedule, error) {
	return g.sc.SubscriptionSchedules.New(params)
}

func (g *apiGateway) UpdateSchedule(id string, params *stripeapi.SubscriptionScheduleParams) (*stripeapi.SubscriptionSchedule, error) {
	return g.sc.SubscriptionSchedules.Update(id, params)
}

func (g *apiGateway) ReleaseSchedule(id string) (*stripeapi.SubscriptionSchedule, error) {
	return g.sc.SubscriptionSchedules.Release(id, nil)
}

func (g *apiGateway) ListRecurringPrices() ([]*stripeapi.Price, error) {
	params := &stripeapi.PriceListParams{}
	params.Active = stripeapi.Bool(true)
	params.Type = stripeapi.String("recurring")
	params.AddExpand("data.product")

	var out []*stripeapi.Price
	it := g.sc.Prices.List(params)
	for it.Next() {
		out = append(out, it.Price())
	}
	return out, it.Err()
}

func (g *apiGateway) ConstructEvent(payload []byte, signature string) (stripeapi.Event, error) {
	if g.webhookSecret == "" {
		return stripeapi.Event{}, errors.New("STRIPE_WEBHOOK_SECRET not configured")
	}
	if err := webhook.ValidatePayload(payload, signature, g.webhookSecret); err != nil {
		return stripeapi.Event{}, err
	}
	return DecodeEvent(payload)
}

// DecodeEvent parses an already verified webhook payload.
func DecodeEvent(payload []byte) (stripeapi.Event, error) {
	var e stripeapi.Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return stripeapi.Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return e, nil
}

type disabledGateway struct{}

func (disabledGateway) CreateCustomer(*stripeapi.CustomerParams) (*stripeapi.Customer, error) {
	return nil, ErrNotConfigured
}

func (disabledGateway) CreateCheckoutSession(*stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
	return nil, ErrNotConfigured
}

func (disabledGateway) GetCheckoutSession(string, *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
	return nil, ErrNotConfigured
}

func (disabledGateway) CreatePortalSession(*stripeapi.BillingPortalSessionParams) (*stripeapi.BillingPortalSession, error) {
	return nil, ErrNotConfigured
}

func (disabledGateway) GetSubscription(string) (*stripeapi.Subscription, error) {
	return nil, ErrNotConfigured
}

func (disabledGateway) UpdateSubscription(string, *stripeapi.SubscriptionParams) (*stripeapi.Subscription, error) {
	return nil, ErrNotConfigured
}

func (disabledGateway) CancelSubscription(string) (*stripeapi.Subscription, error) {
	return nil, ErrNotConfigured
}

func (disabledGateway) CreateSchedule(*stripeapi.SubscriptionScheduleParams) (*stripeapi.SubscriptionSchedule, error) {
	return nil, ErrNotConfigured
}

func (disabledGateway) UpdateSchedule(string, *stripeapi.SubscriptionScheduleParams) (*stripeapi.SubscriptionSchedule, error) {
	return nil, ErrNotConfigured
}

func (disabledGateway) ReleaseSchedule(string) (*stripeapi.SubscriptionSchedule, error) {
	return nil, ErrNotConfigured
}

func (disabledGateway) ListRecurringPrices() ([]*stripeapi.Price, error) {
	return nil, ErrNotConfigured
}

func (disabledGateway) ConstructEvent([]byte, string) (stripeapi.Event, error) {
	return stripeapi.Event{}, ErrNotConfigured
}
