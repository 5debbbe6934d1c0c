// Package stripetest provides an in-memory stripe.Gateway.
package stripetest

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	stripeapi "github.com/stripe/stripe-go/v75"

	kaidenstripe "kaiden-app/internal/infra/stripe"
)

// BadSignature makes ConstructEvent fail.
const BadSignature = "bad-signature"

type Gateway struct {
	mu sync.Mutex

	Sessions      map[string]*stripeapi.CheckoutSession
	Subscriptions map[string]*stripeapi.Subscription
	Prices        []*stripeapi.Price

	CheckoutParams []*stripeapi.CheckoutSessionParams
	Canceled       []string
	Released       []string
	Updated        map[string]*stripeapi.SubscriptionParams
	Schedules      map[string]*stripeapi.SubscriptionScheduleParams

	// Err, when set, is returned by every API call.
	Err error

	seq int
}

func New() *Gateway {
	return &Gateway{
		Sessions:      map[string]*stripeapi.CheckoutSession{},
		Subscriptions: map[string]*stripeapi.Subscription{},
		Updated:       map[string]*stripeapi.SubscriptionParams{},
		Schedules:     map[string]*stripeapi.SubscriptionScheduleParams{},
	}
}

func (g *Gateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_test_%d", prefix, g.seq)
}

func (g *Gateway) CreateCustomer(params *stripeapi.CustomerParams) (*stripeapi.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	return &stripeapi.Customer{ID: g.next("cus"), Email: stripeapi.StringValue(params.Email)}, nil
}

// CreateCheckoutSession stores an unpaid session built from params.
func (g *Gateway) CreateCheckoutSession(params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	g.CheckoutParams = append(g.CheckoutParams, params)

	id := g.next("cs")
	s := &stripeapi.CheckoutSession{
		ID:                id,
		URL:               "https://checkout.stripe.test/" + id,
		Mode:              stripeapi.CheckoutSessionMode(stripeapi.StringValue(params.Mode)),
		PaymentStatus:     stripeapi.CheckoutSessionPaymentStatusUnpaid,
		ClientReferenceID: stripeapi.StringValue(params.ClientReferenceID),
		Metadata:          params.Metadata,
	}
	if len(params.LineItems) > 0 && params.LineItems[0].PriceData != nil {
		pd := params.LineItems[0].PriceData
		s.AmountTotal = stripeapi.Int64Value(pd.UnitAmount)
		s.Currency = stripeapi.Currency(stripeapi.StringValue(pd.Currency))
	}
	g.Sessions[id] = s
	return s, nil
}

func (g *Gateway) GetCheckoutSession(id string, _ *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	s, ok := g.Sessions[id]
	if !ok {
		return nil, fmt.Errorf("no such checkout session: %s", id)
	}
	return s, nil
}

// MarkPaid flips a stored session to paid with the given payment intent.
func (g *Gateway) MarkPaid(sessionID, paymentIntentID string) *stripeapi.CheckoutSession {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.Sessions[sessionID]
	s.PaymentStatus = stripeapi.CheckoutSessionPaymentStatusPaid
	s.Status = stripeapi.CheckoutSessionStatusComplete
	if paymentIntentID != "" {
		s.PaymentIntent = &stripeapi.PaymentIntent{ID: paymentIntentID}
	}
	return s
}

func (g *Gateway) CreatePortalSession(params *stripeapi.BillingPortalSessionParams) (*stripeapi.BillingPortalSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	return &stripeapi.BillingPortalSession{ID: g.next("bps"), URL: "https://billing.stripe.test/" + stripeapi.StringValue(params.Customer)}, nil
}

func (g *Gateway) GetSubscription(id string) (*stripeapi.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	s, ok := g.Subscriptions[id]
	if !ok {
		return nil, fmt.Errorf("no such subscription: %s", id)
	}
	return s, nil
}

func (g *Gateway) UpdateSubscription(id string, params *stripeapi.SubscriptionParams) (*stripeapi.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	s, ok := g.Subscriptions[id]
	if !ok {
		return nil, fmt.Errorf("no such subscription: %s", id)
	}
	g.Updated[id] = params
	if len(params.Items) > 0 && s.Items != nil && len(s.Items.Data) > 0 {
		s.Items.Data[0].Price = &stripeapi.Price{ID: stripeapi.StringValue(params.Items[0].Price)}
	}
	return s, nil
}

func (g *Gateway) CancelSubscription(id string) (*stripeapi.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	g.Canceled = append(g.Canceled, id)
	return &stripeapi.Subscription{ID: id, Status: stripeapi.SubscriptionStatusCanceled}, nil
}

func (g *Gateway) CreateSchedule(params *stripeapi.SubscriptionScheduleParams) (*stripeapi.SubscriptionSchedule, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	id := g.next("sub_sched")
	g.Schedules[id] = params
	return &stripeapi.SubscriptionSchedule{ID: id}, nil
}

func (g *Gateway) UpdateSchedule(id string, params *stripeapi.SubscriptionScheduleParams) (*stripeapi.SubscriptionSchedule, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	g.Schedules[id] = params
	return &stripeapi.SubscriptionSchedule{ID: id}, nil
}

func (g *Gateway) ReleaseSchedule(id string) (*stripeapi.SubscriptionSchedule, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	g.Released = append(g.Released, id)
	return &stripeapi.SubscriptionSchedule{ID: id}, nil
}

func (g *Gateway) ListRecurringPrices() ([]*stripeapi.Price, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	return g.Prices, nil
}

// ConstructEvent decodes payload without verifying it, unless signature is BadSignature.
func (g *Gateway) ConstructEvent(payload []byte, signature string) (stripeapi.Event, error) {
	if signature == BadSignature {
		return stripeapi.Event{}, errors.New("webhook has invalid signature")
	}
	return kaidenstripe.DecodeEvent(payload)
}

// Event builds a webhook payload of the given type wrapping object.
func Event(id, eventType string, object any) []byte {
	obj, err := json.Marshal(object)
	if err != nil {
		panic(err)
	}
	b, err := json.Marshal(map[string]any{
		"id":     id,
		"object": "event",
		"type":   eventType,
		"data":   map[string]json.RawMessage{"object": obj},
	})
	if err != nil {
		panic(err)
	}
	return b
}

var _ kaidenstripe.Gateway = (*Gateway)(nil)
