package plans

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripeapi "github.com/stripe/stripe-go/v75"

	"kaiden-app/internal/dbtest"
	plandomain "kaiden-app/internal/domain/plans"
	"kaiden-app/internal/infra/stripe/stripetest"
)

func price(id, product string, cents int64, meta map[string]string) *stripeapi.Price {
	return &stripeapi.Price{
		ID:         id,
		Active:     true,
		Currency:   "usd",
		UnitAmount: cents,
		Metadata:   meta,
		Recurring:  &stripeapi.PriceRecurring{Interval: stripeapi.PriceRecurringIntervalMonth},
		Product:    &stripeapi.Product{ID: product, Name: "Kaiden", Active: true},
	}
}

func TestSyncCreatesThenUpdates(t *testing.T) {
	db := dbtest.New(t)
	gw := stripetest.New()
	gw.Prices = []*stripeapi.Price{
		price("price_personal", "prod_kaiden", 2900, map[string]string{"plan": "Personal", "tier": "personal"}),
		price("price_startup", "prod_kaiden", 19900, map[string]string{"plan": "Startup", "tier": "startup"}),
		price("price_hidden", "prod_kaiden", 100, map[string]string{"visible": "false"}),
		price("price_other", "prod_other", 5000, nil),
	}
	svc := NewService(db, gw, "prod_kaiden", nil)

	res, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Synced: 2, Created: 2, Skipped: 2}, res)

	gw.Prices[0].UnitAmount = 3900
	res, err = svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, 0, res.Created)

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Personal", list[0].Name)
	assert.Equal(t, int64(3900), list[0].PriceCents)
	assert.Equal(t, "personal", list[0].Tier)
	assert.Equal(t, "startup", list[1].Tier)

	var count int64
	require.NoError(t, db.Model(&plandomain.Plan{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestSyncIgnoresUnknownTier(t *testing.T) {
	db := dbtest.New(t)
	gw := stripetest.New()
	gw.Prices = []*stripeapi.Price{price("price_x", "prod_kaiden", 9900, map[string]string{"tier": "platinum"})}

	_, err := NewService(db, gw, "", nil).Sync(context.Background())
	require.NoError(t, err)

	var p plandomain.Plan
	require.NoError(t, db.First(&p).Error)
	assert.Empty(t, p.Tier)
	assert.Equal(t, "Kaiden", p.Name)
}

func TestSyncPropagatesGatewayError(t *testing.T) {
	gw := stripetest.New()
	gw.Err = errors.New("stripe down")
	_, err := NewService(dbtest.New(t), gw, "", nil).Sync(context.Background())
	assert.Error(t, err)
}
