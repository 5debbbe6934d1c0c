package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedCatalogIsValid(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)
	require.Greater(t, c.Len(), 0)

	for _, p := range c.All() {
		got, ok := c.GetFeaturePricing(p.Feature)
		require.True(t, ok, p.Feature)
		assert.Greater(t, got.Price, int64(0), p.Feature)
		if !got.Lifetime {
			require.NotNil(t, got.DurationDays, p.Feature)
			assert.Greater(t, *got.DurationDays, 0, p.Feature)
		}
	}
}

func TestAllIsSortedByFeature(t *testing.T) {
	all := Default().All()
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Feature, all[i].Feature)
	}
}

func TestGetFeaturePricingUnknown(t *testing.T) {
	_, ok := GetFeaturePricing("ai_chat")
	assert.False(t, ok)

	p, ok := GetFeaturePricing("medical_billing")
	require.True(t, ok)
	assert.Equal(t, int64(4900), p.Price)
	assert.Equal(t, "usd", p.Currency)
}

func TestParseRejectsInvalidEntries(t *testing.T) {
	cases := map[string]string{
		"zero price": `
features:
  - {feature: voice_ai, price: 0, currency: usd, lifetime: true}`,
		"missing duration": `
features:
  - {feature: voice_ai, price: 100, currency: usd, lifetime: false}`,
		"lifetime with duration": `
features:
  - {feature: voice_ai, price: 100, currency: usd, lifetime: true, duration_days: 3}`,
		"unknown slug": `
features:
  - {feature: teleporter, price: 100, currency: usd, lifetime: true}`,
		"duplicate": `
features:
  - {feature: voice_ai, price: 100, currency: usd, lifetime: true}
  - {feature: voice_ai, price: 200, currency: usd, lifetime: true}`,
		"bad currency": `
features:
  - {feature: voice_ai, price: 100, currency: dollars, lifetime: true}`,
		"not yaml": `features: [`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidCatalog))
		})
	}
}

func TestExpiresAt(t *testing.T) {
	from := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	days := 30

	got := ExpiresAt(FeaturePricing{DurationDays: &days}, from)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC), *got)

	assert.Nil(t, ExpiresAt(FeaturePricing{Lifetime: true}, from))
}
