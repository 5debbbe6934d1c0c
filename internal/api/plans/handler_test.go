package plans

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripeapi "github.com/stripe/stripe-go/v75"

	"kaiden-app/internal/dbtest"
	"kaiden-app/internal/infra/stripe"
	"kaiden-app/internal/infra/stripe/stripetest"
	plansvc "kaiden-app/internal/service/plans"
)

func TestSyncThenList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := dbtest.New(t)
	gw := stripetest.New()
	gw.Prices = []*stripeapi.Price{{
		ID:         "price_startup",
		Active:     true,
		Currency:   "usd",
		UnitAmount: 19900,
		Metadata:   map[string]string{"plan": "Startup", "tier": "startup"},
		Recurring:  &stripeapi.PriceRecurring{Interval: stripeapi.PriceRecurringIntervalMonth},
		Product:    &stripeapi.Product{ID: "prod_kaiden", Name: "Kaiden", Active: true},
	}}
	h := NewHandler(plansvc.NewService(db, gw, "prod_kaiden", nil), nil)
	r := gin.New()
	r.GET("/plans", h.ListPlans)
	r.POST("/admin/sync-plans", h.SyncPlansFromStripe)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/sync-plans", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"created":1`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plans", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var out []PlanDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "$199.00", out[0].FormattedPrice)
	assert.Contains(t, out[0].Features, "medical_billing")
	assert.NotContains(t, out[0].Features, "api_access")
}

func TestSyncWithoutStripe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(plansvc.NewService(dbtest.New(t), stripe.NewGateway("", ""), "", nil), nil)
	r := gin.New()
	r.POST("/admin/sync-plans", h.SyncPlansFromStripe)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/sync-plans", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
